/*
events.go - WebSocket event feed

PURPOSE:
  Pushes progression events (outcomes, level-ups, redemptions) to
  connected clients so the frontend can animate without polling.

DESIGN:
  - One hub holds all connections; each client gets a buffered send
    channel drained by its own write pump
  - Slow clients are disconnected rather than blocking the hub
  - The hub subscribes to ledger and economy hooks at wiring time;
    the domain packages know nothing about WebSockets

MESSAGE FORMAT:
  {"type": "outcome"|"level_up"|"redeemed", "user_id": "...", "payload": {...}}

SEE ALSO:
  - progression/ledger.go: OnOutcomeApplied, OnLevelUp hooks
  - rewards/economy.go: OnRedeemed hook
*/
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/warp/quest-engine/progression"
	"github.com/warp/quest-engine/rewards"
)

const (
	EventOutcome  = "outcome"
	EventLevelUp  = "level_up"
	EventRedeemed = "redeemed"
)

// Event is one message on the feed.
type Event struct {
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	Payload any    `json:"payload"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	// mu guards closed so no broadcast can send on a channel another
	// goroutine is closing.
	mu     sync.Mutex
	closed bool
}

func newWSClient(conn *websocket.Conn) *wsClient {
	c := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// trySend queues the message without blocking. Reports false when the
// client's buffer is full; a closed client swallows the message.
func (c *wsClient) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close shuts the send channel exactly once, under the same lock
// trySend holds.
func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// EventHub fans progression events out to WebSocket clients.
type EventHub struct {
	mu       sync.RWMutex
	clients  map[*wsClient]bool
	upgrader websocket.Upgrader
}

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[*wsClient]bool),
		upgrader: websocket.Upgrader{
			// The API is origin-open like the rest of the endpoints.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// BindLedger subscribes the hub to ledger events.
func (h *EventHub) BindLedger(ledger *progression.Ledger) {
	ledger.OnOutcomeApplied(func(userID progression.UserID, outcome progression.Outcome, snap progression.Snapshot) {
		h.Broadcast(Event{
			Type:   EventOutcome,
			UserID: string(userID),
			Payload: map[string]any{
				"difficulty": outcome.Difficulty,
				"result":     outcome.Result,
				"stats":      snap,
			},
		})
	})
	ledger.OnLevelUp(func(userID progression.UserID, oldLevel, newLevel int) {
		h.Broadcast(Event{
			Type:   EventLevelUp,
			UserID: string(userID),
			Payload: map[string]any{
				"old_level": oldLevel,
				"new_level": newLevel,
			},
		})
	})
}

// BindEconomy subscribes the hub to redemption events.
func (h *EventHub) BindEconomy(economy *rewards.Economy) {
	economy.OnRedeemed(func(userID progression.UserID, reward rewards.Reward, snap progression.Snapshot) {
		h.Broadcast(Event{
			Type:   EventRedeemed,
			UserID: string(userID),
			Payload: map[string]any{
				"reward": reward,
				"stats":  snap,
			},
		})
	})
}

// HandleWS upgrades the connection and registers the client.
func (h *EventHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Events] upgrade error: %v", err)
		return
	}

	c := newWSClient(conn)
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	log.Printf("[Events] client connected: %s", r.RemoteAddr)

	go func() {
		defer func() {
			h.remove(c)
			log.Printf("[Events] client disconnected: %s", r.RemoteAddr)
		}()
		for {
			// Clients only listen; reads just detect disconnect.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends the event to every connected client.
func (h *EventHub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[Events] marshal error: %v", err)
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.trySend(data) {
			log.Printf("[Events] client too slow, disconnecting")
			h.remove(c)
		}
	}
}

// ClientCount reports connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *EventHub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}
