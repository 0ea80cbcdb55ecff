/*
dto.go - Request and response data structures

PURPOSE:
  Data Transfer Objects for the HTTP API. Keeps the wire format stable
  and decoupled from domain types: domain structs can evolve without
  breaking API clients.

CONVENTIONS:
  - JSON field names are snake_case
  - Timestamps are RFC3339 strings
  - Snapshots serialize with the progression package's own JSON tags,
    so the stats payload is the domain Snapshot verbatim

SEE ALSO:
  - handlers.go: Where these are used
*/
package api

import (
	"time"

	"github.com/warp/quest-engine/progression"
	"github.com/warp/quest-engine/rewards"
	"github.com/warp/quest-engine/tasks"
)

// =============================================================================
// REQUESTS
// =============================================================================

// CreateUserRequest registers or refreshes a user identity.
type CreateUserRequest struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// OutcomeRequest records a task outcome directly against the ledger.
type OutcomeRequest struct {
	Difficulty string `json:"difficulty"`
	Result     string `json:"result"`
}

// CreateRewardRequest adds an entry to the user's reward catalog.
type CreateRewardRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Cost        int    `json:"cost"`
}

// TaskRequest creates or updates a task. Deadline is RFC3339 or absent.
type TaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Difficulty  string `json:"difficulty"`
	Deadline    string `json:"deadline,omitempty"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// UserDTO is the API shape of a user identity.
type UserDTO struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toUserDTO(u progression.User) UserDTO {
	return UserDTO{
		ID:        string(u.ID),
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

// StatsDTO wraps a snapshot with the derived curve values clients need
// to render a progress bar without reimplementing the curve.
type StatsDTO struct {
	progression.Snapshot
	XPIntoLevel   int `json:"xp_into_level"`
	XPToNextLevel int `json:"xp_to_next_level"`
}

func toStatsDTO(snap progression.Snapshot) StatsDTO {
	return StatsDTO{
		Snapshot:      snap,
		XPIntoLevel:   progression.XPIntoLevel(snap.XP),
		XPToNextLevel: progression.XPToNextLevel(snap.XP),
	}
}

// OutcomeResponse reports the result of applying an outcome.
type OutcomeResponse struct {
	Stats     StatsDTO `json:"stats"`
	LeveledUp bool     `json:"leveled_up"`
	OldLevel  int      `json:"old_level"`
	NewLevel  int      `json:"new_level"`
	Persisted bool     `json:"persisted"`
}

func toOutcomeResponse(res progression.OutcomeResult) OutcomeResponse {
	return OutcomeResponse{
		Stats:     toStatsDTO(res.Snapshot),
		LeveledUp: res.LeveledUp,
		OldLevel:  res.OldLevel,
		NewLevel:  res.NewLevel,
		Persisted: res.Persisted,
	}
}

// RedeemResponse reports a successful redemption.
type RedeemResponse struct {
	Reward     rewards.Reward `json:"reward"`
	NewBalance int            `json:"new_balance"`
	Purchases  int            `json:"purchases"`
	Stats      StatsDTO       `json:"stats"`
}

// TaskTransitionResponse reports a task close plus its ledger effect.
type TaskTransitionResponse struct {
	Task    tasks.Task      `json:"task"`
	Outcome OutcomeResponse `json:"outcome"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
