/*
Package notify provides delivery channels for progression events.

PURPOSE:
  The engine reports level-ups and redemptions through the
  progression.Notifier capability. This package supplies the two
  implementations the server wires:
    Log       - writes messages to the process log, always available
    Telegram  - pushes messages to the user's Telegram chat

  Notifications are best effort. A failed delivery never fails the
  operation that triggered it; callers log and move on.

SEE ALSO:
  - progression/notify.go: The Notifier capability
  - cmd/server/main.go: Channel selection at startup
*/
package notify

import (
	"context"
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/warp/quest-engine/progression"
)

// Log writes notifications to the standard logger.
// It is the default channel when no Telegram token is configured.
type Log struct{}

func (Log) Notify(_ context.Context, userID progression.UserID, message string) error {
	log.Printf("[Notify] user=%s %s", userID, message)
	return nil
}

// Telegram delivers notifications through a Telegram bot. User IDs are
// expected to be Telegram chat IDs in decimal form, which is what the
// mini-app host hands us.
type Telegram struct {
	bot *tgbotapi.BotAPI
}

// NewTelegram authenticates the bot with the given token.
func NewTelegram(token string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	log.Printf("[Notify] telegram bot authorized as @%s", bot.Self.UserName)
	return &Telegram{bot: bot}, nil
}

func (t *Telegram) Notify(_ context.Context, userID progression.UserID, message string) error {
	chatID, err := strconv.ParseInt(string(userID), 10, 64)
	if err != nil {
		return fmt.Errorf("user id %q is not a telegram chat id: %w", userID, err)
	}
	msg := tgbotapi.NewMessage(chatID, message)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
