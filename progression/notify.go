package progression

import "context"

// Notifier is an optional, best-effort outbound message channel (in the
// deployed system: chat-platform notifications). The engine never depends
// on delivery: a failed or absent notifier changes nothing about state.
//
// Implementations live in the notify package so the core stays testable
// without any messaging collaborator.
type Notifier interface {
	Notify(ctx context.Context, userID UserID, message string) error
}
