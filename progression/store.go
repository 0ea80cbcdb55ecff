/*
store.go - Persistence contract for statistics and identity records

PURPOSE:
  Defines the interface between the engine and durable storage. The
  engine is local-first: in-memory state is the source of truth for a
  session, and saves are a best-effort tail step. A save failure is
  surfaced as a warning and retried later; it never rolls back memory.

CONTRACT:
  - SaveStatistics is a FULL-STATE REPLACE. There are no partial field
    updates; the ledger always writes the whole snapshot.
  - LoadStatistics returns ErrStatsNotFound for an unseen user. The
    ledger then initializes the zero state and writes it back.
  - Load paths normalize: every implementation calls Snapshot.Normalize
    on the way out, so missing/legacy fields are repaired in exactly one
    place instead of per caller.

IMPLEMENTATIONS:
  - store/memory:   In-memory, for tests and dev
  - store/sqlite:   SQLite (single-binary deployments)
  - store/postgres: PostgreSQL (the original backend's store)
*/
package progression

import "context"

// StatsStore persists one statistics snapshot per user.
type StatsStore interface {
	// LoadStatistics returns the stored snapshot, normalized.
	// Returns ErrStatsNotFound if the user has no record.
	LoadStatistics(ctx context.Context, userID UserID) (*Snapshot, error)

	// SaveStatistics replaces the stored snapshot wholesale.
	SaveStatistics(ctx context.Context, userID UserID, snap *Snapshot) error
}

// UserStore persists identity records synced from the mini-app host.
type UserStore interface {
	// UpsertUser creates or updates the identity record.
	UpsertUser(ctx context.Context, user User) error

	// GetUser returns the record or ErrUserNotFound.
	GetUser(ctx context.Context, userID UserID) (*User, error)

	// ListUsers returns all known users, oldest first.
	ListUsers(ctx context.Context) ([]User, error)
}
