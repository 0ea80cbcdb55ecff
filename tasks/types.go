/*
Package tasks provides the task catalog feeding the progression engine.

PURPOSE:
  Tasks are the externally-owned entities whose outcomes drive the
  economy. This package stores them durably (they are not part of the
  local-first snapshot model) and turns their terminal transitions into
  ledger outcome events. A task pays out exactly once: completing or
  failing a task closes it, and closed tasks reject further transitions.
*/
package tasks

import (
	"errors"
	"time"

	"github.com/warp/quest-engine/progression"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task is one user-created task. Coins is the payout frozen at creation
// time from the difficulty table, so later table changes never reprice
// existing tasks.
type Task struct {
	ID          string                 `json:"id" db:"id"`
	UserID      progression.UserID     `json:"user_id" db:"user_id"`
	Title       string                 `json:"title" db:"title"`
	Description string                 `json:"description,omitempty" db:"description"`
	Difficulty  progression.Difficulty `json:"difficulty" db:"difficulty"`
	Deadline    *time.Time             `json:"deadline,omitempty" db:"deadline"`
	Status      Status                 `json:"status" db:"status"`
	Coins       int                    `json:"coins" db:"coins"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
}

var (
	// ErrInvalidTask is returned on creation with a blank title or an
	// unrecognized difficulty.
	ErrInvalidTask = errors.New("invalid task")

	// ErrTaskNotFound is returned for an absent task id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskClosed is returned when completing or failing a task that
	// already reached a terminal status. A task pays out at most once.
	ErrTaskClosed = errors.New("task already closed")
)
