/*
Package rewards provides the self-defined reward catalog and the
redemption economy built on the progression ledger.

PURPOSE:
  Users define their own rewards ("evening off", "new game", ...) with a
  coin cost, then redeem them with coins earned from completed tasks.
  This package owns the per-user reward list and the redemption flow
  with its consistency guarantees:

  - A reward is redeemed at most once (one-way transition).
  - A redemption either debits the ledger AND marks the reward, or does
    neither. No partial state survives a redemption call.
  - An unaffordable redemption mutates nothing at all.

SEE ALSO:
  - store.go: Reward list ownership (create/list/redeem/delete)
  - economy.go: The redemption orchestration
  - progression/ledger.go: The coin balance being spent
*/
package rewards

import (
	"errors"
	"time"
)

// =============================================================================
// REWARD - A user-defined redeemable
// =============================================================================

// Reward is one entry in a user's catalog. Cost is immutable after
// creation; Redeemed transitions false -> true exactly once.
type Reward struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Cost        int       `json:"cost"`
	Redeemed    bool      `json:"redeemed"`
	CreatedAt   time.Time `json:"created_at"`
}

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrInvalidReward is returned on creation with a blank title or a
	// non-positive cost.
	ErrInvalidReward = errors.New("invalid reward")

	// ErrRewardNotFound is returned when the reward id is absent from the
	// user's catalog.
	ErrRewardNotFound = errors.New("reward not found")

	// ErrAlreadyRedeemed is returned when redeeming a consumed reward.
	// Re-redemption is rejected, never silently repeated.
	ErrAlreadyRedeemed = errors.New("reward already redeemed")
)
