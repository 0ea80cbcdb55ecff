/*
errors.go - Centralized error types for the progression engine

PURPOSE:
  All engine-level error categories in one place. Expected business
  conditions (insufficient funds, not-found, already-redeemed) are typed
  failure results, never panics: callers are expected to render them,
  not crash on them.

ERROR CATEGORIES:
  1. Input errors     - malformed outcome or debit arguments
  2. Economy errors   - affordability failures
  3. Lookup errors    - missing statistics or user records

  Failed best-effort saves are deliberately NOT errors: the mutation
  already landed in memory, so the outcome is reported through
  OutcomeResult.Persisted and healed by the sync scheduler.

USAGE:
  if errors.Is(err, progression.ErrInsufficientFunds) {
      // render "not enough coins", state unchanged
  }
*/
package progression

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidDifficulty is returned when an outcome carries a difficulty
	// outside the closed easy/medium/hard enumeration. Defensive: with
	// validated task creation this path should be unreachable.
	ErrInvalidDifficulty = errors.New("invalid difficulty")

	// ErrInvalidResult is returned when an outcome carries a result outside
	// the completed/failed enumeration. State unchanged.
	ErrInvalidResult = errors.New("invalid result")

	// ErrInvalidAmount is returned for a debit or refund of a non-positive
	// amount. Caller bug, state unchanged.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds is returned when a debit exceeds the spendable
	// coin balance. State unchanged.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrStatsNotFound is returned by a StatsStore when no statistics record
	// exists for the user. The ledger treats it as "fresh user", not a fault.
	ErrStatsNotFound = errors.New("statistics not found")

	// ErrUserNotFound is returned by a UserStore for an unknown user id.
	ErrUserNotFound = errors.New("user not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError reports a coin shortage on a debit or redemption.
type InsufficientFundsError struct {
	UserID    UserID
	Available int
	Requested int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: have %d coins, need %d",
		e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// Shortfall is how many coins the user is missing.
func (e *InsufficientFundsError) Shortfall() int { return e.Requested - e.Available }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is an expected user-facing
// condition rather than an engine fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidDifficulty) ||
		errors.Is(err, ErrInvalidResult) ||
		errors.Is(err, ErrInvalidAmount)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStatsNotFound) || errors.Is(err, ErrUserNotFound)
}
