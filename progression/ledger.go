/*
ledger.go - Per-user statistics ownership and mutation

PURPOSE:
  The Ledger owns one Snapshot per user and is the ONLY path that
  mutates it. Task outcomes, coin debits, and resets all funnel through
  here; UI components never hold a raw settable balance.

CRITICAL INVARIANTS:
  1. SERIALIZED: All mutations for one user hold that user's lock.
     No two read-modify-write sequences for the same user interleave.
     Different users proceed fully in parallel.
  2. MONOTONIC: ApplyOutcome is the only operation that increases XP or
     lifetime totals, and it never decreases anything. Debit is the only
     operation that decreases the coin balance, as an atomic
     check-and-decrement.
  3. DERIVED LEVEL: Level is recomputed from the curve on every XP
     change; it is never set directly.

PERSISTENCE:
  Saves are a best-effort tail inside the user lock. On failure the user
  is marked dirty, a warning is logged, and the in-memory state stands.
  FlushDirty retries failed saves (driven by the sync scheduler).

EVENTS:
  OnLevelUp and OnOutcomeApplied hooks fire after the mutation commits,
  outside the user lock, so slow consumers (notifications, websocket
  fan-out) stay off the hot path.

SEE ALSO:
  - curve.go: Level computation
  - store.go: Persistence contract
  - rewards/economy.go: The only caller of Debit/RefundDebit
*/
package progression

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// =============================================================================
// EVENT HOOKS
// =============================================================================

// LevelUpFunc observes a level increase. Fired at most once per
// ApplyOutcome call, with the levels before and after.
type LevelUpFunc func(userID UserID, oldLevel, newLevel int)

// OutcomeFunc observes every applied outcome, including failed outcomes
// that changed only a counter.
type OutcomeFunc func(userID UserID, outcome Outcome, snap Snapshot)

// =============================================================================
// LEDGER
// =============================================================================

// OutcomeResult is returned by ApplyOutcome.
type OutcomeResult struct {
	Snapshot  Snapshot
	LeveledUp bool
	OldLevel  int
	NewLevel  int
	// Persisted is false when the best-effort save failed; the snapshot is
	// still applied in memory and will be flushed later.
	Persisted bool
}

// Ledger owns all user snapshots. Safe for concurrent use.
type Ledger struct {
	mu    sync.Mutex
	users map[UserID]*userState

	store    StatsStore // optional; nil means memory-only
	notifier Notifier   // optional

	hookMu    sync.RWMutex
	onLevelUp []LevelUpFunc
	onOutcome []OutcomeFunc
}

type userState struct {
	mu     sync.Mutex
	snap   *Snapshot
	loaded bool
	dirty  bool
}

// NewLedger creates a ledger backed by the given store.
// A nil store is valid and keeps all state in memory.
func NewLedger(store StatsStore) *Ledger {
	return &Ledger{
		users: make(map[UserID]*userState),
		store: store,
	}
}

// SetNotifier installs the best-effort notification channel.
func (l *Ledger) SetNotifier(n Notifier) { l.notifier = n }

// OnLevelUp registers a level-up observer.
func (l *Ledger) OnLevelUp(fn LevelUpFunc) {
	l.hookMu.Lock()
	defer l.hookMu.Unlock()
	l.onLevelUp = append(l.onLevelUp, fn)
}

// OnOutcomeApplied registers an outcome observer.
func (l *Ledger) OnOutcomeApplied(fn OutcomeFunc) {
	l.hookMu.Lock()
	defer l.hookMu.Unlock()
	l.onOutcome = append(l.onOutcome, fn)
}

// =============================================================================
// STATE ACCESS
// =============================================================================

// state returns the per-user slot, creating it on first sight.
func (l *Ledger) state(userID UserID) *userState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.users[userID]
	if !ok {
		st = &userState{}
		l.users[userID] = st
	}
	return st
}

// loadLocked hydrates the snapshot from the store on first access.
// Must be called with st.mu held.
func (l *Ledger) loadLocked(ctx context.Context, userID UserID, st *userState) error {
	if st.loaded {
		return nil
	}
	if l.store == nil {
		st.snap = NewSnapshot()
		st.loaded = true
		return nil
	}
	snap, err := l.store.LoadStatistics(ctx, userID)
	switch {
	case err == nil:
		st.snap = snap
	case IsNotFound(err):
		// Fresh user: initialize the zero state and write it back so the
		// record exists for collaborators reading the store directly.
		st.snap = NewSnapshot()
		l.persistLocked(ctx, userID, st)
	default:
		return fmt.Errorf("load statistics for %s: %w", userID, err)
	}
	st.loaded = true
	return nil
}

// persistLocked attempts the best-effort save tail.
// Must be called with st.mu held. Returns whether the save landed.
func (l *Ledger) persistLocked(ctx context.Context, userID UserID, st *userState) bool {
	if l.store == nil {
		return true
	}
	if err := l.store.SaveStatistics(ctx, userID, st.snap); err != nil {
		log.Printf("[Ledger] warning: save statistics for %s failed: %v", userID, err)
		st.dirty = true
		return false
	}
	st.dirty = false
	return true
}

// =============================================================================
// CORE OPERATIONS
// =============================================================================

// ApplyOutcome applies one task-outcome event.
//
// Completed: bumps the completion counter for the tier, grants the tier's
// coin and XP rewards, and recomputes the level. Failed: bumps the failure
// counter only. Unknown difficulty: ErrInvalidDifficulty, state unchanged.
func (l *Ledger) ApplyOutcome(ctx context.Context, userID UserID, outcome Outcome) (OutcomeResult, error) {
	if !outcome.Difficulty.Valid() {
		return OutcomeResult{}, fmt.Errorf("apply outcome: %w: %q", ErrInvalidDifficulty, outcome.Difficulty)
	}
	if !outcome.Result.Valid() {
		return OutcomeResult{}, fmt.Errorf("apply outcome: %w: %q", ErrInvalidResult, outcome.Result)
	}

	st := l.state(userID)
	st.mu.Lock()
	if err := l.loadLocked(ctx, userID, st); err != nil {
		st.mu.Unlock()
		return OutcomeResult{}, err
	}

	snap := st.snap
	oldLevel := snap.Level

	switch outcome.Result {
	case ResultCompleted:
		snap.Completed[outcome.Difficulty]++
		snap.CoinBalance += outcome.Difficulty.CoinReward()
		snap.LifetimeCoins += outcome.Difficulty.CoinReward()
		snap.XP += outcome.Difficulty.XPReward()
		snap.LifetimeXP += outcome.Difficulty.XPReward()
		snap.Level = LevelForXP(snap.XP)
	case ResultFailed:
		snap.Failed[outcome.Difficulty]++
	}

	res := OutcomeResult{
		Snapshot:  snap.Clone(),
		LeveledUp: snap.Level > oldLevel,
		OldLevel:  oldLevel,
		NewLevel:  snap.Level,
		Persisted: l.persistLocked(ctx, userID, st),
	}
	st.mu.Unlock()

	l.fireOutcome(ctx, userID, outcome, res)
	return res, nil
}

// Snapshot returns the current state, creating the initial snapshot for an
// unseen user. The returned value is a copy.
func (l *Ledger) Snapshot(ctx context.Context, userID UserID) (Snapshot, error) {
	st := l.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := l.loadLocked(ctx, userID, st); err != nil {
		return Snapshot{}, err
	}
	return st.snap.Clone(), nil
}

// Reset replaces the snapshot with the all-zero initial state.
// User-invoked only; nothing in the engine resets automatically.
func (l *Ledger) Reset(ctx context.Context, userID UserID) (Snapshot, error) {
	st := l.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.snap = NewSnapshot()
	st.loaded = true
	l.persistLocked(ctx, userID, st)
	return st.snap.Clone(), nil
}

// Debit decreases the coin balance by amount as one atomic
// check-and-decrement, and records the purchase. Used only by the reward
// economy; nothing else spends coins.
//
// Returns InsufficientFundsError (state unchanged) when the balance is
// short.
func (l *Ledger) Debit(ctx context.Context, userID UserID, amount int) (Snapshot, error) {
	if amount <= 0 {
		return Snapshot{}, fmt.Errorf("debit %d: %w", amount, ErrInvalidAmount)
	}
	st := l.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := l.loadLocked(ctx, userID, st); err != nil {
		return Snapshot{}, err
	}
	if st.snap.CoinBalance < amount {
		return Snapshot{}, &InsufficientFundsError{
			UserID:    userID,
			Available: st.snap.CoinBalance,
			Requested: amount,
		}
	}
	st.snap.CoinBalance -= amount
	st.snap.Purchases++
	l.persistLocked(ctx, userID, st)
	return st.snap.Clone(), nil
}

// RefundDebit compensates a Debit whose redemption leg could not complete:
// it restores the balance and decrements the purchase counter, as if the
// debit never happened. Only the reward economy calls this, and only on
// its rollback path.
func (l *Ledger) RefundDebit(ctx context.Context, userID UserID, amount int) (Snapshot, error) {
	if amount <= 0 {
		return Snapshot{}, fmt.Errorf("refund %d: %w", amount, ErrInvalidAmount)
	}
	st := l.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := l.loadLocked(ctx, userID, st); err != nil {
		return Snapshot{}, err
	}
	st.snap.CoinBalance += amount
	if st.snap.Purchases > 0 {
		st.snap.Purchases--
	}
	l.persistLocked(ctx, userID, st)
	return st.snap.Clone(), nil
}

// =============================================================================
// FLUSH - retry of failed best-effort saves
// =============================================================================

// FlushDirty retries the save for every user whose last save failed.
// Returns the number of snapshots successfully flushed.
func (l *Ledger) FlushDirty(ctx context.Context) int {
	if l.store == nil {
		return 0
	}

	l.mu.Lock()
	ids := make([]UserID, 0, len(l.users))
	for id := range l.users {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	flushed := 0
	for _, id := range ids {
		st := l.state(id)
		st.mu.Lock()
		if st.dirty && st.snap != nil {
			if l.persistLocked(ctx, id, st) {
				flushed++
			}
		}
		st.mu.Unlock()
	}
	return flushed
}

// =============================================================================
// EVENT DISPATCH
// =============================================================================

func (l *Ledger) fireOutcome(ctx context.Context, userID UserID, outcome Outcome, res OutcomeResult) {
	l.hookMu.RLock()
	outcomeHooks := l.onOutcome
	levelHooks := l.onLevelUp
	l.hookMu.RUnlock()

	for _, fn := range outcomeHooks {
		fn(userID, outcome, res.Snapshot)
	}
	if !res.LeveledUp {
		return
	}
	for _, fn := range levelHooks {
		fn(userID, res.OldLevel, res.NewLevel)
	}
	if l.notifier != nil {
		msg := fmt.Sprintf("Level up! You reached level %d.", res.NewLevel)
		if err := l.notifier.Notify(ctx, userID, msg); err != nil {
			log.Printf("[Ledger] warning: level-up notification for %s failed: %v", userID, err)
		}
	}
}
