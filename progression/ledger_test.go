package progression_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/quest-engine/progression"
	"github.com/warp/quest-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*progression.Ledger, *memory.Store) {
	t.Helper()
	store := memory.New()
	return progression.NewLedger(store), store
}

func apply(t *testing.T, l *progression.Ledger, userID progression.UserID, d progression.Difficulty, r progression.Result) progression.OutcomeResult {
	t.Helper()
	res, err := l.ApplyOutcome(context.Background(), userID, progression.Outcome{Difficulty: d, Result: r})
	require.NoError(t, err)
	return res
}

// =============================================================================
// OUTCOME TESTS
// =============================================================================

func TestApplyOutcome_FirstCompletion(t *testing.T) {
	// GIVEN: A fresh user
	// WHEN: They complete one medium task
	// THEN: Counters, coins, and XP all move by the medium tier amounts

	ledger, _ := newTestLedger(t)

	res := apply(t, ledger, "u1", progression.DifficultyMedium, progression.ResultCompleted)

	assert.Equal(t, 1, res.Snapshot.Completed[progression.DifficultyMedium])
	assert.Equal(t, 20, res.Snapshot.CoinBalance)
	assert.Equal(t, 20, res.Snapshot.XP)
	assert.Equal(t, 20, res.Snapshot.LifetimeCoins)
	assert.Equal(t, 20, res.Snapshot.LifetimeXP)
	assert.Equal(t, 1, res.Snapshot.Level)
	assert.False(t, res.LeveledUp)
	assert.True(t, res.Persisted)
}

func TestApplyOutcome_FailedTouchesOnlyCounter(t *testing.T) {
	// GIVEN: A user with some progress
	// WHEN: They fail a hard task
	// THEN: Only the failure counter moves

	ledger, _ := newTestLedger(t)
	apply(t, ledger, "u1", progression.DifficultyEasy, progression.ResultCompleted)

	res := apply(t, ledger, "u1", progression.DifficultyHard, progression.ResultFailed)

	assert.Equal(t, 1, res.Snapshot.Failed[progression.DifficultyHard])
	assert.Equal(t, 10, res.Snapshot.CoinBalance)
	assert.Equal(t, 10, res.Snapshot.XP)
	assert.False(t, res.LeveledUp)
}

func TestApplyOutcome_LevelUpAtThreshold(t *testing.T) {
	// GIVEN: A user at 90 XP
	// WHEN: They complete an easy task landing exactly on 100
	// THEN: They reach level 2, and the level-up hook fires exactly once

	ledger, _ := newTestLedger(t)
	for i := 0; i < 9; i++ {
		apply(t, ledger, "u1", progression.DifficultyEasy, progression.ResultCompleted)
	}

	var fired []int
	ledger.OnLevelUp(func(_ progression.UserID, _, newLevel int) {
		fired = append(fired, newLevel)
	})

	res := apply(t, ledger, "u1", progression.DifficultyEasy, progression.ResultCompleted)

	assert.True(t, res.LeveledUp)
	assert.Equal(t, 1, res.OldLevel)
	assert.Equal(t, 2, res.NewLevel)
	assert.Equal(t, 100, res.Snapshot.XP)
	require.Len(t, fired, 1)
	assert.Equal(t, 2, fired[0])
}

func TestApplyOutcome_CrossingThresholdMidReward(t *testing.T) {
	// GIVEN: A user seeded at 95 XP (externally written state)
	// WHEN: They complete a medium task (+20 XP)
	// THEN: 115 XP lands them in level 2 with 15 XP into it

	store := memory.New()
	seed := progression.NewSnapshot()
	seed.XP = 95
	seed.LifetimeXP = 95
	require.NoError(t, store.SaveStatistics(context.Background(), "u1", seed))

	ledger := progression.NewLedger(store)
	res := apply(t, ledger, "u1", progression.DifficultyMedium, progression.ResultCompleted)

	assert.Equal(t, 115, res.Snapshot.XP)
	assert.Equal(t, 2, res.Snapshot.Level)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 15, progression.XPIntoLevel(res.Snapshot.XP))
}

func TestApplyOutcome_InvalidDifficultyRejected(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.ApplyOutcome(context.Background(), "u1", progression.Outcome{
		Difficulty: "legendary",
		Result:     progression.ResultCompleted,
	})
	require.ErrorIs(t, err, progression.ErrInvalidDifficulty)

	// State unchanged: the user still reads as fresh.
	snap, err := ledger.Snapshot(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.TotalCompleted())
	assert.Equal(t, 0, snap.XP)
}

func TestApplyOutcome_InvalidResultRejected(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.ApplyOutcome(context.Background(), "u1", progression.Outcome{
		Difficulty: progression.DifficultyEasy,
		Result:     "abandoned",
	})
	require.ErrorIs(t, err, progression.ErrInvalidResult)
	assert.True(t, progression.IsClientError(err))

	// State unchanged: the user still reads as fresh.
	snap, err := ledger.Snapshot(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.TotalCompleted())
	assert.Equal(t, 0, snap.TotalFailed())
}

func TestApplyOutcome_OutcomeHookSeesEveryEvent(t *testing.T) {
	ledger, _ := newTestLedger(t)

	var count int
	ledger.OnOutcomeApplied(func(progression.UserID, progression.Outcome, progression.Snapshot) {
		count++
	})

	apply(t, ledger, "u1", progression.DifficultyEasy, progression.ResultCompleted)
	apply(t, ledger, "u1", progression.DifficultyEasy, progression.ResultFailed)

	assert.Equal(t, 2, count)
}

// =============================================================================
// RESET TESTS
// =============================================================================

func TestReset_ReturnsToInitialState(t *testing.T) {
	// GIVEN: A user with progress
	// WHEN: They reset
	// THEN: The snapshot equals a fresh user's snapshot

	ledger, _ := newTestLedger(t)
	for i := 0; i < 15; i++ {
		apply(t, ledger, "u1", progression.DifficultyHard, progression.ResultCompleted)
	}

	snap, err := ledger.Reset(context.Background(), "u1")
	require.NoError(t, err)

	fresh := progression.NewSnapshot()
	assert.Equal(t, *fresh, snap)
	assert.Equal(t, 1, snap.Level)
	assert.Equal(t, 0, snap.CoinBalance)
}

// =============================================================================
// DEBIT TESTS
// =============================================================================

func TestDebit_InsufficientFundsLeavesStateUntouched(t *testing.T) {
	ledger, _ := newTestLedger(t)
	apply(t, ledger, "u1", progression.DifficultyEasy, progression.ResultCompleted) // 10 coins

	_, err := ledger.Debit(context.Background(), "u1", 25)

	var insufficient *progression.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 10, insufficient.Available)
	assert.Equal(t, 25, insufficient.Requested)
	assert.Equal(t, 15, insufficient.Shortfall())

	snap, _ := ledger.Snapshot(context.Background(), "u1")
	assert.Equal(t, 10, snap.CoinBalance)
	assert.Equal(t, 0, snap.Purchases)
}

func TestDebit_RecordsPurchase(t *testing.T) {
	ledger, _ := newTestLedger(t)
	apply(t, ledger, "u1", progression.DifficultyHard, progression.ResultCompleted) // 30 coins

	snap, err := ledger.Debit(context.Background(), "u1", 30)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.CoinBalance)
	assert.Equal(t, 1, snap.Purchases)
	assert.Equal(t, 30, snap.LifetimeCoins, "lifetime total unaffected by spending")
}

func TestDebit_InvalidAmount(t *testing.T) {
	ledger, _ := newTestLedger(t)
	for _, amount := range []int{0, -5} {
		_, err := ledger.Debit(context.Background(), "u1", amount)
		assert.ErrorIs(t, err, progression.ErrInvalidAmount)
	}
}

func TestRefundDebit_RestoresBalanceAndCounter(t *testing.T) {
	ledger, _ := newTestLedger(t)
	apply(t, ledger, "u1", progression.DifficultyHard, progression.ResultCompleted)
	_, err := ledger.Debit(context.Background(), "u1", 30)
	require.NoError(t, err)

	snap, err := ledger.RefundDebit(context.Background(), "u1", 30)
	require.NoError(t, err)
	assert.Equal(t, 30, snap.CoinBalance)
	assert.Equal(t, 0, snap.Purchases)
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestApplyOutcome_ConcurrentCompletionsConserveTotals(t *testing.T) {
	// GIVEN: 50 goroutines each completing 20 easy tasks for one user
	// WHEN: All finish
	// THEN: Exactly 1000 completions worth of coins and XP, no lost updates

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	const goroutines = 50
	const perGoroutine = 20

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				_, err := ledger.ApplyOutcome(ctx, "u1", progression.Outcome{
					Difficulty: progression.DifficultyEasy,
					Result:     progression.ResultCompleted,
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	snap, err := ledger.Snapshot(ctx, "u1")
	require.NoError(t, err)

	total := goroutines * perGoroutine
	assert.Equal(t, total, snap.Completed[progression.DifficultyEasy])
	assert.Equal(t, total*10, snap.CoinBalance)
	assert.Equal(t, total*10, snap.XP)
	assert.Equal(t, progression.LevelForXP(snap.XP), snap.Level)
}

func TestDebit_ConcurrentSpendNeverOverdraws(t *testing.T) {
	// GIVEN: A user with 100 coins and 20 goroutines each trying to spend 30
	// WHEN: All attempts finish
	// THEN: Exactly 3 succeed and the balance ends at 10

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		apply(t, ledger, "u1", progression.DifficultyEasy, progression.ResultCompleted)
	}

	var successes int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Debit(ctx, "u1", 30); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	snap, err := ledger.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, successes)
	assert.Equal(t, 10, snap.CoinBalance)
	assert.EqualValues(t, 3, snap.Purchases)
}

// =============================================================================
// PERSISTENCE FAILURE TESTS
// =============================================================================

func TestApplyOutcome_SurvivesStoreOutage(t *testing.T) {
	// GIVEN: The store rejects writes
	// WHEN: Outcomes are applied
	// THEN: In-memory state advances, Persisted reports false, and
	//       FlushDirty lands the state once the store recovers

	ledger, store := newTestLedger(t)
	ctx := context.Background()

	apply(t, ledger, "u1", progression.DifficultyEasy, progression.ResultCompleted)

	store.FailWrites = true
	res := apply(t, ledger, "u1", progression.DifficultyMedium, progression.ResultCompleted)
	assert.False(t, res.Persisted)
	assert.Equal(t, 30, res.Snapshot.CoinBalance, "memory state still advanced")

	// Store still has the stale row.
	stale, err := store.LoadStatistics(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, stale.CoinBalance)

	store.FailWrites = false
	assert.Equal(t, 1, ledger.FlushDirty(ctx))

	recovered, err := store.LoadStatistics(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 30, recovered.CoinBalance)

	// Nothing left to flush.
	assert.Equal(t, 0, ledger.FlushDirty(ctx))
}

func TestLedger_NilStoreIsMemoryOnly(t *testing.T) {
	ledger := progression.NewLedger(nil)

	res := apply(t, ledger, "u1", progression.DifficultyHard, progression.ResultCompleted)
	assert.True(t, res.Persisted)
	assert.Equal(t, 0, ledger.FlushDirty(context.Background()))
}
