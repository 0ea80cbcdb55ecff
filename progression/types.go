/*
Package progression provides the core progression and reward-economy engine.

PURPOSE:
  This package contains the domain types and rules that convert task
  outcomes into experience, coins, and levels. It owns the per-user
  statistics snapshot and all operations that mutate it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Difficulty: Task tier (easy/medium/hard) with fixed coin and XP rewards
  - Outcome: A single task result event (completed or failed + difficulty)
  - Snapshot: The full statistics state of one user
  - User: Identity record for the backing chat-platform account

DESIGN PRINCIPLES:
  1. Integers only: Coins, XP, and counters are exact small integers.
     There is no fractional currency anywhere in this economy.
  2. Derived level: Level is never stored independently of XP; it is
     recomputed from the curve at every mutation and on every load.
  3. Monotonicity: XP, lifetime totals, and outcome counters only grow.
     The spendable coin balance is the only field that decreases, and
     only through Ledger.Debit.

SEE ALSO:
  - curve.go: Level thresholds and XP -> level lookup
  - ledger.go: Snapshot ownership and mutation
  - store.go: Persistence contract
*/
package progression

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

// UserID identifies a user. The engine treats it as opaque; in the deployed
// system it is the numeric id handed out by the chat-platform mini-app host.
type UserID string

// User is the identity record synced from the mini-app host.
type User struct {
	ID        UserID    `json:"user_id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// DIFFICULTY - Task tier with fixed rewards
// =============================================================================

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists all recognized tiers in ascending order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}

// Reward tables. Coin and XP rewards are intentionally identical per tier.
// These values are fixed; there is exactly one table in the codebase so the
// ledger and the task catalog can never disagree about payouts.
var (
	coinReward = map[Difficulty]int{
		DifficultyEasy:   10,
		DifficultyMedium: 20,
		DifficultyHard:   30,
	}
	xpReward = map[Difficulty]int{
		DifficultyEasy:   10,
		DifficultyMedium: 20,
		DifficultyHard:   30,
	}
)

// CoinReward returns the coins granted for completing a task of this tier.
// Returns 0 for an unrecognized difficulty.
func (d Difficulty) CoinReward() int { return coinReward[d] }

// XPReward returns the XP granted for completing a task of this tier.
// Returns 0 for an unrecognized difficulty.
func (d Difficulty) XPReward() int { return xpReward[d] }

// =============================================================================
// OUTCOME - A single task result event
// =============================================================================

type Result string

const (
	ResultCompleted Result = "completed"
	ResultFailed    Result = "failed"
)

func (r Result) Valid() bool {
	return r == ResultCompleted || r == ResultFailed
}

// Outcome is an ephemeral task-result event. The task itself is owned by
// the tasks package; the ledger only sees the result and the tier.
type Outcome struct {
	Difficulty Difficulty `json:"difficulty"`
	Result     Result     `json:"result"`
}

// =============================================================================
// SNAPSHOT - Full statistics state of one user
// =============================================================================

// Snapshot is the invariant-bearing statistics aggregate for one user.
//
// INVARIANTS (hold at every observation point):
//   - All fields >= 0
//   - Level == LevelForXP(XP)
//   - LifetimeXP == XP (XP is never spent)
//   - LifetimeCoins - total successful debits == CoinBalance
type Snapshot struct {
	Completed map[Difficulty]int `json:"completed"`
	Failed    map[Difficulty]int `json:"failed"`

	XP    int `json:"xp"`
	Level int `json:"level"`

	CoinBalance   int `json:"coin_balance"`
	LifetimeCoins int `json:"lifetime_earned_coins"`
	LifetimeXP    int `json:"lifetime_earned_xp"`
	Purchases     int `json:"purchases"`
}

// NewSnapshot returns the initial all-zero state. Level starts at 1 and
// both counter maps carry every tier explicitly, the canonical shape all
// stores load and save.
func NewSnapshot() *Snapshot {
	s := &Snapshot{
		Completed: make(map[Difficulty]int, len(Difficulties)),
		Failed:    make(map[Difficulty]int, len(Difficulties)),
		Level:     1,
	}
	for _, d := range Difficulties {
		s.Completed[d] = 0
		s.Failed[d] = 0
	}
	return s
}

// Clone returns a deep copy. Callers of the ledger always receive copies so
// snapshot state can only be changed through ledger operations.
func (s *Snapshot) Clone() Snapshot {
	out := *s
	out.Completed = make(map[Difficulty]int, len(s.Completed))
	for k, v := range s.Completed {
		out.Completed[k] = v
	}
	out.Failed = make(map[Difficulty]int, len(s.Failed))
	for k, v := range s.Failed {
		out.Failed[k] = v
	}
	return out
}

// TotalCompleted sums completions across all tiers.
func (s *Snapshot) TotalCompleted() int {
	n := 0
	for _, v := range s.Completed {
		n += v
	}
	return n
}

// TotalFailed sums failures across all tiers.
func (s *Snapshot) TotalFailed() int {
	n := 0
	for _, v := range s.Failed {
		n += v
	}
	return n
}

// Normalize repairs a snapshot loaded from persistence. Older revisions of
// the stored record had missing fields and a level column that could drift
// from XP, so every store implementation calls this exactly once in its
// load path. Nothing outside the load path may patch snapshots ad hoc.
func (s *Snapshot) Normalize() {
	if s.Completed == nil {
		s.Completed = make(map[Difficulty]int)
	}
	if s.Failed == nil {
		s.Failed = make(map[Difficulty]int)
	}
	// Materialize every tier so snapshots from sparse records compare equal
	// to freshly built ones regardless of which store produced them.
	for _, d := range Difficulties {
		c := s.Completed[d]
		if c < 0 {
			c = 0
		}
		s.Completed[d] = c
		f := s.Failed[d]
		if f < 0 {
			f = 0
		}
		s.Failed[d] = f
	}
	if s.XP < 0 {
		s.XP = 0
	}
	if s.CoinBalance < 0 {
		s.CoinBalance = 0
	}
	if s.Purchases < 0 {
		s.Purchases = 0
	}
	// XP is never spent, so lifetime XP can never trail current XP.
	if s.LifetimeXP < s.XP {
		s.LifetimeXP = s.XP
	}
	if s.LifetimeCoins < s.CoinBalance {
		s.LifetimeCoins = s.CoinBalance
	}
	// Level is derived, never trusted from storage.
	s.Level = LevelForXP(s.XP)
}
