/*
economy.go - Redemption orchestration

PURPOSE:
  Redeem exchanges coins for a reward as one logical unit: validate,
  debit the ledger, mark the reward consumed. From the caller's point of
  view either both mutations happen or neither does.

WHY THE PRECHECK + LOCK:
  Earlier revisions of this system checked affordability against a
  balance read long before the debit, so two redemptions racing each
  other could both pass the check and drive the balance negative. Here
  the affordability check, the debit, and the mark happen under a single
  per-user lock, and the debit itself is an atomic check-and-decrement
  inside the ledger. An unaffordable redemption returns
  InsufficientFundsError without touching anything.

ROLLBACK:
  The only way the mark can fail after a successful debit is a reward
  deleted out from under the redemption. In that case the debit is
  refunded before returning, so no coins are ever spent on a reward that
  was not marked redeemed.
*/
package rewards

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/warp/quest-engine/progression"
)

// RedeemedFunc observes a successful redemption.
type RedeemedFunc func(userID progression.UserID, reward Reward, snap progression.Snapshot)

// RedeemResult is returned by a successful Redeem.
type RedeemResult struct {
	Reward     Reward
	NewBalance int
	Purchases  int
	Snapshot   progression.Snapshot
}

// Economy coordinates the reward store and the progression ledger.
type Economy struct {
	ledger  *progression.Ledger
	rewards *Store

	notifier progression.Notifier // optional

	mu    sync.Mutex
	locks map[progression.UserID]*sync.Mutex

	hookMu     sync.RWMutex
	onRedeemed []RedeemedFunc
}

// NewEconomy wires the economy over a ledger and a reward store.
func NewEconomy(ledger *progression.Ledger, rewards *Store) *Economy {
	return &Economy{
		ledger:  ledger,
		rewards: rewards,
		locks:   make(map[progression.UserID]*sync.Mutex),
	}
}

// SetNotifier installs the best-effort notification channel.
func (e *Economy) SetNotifier(n progression.Notifier) { e.notifier = n }

// OnRedeemed registers a redemption observer.
func (e *Economy) OnRedeemed(fn RedeemedFunc) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.onRedeemed = append(e.onRedeemed, fn)
}

// userLock serializes redemptions per user. Different users redeem in
// parallel.
func (e *Economy) userLock(userID progression.UserID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[userID] = l
	}
	return l
}

// Redeem spends coins on a reward.
//
// Failure modes, all leaving both the ledger and the catalog unchanged:
//   - ErrRewardNotFound: id absent from the user's catalog
//   - ErrAlreadyRedeemed: one-way transition already taken
//   - ErrInsufficientFunds: balance below cost
func (e *Economy) Redeem(ctx context.Context, userID progression.UserID, rewardID string) (RedeemResult, error) {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	reward, err := e.rewards.Get(ctx, userID, rewardID)
	if err != nil {
		return RedeemResult{}, err
	}
	if reward.Redeemed {
		return RedeemResult{}, fmt.Errorf("%w: %s", ErrAlreadyRedeemed, rewardID)
	}

	// Affordability precheck against the live snapshot. Nothing has been
	// mutated yet, so an unaffordable redemption stops here cleanly.
	snap, err := e.ledger.Snapshot(ctx, userID)
	if err != nil {
		return RedeemResult{}, err
	}
	if snap.CoinBalance < reward.Cost {
		return RedeemResult{}, &progression.InsufficientFundsError{
			UserID:    userID,
			Available: snap.CoinBalance,
			Requested: reward.Cost,
		}
	}

	// Debit is an atomic check-and-decrement inside the ledger. Under the
	// redemption lock only task completions can touch the balance between
	// the precheck and here, and those only add coins.
	snap, err = e.ledger.Debit(ctx, userID, reward.Cost)
	if err != nil {
		return RedeemResult{}, err
	}

	redeemed, err := e.rewards.MarkRedeemed(ctx, userID, rewardID)
	if err != nil {
		// The reward vanished between the lookup and the mark (out-of-band
		// delete). Put the coins back so the two mutations stay all-or-nothing.
		if _, rerr := e.ledger.RefundDebit(ctx, userID, reward.Cost); rerr != nil {
			log.Printf("[Economy] refund after failed mark for %s/%s failed: %v", userID, rewardID, rerr)
		}
		return RedeemResult{}, err
	}

	res := RedeemResult{
		Reward:     redeemed,
		NewBalance: snap.CoinBalance,
		Purchases:  snap.Purchases,
		Snapshot:   snap,
	}

	e.fireRedeemed(ctx, userID, res)
	return res, nil
}

func (e *Economy) fireRedeemed(ctx context.Context, userID progression.UserID, res RedeemResult) {
	e.hookMu.RLock()
	hooks := e.onRedeemed
	e.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(userID, res.Reward, res.Snapshot)
	}
	if e.notifier != nil {
		msg := fmt.Sprintf("Redeemed %q for %d coins. %d coins left.",
			res.Reward.Title, res.Reward.Cost, res.NewBalance)
		if err := e.notifier.Notify(ctx, userID, msg); err != nil {
			log.Printf("[Economy] warning: redemption notification for %s failed: %v", userID, err)
		}
	}
}
