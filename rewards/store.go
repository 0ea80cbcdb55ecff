/*
store.go - Per-user reward catalog

PURPOSE:
  Owns the ordered reward list for each user. Creation order is display
  order; there is no reordering operation. Redeemed rewards stay listed
  (the UI grays them out; the store never hides them).

PERSISTENCE:
  Like the ledger, the catalog is local-first: mutations apply in memory
  and the whole list is saved back as a best-effort tail (full-state
  replace). Failed saves mark the user dirty for the sync scheduler.
*/
package rewards

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/quest-engine/progression"
)

// =============================================================================
// PERSISTENCE CONTRACT
// =============================================================================

// ListStore persists one reward list per user, full-state replace.
type ListStore interface {
	// LoadRewards returns the stored list in creation order.
	// An unseen user yields an empty list, not an error.
	LoadRewards(ctx context.Context, userID progression.UserID) ([]Reward, error)

	// SaveRewards replaces the stored list wholesale.
	SaveRewards(ctx context.Context, userID progression.UserID, list []Reward) error
}

// =============================================================================
// STORE
// =============================================================================

// Store owns reward catalogs for all users. Safe for concurrent use;
// operations for one user are serialized against each other.
type Store struct {
	mu     sync.Mutex
	byUser map[progression.UserID]*userRewards

	persist ListStore // optional; nil means memory-only
}

type userRewards struct {
	mu     sync.Mutex
	items  []Reward
	loaded bool
	dirty  bool
}

// NewStore creates a reward store backed by the given persistence.
// A nil ListStore is valid and keeps all catalogs in memory.
func NewStore(persist ListStore) *Store {
	return &Store{
		byUser:  make(map[progression.UserID]*userRewards),
		persist: persist,
	}
}

func (s *Store) user(userID progression.UserID) *userRewards {
	s.mu.Lock()
	defer s.mu.Unlock()
	ur, ok := s.byUser[userID]
	if !ok {
		ur = &userRewards{}
		s.byUser[userID] = ur
	}
	return ur
}

func (s *Store) loadLocked(ctx context.Context, userID progression.UserID, ur *userRewards) error {
	if ur.loaded {
		return nil
	}
	if s.persist == nil {
		ur.loaded = true
		return nil
	}
	list, err := s.persist.LoadRewards(ctx, userID)
	if err != nil {
		return fmt.Errorf("load rewards for %s: %w", userID, err)
	}
	ur.items = list
	ur.loaded = true
	return nil
}

func (s *Store) persistLocked(ctx context.Context, userID progression.UserID, ur *userRewards) bool {
	if s.persist == nil {
		return true
	}
	if err := s.persist.SaveRewards(ctx, userID, ur.items); err != nil {
		log.Printf("[Rewards] warning: save rewards for %s failed: %v", userID, err)
		ur.dirty = true
		return false
	}
	ur.dirty = false
	return true
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Create adds a reward to the user's catalog. The title must be non-blank
// and the cost a positive integer; cost is immutable afterwards.
func (s *Store) Create(ctx context.Context, userID progression.UserID, title string, cost int, description string) (Reward, error) {
	if strings.TrimSpace(title) == "" {
		return Reward{}, fmt.Errorf("%w: title must not be blank", ErrInvalidReward)
	}
	if cost <= 0 {
		return Reward{}, fmt.Errorf("%w: cost must be a positive integer, got %d", ErrInvalidReward, cost)
	}

	r := Reward{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Cost:        cost,
		CreatedAt:   time.Now().UTC(),
	}

	ur := s.user(userID)
	ur.mu.Lock()
	defer ur.mu.Unlock()
	if err := s.loadLocked(ctx, userID, ur); err != nil {
		return Reward{}, err
	}
	ur.items = append(ur.items, r)
	s.persistLocked(ctx, userID, ur)
	return r, nil
}

// List returns all rewards in creation order, including redeemed ones.
func (s *Store) List(ctx context.Context, userID progression.UserID) ([]Reward, error) {
	ur := s.user(userID)
	ur.mu.Lock()
	defer ur.mu.Unlock()
	if err := s.loadLocked(ctx, userID, ur); err != nil {
		return nil, err
	}
	out := make([]Reward, len(ur.items))
	copy(out, ur.items)
	return out, nil
}

// Get returns a single reward by id.
func (s *Store) Get(ctx context.Context, userID progression.UserID, rewardID string) (Reward, error) {
	ur := s.user(userID)
	ur.mu.Lock()
	defer ur.mu.Unlock()
	if err := s.loadLocked(ctx, userID, ur); err != nil {
		return Reward{}, err
	}
	for _, r := range ur.items {
		if r.ID == rewardID {
			return r, nil
		}
	}
	return Reward{}, fmt.Errorf("%w: %s", ErrRewardNotFound, rewardID)
}

// MarkRedeemed flips the one-way redeemed flag. Fails with
// ErrRewardNotFound for an absent id and ErrAlreadyRedeemed for a
// consumed reward; both checks happen atomically with the flip.
func (s *Store) MarkRedeemed(ctx context.Context, userID progression.UserID, rewardID string) (Reward, error) {
	ur := s.user(userID)
	ur.mu.Lock()
	defer ur.mu.Unlock()
	if err := s.loadLocked(ctx, userID, ur); err != nil {
		return Reward{}, err
	}
	for i := range ur.items {
		if ur.items[i].ID != rewardID {
			continue
		}
		if ur.items[i].Redeemed {
			return Reward{}, fmt.Errorf("%w: %s", ErrAlreadyRedeemed, rewardID)
		}
		ur.items[i].Redeemed = true
		s.persistLocked(ctx, userID, ur)
		return ur.items[i], nil
	}
	return Reward{}, fmt.Errorf("%w: %s", ErrRewardNotFound, rewardID)
}

// Delete removes a reward regardless of redeemed state.
func (s *Store) Delete(ctx context.Context, userID progression.UserID, rewardID string) error {
	ur := s.user(userID)
	ur.mu.Lock()
	defer ur.mu.Unlock()
	if err := s.loadLocked(ctx, userID, ur); err != nil {
		return err
	}
	for i := range ur.items {
		if ur.items[i].ID == rewardID {
			ur.items = append(ur.items[:i], ur.items[i+1:]...)
			s.persistLocked(ctx, userID, ur)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrRewardNotFound, rewardID)
}

// FlushDirty retries the save for every catalog whose last save failed.
// Returns the number of lists successfully flushed.
func (s *Store) FlushDirty(ctx context.Context) int {
	if s.persist == nil {
		return 0
	}

	s.mu.Lock()
	ids := make([]progression.UserID, 0, len(s.byUser))
	for id := range s.byUser {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	flushed := 0
	for _, id := range ids {
		ur := s.user(id)
		ur.mu.Lock()
		if ur.dirty {
			if s.persistLocked(ctx, id, ur) {
				flushed++
			}
		}
		ur.mu.Unlock()
	}
	return flushed
}
