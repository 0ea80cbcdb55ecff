// Package memory provides an in-memory implementation of every
// persistence contract (statistics, users, rewards, tasks) for tests
// and development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/warp/quest-engine/progression"
	"github.com/warp/quest-engine/rewards"
	"github.com/warp/quest-engine/tasks"
)

// Store keeps everything in maps. Safe for concurrent use.
//
// FailWrites simulates a storage outage: while set, every write returns
// an error and reads keep working. Tests use it to exercise the
// best-effort persistence tail and the dirty-flush retry.
type Store struct {
	mu    sync.RWMutex
	stats map[progression.UserID]*progression.Snapshot
	users map[progression.UserID]progression.User
	order []progression.UserID // user insertion order for ListUsers
	lists map[progression.UserID][]rewards.Reward
	tasks map[progression.UserID][]tasks.Task

	FailWrites bool
}

func New() *Store {
	return &Store{
		stats: make(map[progression.UserID]*progression.Snapshot),
		users: make(map[progression.UserID]progression.User),
		lists: make(map[progression.UserID][]rewards.Reward),
		tasks: make(map[progression.UserID][]tasks.Task),
	}
}

var errWritesDisabled = errors.New("memory store: writes disabled")

func (m *Store) writeAllowed() error {
	if m.FailWrites {
		return errWritesDisabled
	}
	return nil
}

// =============================================================================
// progression.StatsStore
// =============================================================================

func (m *Store) LoadStatistics(_ context.Context, userID progression.UserID) (*progression.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.stats[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", progression.ErrStatsNotFound, userID)
	}
	out := snap.Clone()
	out.Normalize()
	return &out, nil
}

func (m *Store) SaveStatistics(_ context.Context, userID progression.UserID, snap *progression.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeAllowed(); err != nil {
		return err
	}
	c := snap.Clone()
	m.stats[userID] = &c
	return nil
}

// =============================================================================
// progression.UserStore
// =============================================================================

func (m *Store) UpsertUser(_ context.Context, user progression.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeAllowed(); err != nil {
		return err
	}
	if _, ok := m.users[user.ID]; !ok {
		m.order = append(m.order, user.ID)
	}
	m.users[user.ID] = user
	return nil
}

func (m *Store) GetUser(_ context.Context, userID progression.UserID) (*progression.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", progression.ErrUserNotFound, userID)
	}
	return &u, nil
}

func (m *Store) ListUsers(_ context.Context) ([]progression.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]progression.User, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.users[id])
	}
	return out, nil
}

// =============================================================================
// rewards.ListStore
// =============================================================================

func (m *Store) LoadRewards(_ context.Context, userID progression.UserID) ([]rewards.Reward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]rewards.Reward, len(m.lists[userID]))
	copy(out, m.lists[userID])
	return out, nil
}

func (m *Store) SaveRewards(_ context.Context, userID progression.UserID, list []rewards.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeAllowed(); err != nil {
		return err
	}
	cp := make([]rewards.Reward, len(list))
	copy(cp, list)
	m.lists[userID] = cp
	return nil
}

// =============================================================================
// tasks.Repository
// =============================================================================

func (m *Store) SaveTask(_ context.Context, t tasks.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeAllowed(); err != nil {
		return err
	}
	m.tasks[t.UserID] = append(m.tasks[t.UserID], t)
	return nil
}

func (m *Store) UpdateTask(_ context.Context, t tasks.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeAllowed(); err != nil {
		return err
	}
	list := m.tasks[t.UserID]
	for i := range list {
		if list[i].ID == t.ID {
			list[i] = t
			return nil
		}
	}
	return fmt.Errorf("%w: %s", tasks.ErrTaskNotFound, t.ID)
}

func (m *Store) GetTask(_ context.Context, userID progression.UserID, taskID string) (*tasks.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tasks[userID] {
		if t.ID == taskID {
			out := t
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Store) ListTasks(_ context.Context, userID progression.UserID) ([]tasks.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]tasks.Task, len(m.tasks[userID]))
	copy(out, m.tasks[userID])
	return out, nil
}

func (m *Store) DeleteTask(_ context.Context, userID progression.UserID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeAllowed(); err != nil {
		return err
	}
	list := m.tasks[userID]
	for i := range list {
		if list[i].ID == taskID {
			m.tasks[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", tasks.ErrTaskNotFound, taskID)
}
