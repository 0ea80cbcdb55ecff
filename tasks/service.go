/*
service.go - Task CRUD and terminal transitions

PURPOSE:
  Service validates task input, freezes payouts at creation, and drives
  the only two transitions that matter to the economy: Complete and
  Fail. Both close the task in the repository first and then apply the
  outcome to the ledger, so a task can never pay out twice.

SERIALIZATION:
  Every read-check-write on a task (close, update) holds that user's
  lock, the same keyed-mutex discipline the reward economy uses for
  redemptions. Two racing Complete calls therefore run one after the
  other: the second finds the task closed and pays nothing.
*/
package tasks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/quest-engine/progression"
)

// =============================================================================
// REPOSITORY CONTRACT
// =============================================================================

// Repository persists tasks. Implemented by store/memory, store/sqlite
// and store/postgres.
type Repository interface {
	SaveTask(ctx context.Context, t Task) error
	UpdateTask(ctx context.Context, t Task) error
	GetTask(ctx context.Context, userID progression.UserID, taskID string) (*Task, error)
	ListTasks(ctx context.Context, userID progression.UserID) ([]Task, error)
	DeleteTask(ctx context.Context, userID progression.UserID, taskID string) error
}

// =============================================================================
// SERVICE
// =============================================================================

// Service wires the task repository to the progression ledger.
type Service struct {
	repo   Repository
	ledger *progression.Ledger

	mu    sync.Mutex
	locks map[progression.UserID]*sync.Mutex
}

func NewService(repo Repository, ledger *progression.Ledger) *Service {
	return &Service{
		repo:   repo,
		ledger: ledger,
		locks:  make(map[progression.UserID]*sync.Mutex),
	}
}

// userLock serializes task mutations per user. Different users proceed
// in parallel.
func (s *Service) userLock(userID progression.UserID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// TransitionResult carries the closed task plus the ledger's view of the
// applied outcome.
type TransitionResult struct {
	Task    Task
	Outcome progression.OutcomeResult
}

// Create validates and stores a new pending task. The coin payout is
// frozen here from the difficulty table.
func (s *Service) Create(ctx context.Context, userID progression.UserID, title, description string, difficulty progression.Difficulty, deadline *time.Time) (Task, error) {
	if strings.TrimSpace(title) == "" {
		return Task{}, fmt.Errorf("%w: title must not be blank", ErrInvalidTask)
	}
	if !difficulty.Valid() {
		return Task{}, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidTask, difficulty)
	}

	t := Task{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Difficulty:  difficulty,
		Deadline:    deadline,
		Status:      StatusPending,
		Coins:       difficulty.CoinReward(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.SaveTask(ctx, t); err != nil {
		return Task{}, fmt.Errorf("save task: %w", err)
	}
	return t, nil
}

// Update edits title, description, difficulty and deadline of a pending
// task. Closed tasks are immutable. Changing the difficulty re-freezes
// the payout since nothing has been paid out yet.
func (s *Service) Update(ctx context.Context, userID progression.UserID, taskID, title, description string, difficulty progression.Difficulty, deadline *time.Time) (Task, error) {
	if strings.TrimSpace(title) == "" {
		return Task{}, fmt.Errorf("%w: title must not be blank", ErrInvalidTask)
	}
	if !difficulty.Valid() {
		return Task{}, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidTask, difficulty)
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	t, err := s.get(ctx, userID, taskID)
	if err != nil {
		return Task{}, err
	}
	if t.Status != StatusPending {
		return Task{}, fmt.Errorf("%w: %s is %s", ErrTaskClosed, taskID, t.Status)
	}

	t.Title = strings.TrimSpace(title)
	t.Description = strings.TrimSpace(description)
	t.Difficulty = difficulty
	t.Coins = difficulty.CoinReward()
	t.Deadline = deadline
	if err := s.repo.UpdateTask(ctx, *t); err != nil {
		return Task{}, fmt.Errorf("update task: %w", err)
	}
	return *t, nil
}

// List returns the user's tasks, oldest first.
func (s *Service) List(ctx context.Context, userID progression.UserID) ([]Task, error) {
	return s.repo.ListTasks(ctx, userID)
}

// Get returns a single task.
func (s *Service) Get(ctx context.Context, userID progression.UserID, taskID string) (Task, error) {
	t, err := s.get(ctx, userID, taskID)
	if err != nil {
		return Task{}, err
	}
	return *t, nil
}

// Delete removes a task in any status. Deleting a closed task does not
// claw back its payout.
func (s *Service) Delete(ctx context.Context, userID progression.UserID, taskID string) error {
	if _, err := s.get(ctx, userID, taskID); err != nil {
		return err
	}
	return s.repo.DeleteTask(ctx, userID, taskID)
}

// Complete closes the task and applies the completed outcome to the
// ledger. Fails with ErrTaskClosed if the task is not pending.
func (s *Service) Complete(ctx context.Context, userID progression.UserID, taskID string) (TransitionResult, error) {
	return s.transition(ctx, userID, taskID, StatusCompleted, progression.ResultCompleted)
}

// Fail closes the task and applies the failed outcome (counter only, no
// coins or XP).
func (s *Service) Fail(ctx context.Context, userID progression.UserID, taskID string) (TransitionResult, error) {
	return s.transition(ctx, userID, taskID, StatusFailed, progression.ResultFailed)
}

func (s *Service) transition(ctx context.Context, userID progression.UserID, taskID string, to Status, result progression.Result) (TransitionResult, error) {
	// The whole read-check-close-pay sequence holds the user lock so a
	// task closes, and pays, exactly once.
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	t, err := s.get(ctx, userID, taskID)
	if err != nil {
		return TransitionResult{}, err
	}
	if t.Status != StatusPending {
		return TransitionResult{}, fmt.Errorf("%w: %s is %s", ErrTaskClosed, taskID, t.Status)
	}

	t.Status = to
	if err := s.repo.UpdateTask(ctx, *t); err != nil {
		return TransitionResult{}, fmt.Errorf("close task: %w", err)
	}

	res, err := s.ledger.ApplyOutcome(ctx, userID, progression.Outcome{
		Difficulty: t.Difficulty,
		Result:     result,
	})
	if err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{Task: *t, Outcome: res}, nil
}

func (s *Service) get(ctx context.Context, userID progression.UserID, taskID string) (*Task, error) {
	t, err := s.repo.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return t, nil
}
