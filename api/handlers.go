/*
handlers.go - HTTP API handlers for the quest engine

PURPOSE:
  Exposes the progression ledger, reward economy, and task service via
  REST. Handles HTTP request/response, JSON serialization, and delegates
  to domain logic.

ENDPOINTS:
  Users:
    POST   /api/users                       Register/refresh identity
    GET    /api/users                       List users
    GET    /api/users/{id}                  Get identity
    GET    /api/users/{id}/stats            Progression snapshot
    POST   /api/users/{id}/outcomes         Record a task outcome
    POST   /api/users/{id}/stats/reset      Reset progression

  Rewards:
    GET    /api/users/{id}/rewards          List catalog
    POST   /api/users/{id}/rewards          Create reward
    DELETE /api/users/{id}/rewards/{rid}    Delete reward
    POST   /api/users/{id}/rewards/{rid}/redeem   Redeem

  Tasks:
    GET    /api/users/{id}/tasks            List tasks
    POST   /api/users/{id}/tasks            Create task
    PUT    /api/users/{id}/tasks/{tid}      Update pending task
    DELETE /api/users/{id}/tasks/{tid}      Delete task
    POST   /api/users/{id}/tasks/{tid}/complete   Close and pay out
    POST   /api/users/{id}/tasks/{tid}/fail       Close without payout

  Admin:
    GET    /api/admin/export                XLSX statistics export

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Unknown user, reward, or task
  - 409: Insufficient funds, already redeemed, closed task
  - 500: Store and internal errors
  Conflict responses carry a machine-readable "code" field so clients
  can distinguish insufficient_funds from already_redeemed.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - events.go: WebSocket event feed
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/quest-engine/progression"
	"github.com/warp/quest-engine/rewards"
	"github.com/warp/quest-engine/tasks"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Users   progression.UserStore
	Ledger  *progression.Ledger
	Rewards *rewards.Store
	Economy *rewards.Economy
	Tasks   *tasks.Service
	Events  *EventHub
}

// NewHandler creates a handler over the wired domain services.
func NewHandler(users progression.UserStore, ledger *progression.Ledger, store *rewards.Store, economy *rewards.Economy, taskSvc *tasks.Service, events *EventHub) *Handler {
	return &Handler{
		Users:   users,
		Ledger:  ledger,
		Rewards: store,
		Economy: economy,
		Tasks:   taskSvc,
		Events:  events,
	}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// CreateUser registers a user or refreshes username/avatar.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Username == "" {
		writeError(w, http.StatusBadRequest, "id and username are required", nil)
		return
	}

	user := progression.User{
		ID:        progression.UserID(req.ID),
		Username:  req.Username,
		AvatarURL: req.AvatarURL,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Users.UpsertUser(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save user", err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

// ListUsers returns all registered users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUser returns one user identity.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))

	user, err := h.Users.GetUser(r.Context(), userID)
	if err != nil {
		if progression.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "User not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*user))
}

// =============================================================================
// STATS HANDLERS
// =============================================================================

// GetStats returns the user's progression snapshot plus curve values.
// A user with no recorded outcomes gets the initial level-1 snapshot.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))

	snap, err := h.Ledger.Snapshot(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsDTO(snap))
}

// ApplyOutcome records a completed or failed task against the ledger.
func (h *Handler) ApplyOutcome(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))

	var req OutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	outcome := progression.Outcome{
		Difficulty: progression.Difficulty(req.Difficulty),
		Result:     progression.Result(req.Result),
	}
	res, err := h.Ledger.ApplyOutcome(r.Context(), userID, outcome)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(res))
}

// ResetStats wipes the user's progression back to the initial state.
// Rewards and tasks are untouched.
func (h *Handler) ResetStats(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))

	snap, err := h.Ledger.Reset(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsDTO(snap))
}

// =============================================================================
// REWARD HANDLERS
// =============================================================================

// ListRewards returns the user's reward catalog in creation order.
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))

	list, err := h.Rewards.List(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rewards", err)
		return
	}
	if list == nil {
		list = []rewards.Reward{}
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateReward adds an entry to the user's catalog.
func (h *Handler) CreateReward(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))

	var req CreateRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	reward, err := h.Rewards.Create(r.Context(), userID, req.Title, req.Cost, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reward)
}

// DeleteReward removes a catalog entry. Redeemed entries can be deleted;
// history lives in the ledger's purchase counter, not the catalog.
func (h *Handler) DeleteReward(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))
	rewardID := chi.URLParam(r, "rewardID")

	if err := h.Rewards.Delete(r.Context(), userID, rewardID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RedeemReward spends coins on a catalog entry.
func (h *Handler) RedeemReward(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))
	rewardID := chi.URLParam(r, "rewardID")

	res, err := h.Economy.Redeem(r.Context(), userID, rewardID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RedeemResponse{
		Reward:     res.Reward,
		NewBalance: res.NewBalance,
		Purchases:  res.Purchases,
		Stats:      toStatsDTO(res.Snapshot),
	})
}

// =============================================================================
// TASK HANDLERS
// =============================================================================

// ListTasks returns the user's tasks in creation order.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))

	list, err := h.Tasks.List(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tasks", err)
		return
	}
	if list == nil {
		list = []tasks.Task{}
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateTask creates a pending task with its payout frozen.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))

	req, deadline, ok := h.decodeTaskRequest(w, r)
	if !ok {
		return
	}

	task, err := h.Tasks.Create(r.Context(), userID, req.Title, req.Description, progression.Difficulty(req.Difficulty), deadline)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// UpdateTask edits a pending task.
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))
	taskID := chi.URLParam(r, "taskID")

	req, deadline, ok := h.decodeTaskRequest(w, r)
	if !ok {
		return
	}

	task, err := h.Tasks.Update(r.Context(), userID, taskID, req.Title, req.Description, progression.Difficulty(req.Difficulty), deadline)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// DeleteTask removes a task without touching the ledger.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	userID := progression.UserID(chi.URLParam(r, "id"))
	taskID := chi.URLParam(r, "taskID")

	if err := h.Tasks.Delete(r.Context(), userID, taskID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompleteTask closes the task and applies its payout.
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	h.transitionTask(w, r, h.Tasks.Complete)
}

// FailTask closes the task without payout, recording the failure.
func (h *Handler) FailTask(w http.ResponseWriter, r *http.Request) {
	h.transitionTask(w, r, h.Tasks.Fail)
}

type transitionFunc func(ctx context.Context, userID progression.UserID, taskID string) (tasks.TransitionResult, error)

func (h *Handler) transitionTask(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	userID := progression.UserID(chi.URLParam(r, "id"))
	taskID := chi.URLParam(r, "taskID")

	res, err := fn(r.Context(), userID, taskID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TaskTransitionResponse{
		Task:    res.Task,
		Outcome: toOutcomeResponse(res.Outcome),
	})
}

func (h *Handler) decodeTaskRequest(w http.ResponseWriter, r *http.Request) (TaskRequest, *time.Time, bool) {
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return req, nil, false
	}

	var deadline *time.Time
	if req.Deadline != "" {
		d, err := time.Parse(time.RFC3339, req.Deadline)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid deadline format (use RFC3339)", err)
			return req, nil, false
		}
		deadline = &d
	}
	return req, deadline, true
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain sentinel errors onto HTTP statuses and
// machine-readable conflict codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var insufficient *progression.InsufficientFundsError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "Insufficient funds",
			Code:    "insufficient_funds",
			Details: err.Error(),
		})
	case errors.Is(err, rewards.ErrAlreadyRedeemed):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "Reward already redeemed",
			Code:    "already_redeemed",
			Details: err.Error(),
		})
	case errors.Is(err, tasks.ErrTaskClosed):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "Task already closed",
			Code:    "task_closed",
			Details: err.Error(),
		})
	case errors.Is(err, rewards.ErrRewardNotFound):
		writeError(w, http.StatusNotFound, "Reward not found", nil)
	case errors.Is(err, tasks.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "Task not found", nil)
	case progression.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", nil)
	case errors.Is(err, rewards.ErrInvalidReward),
		errors.Is(err, tasks.ErrInvalidTask),
		progression.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
