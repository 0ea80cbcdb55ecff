package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/quest-engine/api"
	"github.com/warp/quest-engine/progression"
	"github.com/warp/quest-engine/rewards"
	"github.com/warp/quest-engine/store/memory"
	"github.com/warp/quest-engine/tasks"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := memory.New()
	ledger := progression.NewLedger(store)
	rewardStore := rewards.NewStore(store)
	economy := rewards.NewEconomy(ledger, rewardStore)
	taskSvc := tasks.NewService(store, ledger)

	events := api.NewEventHub()
	events.BindLedger(ledger)
	events.BindEconomy(economy)

	handler := api.NewHandler(store, ledger, rewardStore, economy, taskSvc, events)
	server := httptest.NewServer(api.NewRouter(handler, []string{"*"}))
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func postOutcome(t *testing.T, server *httptest.Server, userID, difficulty, result string) *http.Response {
	t.Helper()
	return doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/users/%s/outcomes", server.URL, userID),
		map[string]string{"difficulty": difficulty, "result": result})
}

// =============================================================================
// USER FLOW TESTS
// =============================================================================

func TestUserLifecycle(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/users", map[string]string{
		"id": "u1", "username": "alice",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	user := decode[map[string]any](t, resp)
	assert.Equal(t, "alice", user["username"])

	resp = doJSON(t, http.MethodGet, server.URL+"/api/users/u1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, server.URL+"/api/users/nobody", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateUser_MissingFields(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/users", map[string]string{"id": "u1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

// =============================================================================
// STATS FLOW TESTS
// =============================================================================

func TestStats_FreshUserGetsInitialSnapshot(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/users/u1/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[map[string]any](t, resp)

	assert.EqualValues(t, 1, stats["level"])
	assert.EqualValues(t, 0, stats["xp"])
	assert.EqualValues(t, 100, stats["xp_to_next_level"])
}

func TestOutcomes_CompletionMovesStats(t *testing.T) {
	server := newTestServer(t)

	resp := postOutcome(t, server, "u1", "hard", "completed")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)

	stats := body["stats"].(map[string]any)
	assert.EqualValues(t, 30, stats["coin_balance"])
	assert.EqualValues(t, 30, stats["xp"])
	assert.Equal(t, false, body["leveled_up"])
	assert.Equal(t, true, body["persisted"])
}

func TestOutcomes_InvalidDifficultyIs400(t *testing.T) {
	server := newTestServer(t)

	resp := postOutcome(t, server, "u1", "legendary", "completed")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestOutcomes_InvalidResultIs400(t *testing.T) {
	server := newTestServer(t)

	resp := postOutcome(t, server, "u1", "easy", "banana")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestStatsReset(t *testing.T) {
	server := newTestServer(t)

	for i := 0; i < 5; i++ {
		resp := postOutcome(t, server, "u1", "medium", "completed")
		resp.Body.Close()
	}

	resp := doJSON(t, http.MethodPost, server.URL+"/api/users/u1/stats/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[map[string]any](t, resp)
	assert.EqualValues(t, 0, stats["xp"])
	assert.EqualValues(t, 1, stats["level"])
	assert.EqualValues(t, 0, stats["coin_balance"])
}

// =============================================================================
// REWARD FLOW TESTS
// =============================================================================

func TestRewardFlow_CreateRedeemConflicts(t *testing.T) {
	server := newTestServer(t)

	// Earn 60 coins.
	for i := 0; i < 2; i++ {
		resp := postOutcome(t, server, "u1", "hard", "completed")
		resp.Body.Close()
	}

	resp := doJSON(t, http.MethodPost, server.URL+"/api/users/u1/rewards", map[string]any{
		"title": "Movie night", "cost": 50,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	reward := decode[map[string]any](t, resp)
	rewardID := reward["id"].(string)

	// Redeem succeeds.
	resp = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/users/u1/rewards/%s/redeem", server.URL, rewardID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	redeemed := decode[map[string]any](t, resp)
	assert.EqualValues(t, 10, redeemed["new_balance"])

	// Second redeem conflicts.
	resp = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/users/u1/rewards/%s/redeem", server.URL, rewardID), nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	errBody := decode[map[string]any](t, resp)
	assert.Equal(t, "already_redeemed", errBody["code"])
}

func TestRewardFlow_InsufficientFundsIs409(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/users/u1/rewards", map[string]any{
		"title": "Too expensive", "cost": 1000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	reward := decode[map[string]any](t, resp)

	resp = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/users/u1/rewards/%s/redeem", server.URL, reward["id"]), nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	errBody := decode[map[string]any](t, resp)
	assert.Equal(t, "insufficient_funds", errBody["code"])
}

func TestRewardFlow_ValidationAndNotFound(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/users/u1/rewards", map[string]any{
		"title": "", "cost": 10,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, server.URL+"/api/users/u1/rewards/missing/redeem", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, server.URL+"/api/users/u1/rewards/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

// =============================================================================
// TASK FLOW TESTS
// =============================================================================

func TestTaskFlow_CompletePaysOut(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/users/u1/tasks", map[string]any{
		"title": "Write tests", "difficulty": "medium",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	task := decode[map[string]any](t, resp)
	taskID := task["id"].(string)
	assert.EqualValues(t, 20, task["coins"])

	resp = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/users/u1/tasks/%s/complete", server.URL, taskID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	outcome := body["outcome"].(map[string]any)
	stats := outcome["stats"].(map[string]any)
	assert.EqualValues(t, 20, stats["coin_balance"])

	// Completing again conflicts.
	resp = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/users/u1/tasks/%s/complete", server.URL, taskID), nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	errBody := decode[map[string]any](t, resp)
	assert.Equal(t, "task_closed", errBody["code"])
}

func TestTaskFlow_FailAndDelete(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/users/u1/tasks", map[string]any{
		"title": "Doomed", "difficulty": "easy",
	})
	task := decode[map[string]any](t, resp)
	taskID := task["id"].(string)

	resp = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/users/u1/tasks/%s/fail", server.URL, taskID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete,
		fmt.Sprintf("%s/api/users/u1/tasks/%s", server.URL, taskID), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, server.URL+"/api/users/u1/tasks", nil)
	list := decode[[]map[string]any](t, resp)
	assert.Empty(t, list)
}

func TestTaskFlow_BadDeadlineIs400(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/users/u1/tasks", map[string]any{
		"title": "Task", "difficulty": "easy", "deadline": "tomorrow",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

// =============================================================================
// ADMIN EXPORT TESTS
// =============================================================================

func TestExport_ReturnsWorkbook(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/users", map[string]string{
		"id": "u1", "username": "alice",
	})
	resp.Body.Close()
	resp = postOutcome(t, server, "u1", "easy", "completed")
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, server.URL+"/api/admin/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".xlsx")
}
