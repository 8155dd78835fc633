package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvarr/turnstiled/internal/browser"
	"github.com/solvarr/turnstiled/internal/config"
	"github.com/solvarr/turnstiled/internal/scheduler"
	"github.com/solvarr/turnstiled/internal/types"
)

// newTestHandler builds a handler around a stubbed solve function and an
// empty pool. No browsers are involved.
func newTestHandler(t *testing.T, solve scheduler.SolveFunc) (*Handler, http.Handler) {
	t.Helper()

	cfg := &config.Config{
		MaxBrowsers:       2,
		PagesPerBrowser:   1,
		AllowLocalTargets: true,
	}

	pool := browser.NewPool(cfg)
	t.Cleanup(func() { _ = pool.Close() })

	registry := scheduler.NewRegistry(100)
	dispatcher := scheduler.NewDispatcher(registry, solve, 5*time.Second)
	t.Cleanup(func() { _ = dispatcher.Close() })

	h := New(dispatcher, registry, pool, cfg)
	return h, NewRouter(h)
}

func okSolve(result *types.SolveResult) scheduler.SolveFunc {
	return func(ctx context.Context, req *types.SolveRequest) (*types.SolveResult, error) {
		return result, nil
	}
}

func failSolve(err error) scheduler.SolveFunc {
	return func(ctx context.Context, req *types.SolveRequest) (*types.SolveResult, error) {
		return nil, err
	}
}

func submitTask(t *testing.T, router http.Handler, query string) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/turnstile?"+query, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, "body: %s", rec.Body.String())

	var resp struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.TaskID)
	return resp.TaskID
}

func pollResult(t *testing.T, router http.Handler, id string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/result?id="+id, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// waitForTerminal polls the result endpoint until the task leaves pending.
func waitForTerminal(t *testing.T, router http.Handler, id string) *httptest.ResponseRecorder {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec := pollResult(t, router, id)
		if !strings.Contains(rec.Body.String(), `"pending"`) {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Task did not reach a terminal status in time")
	return nil
}

func TestTurnstileSubmitAndResult(t *testing.T) {
	_, router := newTestHandler(t, okSolve(&types.SolveResult{
		Token:   "the-token",
		Elapsed: 1234 * time.Millisecond,
	}))

	id := submitTask(t, router, "url=https://example.com/login&sitekey=0x4AAAAAAA")

	rec := waitForTerminal(t, router, id)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ElapsedTime float64 `json:"elapsed_time"`
		Value       string  `json:"value"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "the-token", resp.Value)
	assert.Equal(t, 1.234, resp.ElapsedTime)
}

func TestTurnstileMissingURL(t *testing.T) {
	_, router := newTestHandler(t, okSolve(&types.SolveResult{Token: "tok"}))

	req := httptest.NewRequest(http.MethodGet, "/turnstile?sitekey=key", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, types.StatusError, resp.Status)
	assert.Contains(t, resp.Error, "url")
}

func TestTurnstileMissingSiteKey(t *testing.T) {
	_, router := newTestHandler(t, okSolve(&types.SolveResult{Token: "tok"}))

	req := httptest.NewRequest(http.MethodGet, "/turnstile?url=https://example.com", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "sitekey")
}

func TestTurnstileInvalidScheme(t *testing.T) {
	_, router := newTestHandler(t, okSolve(&types.SolveResult{Token: "tok"}))

	req := httptest.NewRequest(http.MethodGet, "/turnstile?url=ftp://example.com&sitekey=key", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResultPendingWhileRunning(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	slowSolve := func(ctx context.Context, req *types.SolveRequest) (*types.SolveResult, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return &types.SolveResult{Token: "tok"}, nil
	}

	_, router := newTestHandler(t, slowSolve)

	id := submitTask(t, router, "url=https://example.com&sitekey=key")

	rec := pollResult(t, router, id)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, types.TaskPending, resp.Status)
}

func TestResultFailedTask(t *testing.T) {
	_, router := newTestHandler(t, failSolve(types.NewChallengeTimeoutError("https://example.com")))

	id := submitTask(t, router, "url=https://example.com&sitekey=key")

	rec := waitForTerminal(t, router, id)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, types.StatusError, resp.Status)
	assert.NotEmpty(t, resp.Error)
}

func TestResultUnknownTask(t *testing.T) {
	_, router := newTestHandler(t, okSolve(&types.SolveResult{Token: "tok"}))

	rec := pollResult(t, router, "no-such-task")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid task id")
}

func TestResultMissingID(t *testing.T) {
	_, router := newTestHandler(t, okSolve(&types.SolveResult{Token: "tok"}))

	req := httptest.NewRequest(http.MethodGet, "/result", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	_, router := newTestHandler(t, okSolve(&types.SolveResult{Token: "tok"}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status        string `json:"status"`
		Version       string `json:"version"`
		PoolInstances int    `json:"pool_instances"`
		PoolCapacity  int    `json:"pool_capacity"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, types.StatusOK, resp.Status)
	assert.NotEmpty(t, resp.Version)
	assert.Equal(t, 0, resp.PoolInstances)
	assert.Equal(t, 2, resp.PoolCapacity)
}

func TestIndexServesDocs(t *testing.T) {
	_, router := newTestHandler(t, okSolve(&types.SolveResult{Token: "tok"}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/turnstile")
}

func TestStatusPage(t *testing.T) {
	_, router := newTestHandler(t, okSolve(&types.SolveResult{Token: "tok"}))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Browser Instances")
}

func TestUnknownPath(t *testing.T) {
	_, router := newTestHandler(t, okSolve(&types.SolveResult{Token: "tok"}))

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	_, router := newTestHandler(t, okSolve(&types.SolveResult{Token: "tok"}))

	for _, path := range []string{"/turnstile", "/result", "/health"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "path %s", path)
	}
}

func TestSanitizeURLForLogging(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no query", "https://example.com/page", "https://example.com/page"},
		{"benign query", "https://example.com/page?foo=bar", "https://example.com/page?foo=bar"},
		{"redacts token", "https://example.com/page?token=secret123", "https://example.com/page?token=%5BREDACTED%5D"},
		{"redacts mixed case", "https://example.com/page?API_KEY=secret", "https://example.com/page?API_KEY=%5BREDACTED%5D"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeURLForLogging(tt.in))
		})
	}
}
