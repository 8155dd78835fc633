// Package handlers provides the HTTP surface: task submission, result
// retrieval, and service status.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/solvarr/turnstiled/internal/assets"
	"github.com/solvarr/turnstiled/internal/browser"
	"github.com/solvarr/turnstiled/internal/config"
	"github.com/solvarr/turnstiled/internal/scheduler"
	"github.com/solvarr/turnstiled/internal/security"
	"github.com/solvarr/turnstiled/internal/types"
	"github.com/solvarr/turnstiled/pkg/version"
)

// sensitiveParams contains query parameter names that may contain secrets
// and should be redacted in logs.
var sensitiveParams = []string{
	"key", "token", "api_key", "apikey", "password", "secret", "auth",
	"access_token", "refresh_token", "bearer", "credential", "private_key",
}

// sanitizeURLForLogging removes sensitive query parameters from URLs before
// logging.
func sanitizeURLForLogging(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "[invalid-url]"
	}

	if parsed.RawQuery == "" {
		return rawURL
	}

	query := parsed.Query()
	redacted := false
	for _, param := range sensitiveParams {
		for key := range query {
			if strings.EqualFold(key, param) {
				query.Set(key, "[REDACTED]")
				redacted = true
			}
		}
	}

	if !redacted {
		return rawURL
	}

	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// Handler handles all API requests.
type Handler struct {
	dispatcher *scheduler.Dispatcher
	registry   *scheduler.Registry
	pool       *browser.Pool
	config     *config.Config
	startedAt  time.Time
}

// New creates a new Handler.
func New(dispatcher *scheduler.Dispatcher, registry *scheduler.Registry, pool *browser.Pool, cfg *config.Config) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		registry:   registry,
		pool:       pool,
		config:     cfg,
		startedAt:  time.Now(),
	}
}

// taskAcceptedResponse is returned when a task is submitted.
type taskAcceptedResponse struct {
	TaskID string `json:"task_id"`
}

// resultResponse is returned for a completed task.
type resultResponse struct {
	ElapsedTime float64 `json:"elapsed_time"`
	Value       string  `json:"value"`
}

// statusResponse is returned for a task that is still in flight.
type statusResponse struct {
	Status string `json:"status"`
}

// errorResponse is returned for any request or task failure.
type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// healthResponse is returned by the health endpoint.
type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	PoolInstances int     `json:"pool_instances"`
	PoolLeases    int     `json:"pool_leases"`
	PoolCapacity  int     `json:"pool_capacity"`
	Tasks         int     `json:"tasks"`
}

// HandleTurnstile accepts a solve request and submits it as a background
// task, returning the task ID with 202 Accepted.
func (h *Handler) HandleTurnstile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := &types.SolveRequest{
		URL:       q.Get("url"),
		SiteKey:   q.Get("sitekey"),
		Action:    q.Get("action"),
		CData:     q.Get("cdata"),
		Invisible: q.Get("invisible") == "true",
	}

	if err := req.Validate(); err != nil {
		log.Warn().Err(err).Str("url", sanitizeURLForLogging(req.URL)).Msg("Invalid solve request")
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.config.AllowLocalTargets {
		if err := security.ValidateURL(req.URL); err != nil {
			log.Warn().Err(err).Str("url", sanitizeURLForLogging(req.URL)).Msg("Target URL rejected")
			h.writeError(w, http.StatusBadRequest, "invalid url: "+err.Error())
			return
		}
	}

	taskID, err := h.dispatcher.Submit(req)
	if err != nil {
		if errors.Is(err, types.ErrDispatcherClosed) {
			h.writeError(w, http.StatusServiceUnavailable, "service is shutting down")
			return
		}
		log.Error().Err(err).Msg("Task submission failed")
		h.writeError(w, http.StatusInternalServerError, "failed to submit task")
		return
	}

	log.Info().
		Str("task_id", taskID).
		Str("url", sanitizeURLForLogging(req.URL)).
		Msg("Task accepted")

	h.writeJSON(w, http.StatusAccepted, taskAcceptedResponse{TaskID: taskID})
}

// HandleResult returns the outcome of a previously submitted task.
func (h *Handler) HandleResult(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	view, err := h.dispatcher.Get(id)
	if err != nil {
		if errors.Is(err, types.ErrTaskNotFound) {
			h.writeError(w, http.StatusNotFound, "invalid task id")
			return
		}
		log.Error().Err(err).Str("task_id", id).Msg("Task lookup failed")
		h.writeError(w, http.StatusInternalServerError, "task lookup failed")
		return
	}

	switch view.Status {
	case types.TaskDone:
		h.writeJSON(w, http.StatusOK, resultResponse{
			ElapsedTime: view.Result.ElapsedSeconds(),
			Value:       view.Result.Token,
		})
	case types.TaskFailed:
		msg := "solve failed"
		if view.Err != nil {
			msg = view.Err.Error()
		}
		h.writeError(w, http.StatusUnprocessableEntity, msg)
	default:
		h.writeJSON(w, http.StatusOK, statusResponse{Status: types.TaskPending})
	}
}

// HandleHealth returns service health and pool statistics.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{
		Status:        types.StatusOK,
		Version:       version.Full(),
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		PoolInstances: h.pool.Instances(),
		PoolLeases:    h.pool.Leases(),
		PoolCapacity:  h.pool.Capacity(),
		Tasks:         h.registry.Count(),
	})
}

// HandleStatus serves a human-readable status page.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	page, err := assets.RenderStatusPage(assets.StatusPageData{
		Version:       version.Full(),
		GoVersion:     version.GoVersion(),
		Uptime:        time.Since(h.startedAt).Round(time.Second).String(),
		PoolInstances: h.pool.Instances(),
		PoolLeases:    h.pool.Leases(),
		Tasks:         h.registry.Count(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to render status page")
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

// HandleIndex serves the usage documentation page.
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		h.HandleNotFound(w, r)
		return
	}

	page, err := assets.ReadTemplate("index.html")
	if err != nil {
		log.Error().Err(err).Msg("Failed to load index page")
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// HandleMethodNotAllowed handles requests with unsupported HTTP methods.
func (h *Handler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// HandleNotFound handles requests to unknown paths.
func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusNotFound, "not found")
}

func (h *Handler) writeError(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSON(w, statusCode, errorResponse{
		Status: types.StatusError,
		Error:  message,
	})
}

// writeJSON buffers the body before writing so encoding errors are caught
// before headers are sent.
func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, resp interface{}) {
	buf := getResponseBuffer()
	defer putResponseBuffer(buf)

	if err := json.NewEncoder(buf).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","error":"internal encoding error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	_, _ = w.Write(buf.Bytes())
}
