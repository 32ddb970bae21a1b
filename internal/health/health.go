// Package health provides HTTP health and readiness check handlers.
//
// The package exposes three endpoints:
//
//   - /health  — service status report: version, per-subsystem statuses and
//     the current open-session count.
//   - /healthz — liveness probe; always returns 200 OK.
//   - /readyz  — readiness probe; returns 200 only when all registered
//     [Checker] functions pass.
//
// Responses are JSON objects with a top-level "status" field ("ok" or
// "degraded"/"fail") and a map containing the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout is the maximum time a single subsystem check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named subsystem check function. The Check function should
// return nil when the subsystem is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short, human-readable label for this subsystem (e.g.
	// "redis", "tool_broker"). It appears as a key in the JSON response.
	Name string

	// Check probes the subsystem. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// result is the JSON response body for the probe endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// statusResult is the JSON response body for the /health endpoint.
type statusResult struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Subsystems   map[string]string `json:"subsystems"`
	OpenSessions int               `json:"open_sessions"`
	Timestamp    string            `json:"timestamp"`
}

// Handler serves the /health, /healthz and /readyz endpoints. It is safe for
// concurrent use; the checker list is fixed at construction time.
type Handler struct {
	version  string
	sessions func() int
	checkers []Checker
}

// New creates a [Handler] reporting the given service version. sessions
// returns the current open duplex session count and may be nil when no
// session layer is wired in. The checkers are evaluated sequentially in the
// order provided.
func New(version string, sessions func() int, checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	if sessions == nil {
		sessions = func() int { return 0 }
	}
	return &Handler{version: version, sessions: sessions, checkers: c}
}

// Status reports overall service health: version, per-subsystem statuses and
// the current open-session count. A failing subsystem degrades the overall
// status but the endpoint still answers 200 so load balancers keep routing.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	subsystems, allOK := h.runChecks(r.Context())

	res := statusResult{
		Status:       "ok",
		Version:      h.version,
		Subsystems:   subsystems,
		OpenSessions: h.sessions(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	if !allOK {
		res.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, res)
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Checker] passes.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks, allOK := h.runChecks(r.Context())

	res := result{
		Status: "ok",
		Checks: checks,
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, res)
}

// runChecks evaluates every checker with a [checkTimeout] deadline derived
// from ctx and returns the per-subsystem results.
func (h *Handler) runChecks(ctx context.Context) (map[string]string, bool) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(cctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}
	return checks, allOK
}

// Register adds the /health, /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Status)
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
