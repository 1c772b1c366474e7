// Package health serves the liveness and readiness probes for the correction
// service.
//
// /healthz answers 200 whenever the process can serve HTTP. /readyz answers
// 200 only while every registered dependency check passes; with a Postgres
// usage store configured, that store's connection pool is the check that
// matters, since corrections themselves need no external service. Responses
// are JSON with a top-level "status" ("ok" or "fail") and a per-dependency
// "checks" map.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// checkTimeout bounds each dependency probe. Readiness is polled by
// orchestrators on short intervals; a probe that cannot answer in this long
// counts as down.
const checkTimeout = 5 * time.Second

// Checker is a named dependency probe. Check returns nil while the
// dependency can serve and an error describing the failure otherwise; it
// must respect context cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Pinger adapts a dependency exposing a Ping method, such as a database
// connection pool, into a [Checker].
func Pinger(name string, p interface{ Ping(context.Context) error }) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// result is the JSON body of both probe endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker set is fixed at
// construction; Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] evaluating the given checkers, in order, on every
// /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz is the liveness probe. A process that reached this handler is
// alive, so it always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is the readiness probe. It answers 200 while every dependency
// check passes and 503 as soon as one fails, so load balancers stop routing
// correction traffic to an instance that would only return errors.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks, ready := h.evaluate(r.Context())

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !ready {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// evaluate runs every checker under its own deadline and reports the
// combined readiness.
func (h *Handler) evaluate(ctx context.Context) (map[string]string, bool) {
	checks := make(map[string]string, len(h.checkers))
	ready := true

	for _, c := range h.checkers {
		probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(probeCtx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			ready = false
			slog.Warn("dependency not ready", "dependency", c.Name, "error", err)
			continue
		}
		checks[c.Name] = "ok"
	}
	return checks, ready
}

// writeJSON encodes v with the given status code. On encoding failure it
// falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
