// Package health provides the gateway's liveness and readiness handlers.
//
//   - /healthz — liveness; always 200 while the process serves HTTP.
//   - /readyz  — readiness; 200 only when every registered probe passes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// probeTimeout bounds a single readiness probe.
const probeTimeout = 5 * time.Second

// Probe checks one dependency (session store, provider reachability). It
// must respect context cancellation and return nil when healthy.
type Probe func(ctx context.Context) error

// Handler serves the health endpoints. Probes are fixed at construction.
type Handler struct {
	probes map[string]Probe
}

// New creates a handler evaluating the given named probes on each /readyz
// request.
func New(probes map[string]Probe) *Handler {
	cp := make(map[string]Probe, len(probes))
	for name, p := range probes {
		cp[name] = p
	}
	return &Handler{probes: cp}
}

type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz always reports ok.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz runs every probe, in name order for stable output, and reports 503
// if any fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := response{Status: "ok", Checks: make(map[string]string, len(names))}
	code := http.StatusOK
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := h.probes[name](ctx)
		cancel()

		if err != nil {
			resp.Checks[name] = "fail: " + err.Error()
			resp.Status = "fail"
			code = http.StatusServiceUnavailable
		} else {
			resp.Checks[name] = "ok"
		}
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
