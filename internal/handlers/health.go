package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coursekart/payments-api/internal/platform/httpx"
)

// ReadinessCheck reports whether a downstream dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers exposes liveness and readiness endpoints.
type HealthHandlers struct {
	startedAt time.Time
	version   string
	checks    map[string]ReadinessCheck
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthVersion attaches a build version string to health payloads.
func WithHealthVersion(version string) HealthOption {
	return func(h *HealthHandlers) {
		h.version = version
	}
}

// WithReadinessCheck registers a named dependency check evaluated by Readyz.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		if name == "" || check == nil {
			return
		}
		h.checks[name] = check
	}
}

// NewHealthHandlers constructs health handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		startedAt: time.Now().UTC(),
		checks:    make(map[string]ReadinessCheck),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	extra := map[string]any{
		"status": "ok",
		"uptime": time.Since(h.startedAt).String(),
	}
	if h.version != "" {
		extra["version"] = h.version
	}
	httpx.WriteSuccess(r.Context(), w, http.StatusOK, "", extra)
}

// Readyz evaluates registered dependency checks and fails when any dependency is down.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		err := httpx.NewError("not_ready", "one or more dependencies are unavailable", http.StatusServiceUnavailable)
		httpx.WriteError(ctx, w, err.WithDetails(map[string]any{"failed": failed}))
		return
	}
	httpx.WriteSuccess(ctx, w, http.StatusOK, "", map[string]any{"status": "ready"})
}
