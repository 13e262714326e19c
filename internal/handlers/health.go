package handlers

import (
	"net/http"
	"time"

	"github.com/shoplane/api/internal/repositories"
	"github.com/shoplane/api/internal/services"
)

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	system    services.SystemService
	startedAt time.Time
	now       func() time.Time
}

// HealthOption customises health handler construction.
type HealthOption func(*HealthHandlers)

// WithHealthClock overrides the clock used for uptime reporting.
func WithHealthClock(now func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHealthHandlers constructs health handlers. A nil system service still
// serves liveness but reports readiness as unavailable.
func NewHealthHandlers(system services.SystemService, opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		system: system,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.startedAt = h.now()
	return h
}

// Healthz reports process liveness only; it never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    h.now().Sub(h.startedAt).String(),
		"timestamp": formatTime(h.now()),
	})
}

// Readyz probes downstream dependencies and reports per-check detail.
// Anything short of a fully healthy report answers 503 so load balancers
// stop routing traffic here.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{"status": string(repositories.HealthStatusError)})
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{"status": string(repositories.HealthStatusError)})
		return
	}

	checks := make(map[string]any, len(report.Checks))
	for name, check := range report.Checks {
		entry := map[string]any{
			"status":  string(check.Status),
			"latency": check.Latency.String(),
		}
		if check.Detail != "" {
			entry["detail"] = check.Detail
		}
		checks[name] = entry
	}

	status := http.StatusOK
	if report.Status != repositories.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, map[string]any{
		"status":      string(report.Status),
		"checks":      checks,
		"generatedAt": formatTime(report.GeneratedAt),
	})
}
