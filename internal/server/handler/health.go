package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Check probes one backing dependency.
type Check func(ctx context.Context) error

// HealthHandler serves the health-check endpoint. Registered checks probe
// backing stores; the endpoint degrades to 503 when any check fails.
type HealthHandler struct {
	checks map[string]Check
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checks: make(map[string]Check), logger: logger}
}

// Register adds a named dependency check.
func (h *HealthHandler) Register(name string, check Check) {
	h.checks[name] = check
}

// HealthCheck reports liveness plus the state of each registered dependency.
// GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	overall := "ok"
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			overall = "degraded"
			status = http.StatusServiceUnavailable
			h.logger.WarnContext(ctx, "health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		deps[name] = "ok"
	}

	writeJSON(w, status, map[string]any{
		"status":       overall,
		"dependencies": deps,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
