package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
)

// HealthChecker is a dependency probed by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler reports liveness and the state of each named dependency.
type HealthHandler struct {
	checks map[string]HealthChecker
}

// NewHealthHandler creates a HealthHandler. A nil checker is skipped.
func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	active := make(map[string]HealthChecker, len(checks))
	for name, c := range checks {
		if c != nil {
			active[name] = c
		}
	}
	return &HealthHandler{checks: active}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := map[string]any{"ok": true}
	status := http.StatusOK
	for name, c := range h.checks {
		if err := c.HealthCheck(ctx); err != nil {
			resp[name] = "down"
			resp["ok"] = false
			status = http.StatusServiceUnavailable
			continue
		}
		resp[name] = "up"
	}

	pkghttp.WriteJSON(w, status, resp)
}
