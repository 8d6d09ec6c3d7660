package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/scrubline/backend/internal/logging"
)

// HealthHandler responds with service health information.
type HealthHandler struct {
	// Checks are probed in turn; any failure reports the service unavailable.
	Checks map[string]HealthChecker
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	payload := map[string]string{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.Checks {
		if check == nil {
			continue
		}
		if err := check.Ping(ctx); err != nil {
			logging.FromContext(ctx).Warn("health check failed", "check", name, "error", err)
			payload[name] = "unavailable"
			payload["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		payload[name] = "ok"
	}

	respondJSON(r.Context(), w, status, payload)
}
