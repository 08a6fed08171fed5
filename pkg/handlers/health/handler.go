package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/blush-marketing/core/pkg/logger"
	"github.com/blush-marketing/core/pkg/models/api"
	"github.com/blush-marketing/core/pkg/scheduler"
)

// Handler handles health check requests
type Handler struct {
	scheduler *scheduler.Service
	logger    *logger.Logger
}

// NewHandler creates a new health handler
func NewHandler(sched *scheduler.Service, log *logger.Logger) *Handler {
	return &Handler{
		scheduler: sched,
		logger:    log,
	}
}

// HealthCheck handles the /health endpoint. Beyond liveness it reports
// the job layer's mode, so dashboards can tell a draining instance from
// a healthy one.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	response := api.HealthResponse{
		Status:        "ok",
		SchedulerMode: string(h.scheduler.Mode()),
		JobCount:      len(h.scheduler.Status()),
		Timestamp:     time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error().
			Err(err).
			Str("action", "health_check_failed").
			Str("endpoint", "/health").
			Msg("Failed to encode health response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	h.logger.Debug().
		Str("action", "health_check").
		Str("endpoint", "/health").
		Str("method", r.Method).
		Str("remote_addr", r.RemoteAddr).
		Int("status_code", 200).
		Dur("duration", time.Since(start)).
		Msg("Health check completed")
}
