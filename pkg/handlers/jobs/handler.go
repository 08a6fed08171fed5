package jobs

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/blush-marketing/core/pkg/logger"
	"github.com/blush-marketing/core/pkg/models/api"
	"github.com/blush-marketing/core/pkg/scheduler"
	"github.com/blush-marketing/core/pkg/shutdown"
)

// Handler exposes the operator surface over the job layer: status
// introspection, manual triggers, and the restart safety check.
type Handler struct {
	scheduler   *scheduler.Service
	coordinator *shutdown.Coordinator
	logger      *logger.Logger
}

func NewHandler(sched *scheduler.Service, coord *shutdown.Coordinator, logger *logger.Logger) *Handler {
	return &Handler{
		scheduler:   sched,
		coordinator: coord,
		logger:      logger,
	}
}

// List handles GET /api/jobs
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	status := api.SchedulerStatusResponse{
		Mode: string(h.coordinator.Mode()),
		Jobs: h.scheduler.Status(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(api.Response{
		Success: true,
		Data:    status,
		Meta: map[string]any{
			"total": len(status.Jobs),
		},
	}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode jobs response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// Trigger handles POST /api/jobs/{name}/run. The dispatch goes through
// the same execution guard as cron firings; a callback failure surfaces
// to the operator as a concrete error.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Path shape: /api/jobs/{name}/run
	path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	name := strings.TrimSuffix(path, "/run")
	if name == "" || name == path {
		http.Error(w, "Job name required", http.StatusBadRequest)
		return
	}

	h.logger.Info().
		Str("action", "manual_trigger").
		Str("job_name", name).
		Str("remote_addr", r.RemoteAddr).
		Msg("Manual job trigger requested")

	record, err := h.scheduler.Dispatch(r.Context(), name, scheduler.TriggerManual)

	w.Header().Set("Content-Type", "application/json")
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		w.WriteHeader(http.StatusNotFound)
		h.encode(w, api.Response{Success: false, Message: "job not found: " + name})
	case errors.Is(err, scheduler.ErrSchedulerStopped):
		w.WriteHeader(http.StatusConflict)
		h.encode(w, api.Response{Success: false, Message: "scheduler is draining, manual triggers are blocked"})
	case err != nil:
		w.WriteHeader(http.StatusInternalServerError)
		h.encode(w, api.Response{
			Success: false,
			Message: err.Error(),
			Data:    api.TriggerResponse{JobName: name, Status: "failed", Run: record},
		})
	case record == nil:
		// Overlap guard dropped the dispatch; not an error.
		w.WriteHeader(http.StatusAccepted)
		h.encode(w, api.Response{
			Success: true,
			Message: "job already running, dispatch dropped",
			Data:    api.TriggerResponse{JobName: name, Status: "skipped"},
		})
	default:
		h.encode(w, api.Response{
			Success: true,
			Data:    api.TriggerResponse{JobName: name, Status: "completed", Run: record},
		})
	}
}

// RestartCheck handles GET /api/system/restart-check
func (h *Handler) RestartCheck(w http.ResponseWriter, r *http.Request) {
	check := h.coordinator.CanRestart()

	w.Header().Set("Content-Type", "application/json")
	h.encode(w, api.Response{
		Success: true,
		Data:    check,
	})
}

func (h *Handler) encode(w http.ResponseWriter, resp api.Response) {
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}
