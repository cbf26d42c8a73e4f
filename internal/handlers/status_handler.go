package handlers

import (
	"net/http"
	"time"

	"github.com/easyvinted/publisher/internal/common"
)

// SchedulerStatus is the read side of the scheduler used by /health
type SchedulerStatus interface {
	IsRunning() bool
	NextRun() time.Time
}

// StatusHandler serves the health endpoint
type StatusHandler struct {
	scheduler SchedulerStatus
	startedAt time.Time
}

// NewStatusHandler creates a new StatusHandler; scheduler may be nil
func NewStatusHandler(scheduler SchedulerStatus) *StatusHandler {
	return &StatusHandler{
		scheduler: scheduler,
		startedAt: time.Now(),
	}
}

// HealthHandler handles GET /health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	response := map[string]interface{}{
		"status":  "ok",
		"version": common.GetVersion(),
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
	}
	if h.scheduler != nil && h.scheduler.IsRunning() {
		response["scheduler"] = "running"
		response["next_run"] = h.scheduler.NextRun()
	} else {
		response["scheduler"] = "stopped"
	}

	WriteJSON(w, http.StatusOK, response)
}
