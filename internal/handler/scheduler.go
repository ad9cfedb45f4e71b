package handler

import (
	"context"
	"net/http"

	"github.com/oggyb/wa-notifier/internal/cache"
	"github.com/oggyb/wa-notifier/internal/logging"
	"github.com/oggyb/wa-notifier/internal/request"
	"github.com/oggyb/wa-notifier/internal/response"
	"github.com/oggyb/wa-notifier/internal/scheduler"
)

// Values stored under cache.SchedulerState.
const (
	StateRunning = "running"
	StateStopped = "stopped"
)

// SchedulerStateKey is the cache key remembering the operator's last action.
var SchedulerStateKey = cache.SchedulerState.Key("dispatch")

// SchedulerHandler starts and stops the background runners.
type SchedulerHandler struct {
	schSvc scheduler.SchedulerService
	cache  cache.Cache
}

// NewSchedulerHandler wires the control endpoint. c may be nil, in which case
// the state is not remembered across restarts.
func NewSchedulerHandler(schSvc scheduler.SchedulerService, c cache.Cache) *SchedulerHandler {
	return &SchedulerHandler{schSvc: schSvc, cache: c}
}

// StartStopScheduler godoc
// @Summary     Control scheduler
// @Description Starts or stops the dispatcher and schedule sweep based on the given action.
// @Tags        scheduler
// @Accept      json
// @Produce     json
// @Param       request body request.SchedulerRequest true "Scheduler action (start|stop)"
// @Success     200 {object} response.SchedulerControlResponse
// @Failure     400 {object} response.JSONResponse
// @Router      /scheduler [post]
func (h *SchedulerHandler) StartStopScheduler(w http.ResponseWriter, r *http.Request) {
	var req request.SchedulerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	switch req.Action {
	case "start":
		if err := h.schSvc.Start(); err != nil {
			response.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.remember(r.Context(), StateRunning)

		payload := response.SchedulerControlPayload{
			Message: "scheduler started",
			Running: h.schSvc.IsRunning(),
		}
		response.RespondJSON(w, http.StatusOK, payload)
		return

	case "stop":
		if err := h.schSvc.Stop(); err != nil {
			response.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.remember(r.Context(), StateStopped)

		payload := response.SchedulerControlPayload{
			Message: "scheduler stopped",
			Running: h.schSvc.IsRunning(),
		}
		response.RespondJSON(w, http.StatusOK, payload)
		return

	default:
		response.RespondError(w, http.StatusBadRequest, "action must be 'start' or 'stop'")
		return
	}
}

// SchedulerStatus godoc
// @Summary     Scheduler status
// @Tags        scheduler
// @Produce     json
// @Success     200 {object} response.SchedulerControlResponse
// @Router      /scheduler [get]
func (h *SchedulerHandler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	running := h.schSvc.IsRunning()
	msg := "scheduler stopped"
	if running {
		msg = "scheduler running"
	}
	response.RespondJSON(w, http.StatusOK, response.SchedulerControlPayload{Message: msg, Running: running})
}

func (h *SchedulerHandler) remember(ctx context.Context, state string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Set(ctx, SchedulerStateKey, state, 0); err != nil {
		logging.Warn().Err(err).Str("state", state).Msg("[Scheduler] Could not persist scheduler state")
	}
}
