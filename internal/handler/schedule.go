package handler

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	domain "github.com/oggyb/wa-notifier/internal/domain/schedule"
	"github.com/oggyb/wa-notifier/internal/request"
	"github.com/oggyb/wa-notifier/internal/response"
	"github.com/oggyb/wa-notifier/internal/service"
)

type ScheduleHandler struct {
	schedules *service.ScheduleService
}

func NewScheduleHandler(schedules *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules}
}

// CreateSchedule godoc
// @Summary     Schedule a message
// @Description Registers a message to be queued at scheduledAt.
// @Tags        schedules
// @Accept      json
// @Produce     json
// @Param       request body request.CreateScheduleRequest true "Schedule"
// @Success     201 {object} response.ScheduleResponse
// @Failure     400 {object} response.JSONResponse
// @Failure     503 {object} response.JSONResponse
// @Router      /schedules [post]
func (h *ScheduleHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req request.CreateScheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	deviceID := uuid.Nil
	if id := optionalID(req.DeviceID); id != nil {
		deviceID = *id
	}

	sc, err := domain.New(deviceID, req.To, req.Content, req.ScheduledAt, req.MaxRetries)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	sc.MediaURL = req.MediaURL
	sc.Priority = req.Priority

	if err := h.schedules.Create(r.Context(), sc); err != nil {
		respondServiceError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusCreated, response.FromDomainSchedule(sc))
}

// GetSchedule godoc
// @Summary     Get a schedule
// @Tags        schedules
// @Produce     json
// @Param       id path string true "Schedule ID"
// @Success     200 {object} response.ScheduleResponse
// @Failure     404 {object} response.JSONResponse
// @Router      /schedules/{id} [get]
func (h *ScheduleHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sc, err := h.schedules.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.FromDomainSchedule(sc))
}

// CancelSchedule godoc
// @Summary     Cancel a schedule
// @Description Cancels a pending schedule. One whose message is being sent is cancelled after the attempt (202).
// @Tags        schedules
// @Produce     json
// @Param       id path string true "Schedule ID"
// @Success     200 {object} response.ScheduleResponse
// @Success     202 {object} response.ScheduleResponse
// @Failure     404 {object} response.JSONResponse
// @Failure     409 {object} response.JSONResponse
// @Router      /schedules/{id}/cancel [post]
func (h *ScheduleHandler) CancelSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	status := http.StatusOK
	if err := h.schedules.Cancel(r.Context(), id); err != nil {
		if !errors.Is(err, domain.ErrCancelDeferred) {
			respondServiceError(w, err)
			return
		}
		status = http.StatusAccepted
	}

	sc, err := h.schedules.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	response.RespondJSON(w, status, response.FromDomainSchedule(sc))
}

// RetrySchedule godoc
// @Summary     Retry a failed schedule
// @Tags        schedules
// @Produce     json
// @Param       id path string true "Schedule ID"
// @Success     200 {object} response.ScheduleResponse
// @Failure     404 {object} response.JSONResponse
// @Failure     409 {object} response.JSONResponse
// @Router      /schedules/{id}/retry [post]
func (h *ScheduleHandler) RetrySchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sc, err := h.schedules.Retry(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.FromDomainSchedule(sc))
}
