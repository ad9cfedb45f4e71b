package handler

import (
	"context"
	"net/http"

	"github.com/oggyb/wa-notifier/internal/domain/template"
	"github.com/oggyb/wa-notifier/internal/request"
	"github.com/oggyb/wa-notifier/internal/response"
	"github.com/oggyb/wa-notifier/internal/service"
)

// EventPublisher puts an attendance event on the bus and returns its id.
type EventPublisher interface {
	PublishAttendance(ctx context.Context, ev service.AttendanceEvent) (string, error)
}

type EventHandler struct {
	publisher EventPublisher
}

func NewEventHandler(publisher EventPublisher) *EventHandler {
	return &EventHandler{publisher: publisher}
}

// PublishAttendance godoc
// @Summary     Submit an attendance event
// @Description Accepts an attendance event; one notification per recipient is composed asynchronously.
// @Tags        events
// @Accept      json
// @Produce     json
// @Param       request body request.AttendanceEventRequest true "Attendance event"
// @Success     202 {object} response.EventAcceptedResponse
// @Failure     400 {object} response.JSONResponse
// @Router      /events/attendance [post]
func (h *EventHandler) PublishAttendance(w http.ResponseWriter, r *http.Request) {
	var req request.AttendanceEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ev := service.AttendanceEvent{
		Event:       template.EventType(req.Event),
		Language:    req.Language,
		DeviceID:    optionalID(req.DeviceID),
		Variables:   req.Variables,
		ScheduledAt: req.ScheduledAt,
	}
	if req.OccurredAt != nil {
		ev.OccurredAt = *req.OccurredAt
	}
	for _, rc := range req.Recipients {
		ev.Recipients = append(ev.Recipients, service.Recipient{Phone: rc.Phone, Name: rc.Name})
	}

	id, err := h.publisher.PublishAttendance(r.Context(), ev)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusAccepted, response.EventAcceptedPayload{EventID: id})
}
