// Package handler holds the HTTP endpoints. Handlers decode and validate
// the request, call one service and write the JSON envelope.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/domain/contact"
	"github.com/oggyb/wa-notifier/internal/domain/device"
	"github.com/oggyb/wa-notifier/internal/domain/message"
	"github.com/oggyb/wa-notifier/internal/domain/schedule"
	"github.com/oggyb/wa-notifier/internal/logging"
	"github.com/oggyb/wa-notifier/internal/response"
	"github.com/oggyb/wa-notifier/internal/service"
	"github.com/oggyb/wa-notifier/internal/validation"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
	maxBodyBytes = 1 << 20
)

// decodeJSON reads a JSON body into v and validates it. On failure it writes
// a 400 and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := validation.Struct(v); err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// pathID parses the {id} path segment.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// optionalID parses an optional uuid field already checked by the validator.
func optionalID(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func pagination(r *http.Request) (page, limit int) {
	page, limit = defaultPage, defaultLimit

	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= maxLimit {
		limit = v
	}
	return page, limit
}

// respondServiceError maps domain errors onto HTTP status codes.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, message.ErrNotFound),
		errors.Is(err, schedule.ErrNotFound),
		errors.Is(err, device.ErrNotFound):
		response.RespondError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, message.ErrNotCancellable),
		errors.Is(err, message.ErrNotRetryable),
		errors.Is(err, message.ErrInvalidTransition),
		errors.Is(err, schedule.ErrNotCancellable),
		errors.Is(err, schedule.ErrInvalidTransition),
		errors.Is(err, schedule.ErrRetryExhausted):
		response.RespondError(w, http.StatusConflict, err.Error())

	case errors.Is(err, contact.ErrInvalidPhone),
		errors.Is(err, message.ErrEmptyRecipient),
		errors.Is(err, message.ErrEmptyContent),
		errors.Is(err, message.ErrContentTooLong),
		errors.Is(err, schedule.ErrEmptyRecipient),
		errors.Is(err, schedule.ErrEmptyContent),
		errors.Is(err, schedule.ErrMissingSendTime),
		errors.Is(err, service.ErrNoRecipients),
		errors.Is(err, service.ErrUnknownEvent):
		response.RespondError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, device.ErrNotAvailable):
		response.RespondError(w, http.StatusServiceUnavailable, err.Error())

	default:
		logging.Error().Err(err).Msg("[HTTP] Unhandled service error")
		response.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
