package handler

import (
	"errors"
	"net/http"

	domain "github.com/oggyb/wa-notifier/internal/domain/message"
	"github.com/oggyb/wa-notifier/internal/request"
	"github.com/oggyb/wa-notifier/internal/response"
	"github.com/oggyb/wa-notifier/internal/service"
)

// MessageHandler wires HTTP endpoints to the message service.
type MessageHandler struct {
	msgSvc *service.MessageService
}

// NewMessageHandler constructs a new MessageHandler with its dependencies.
func NewMessageHandler(msgSvc *service.MessageService) *MessageHandler {
	return &MessageHandler{msgSvc: msgSvc}
}

// ListMessages godoc
// @Summary     List messages
// @Description Returns a paginated list of messages, newest first, optionally filtered by status.
// @Tags        messages
// @Produce     json
// @Param       status query string false "pending|processing|sent|delivered|read|failed|cancelled"
// @Param       page   query int    false "Page number"         default(1)
// @Param       limit  query int    false "Page size (max 100)" default(20)
// @Success     200 {object} response.MessagesResponse
// @Failure     400 {object} response.JSONResponse
// @Router      /messages [get]
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	status := domain.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		response.RespondError(w, http.StatusBadRequest, "unknown status filter")
		return
	}
	page, limit := pagination(r)

	items, total, err := h.msgSvc.List(r.Context(), status, page, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusOK, response.MessagesPayload{
		Items: response.FromDomainMessages(items),
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetSentMessages godoc
// @Summary     List sent messages
// @Description Returns a paginated list of successfully sent messages.
// @Tags        messages
// @Produce     json
// @Param       page  query int false "Page number"         default(1)
// @Param       limit query int false "Page size (max 100)" default(20)
// @Success     200 {object} response.MessagesResponse
// @Failure     500 {object} response.JSONResponse
// @Router      /messages/sent [get]
func (h *MessageHandler) GetSentMessages(w http.ResponseWriter, r *http.Request) {
	page, limit := pagination(r)

	items, total, err := h.msgSvc.GetSent(r.Context(), page, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	payload := response.MessagesPayload{
		Items: response.FromDomainMessages(items),
		Total: total,
		Page:  page,
		Limit: limit,
	}

	response.RespondJSON(w, http.StatusOK, payload)
}

// GetMessage godoc
// @Summary     Get a message
// @Tags        messages
// @Produce     json
// @Param       id path string true "Message ID"
// @Success     200 {object} response.MessageResponse
// @Failure     404 {object} response.JSONResponse
// @Router      /messages/{id} [get]
func (h *MessageHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	m, err := h.msgSvc.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.FromDomainMessage(m))
}

// CreateMessage godoc
// @Summary     Enqueue a message
// @Description Queues an outbound message. Without deviceId the sendable device with the most quota left is used.
// @Tags        messages
// @Accept      json
// @Produce     json
// @Param       request body request.CreateMessageRequest true "Message"
// @Success     201 {object} response.MessageResponse
// @Failure     400 {object} response.JSONResponse
// @Failure     503 {object} response.JSONResponse
// @Router      /messages [post]
func (h *MessageHandler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req request.CreateMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := h.msgSvc.Send(r.Context(), service.SendInput{
		DeviceID: optionalID(req.DeviceID),
		To:       req.To,
		Content:  req.Content,
		MediaURL: req.MediaURL,
		Priority: req.Priority,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusCreated, response.FromDomainMessage(m))
}

// CancelMessage godoc
// @Summary     Cancel a message
// @Description Cancels a pending message. A message that is being sent is cancelled once the attempt ends (202).
// @Tags        messages
// @Produce     json
// @Param       id path string true "Message ID"
// @Success     200 {object} response.MessageResponse
// @Success     202 {object} response.MessageResponse
// @Failure     404 {object} response.JSONResponse
// @Failure     409 {object} response.JSONResponse
// @Router      /messages/{id}/cancel [post]
func (h *MessageHandler) CancelMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	status := http.StatusOK
	if err := h.msgSvc.Cancel(r.Context(), id); err != nil {
		if !errors.Is(err, domain.ErrCancelDeferred) {
			respondServiceError(w, err)
			return
		}
		status = http.StatusAccepted
	}

	m, err := h.msgSvc.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	response.RespondJSON(w, status, response.FromDomainMessage(m))
}

// RetryMessage godoc
// @Summary     Retry a failed message
// @Description Moves a failed message back to pending with a fresh retry budget.
// @Tags        messages
// @Produce     json
// @Param       id path string true "Message ID"
// @Success     200 {object} response.MessageResponse
// @Failure     404 {object} response.JSONResponse
// @Failure     409 {object} response.JSONResponse
// @Router      /messages/{id}/retry [post]
func (h *MessageHandler) RetryMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	m, err := h.msgSvc.Retry(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.FromDomainMessage(m))
}
