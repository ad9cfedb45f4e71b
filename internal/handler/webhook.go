package handler

import (
	"net/http"

	"github.com/oggyb/wa-notifier/internal/request"
	"github.com/oggyb/wa-notifier/internal/response"
	"github.com/oggyb/wa-notifier/internal/service"
)

// WebhookHandler receives gateway callbacks. Everything the processor can
// make sense of is acknowledged with 200, even when nothing changed, so the
// gateway stops redelivering.
type WebhookHandler struct {
	processor *service.WebhookProcessor
}

func NewWebhookHandler(processor *service.WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

func ack(w http.ResponseWriter, res service.WebhookResult) {
	response.RespondJSON(w, http.StatusOK, response.AckPayload{Processed: res.Processed, Note: res.Note})
}

// Incoming godoc
// @Summary     Inbound message callback
// @Tags        webhooks
// @Accept      json
// @Produce     json
// @Param       request body request.IncomingWebhookRequest true "Inbound message"
// @Success     200 {object} response.AckResponse
// @Failure     400 {object} response.JSONResponse
// @Router      /webhook/incoming [post]
func (h *WebhookHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	var req request.IncomingWebhookRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := service.InboundMessage{
		DeviceToken: req.Device,
		ProviderID:  req.ID,
		From:        req.From,
		Name:        req.Name,
		Content:     req.Message,
		MediaURL:    req.MediaURL,
	}
	if req.Timestamp != nil {
		in.ReceivedAt = *req.Timestamp
	}

	res, err := h.processor.HandleIncoming(r.Context(), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	ack(w, res)
}

// Status godoc
// @Summary     Delivery status callback
// @Tags        webhooks
// @Accept      json
// @Produce     json
// @Param       request body request.StatusWebhookRequest true "Status report"
// @Success     200 {object} response.AckResponse
// @Failure     400 {object} response.JSONResponse
// @Router      /webhook/status [post]
func (h *WebhookHandler) Status(w http.ResponseWriter, r *http.Request) {
	var req request.StatusWebhookRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.processor.HandleStatus(r.Context(), service.StatusUpdate{
		ProviderID: req.ID,
		Status:     req.Status,
		Note:       req.Note,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	ack(w, res)
}

// DeviceStatus godoc
// @Summary     Device session status callback
// @Tags        webhooks
// @Accept      json
// @Produce     json
// @Param       request body request.DeviceStatusWebhookRequest true "Session status"
// @Success     200 {object} response.AckResponse
// @Failure     400 {object} response.JSONResponse
// @Router      /webhook/device-status [post]
func (h *WebhookHandler) DeviceStatus(w http.ResponseWriter, r *http.Request) {
	var req request.DeviceStatusWebhookRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.processor.HandleDeviceStatus(r.Context(), service.DeviceStatusUpdate{
		DeviceToken: req.Device,
		Status:      req.Status,
		Phone:       req.Phone,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	ack(w, res)
}
