package handler

import (
	"net/http"

	"github.com/oggyb/wa-notifier/internal/clock"
	"github.com/oggyb/wa-notifier/internal/response"
	"github.com/oggyb/wa-notifier/internal/service"
)

type DeviceHandler struct {
	registry *service.Registry
	clock    clock.Clock
}

func NewDeviceHandler(registry *service.Registry, clk clock.Clock) *DeviceHandler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &DeviceHandler{registry: registry, clock: clk}
}

// ListDevices godoc
// @Summary     List devices
// @Description Returns every device with its quota, throttle and whether it can send right now.
// @Tags        devices
// @Produce     json
// @Success     200 {object} response.DevicesResponse
// @Router      /devices [get]
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devs, err := h.registry.ListDevices(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.FromDomainDevices(devs, h.clock.Now()))
}
