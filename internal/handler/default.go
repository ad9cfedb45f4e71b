package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/oggyb/wa-notifier/internal/response"
)

// Pinger is anything the health check can probe (database, cache).
type Pinger interface {
	Ping(ctx context.Context) error
}

// HomeHandler serves basic root and health endpoints.
type HomeHandler struct {
	appName string
	checks  map[string]Pinger
}

// NewHomeHandler returns a HomeHandler. checks maps a component name to its probe.
func NewHomeHandler(appName string, checks map[string]Pinger) *HomeHandler {
	return &HomeHandler{appName: appName, checks: checks}
}

// Index godoc
// @Summary     Welcome endpoint
// @Description Simple root endpoint that returns a welcome message.
// @Tags        home
// @Produce     json
// @Success     200 {object} response.WelcomeResponse
// @Router      / [get]
func (h *HomeHandler) Index(w http.ResponseWriter, r *http.Request) {
	payload := response.WelcomePayload{
		Message: "Welcome to " + h.appName,
	}

	response.RespondJSON(w, http.StatusOK, payload)
}

// Health godoc
// @Summary     Health check
// @Description Pings the database and cache. Returns 503 when any of them is down.
// @Tags        home
// @Produce     json
// @Success     200 {object} response.HealthResponse
// @Failure     503 {object} response.HealthResponse
// @Router      /health [get]
func (h *HomeHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	payload := response.HealthPayload{Status: "ok"}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			if payload.Components == nil {
				payload.Components = map[string]string{}
			}
			payload.Components[name] = err.Error()
			payload.Status = "degraded"
		}
	}

	status := http.StatusOK
	if payload.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	response.RespondJSON(w, status, payload)
}
