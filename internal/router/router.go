package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	_ "github.com/oggyb/wa-notifier/internal/docs" // swagger docs
	"github.com/oggyb/wa-notifier/internal/middleware"
	"github.com/oggyb/wa-notifier/internal/response"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerHandler "github.com/swaggo/http-swagger"
)

type AppDeps struct {
	Home      HomeHandler
	Message   MessageHandler
	Schedule  ScheduleHandler
	Device    DeviceHandler
	Event     EventHandler
	Webhook   WebhookHandler
	Scheduler SchedulerHandler

	// WebhookSecret guards /webhook/*; empty disables the check.
	WebhookSecret string
	// WebhookRateLimit is requests per minute per client IP; zero disables it.
	WebhookRateLimit int
}

type HomeHandler interface {
	Index(w http.ResponseWriter, r *http.Request)
	Health(w http.ResponseWriter, r *http.Request)
}

type MessageHandler interface {
	ListMessages(w http.ResponseWriter, r *http.Request)
	GetSentMessages(w http.ResponseWriter, r *http.Request)
	GetMessage(w http.ResponseWriter, r *http.Request)
	CreateMessage(w http.ResponseWriter, r *http.Request)
	CancelMessage(w http.ResponseWriter, r *http.Request)
	RetryMessage(w http.ResponseWriter, r *http.Request)
}

type ScheduleHandler interface {
	CreateSchedule(w http.ResponseWriter, r *http.Request)
	GetSchedule(w http.ResponseWriter, r *http.Request)
	CancelSchedule(w http.ResponseWriter, r *http.Request)
	RetrySchedule(w http.ResponseWriter, r *http.Request)
}

type DeviceHandler interface {
	ListDevices(w http.ResponseWriter, r *http.Request)
}

type EventHandler interface {
	PublishAttendance(w http.ResponseWriter, r *http.Request)
}

type WebhookHandler interface {
	Incoming(w http.ResponseWriter, r *http.Request)
	Status(w http.ResponseWriter, r *http.Request)
	DeviceStatus(w http.ResponseWriter, r *http.Request)
}

type SchedulerHandler interface {
	StartStopScheduler(w http.ResponseWriter, r *http.Request)
	SchedulerStatus(w http.ResponseWriter, r *http.Request)
}

func Register(mux *http.ServeMux, d AppDeps) {
	mux.HandleFunc("GET /{$}", d.Home.Index)
	mux.HandleFunc("GET /health", d.Home.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /messages", d.Message.ListMessages)
	mux.HandleFunc("GET /messages/sent", d.Message.GetSentMessages)
	mux.HandleFunc("GET /messages/{id}", d.Message.GetMessage)
	mux.HandleFunc("POST /messages", d.Message.CreateMessage)
	mux.HandleFunc("POST /messages/{id}/cancel", d.Message.CancelMessage)
	mux.HandleFunc("POST /messages/{id}/retry", d.Message.RetryMessage)

	mux.HandleFunc("POST /schedules", d.Schedule.CreateSchedule)
	mux.HandleFunc("GET /schedules/{id}", d.Schedule.GetSchedule)
	mux.HandleFunc("POST /schedules/{id}/cancel", d.Schedule.CancelSchedule)
	mux.HandleFunc("POST /schedules/{id}/retry", d.Schedule.RetrySchedule)

	mux.HandleFunc("GET /devices", d.Device.ListDevices)
	mux.HandleFunc("POST /events/attendance", d.Event.PublishAttendance)

	mux.HandleFunc("GET /scheduler", d.Scheduler.SchedulerStatus)
	mux.HandleFunc("POST /scheduler", d.Scheduler.StartStopScheduler)

	// Webhooks: shared secret, then one per-IP rate limit across all three routes.
	secret := middleware.WebhookSecret(d.WebhookSecret)
	limit := func(h http.Handler) http.Handler { return h }
	if d.WebhookRateLimit > 0 {
		limit = httprate.LimitByIP(d.WebhookRateLimit, time.Minute)
	}
	guard := func(h http.HandlerFunc) http.Handler {
		return secret(limit(h))
	}
	mux.Handle("POST /webhook/incoming", guard(d.Webhook.Incoming))
	mux.Handle("POST /webhook/status", guard(d.Webhook.Status))
	mux.Handle("POST /webhook/device-status", guard(d.Webhook.DeviceStatus))

	//Swagger
	mux.HandleFunc("GET /swagger/", swaggerHandler.WrapHandler)

	// Fallback handler for undefined routes (404)
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.RespondError(w, http.StatusNotFound, "route not found")
	}))
}
