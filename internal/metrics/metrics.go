// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatch
	DispatchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_dispatch_attempts_total",
			Help: "Send attempts by outcome (sent, retry, failed, rejected, skipped)",
		},
		[]string{"outcome"},
	)

	DispatchCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wa_dispatch_cycle_duration_seconds",
			Help:    "Duration of a full dispatcher cycle",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	QuotaExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_quota_exhausted_total",
			Help: "Times a device ran out of quota during a cycle",
		},
		[]string{"device"},
	)

	DeviceThrottled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_device_throttled_total",
			Help: "Times a device was skipped because of its throttle interval",
		},
		[]string{"device"},
	)

	QuotaResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wa_quota_resets_total",
			Help: "Device quota counters reset by the sweep",
		},
	)

	// Gateway circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wa_gateway_circuit_state",
			Help: "Per-device breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"device"},
	)

	// Webhooks
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_webhook_events_total",
			Help: "Webhook callbacks by kind and outcome (applied, duplicate, stale, orphan, invalid)",
		},
		[]string{"kind", "outcome"},
	)

	// Scheduling and composition
	SchedulesPromoted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wa_schedules_promoted_total",
			Help: "Schedules turned into pending messages",
		},
	)

	AutoReplies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wa_auto_replies_total",
			Help: "Auto-reply messages enqueued",
		},
	)

	NotificationsComposed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_notifications_composed_total",
			Help: "Messages or schedules built from events, by event type",
		},
		[]string{"event"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_events_consumed_total",
			Help: "Attendance events taken off the bus, by outcome (composed, dropped, error)",
		},
		[]string{"outcome"},
	)

	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_api_requests_total",
			Help: "HTTP requests by method, route pattern and status code",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_api_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)
)
