package request

import "time"

// SchedulerRequest represents the JSON body for scheduler control.
type SchedulerRequest struct {
	// Action controls the dispatcher. Allowed values:
	// - "start": start processing cycles
	// - "stop":  stop processing cycles
	Action string `json:"action" validate:"required,oneof=start stop"`
}

// CreateMessageRequest enqueues an immediate outbound message.
type CreateMessageRequest struct {
	// DeviceID pins the message to a device; empty picks any sendable device.
	DeviceID string `json:"deviceId" validate:"omitempty,uuid"`
	To       string `json:"to" validate:"required"`
	Content  string `json:"content" validate:"required,max=4096"`
	MediaURL string `json:"mediaUrl" validate:"omitempty,url"`
	Priority int    `json:"priority" validate:"min=0,max=100"`
}

// CreateScheduleRequest registers a deferred send.
type CreateScheduleRequest struct {
	DeviceID    string    `json:"deviceId" validate:"omitempty,uuid"`
	To          string    `json:"to" validate:"required"`
	Content     string    `json:"content" validate:"required,max=4096"`
	MediaURL    string    `json:"mediaUrl" validate:"omitempty,url"`
	Priority    int       `json:"priority" validate:"min=0,max=100"`
	ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
	MaxRetries  int       `json:"maxRetries" validate:"min=0,max=10"`
}

// Recipient is one guardian of an attendance event.
type Recipient struct {
	Phone string `json:"phone" validate:"required"`
	Name  string `json:"name"`
}

// AttendanceEventRequest is an attendance event to be turned into notifications.
type AttendanceEventRequest struct {
	Event      string            `json:"event" validate:"required,oneof=check_in check_out late absent general"`
	Language   string            `json:"language" validate:"omitempty,min=2,max=10"`
	DeviceID   string            `json:"deviceId" validate:"omitempty,uuid"`
	Recipients []Recipient       `json:"recipients" validate:"required,min=1,dive"`
	Variables  map[string]string `json:"variables"`
	// OccurredAt feeds {date}, {time} and {datetime}; defaults to now.
	OccurredAt *time.Time `json:"occurredAt"`
	// ScheduledAt in the future turns the notifications into schedules.
	ScheduledAt *time.Time `json:"scheduledAt"`
}

// StatusWebhookRequest is a delivery status callback.
type StatusWebhookRequest struct {
	ID     string `json:"id" validate:"required"`
	Status string `json:"status" validate:"required"`
	Note   string `json:"note"`
}

// IncomingWebhookRequest is an inbound message callback.
type IncomingWebhookRequest struct {
	// Device is the session token the gateway knows the device by.
	Device    string     `json:"device" validate:"required"`
	ID        string     `json:"id" validate:"required"`
	From      string     `json:"from" validate:"required"`
	Name      string     `json:"name"`
	Message   string     `json:"message"`
	MediaURL  string     `json:"mediaUrl"`
	Timestamp *time.Time `json:"timestamp"`
}

// DeviceStatusWebhookRequest is a session state callback.
type DeviceStatusWebhookRequest struct {
	Device string `json:"device" validate:"required"`
	Status string `json:"status" validate:"required"`
	Phone  string `json:"phone"`
}

// GatewaySendRequest is the body posted to the gateway's /send endpoint.
type GatewaySendRequest struct {
	Device   string `json:"device"`
	To       string `json:"to"`
	Content  string `json:"content"`
	MediaURL string `json:"mediaUrl,omitempty"`
}
