package response

import (
	"time"

	"github.com/oggyb/wa-notifier/internal/domain/device"
	"github.com/oggyb/wa-notifier/internal/domain/message"
	"github.com/oggyb/wa-notifier/internal/domain/schedule"
)

type WelcomePayload struct {
	Message string `json:"message"`
}

type HealthPayload struct {
	Status string `json:"status"`
	// Components lists failing dependencies and their errors.
	Components map[string]string `json:"components,omitempty"`
}

type WelcomeResponse struct {
	Success   bool           `json:"success"`
	Data      WelcomePayload `json:"data"`
	Timestamp string         `json:"timestamp"`
}

type HealthResponse struct {
	Success   bool          `json:"success"`
	Data      HealthPayload `json:"data"`
	Timestamp string        `json:"timestamp"`
}

type SchedulerControlPayload struct {
	Message string `json:"message"`
	Running bool   `json:"running"`
}

type SchedulerControlResponse struct {
	Success   bool                    `json:"success"`
	Data      SchedulerControlPayload `json:"data"`
	Timestamp string                  `json:"timestamp"`
}

// AckPayload is returned by webhook endpoints. Processed is false for
// orphaned, duplicate or stale callbacks that were acknowledged without effect.
type AckPayload struct {
	Processed bool   `json:"processed"`
	Note      string `json:"note,omitempty"`
}

type AckResponse struct {
	Success   bool       `json:"success"`
	Data      AckPayload `json:"data"`
	Timestamp string     `json:"timestamp"`
}

// MessageDTO is a public-facing representation of a message
// used in API responses. It decouples the wire format from
// the domain entity and plays nicely with Swagger.
type MessageDTO struct {
	ID                string     `json:"id"`
	ProviderMessageID string     `json:"providerMessageId,omitempty"`
	DeviceID          string     `json:"deviceId"`
	ScheduleID        string     `json:"scheduleId,omitempty"`
	Recipient         string     `json:"recipient"`
	Direction         string     `json:"direction"`
	Content           string     `json:"content"`
	MediaURL          string     `json:"mediaUrl,omitempty"`
	Status            string     `json:"status"`
	RetryCount        int        `json:"retryCount"`
	MaxRetries        int        `json:"maxRetries"`
	Priority          int        `json:"priority"`
	ScheduledAt       *time.Time `json:"scheduledAt,omitempty"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
	DeliveredAt       *time.Time `json:"deliveredAt,omitempty"`
	ReadAt            *time.Time `json:"readAt,omitempty"`
	Error             string     `json:"error,omitempty"`
	CancelRequested   bool       `json:"cancelRequested,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type MessageResponse struct {
	Success   bool       `json:"success"`
	Data      MessageDTO `json:"data"`
	Timestamp string     `json:"timestamp"`
}

type MessagesPayload struct {
	Items []MessageDTO `json:"items"`
	Total int64        `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

type MessagesResponse struct {
	Success   bool            `json:"success"`
	Data      MessagesPayload `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// FromDomainMessage converts a domain message into its DTO.
func FromDomainMessage(m *message.Message) MessageDTO {
	dto := MessageDTO{
		ID:                m.ID.String(),
		ProviderMessageID: m.ProviderMessageID,
		DeviceID:          m.DeviceID.String(),
		Recipient:         m.Recipient,
		Direction:         string(m.Direction),
		Content:           m.Content,
		MediaURL:          m.MediaURL,
		Status:            string(m.Status),
		RetryCount:        m.RetryCount,
		MaxRetries:        m.MaxRetries,
		Priority:          m.Priority,
		ScheduledAt:       m.ScheduledAt,
		SentAt:            m.SentAt,
		DeliveredAt:       m.DeliveredAt,
		ReadAt:            m.ReadAt,
		Error:             m.Error,
		CancelRequested:   m.CancelRequested,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if m.ScheduleID != nil {
		dto.ScheduleID = m.ScheduleID.String()
	}
	return dto
}

// FromDomainMessages converts domain messages into DTOs
// for use in HTTP responses.
func FromDomainMessages(msgs []*message.Message) []MessageDTO {
	out := make([]MessageDTO, len(msgs))
	for i, m := range msgs {
		out[i] = FromDomainMessage(m)
	}
	return out
}

type ScheduleDTO struct {
	ID              string    `json:"id"`
	DeviceID        string    `json:"deviceId"`
	Recipient       string    `json:"recipient"`
	Content         string    `json:"content"`
	ScheduledAt     time.Time `json:"scheduledAt"`
	Status          string    `json:"status"`
	RetryCount      int       `json:"retryCount"`
	MaxRetries      int       `json:"maxRetries"`
	MessageID       string    `json:"messageId,omitempty"`
	Error           string    `json:"error,omitempty"`
	CancelRequested bool      `json:"cancelRequested,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

type ScheduleResponse struct {
	Success   bool        `json:"success"`
	Data      ScheduleDTO `json:"data"`
	Timestamp string      `json:"timestamp"`
}

func FromDomainSchedule(s *schedule.Schedule) ScheduleDTO {
	dto := ScheduleDTO{
		ID:              s.ID.String(),
		DeviceID:        s.DeviceID.String(),
		Recipient:       s.Recipient,
		Content:         s.Content,
		ScheduledAt:     s.ScheduledAt,
		Status:          string(s.Status),
		RetryCount:      s.RetryCount,
		MaxRetries:      s.MaxRetries,
		Error:           s.Error,
		CancelRequested: s.CancelRequested,
		CreatedAt:       s.CreatedAt,
	}
	if s.MessageID != nil {
		dto.MessageID = s.MessageID.String()
	}
	return dto
}

type DeviceDTO struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Phone            string     `json:"phone,omitempty"`
	Status           string     `json:"status"`
	QuotaLimit       int        `json:"quotaLimit"`
	QuotaUsed        int        `json:"quotaUsed"`
	QuotaResetAt     time.Time  `json:"quotaResetAt"`
	ThrottleSeconds  float64    `json:"throttleSeconds"`
	MaxRetries       int        `json:"maxRetries"`
	AutoReplyEnabled bool       `json:"autoReplyEnabled"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	Disabled         bool       `json:"disabled"`
	Sendable         bool       `json:"sendable"`
	LastSeenAt       *time.Time `json:"lastSeenAt,omitempty"`
}

type DevicesResponse struct {
	Success   bool        `json:"success"`
	Data      []DeviceDTO `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// FromDomainDevices converts devices into DTOs; Sendable is evaluated at now.
func FromDomainDevices(devs []*device.Device, now time.Time) []DeviceDTO {
	out := make([]DeviceDTO, len(devs))
	for i, d := range devs {
		out[i] = DeviceDTO{
			ID:               d.ID.String(),
			Name:             d.Name,
			Phone:            d.Phone,
			Status:           string(d.Status),
			QuotaLimit:       d.QuotaLimit,
			QuotaUsed:        d.QuotaUsed,
			QuotaResetAt:     d.QuotaResetAt,
			ThrottleSeconds:  d.ThrottleInterval.Seconds(),
			MaxRetries:       d.MaxRetries,
			AutoReplyEnabled: d.AutoReplyEnabled,
			ExpiresAt:        d.ExpiresAt,
			Disabled:         d.Disabled,
			Sendable:         d.Sendable(now),
			LastSeenAt:       d.LastSeenAt,
		}
	}
	return out
}

type EventAcceptedPayload struct {
	EventID string `json:"eventId"`
}

type EventAcceptedResponse struct {
	Success   bool                 `json:"success"`
	Data      EventAcceptedPayload `json:"data"`
	Timestamp string               `json:"timestamp"`
}

// GatewaySendResponse is the gateway's answer to a send. Providers disagree on
// the field name, so both are accepted.
type GatewaySendResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
	ID        string `json:"id"`
}

// ProviderID returns whichever id field the gateway filled.
func (r GatewaySendResponse) ProviderID() string {
	if r.MessageID != "" {
		return r.MessageID
	}
	return r.ID
}
