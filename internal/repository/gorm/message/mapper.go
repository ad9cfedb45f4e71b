package messagegorm

import (
	"github.com/oggyb/wa-notifier/internal/domain/message"
)

// toDomain maps a GORM MessageModel to a domain-level Message.
func toDomain(m *MessageModel) *message.Message {
	return &message.Message{
		ID:                m.ID,
		ProviderMessageID: m.ProviderMessageID,
		DeviceID:          m.DeviceID,
		ScheduleID:        m.ScheduleID,
		Recipient:         m.Recipient,
		Direction:         message.Direction(m.Direction),
		Content:           m.Content,
		MediaURL:          m.MediaURL,
		Status:            message.Status(m.Status),
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
}

// toDomainMany maps a slice of MessageModel to a slice of domain Messages.
func toDomainMany(models []MessageModel) []*message.Message {
	out := make([]*message.Message, len(models))
	for i := range models {
		out[i] = toDomain(&models[i])
	}
	return out
}

// fromDomain maps a domain-level Message to a GORM MessageModel.
func fromDomain(d *message.Message) *MessageModel {
	return &MessageModel{
		ID:                d.ID,
		ProviderMessageID: d.ProviderMessageID,
		DeviceID:          d.DeviceID,
		ScheduleID:        d.ScheduleID,
		Recipient:         d.Recipient,
		Direction:         string(d.Direction),
		Content:           d.Content,
		MediaURL:          d.MediaURL,
		Status:            string(d.Status),
		RetryCount:        d.RetryCount,
		MaxRetries:        d.MaxRetries,
		Priority:          d.Priority,
		ScheduledAt:       d.ScheduledAt,
		SentAt:            d.SentAt,
		DeliveredAt:       d.DeliveredAt,
		ReadAt:            d.ReadAt,
		Error:             d.Error,
		CancelRequested:   d.CancelRequested,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

// updateColumns turns a transition Update into the column map written with the status.
func updateColumns(to message.Status, u message.Update) map[string]any {
	cols := map[string]any{"status": string(to)}

	if u.ProviderMessageID != "" {
		cols["provider_message_id"] = gormExprKeepProviderID(u.ProviderMessageID)
	}
	if u.RetryCount != nil {
		cols["retry_count"] = *u.RetryCount
	}
	if u.NotBefore != nil {
		cols["scheduled_at"] = *u.NotBefore
	}
	if u.SentAt != nil {
		cols["sent_at"] = *u.SentAt
	}
	if u.DeliveredAt != nil {
		cols["delivered_at"] = *u.DeliveredAt
	}
	if u.ReadAt != nil {
		cols["read_at"] = *u.ReadAt
	}
	if u.Error != nil {
		cols["error"] = *u.Error
	}
	if u.ClearCancel {
		cols["cancel_requested"] = false
	}
	return cols
}
