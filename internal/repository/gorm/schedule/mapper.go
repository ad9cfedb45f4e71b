package schedulegorm

import "github.com/oggyb/wa-notifier/internal/domain/schedule"

func toDomain(m *ScheduleModel) *schedule.Schedule {
	return &schedule.Schedule{
		ID:              m.ID,
		DeviceID:        m.DeviceID,
		Recipient:       m.Recipient,
		Content:         m.Content,
		MediaURL:        m.MediaURL,
		Priority:        m.Priority,
		ScheduledAt:     m.ScheduledAt,
		Status:          schedule.Status(m.Status),
		RetryCount:      m.RetryCount,
		MaxRetries:      m.MaxRetries,
		MessageID:       m.MessageID,
		Error:           m.Error,
		CancelRequested: m.CancelRequested,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func fromDomain(s *schedule.Schedule) *ScheduleModel {
	return &ScheduleModel{
		ID:              s.ID,
		DeviceID:        s.DeviceID,
		Recipient:       s.Recipient,
		Content:         s.Content,
		MediaURL:        s.MediaURL,
		Priority:        s.Priority,
		ScheduledAt:     s.ScheduledAt,
		Status:          string(s.Status),
		RetryCount:      s.RetryCount,
		MaxRetries:      s.MaxRetries,
		MessageID:       s.MessageID,
		Error:           s.Error,
		CancelRequested: s.CancelRequested,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func updateColumns(to schedule.Status, u schedule.Update) map[string]any {
	cols := map[string]any{"status": string(to)}
	if u.MessageID != nil {
		cols["message_id"] = *u.MessageID
	}
	if u.RetryCount != nil {
		cols["retry_count"] = *u.RetryCount
	}
	if u.Error != nil {
		cols["error"] = *u.Error
	}
	if u.ClearCancel {
		cols["cancel_requested"] = false
	}
	return cols
}
