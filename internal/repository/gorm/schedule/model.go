package schedulegorm

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScheduleModel maps to the "schedules" table.
type ScheduleModel struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	DeviceID        uuid.UUID  `gorm:"type:uuid;not null;index"`
	Recipient       string     `gorm:"size:32;not null"`
	Content         string     `gorm:"type:text;not null"`
	MediaURL        string     `gorm:"size:512"`
	Priority        int        `gorm:"not null;default:0"`
	ScheduledAt     time.Time  `gorm:"not null;index:idx_schedules_due,priority:2"`
	Status          string     `gorm:"size:20;not null;index:idx_schedules_due,priority:1"`
	RetryCount      int        `gorm:"not null;default:0"`
	MaxRetries      int        `gorm:"not null;default:3"`
	MessageID       *uuid.UUID `gorm:"type:uuid"`
	Error           string     `gorm:"type:text"`
	CancelRequested bool       `gorm:"not null;default:false"`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time
}

func (ScheduleModel) TableName() string {
	return "schedules"
}

func (m *ScheduleModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
