package messagegorm

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageModel is the GORM persistence model for messages.
// It maps directly to the "messages" table in Postgres.
type MessageModel struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ProviderMessageID string     `gorm:"size:128;uniqueIndex:idx_messages_provider,where:provider_message_id <> ''"`
	DeviceID          uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_messages_provider;index:idx_messages_dispatch,priority:1"`
	Direction         string     `gorm:"size:10;not null;uniqueIndex:idx_messages_provider"`
	ScheduleID        *uuid.UUID `gorm:"type:uuid;index"`
	Recipient         string     `gorm:"size:32;not null;index"`
	Content           string     `gorm:"type:text;not null"`
	MediaURL          string     `gorm:"size:512"`
	Status            string     `gorm:"size:20;not null;index:idx_messages_dispatch,priority:2"`
	RetryCount        int        `gorm:"not null;default:0"`
	MaxRetries        int        `gorm:"not null;default:3"`
	Priority          int        `gorm:"not null;default:0"`
	ScheduledAt       *time.Time `gorm:"index"`
	SentAt            *time.Time
	DeliveredAt       *time.Time
	ReadAt            *time.Time
	Error             string    `gorm:"type:text"`
	CancelRequested   bool      `gorm:"not null;default:false"`
	CreatedAt         time.Time `gorm:"not null;index"`
	UpdatedAt         time.Time
	DeletedAt         gorm.DeletedAt `gorm:"index"`
}

// TableName overrides the default table name used by GORM.
func (MessageModel) TableName() string {
	return "messages"
}

// BeforeCreate ensures a UUID is set before inserting a new record.
func (m *MessageModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
