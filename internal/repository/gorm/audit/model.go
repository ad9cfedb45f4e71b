package auditgorm

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EntryModel maps to the "audit_log" table.
type EntryModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind      string    `gorm:"size:20;not null"`
	Entity    string    `gorm:"size:20;not null;index:idx_audit_entity,priority:1"`
	EntityID  string    `gorm:"size:128;not null;index:idx_audit_entity,priority:2"`
	FromState string    `gorm:"size:20"`
	ToState   string    `gorm:"size:20"`
	Note      string    `gorm:"type:text"`
	Payload   []byte    `gorm:"type:jsonb"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (EntryModel) TableName() string {
	return "audit_log"
}

func (m *EntryModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
