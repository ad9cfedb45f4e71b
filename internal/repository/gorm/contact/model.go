package contactgorm

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContactModel maps to the "contacts" table. Tags are comma separated.
type ContactModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Phone        string    `gorm:"size:32;not null;uniqueIndex"`
	Name         string    `gorm:"size:255"`
	Tags         string    `gorm:"size:512"`
	LastSeenAt   *time.Time
	MessageCount int `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ContactModel) TableName() string {
	return "contacts"
}

func (m *ContactModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
