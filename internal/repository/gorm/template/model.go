package templategorm

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TemplateModel maps to the "templates" table; one row per (event, language).
type TemplateModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Event     string    `gorm:"size:20;not null;uniqueIndex:idx_templates_event_lang"`
	Language  string    `gorm:"size:10;not null;uniqueIndex:idx_templates_event_lang"`
	Name      string    `gorm:"size:100"`
	Body      string    `gorm:"type:text;not null"`
	Active    bool      `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TemplateModel) TableName() string {
	return "templates"
}

func (m *TemplateModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
