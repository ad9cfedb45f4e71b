package autoreplygorm

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RuleModel maps to the "auto_reply_rules" table. Business hours are optional;
// an empty HoursStart disables the window.
type RuleModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	DeviceID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_rules_device_keyword"`
	Keyword       string    `gorm:"size:255;not null;uniqueIndex:idx_rules_device_keyword"`
	MatchMode     string    `gorm:"size:10;not null;default:exact"`
	CaseSensitive bool      `gorm:"not null;default:false"`
	Priority      int       `gorm:"not null;default:100"`
	Active        bool      `gorm:"not null;default:true"`
	HoursStart    string    `gorm:"size:5"`
	HoursEnd      string    `gorm:"size:5"`
	// Weekdays is a comma separated list of 0 (Sunday) to 6.
	Weekdays   string `gorm:"size:20"`
	Timezone   string `gorm:"size:64"`
	Response   string `gorm:"type:text;not null"`
	UsageCount int    `gorm:"not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (RuleModel) TableName() string {
	return "auto_reply_rules"
}

func (m *RuleModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
