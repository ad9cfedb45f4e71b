package devicegorm

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeviceModel maps to the "devices" table. Durations are stored as integers
// so the quota sweep can do its interval arithmetic in SQL.
type DeviceModel struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name                string    `gorm:"size:100;not null;uniqueIndex"`
	Token               string    `gorm:"size:128;not null;index"`
	Phone               string    `gorm:"size:32"`
	Status              string    `gorm:"size:20;not null;index"`
	QuotaLimit          int       `gorm:"not null;default:0"`
	QuotaUsed           int       `gorm:"not null;default:0"`
	QuotaPeriodSeconds  int64     `gorm:"not null;default:86400"`
	QuotaResetAt        time.Time `gorm:"not null;index"`
	ThrottleMillis      int64     `gorm:"not null;default:0"`
	MaxRetries          int       `gorm:"not null;default:3"`
	AutoReplyEnabled    bool      `gorm:"not null;default:false"`
	ExpiresAt           *time.Time
	Disabled            bool `gorm:"not null;default:false"`
	ConsecutiveFailures int  `gorm:"not null;default:0"`
	LastSeenAt          *time.Time
	CreatedAt           time.Time `gorm:"not null"`
	UpdatedAt           time.Time
}

func (DeviceModel) TableName() string {
	return "devices"
}

func (m *DeviceModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
