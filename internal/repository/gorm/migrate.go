// Package gormrepo groups the GORM adapters and owns the schema migration.
package gormrepo

import (
	"fmt"

	"github.com/oggyb/wa-notifier/internal/db"
	auditgorm "github.com/oggyb/wa-notifier/internal/repository/gorm/audit"
	autoreplygorm "github.com/oggyb/wa-notifier/internal/repository/gorm/autoreply"
	contactgorm "github.com/oggyb/wa-notifier/internal/repository/gorm/contact"
	devicegorm "github.com/oggyb/wa-notifier/internal/repository/gorm/device"
	messagegorm "github.com/oggyb/wa-notifier/internal/repository/gorm/message"
	schedulegorm "github.com/oggyb/wa-notifier/internal/repository/gorm/schedule"
	templategorm "github.com/oggyb/wa-notifier/internal/repository/gorm/template"
	"gorm.io/gorm"
)

// Models lists every persisted table in dependency order.
func Models() []any {
	return []any{
		&devicegorm.DeviceModel{},
		&messagegorm.MessageModel{},
		&schedulegorm.ScheduleModel{},
		&autoreplygorm.RuleModel{},
		&contactgorm.ContactModel{},
		&templategorm.TemplateModel{},
		&auditgorm.EntryModel{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(d db.DB) error {
	conn := d.Conn().(*gorm.DB)
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
