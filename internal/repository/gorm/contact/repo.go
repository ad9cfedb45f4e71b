package contactgorm

import (
	"context"
	"errors"
	"time"

	"github.com/oggyb/wa-notifier/internal/db"
	"github.com/oggyb/wa-notifier/internal/domain/contact"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is a GORM-backed contact.Repository.
type Repository struct {
	db *gorm.DB
}

func NewRepository(d db.DB) *Repository {
	return &Repository{db: d.Conn().(*gorm.DB)}
}

// Touch inserts the contact on first sight and bumps its counters afterwards.
func (r *Repository) Touch(ctx context.Context, phone, name string, seenAt time.Time) error {
	model := &ContactModel{Phone: phone, Name: name, LastSeenAt: &seenAt, MessageCount: 1}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "phone"}},
			DoUpdates: clause.Assignments(map[string]any{
				"last_seen_at":  seenAt,
				"message_count": gorm.Expr("contacts.message_count + 1"),
				"name":          gorm.Expr("COALESCE(NULLIF(EXCLUDED.name, ''), contacts.name)"),
				"updated_at":    seenAt,
			}),
		}).
		Create(model).Error
}

func (r *Repository) GetByPhone(ctx context.Context, phone string) (*contact.Contact, error) {
	var model ContactModel
	err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, contact.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDomain(&model), nil
}

func (r *Repository) Upsert(ctx context.Context, c *contact.Contact) error {
	model := fromDomain(c)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "phone"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "tags", "updated_at"}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}
	c.ID = model.ID
	return nil
}

var _ contact.Repository = (*Repository)(nil)
