package templategorm

import (
	"context"
	"errors"

	"github.com/oggyb/wa-notifier/internal/db"
	"github.com/oggyb/wa-notifier/internal/domain/template"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is a GORM-backed template.Repository.
type Repository struct {
	db *gorm.DB
}

func NewRepository(d db.DB) *Repository {
	return &Repository{db: d.Conn().(*gorm.DB)}
}

func (r *Repository) Find(ctx context.Context, event template.EventType, language string) (*template.Template, error) {
	var m TemplateModel
	err := r.db.WithContext(ctx).
		Where("event = ? AND language = ? AND active = ?", event, language, true).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, template.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &template.Template{
		ID:        m.ID,
		Event:     template.EventType(m.Event),
		Language:  m.Language,
		Name:      m.Name,
		Body:      m.Body,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func (r *Repository) Upsert(ctx context.Context, t *template.Template) error {
	m := &TemplateModel{
		ID:       t.ID,
		Event:    string(t.Event),
		Language: t.Language,
		Name:     t.Name,
		Body:     t.Body,
		Active:   t.Active,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event"}, {Name: "language"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "body", "active", "updated_at"}),
		}).
		Create(m).Error
	if err != nil {
		return err
	}
	t.ID = m.ID
	return nil
}

var _ template.Repository = (*Repository)(nil)
