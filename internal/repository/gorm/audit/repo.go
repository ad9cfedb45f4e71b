package auditgorm

import (
	"context"

	"github.com/oggyb/wa-notifier/internal/db"
	"github.com/oggyb/wa-notifier/internal/domain/audit"
	"gorm.io/gorm"
)

// Repository is a GORM-backed audit.Repository.
type Repository struct {
	db *gorm.DB
}

func NewRepository(d db.DB) *Repository {
	return &Repository{db: d.Conn().(*gorm.DB)}
}

func (r *Repository) Record(ctx context.Context, e *audit.Entry) error {
	m := &EntryModel{
		ID:        e.ID,
		Kind:      string(e.Kind),
		Entity:    e.Entity,
		EntityID:  e.EntityID,
		FromState: e.From,
		ToState:   e.To,
		Note:      e.Note,
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt,
	}
	if len(m.Payload) == 0 {
		m.Payload = nil
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	e.ID = m.ID
	return nil
}

func (r *Repository) ListByEntity(ctx context.Context, entity, entityID string) ([]*audit.Entry, error) {
	var models []EntryModel
	err := r.db.WithContext(ctx).
		Where("entity = ? AND entity_id = ?", entity, entityID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	out := make([]*audit.Entry, len(models))
	for i, m := range models {
		out[i] = &audit.Entry{
			ID:        m.ID,
			Kind:      audit.Kind(m.Kind),
			Entity:    m.Entity,
			EntityID:  m.EntityID,
			From:      m.FromState,
			To:        m.ToState,
			Note:      m.Note,
			Payload:   m.Payload,
			CreatedAt: m.CreatedAt,
		}
	}
	return out, nil
}

var _ audit.Repository = (*Repository)(nil)
