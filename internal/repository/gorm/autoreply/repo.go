package autoreplygorm

import (
	"context"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/db"
	"github.com/oggyb/wa-notifier/internal/domain/autoreply"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is a GORM-backed autoreply.Repository.
type Repository struct {
	db *gorm.DB
}

func NewRepository(d db.DB) *Repository {
	return &Repository{db: d.Conn().(*gorm.DB)}
}

func (r *Repository) Upsert(ctx context.Context, rule *autoreply.Rule) error {
	model := fromDomain(rule)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "device_id"}, {Name: "keyword"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"match_mode", "case_sensitive", "priority", "active",
				"hours_start", "hours_end", "weekdays", "timezone",
				"response", "updated_at",
			}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}
	rule.ID = model.ID
	return nil
}

func (r *Repository) ListActive(ctx context.Context, deviceID uuid.UUID) ([]*autoreply.Rule, error) {
	var models []RuleModel
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND active = ?", deviceID, true).
		Order("priority ASC").
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	out := make([]*autoreply.Rule, len(models))
	for i := range models {
		out[i] = toDomain(&models[i])
	}
	return out, nil
}

func (r *Repository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&RuleModel{}).
		Where("id = ?", id).
		Update("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return autoreply.ErrNotFound
	}
	return nil
}

var _ autoreply.Repository = (*Repository)(nil)
