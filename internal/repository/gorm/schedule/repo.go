package schedulegorm

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/db"
	"github.com/oggyb/wa-notifier/internal/domain/schedule"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is a GORM-backed schedule.Repository.
type Repository struct {
	db *gorm.DB
}

func NewRepository(d db.DB) *Repository {
	return &Repository{db: d.Conn().(*gorm.DB)}
}

func (r *Repository) Create(ctx context.Context, s *schedule.Schedule) error {
	model := fromDomain(s)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	s.ID = model.ID
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error) {
	var model ScheduleModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, schedule.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDomain(&model), nil
}

// Due returns pending schedules whose time has come, oldest first.
func (r *Repository) Due(ctx context.Context, now time.Time, limit int) ([]*schedule.Schedule, error) {
	var models []ScheduleModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", schedule.StatusPending, now).
		Order("scheduled_at ASC").
		Limit(limit).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	out := make([]*schedule.Schedule, len(models))
	for i := range models {
		out[i] = toDomain(&models[i])
	}
	return out, nil
}

func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from, to schedule.Status, u schedule.Update) error {
	if !schedule.CanTransition(from, to) {
		return schedule.ErrInvalidTransition
	}

	res := r.db.WithContext(ctx).
		Model(&ScheduleModel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updateColumns(to, u))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return schedule.ErrInvalidTransition
}

func (r *Repository) RequestCancel(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&ScheduleModel{}).
		Where("id = ?", id).
		Update("cancel_requested", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return schedule.ErrNotFound
	}
	return nil
}

var _ schedule.Repository = (*Repository)(nil)
