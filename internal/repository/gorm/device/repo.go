package devicegorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/db"
	"github.com/oggyb/wa-notifier/internal/domain/device"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is a GORM-backed device.Repository.
type Repository struct {
	db *gorm.DB
}

func NewRepository(d db.DB) *Repository {
	return &Repository{db: d.Conn().(*gorm.DB)}
}

// Upsert inserts a device or updates its configuration by name.
// Runtime counters (quota_used, consecutive_failures, last_seen_at) are kept.
func (r *Repository) Upsert(ctx context.Context, d *device.Device) error {
	model := fromDomain(d)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"token", "phone", "status", "quota_limit", "quota_period_seconds",
				"throttle_millis", "max_retries", "auto_reply_enabled",
				"expires_at", "disabled", "updated_at",
			}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}

	stored, err := r.getBy(ctx, "name = ?", d.Name)
	if err != nil {
		return err
	}
	*d = *stored
	return nil
}

func (r *Repository) getBy(ctx context.Context, query string, arg any) (*device.Device, error) {
	var model DeviceModel
	err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, device.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDomain(&model), nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*device.Device, error) {
	return r.getBy(ctx, "id = ?", id)
}

func (r *Repository) GetByToken(ctx context.Context, token string) (*device.Device, error) {
	return r.getBy(ctx, "token = ?", token)
}

func (r *Repository) List(ctx context.Context) ([]*device.Device, error) {
	var models []DeviceModel
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return toDomainMany(models), nil
}

// ReserveQuota atomically adds n to quota_used when it stays within quota_limit.
func (r *Repository) ReserveQuota(ctx context.Context, id uuid.UUID, n int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&DeviceModel{}).
		Where("id = ? AND quota_used + ? <= quota_limit", id, n).
		Update("quota_used", gorm.Expr("quota_used + ?", n))
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *Repository) ReleaseQuota(ctx context.Context, id uuid.UUID, n int) error {
	res := r.db.WithContext(ctx).
		Model(&DeviceModel{}).
		Where("id = ?", id).
		Update("quota_used", gorm.Expr("GREATEST(quota_used - ?, 0)", n))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return device.ErrNotFound
	}
	return nil
}

// nextResetExpr moves quota_reset_at past now in whole periods, like
// device.NextQuotaReset. Non-positive periods fall back to the default.
var nextResetExpr = func() string {
	period := fmt.Sprintf("(CASE WHEN quota_period_seconds > 0 THEN quota_period_seconds ELSE %d END)",
		int64(device.DefaultQuotaPeriod/time.Second))
	return fmt.Sprintf("quota_reset_at + CAST((FLOOR(EXTRACT(EPOCH FROM (CAST(? AS timestamptz) - quota_reset_at)) / %[1]s) + 1) * %[1]s AS double precision) * INTERVAL '1 second'",
		period)
}()

// ResetQuotas zeroes every counter whose window ended and rolls the window
// forward to the first boundary after now.
func (r *Repository) ResetQuotas(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&DeviceModel{}).
		Where("quota_reset_at <= ?", now).
		Updates(map[string]any{
			"quota_used":     0,
			"quota_reset_at": gorm.Expr(nextResetExpr, now),
			"updated_at":     now,
		})
	return res.RowsAffected, res.Error
}

func (r *Repository) RecordSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&DeviceModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_seen_at":         at,
			"consecutive_failures": 0,
		}).Error
}

// RecordFailure increments the failure streak and returns the new value.
func (r *Repository) RecordFailure(ctx context.Context, id uuid.UUID) (int, error) {
	var model DeviceModel
	res := r.db.WithContext(ctx).
		Model(&model).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "consecutive_failures"}}}).
		Where("id = ?", id).
		Update("consecutive_failures", gorm.Expr("consecutive_failures + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, device.ErrNotFound
	}
	return model.ConsecutiveFailures, nil
}

func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status device.Status, phone string) error {
	cols := map[string]any{"status": string(status)}
	if phone != "" {
		cols["phone"] = phone
	}
	if status == device.StatusConnected {
		cols["consecutive_failures"] = 0
	}

	res := r.db.WithContext(ctx).Model(&DeviceModel{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return device.ErrNotFound
	}
	return nil
}

var _ device.Repository = (*Repository)(nil)
