package messagegorm

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/db"
	"github.com/oggyb/wa-notifier/internal/domain/message"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is a GORM-backed implementation of the message.Repository interface.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a message repository using the given DB adapter.
func NewRepository(d db.DB) *Repository {
	return &Repository{
		db: d.Conn().(*gorm.DB),
	}
}

// gormExprKeepProviderID writes the provider id only when none is stored yet.
func gormExprKeepProviderID(id string) clause.Expr {
	return gorm.Expr("COALESCE(NULLIF(provider_message_id, ''), ?)", id)
}

// Enqueue inserts a new message record into the database.
func (r *Repository) Enqueue(ctx context.Context, msg *message.Message) error {
	model := fromDomain(msg)
	err := r.db.WithContext(ctx).Create(model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return message.ErrDuplicate
	}
	if err != nil {
		return err
	}
	msg.ID = model.ID
	msg.CreatedAt = model.CreatedAt
	msg.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*message.Message, error) {
	var model MessageModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, message.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDomain(&model), nil
}

// NextPending returns up to limit due pending messages of one device, highest
// priority first, using SELECT ... FOR UPDATE SKIP LOCKED so concurrent
// dispatchers see disjoint rows. The status CAS in Transition is what claims a row.
func (r *Repository) NextPending(ctx context.Context, deviceID uuid.UUID, now time.Time, limit int) ([]*message.Message, error) {
	var models []MessageModel

	err := r.db.WithContext(ctx).
		Where("device_id = ? AND direction = ? AND status = ?", deviceID, message.DirectionOutgoing, message.StatusPending).
		Where("scheduled_at IS NULL OR scheduled_at <= ?", now).
		Order("priority DESC").
		Order("created_at ASC").
		Limit(limit).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Find(&models).Error

	if err != nil {
		return nil, err
	}

	return toDomainMany(models), nil
}

// Transition performs UPDATE ... WHERE id = ? AND status = from.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from, to message.Status, u message.Update) error {
	if !message.CanTransition(from, to) {
		return message.ErrInvalidTransition
	}

	res := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updateColumns(to, u))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&MessageModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return message.ErrNotFound
	}
	return message.ErrInvalidTransition
}

func (r *Repository) FindByProviderID(ctx context.Context, dir message.Direction, providerID string) (*message.Message, error) {
	if providerID == "" {
		return nil, message.ErrNotFound
	}

	var model MessageModel
	err := r.db.WithContext(ctx).
		Where("direction = ? AND provider_message_id = ?", dir, providerID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, message.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDomain(&model), nil
}

func (r *Repository) RequestCancel(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&MessageModel{}).
		Where("id = ?", id).
		Update("cancel_requested", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return message.ErrNotFound
	}
	return nil
}

// List returns a paginated list of messages in a status (any when empty) and the total count.
func (r *Repository) List(ctx context.Context, status message.Status, page, limit int) ([]*message.Message, int64, error) {
	var models []MessageModel
	var total int64

	query := r.db.WithContext(ctx).Model(&MessageModel{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&models).Error

	if err != nil {
		return nil, 0, err
	}

	return toDomainMany(models), total, nil
}

// compile-time interface check
var _ message.Repository = (*Repository)(nil)
