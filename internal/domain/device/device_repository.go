package device

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence port behind the device registry.
type Repository interface {
	// Upsert creates or updates a device by name, keeping its runtime counters.
	Upsert(ctx context.Context, d *Device) error

	Get(ctx context.Context, id uuid.UUID) (*Device, error)
	GetByToken(ctx context.Context, token string) (*Device, error)
	List(ctx context.Context) ([]*Device, error)

	// ReserveQuota atomically adds n to quota_used unless that would pass
	// quota_limit, in which case it returns false.
	ReserveQuota(ctx context.Context, id uuid.UUID, n int) (bool, error)

	// ReleaseQuota subtracts n from quota_used, never going below zero.
	ReleaseQuota(ctx context.Context, id uuid.UUID, n int) error

	// ResetQuotas zeroes quota_used for every device whose reset time has
	// passed and moves quota_reset_at to the first period boundary after now.
	ResetQuotas(ctx context.Context, now time.Time) (int64, error)

	// RecordSuccess stamps last_seen and clears the failure counter.
	RecordSuccess(ctx context.Context, id uuid.UUID, at time.Time) error

	// RecordFailure bumps the failure counter and returns its new value.
	RecordFailure(ctx context.Context, id uuid.UUID) (int, error)

	// SetStatus updates connection status and, when phone is non-empty, the bound phone.
	SetStatus(ctx context.Context, id uuid.UUID, status Status, phone string) error
}
