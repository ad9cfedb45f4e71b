package autoreply

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence port for auto-reply rules.
type Repository interface {
	// Upsert creates or replaces a rule by (device, keyword).
	Upsert(ctx context.Context, r *Rule) error

	// ListActive returns the active rules of a device.
	ListActive(ctx context.Context, deviceID uuid.UUID) ([]*Rule, error)

	// IncrementUsage adds one to usage_count.
	IncrementUsage(ctx context.Context, id uuid.UUID) error
}
