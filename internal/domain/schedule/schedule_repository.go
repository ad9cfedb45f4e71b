package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence port for schedules.
type Repository interface {
	Create(ctx context.Context, s *Schedule) error
	Get(ctx context.Context, id uuid.UUID) (*Schedule, error)

	// Due returns pending schedules with scheduled_at <= now, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]*Schedule, error)

	// Transition is a guarded compare-and-set on status.
	Transition(ctx context.Context, id uuid.UUID, from, to Status, u Update) error

	// RequestCancel flags a processing schedule for cancellation after its send.
	RequestCancel(ctx context.Context, id uuid.UUID) error
}
