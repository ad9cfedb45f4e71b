package message

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence operations for Message aggregates.
//
// It is implemented by infrastructure layers (GORM, in-memory) while the
// service layer depends only on this interface.
type Repository interface {
	// Enqueue persists a new message. Inbound messages that collide on
	// (device, direction, provider id) return ErrDuplicate.
	Enqueue(ctx context.Context, m *Message) error

	// Get returns a message by id or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Message, error)

	// NextPending returns up to limit pending outbound messages of a device that
	// are due at now, ordered by priority desc then created_at asc.
	NextPending(ctx context.Context, deviceID uuid.UUID, now time.Time, limit int) ([]*Message, error)

	// Transition moves a message from -> to only if its stored status is still
	// from. It returns ErrInvalidTransition when the guard fails and ErrNotFound
	// when the id is unknown.
	Transition(ctx context.Context, id uuid.UUID, from, to Status, u Update) error

	// FindByProviderID looks a message up by the gateway's id.
	FindByProviderID(ctx context.Context, dir Direction, providerID string) (*Message, error)

	// RequestCancel flags a message whose cancellation must wait for an in-flight send.
	RequestCancel(ctx context.Context, id uuid.UUID) error

	// List returns a page of messages in the given status (all when empty), newest
	// first, along with the total count.
	List(ctx context.Context, status Status, page, limit int) ([]*Message, int64, error)
}
