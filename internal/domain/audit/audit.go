// Package audit records state transitions and webhook deliveries for replay and debugging.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindTransition Kind = "transition"
	KindWebhook    Kind = "webhook"
)

// Entry is one audit record. Payload holds the raw JSON of the event, if any.
type Entry struct {
	ID        uuid.UUID
	Kind      Kind
	Entity    string
	EntityID  string
	From      string
	To        string
	Note      string
	Payload   []byte
	CreatedAt time.Time
}

// Repository stores audit entries. Writes are best effort for callers.
type Repository interface {
	Record(ctx context.Context, e *Entry) error
	ListByEntity(ctx context.Context, entity, entityID string) ([]*Entry, error)
}
