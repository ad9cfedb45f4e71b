package contact

import (
	"context"
	"time"
)

// Repository is the persistence port for contacts.
type Repository interface {
	// Touch upserts a contact on inbound traffic: sets last_seen, bumps
	// message_count and fills the name when one is given.
	Touch(ctx context.Context, phone, name string, seenAt time.Time) error

	GetByPhone(ctx context.Context, phone string) (*Contact, error)

	// Upsert creates or updates name and tags by phone.
	Upsert(ctx context.Context, c *Contact) error
}
