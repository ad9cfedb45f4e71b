package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/domain/contact"
)

// ContactRepository is an in-memory contact.Repository keyed by phone.
type ContactRepository struct {
	mu      sync.RWMutex
	byPhone map[string]*contact.Contact
}

func NewContactRepository() *ContactRepository {
	return &ContactRepository{byPhone: make(map[string]*contact.Contact)}
}

func copyContact(c *contact.Contact) *contact.Contact {
	out := *c
	out.Tags = append([]string(nil), c.Tags...)
	return &out
}

func (r *ContactRepository) Touch(_ context.Context, phone, name string, seenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byPhone[phone]
	if !ok {
		c = &contact.Contact{ID: uuid.New(), Phone: phone, CreatedAt: seenAt}
		r.byPhone[phone] = c
	}
	if name != "" {
		c.Name = name
	}
	c.LastSeenAt = &seenAt
	c.MessageCount++
	c.UpdatedAt = seenAt
	return nil
}

func (r *ContactRepository) GetByPhone(_ context.Context, phone string) (*contact.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byPhone[phone]
	if !ok {
		return nil, contact.ErrNotFound
	}
	return copyContact(c), nil
}

func (r *ContactRepository) Upsert(_ context.Context, c *contact.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if existing, ok := r.byPhone[c.Phone]; ok {
		existing.Name = c.Name
		existing.Tags = append([]string(nil), c.Tags...)
		existing.UpdatedAt = now
		c.ID = existing.ID
		return nil
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt, c.UpdatedAt = now, now
	r.byPhone[c.Phone] = copyContact(c)
	return nil
}

var _ contact.Repository = (*ContactRepository)(nil)
