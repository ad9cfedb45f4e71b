package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/domain/audit"
)

// AuditRepository keeps audit entries in insertion order.
type AuditRepository struct {
	mu      sync.RWMutex
	entries []*audit.Entry
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Record(_ context.Context, e *audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	c := *e
	c.Payload = append([]byte(nil), e.Payload...)
	r.entries = append(r.entries, &c)
	return nil
}

func (r *AuditRepository) ListByEntity(_ context.Context, entity, entityID string) ([]*audit.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*audit.Entry
	for _, e := range r.entries {
		if e.Entity == entity && e.EntityID == entityID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

var _ audit.Repository = (*AuditRepository)(nil)
