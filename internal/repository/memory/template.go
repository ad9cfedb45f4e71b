package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/domain/template"
)

type templateKey struct {
	event    template.EventType
	language string
}

// TemplateRepository is an in-memory template.Repository.
type TemplateRepository struct {
	mu    sync.RWMutex
	items map[templateKey]*template.Template
}

func NewTemplateRepository() *TemplateRepository {
	return &TemplateRepository{items: make(map[templateKey]*template.Template)}
}

func (r *TemplateRepository) Find(_ context.Context, event template.EventType, language string) (*template.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.items[templateKey{event, language}]
	if !ok || !t.Active {
		return nil, template.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (r *TemplateRepository) Upsert(_ context.Context, t *template.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := templateKey{t.Event, t.Language}
	now := time.Now()
	if existing, ok := r.items[key]; ok {
		t.ID = existing.ID
		t.CreatedAt = existing.CreatedAt
	} else {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	c := *t
	r.items[key] = &c
	return nil
}

var _ template.Repository = (*TemplateRepository)(nil)
