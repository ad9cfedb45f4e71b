package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/domain/message"
)

// MessageRepository is an in-memory message.Repository.
type MessageRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*message.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{byID: make(map[uuid.UUID]*message.Message)}
}

func copyMessage(m *message.Message) *message.Message {
	c := *m
	return &c
}

func (r *MessageRepository) Enqueue(_ context.Context, m *message.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.ProviderMessageID != "" {
		for _, existing := range r.byID {
			if existing.DeviceID == m.DeviceID &&
				existing.Direction == m.Direction &&
				existing.ProviderMessageID == m.ProviderMessageID {
				return message.ErrDuplicate
			}
		}
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.UpdatedAt = m.CreatedAt

	r.byID[m.ID] = copyMessage(m)
	return nil
}

func (r *MessageRepository) Get(_ context.Context, id uuid.UUID) (*message.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, message.ErrNotFound
	}
	return copyMessage(m), nil
}

func (r *MessageRepository) NextPending(_ context.Context, deviceID uuid.UUID, now time.Time, limit int) ([]*message.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*message.Message
	for _, m := range r.byID {
		if m.DeviceID != deviceID ||
			m.Direction != message.DirectionOutgoing ||
			m.Status != message.StatusPending ||
			!m.Due(now) {
			continue
		}
		out = append(out, copyMessage(m))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MessageRepository) Transition(_ context.Context, id uuid.UUID, from, to message.Status, u message.Update) error {
	if !message.CanTransition(from, to) {
		return message.ErrInvalidTransition
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return message.ErrNotFound
	}
	if m.Status != from {
		return message.ErrInvalidTransition
	}

	m.Status = to
	u.Apply(m)
	m.UpdatedAt = time.Now()
	return nil
}

func (r *MessageRepository) FindByProviderID(_ context.Context, dir message.Direction, providerID string) (*message.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if providerID == "" {
		return nil, message.ErrNotFound
	}
	for _, m := range r.byID {
		if m.Direction == dir && m.ProviderMessageID == providerID {
			return copyMessage(m), nil
		}
	}
	return nil, message.ErrNotFound
}

func (r *MessageRepository) RequestCancel(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return message.ErrNotFound
	}
	m.CancelRequested = true
	m.UpdatedAt = time.Now()
	return nil
}

func (r *MessageRepository) List(_ context.Context, status message.Status, page, limit int) ([]*message.Message, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*message.Message
	for _, m := range r.byID {
		if status != "" && m.Status != status {
			continue
		}
		all = append(all, copyMessage(m))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	return paginate(all, page, limit), total, nil
}

func paginate[T any](items []T, page, limit int) []T {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		return items
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return nil
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

var _ message.Repository = (*MessageRepository)(nil)
