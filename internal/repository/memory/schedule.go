package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/domain/schedule"
)

// ScheduleRepository is an in-memory schedule.Repository.
type ScheduleRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*schedule.Schedule
}

func NewScheduleRepository() *ScheduleRepository {
	return &ScheduleRepository{byID: make(map[uuid.UUID]*schedule.Schedule)}
}

func copySchedule(s *schedule.Schedule) *schedule.Schedule {
	c := *s
	return &c
}

func (r *ScheduleRepository) Create(_ context.Context, s *schedule.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	s.UpdatedAt = s.CreatedAt
	r.byID[s.ID] = copySchedule(s)
	return nil
}

func (r *ScheduleRepository) Get(_ context.Context, id uuid.UUID) (*schedule.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, schedule.ErrNotFound
	}
	return copySchedule(s), nil
}

func (r *ScheduleRepository) Due(_ context.Context, now time.Time, limit int) ([]*schedule.Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*schedule.Schedule
	for _, s := range r.byID {
		if s.Status == schedule.StatusPending && !s.ScheduledAt.After(now) {
			out = append(out, copySchedule(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ScheduleRepository) Transition(_ context.Context, id uuid.UUID, from, to schedule.Status, u schedule.Update) error {
	if !schedule.CanTransition(from, to) {
		return schedule.ErrInvalidTransition
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return schedule.ErrNotFound
	}
	if s.Status != from {
		return schedule.ErrInvalidTransition
	}
	s.Status = to
	u.Apply(s)
	s.UpdatedAt = time.Now()
	return nil
}

func (r *ScheduleRepository) RequestCancel(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return schedule.ErrNotFound
	}
	s.CancelRequested = true
	s.UpdatedAt = time.Now()
	return nil
}

var _ schedule.Repository = (*ScheduleRepository)(nil)
