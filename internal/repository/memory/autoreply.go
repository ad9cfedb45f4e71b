package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/domain/autoreply"
)

// RuleRepository is an in-memory autoreply.Repository.
type RuleRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*autoreply.Rule
}

func NewRuleRepository() *RuleRepository {
	return &RuleRepository{byID: make(map[uuid.UUID]*autoreply.Rule)}
}

func copyRule(r *autoreply.Rule) *autoreply.Rule {
	c := *r
	if r.BusinessHours != nil {
		bh := *r.BusinessHours
		bh.Weekdays = append([]time.Weekday(nil), r.BusinessHours.Weekdays...)
		c.BusinessHours = &bh
	}
	return &c
}

func (r *RuleRepository) Upsert(_ context.Context, rule *autoreply.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, existing := range r.byID {
		if existing.DeviceID == rule.DeviceID && existing.Keyword == rule.Keyword {
			rule.ID = existing.ID
			rule.UsageCount = existing.UsageCount
			rule.CreatedAt = existing.CreatedAt
			rule.UpdatedAt = now
			r.byID[rule.ID] = copyRule(rule)
			return nil
		}
	}

	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	r.byID[rule.ID] = copyRule(rule)
	return nil
}

func (r *RuleRepository) ListActive(_ context.Context, deviceID uuid.UUID) ([]*autoreply.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*autoreply.Rule
	for _, rule := range r.byID {
		if rule.DeviceID == deviceID && rule.Active {
			out = append(out, copyRule(rule))
		}
	}
	return out, nil
}

func (r *RuleRepository) IncrementUsage(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.byID[id]
	if !ok {
		return autoreply.ErrNotFound
	}
	rule.UsageCount++
	return nil
}

var _ autoreply.Repository = (*RuleRepository)(nil)
