// Package autoreply holds keyword rules that answer inbound messages and the
// pure matching logic that picks at most one of them.
package autoreply

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type MatchMode string

const (
	MatchExact    MatchMode = "exact"
	MatchContains MatchMode = "contains"
)

var ErrNotFound = errors.New("auto-reply rule not found")

// BusinessHours restricts a rule to a daily time window.
// Start and End are minutes since midnight; Start > End wraps past midnight.
// An empty Weekdays list allows every day.
type BusinessHours struct {
	Start    int
	End      int
	Weekdays []time.Weekday
	Location *time.Location
}

// ParseClock converts "HH:MM" into minutes since midnight.
func ParseClock(v string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", v, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock is the inverse of ParseClock.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Contains reports whether t falls inside the window.
func (b *BusinessHours) Contains(t time.Time) bool {
	if b.Location != nil {
		t = t.In(b.Location)
	}

	if len(b.Weekdays) > 0 {
		ok := false
		for _, d := range b.Weekdays {
			if d == t.Weekday() {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	m := t.Hour()*60 + t.Minute()
	if b.Start <= b.End {
		return m >= b.Start && m < b.End
	}
	return m >= b.Start || m < b.End
}

// Rule answers inbound messages on one device.
type Rule struct {
	ID            uuid.UUID
	DeviceID      uuid.UUID
	Keyword       string
	Mode          MatchMode
	CaseSensitive bool
	// Priority: lower fires first.
	Priority      int
	Active        bool
	BusinessHours *BusinessHours
	Response      string
	UsageCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MatchesText applies the keyword test.
func (r *Rule) MatchesText(text string) bool {
	keyword := strings.TrimSpace(r.Keyword)
	text = strings.TrimSpace(text)
	if keyword == "" {
		return false
	}
	if !r.CaseSensitive {
		keyword = strings.ToLower(keyword)
		text = strings.ToLower(text)
	}

	switch r.Mode {
	case MatchContains:
		return strings.Contains(text, keyword)
	default:
		return text == keyword
	}
}

// InHours reports whether the rule's window (if any) contains now.
func (r *Rule) InHours(now time.Time) bool {
	return r.BusinessHours == nil || r.BusinessHours.Contains(now)
}

// FindMatchingRule returns the active rule of deviceID with the lowest priority
// number whose window contains now and whose keyword matches text, or nil.
func FindMatchingRule(rules []*Rule, deviceID uuid.UUID, text string, now time.Time) *Rule {
	candidates := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		if r.DeviceID != deviceID || !r.Active {
			continue
		}
		if !r.InHours(now) {
			continue
		}
		if !r.MatchesText(text) {
			continue
		}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	return candidates[0]
}
