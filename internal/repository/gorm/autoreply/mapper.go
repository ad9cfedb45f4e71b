package autoreplygorm

import (
	"strconv"
	"strings"
	"time"

	"github.com/oggyb/wa-notifier/internal/domain/autoreply"
	"github.com/oggyb/wa-notifier/internal/logging"
)

func toDomain(m *RuleModel) *autoreply.Rule {
	r := &autoreply.Rule{
		ID:            m.ID,
		DeviceID:      m.DeviceID,
		Keyword:       m.Keyword,
		Mode:          autoreply.MatchMode(m.MatchMode),
		CaseSensitive: m.CaseSensitive,
		Priority:      m.Priority,
		Active:        m.Active,
		Response:      m.Response,
		UsageCount:    m.UsageCount,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}

	if m.HoursStart == "" || m.HoursEnd == "" {
		return r
	}

	start, err1 := autoreply.ParseClock(m.HoursStart)
	end, err2 := autoreply.ParseClock(m.HoursEnd)
	if err1 != nil || err2 != nil {
		// A broken window must not turn the rule into an always-on reply.
		logging.Warn().Str("rule_id", m.ID.String()).Msg("[AutoReply] Invalid business hours, rule disabled")
		r.Active = false
		return r
	}

	bh := &autoreply.BusinessHours{Start: start, End: end}
	for _, part := range strings.Split(m.Weekdays, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && n >= 0 && n <= 6 {
			bh.Weekdays = append(bh.Weekdays, time.Weekday(n))
		}
	}
	if m.Timezone != "" {
		if loc, err := time.LoadLocation(m.Timezone); err == nil {
			bh.Location = loc
		}
	}
	r.BusinessHours = bh
	return r
}

func fromDomain(r *autoreply.Rule) *RuleModel {
	m := &RuleModel{
		ID:            r.ID,
		DeviceID:      r.DeviceID,
		Keyword:       r.Keyword,
		MatchMode:     string(r.Mode),
		CaseSensitive: r.CaseSensitive,
		Priority:      r.Priority,
		Active:        r.Active,
		Response:      r.Response,
		UsageCount:    r.UsageCount,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if bh := r.BusinessHours; bh != nil {
		m.HoursStart = autoreply.FormatClock(bh.Start)
		m.HoursEnd = autoreply.FormatClock(bh.End)
		days := make([]string, len(bh.Weekdays))
		for i, d := range bh.Weekdays {
			days[i] = strconv.Itoa(int(d))
		}
		m.Weekdays = strings.Join(days, ",")
		if bh.Location != nil {
			m.Timezone = bh.Location.String()
		}
	}
	return m
}
