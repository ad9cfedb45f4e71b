package autoreply

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	// 2026-03-02 is a Monday.
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func TestParseClock(t *testing.T) {
	m, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, m)
	assert.Equal(t, "09:30", FormatClock(m))

	_, err = ParseClock("9h")
	assert.Error(t, err)
}

func TestBusinessHours_Contains(t *testing.T) {
	office := &BusinessHours{Start: 9 * 60, End: 17 * 60}
	assert.True(t, office.Contains(at(9, 0)))
	assert.True(t, office.Contains(at(16, 59)))
	assert.False(t, office.Contains(at(17, 0)))
	assert.False(t, office.Contains(at(20, 0)))

	night := &BusinessHours{Start: 22 * 60, End: 6 * 60}
	assert.True(t, night.Contains(at(23, 0)))
	assert.True(t, night.Contains(at(5, 0)))
	assert.False(t, night.Contains(at(12, 0)))

	weekdays := &BusinessHours{Start: 0, End: 24 * 60, Weekdays: []time.Weekday{time.Saturday}}
	assert.False(t, weekdays.Contains(at(10, 0)))
}

func TestBusinessHours_UsesLocation(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	bh := &BusinessHours{Start: 9 * 60, End: 17 * 60, Location: jakarta}

	// 03:00 UTC is 10:00 in Jakarta.
	assert.True(t, bh.Contains(at(3, 0)))
	// 12:00 UTC is 19:00 in Jakarta.
	assert.False(t, bh.Contains(at(12, 0)))
}

func TestRule_MatchesText(t *testing.T) {
	exact := &Rule{Keyword: "Info", Mode: MatchExact}
	assert.True(t, exact.MatchesText("  info "))
	assert.False(t, exact.MatchesText("info please"))

	sensitive := &Rule{Keyword: "Info", Mode: MatchExact, CaseSensitive: true}
	assert.False(t, sensitive.MatchesText("info"))
	assert.True(t, sensitive.MatchesText("Info"))

	contains := &Rule{Keyword: "jadwal", Mode: MatchContains}
	assert.True(t, contains.MatchesText("Minta JADWAL ujian"))
	assert.False(t, contains.MatchesText("halo"))
}

func TestFindMatchingRule_LowestPriorityWins(t *testing.T) {
	dev := uuid.New()
	p1 := &Rule{ID: uuid.New(), DeviceID: dev, Keyword: "info", Mode: MatchContains, Priority: 1, Active: true, Response: "one"}
	p2 := &Rule{ID: uuid.New(), DeviceID: dev, Keyword: "info", Mode: MatchContains, Priority: 2, Active: true, Response: "two"}

	got := FindMatchingRule([]*Rule{p2, p1}, dev, "info sekolah", at(10, 0))
	require.NotNil(t, got)
	assert.Equal(t, "one", got.Response)
}

func TestFindMatchingRule_Filters(t *testing.T) {
	dev := uuid.New()
	other := uuid.New()

	inactive := &Rule{DeviceID: dev, Keyword: "info", Mode: MatchExact, Priority: 0, Active: false}
	otherDevice := &Rule{DeviceID: other, Keyword: "info", Mode: MatchExact, Priority: 0, Active: true}
	closed := &Rule{
		DeviceID: dev, Keyword: "info", Mode: MatchExact, Priority: 0, Active: true,
		BusinessHours: &BusinessHours{Start: 9 * 60, End: 17 * 60},
	}

	rules := []*Rule{inactive, otherDevice, closed}
	assert.Nil(t, FindMatchingRule(rules, dev, "info", at(20, 0)))
	assert.Equal(t, closed, FindMatchingRule(rules, dev, "info", at(10, 0)))
}
