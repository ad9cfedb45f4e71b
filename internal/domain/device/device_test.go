package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDevice_Sendable(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name string
		dev  Device
		want bool
	}{
		{"connected", Device{Status: StatusConnected}, true},
		{"disconnected", Device{Status: StatusDisconnected}, false},
		{"error", Device{Status: StatusError}, false},
		{"disabled", Device{Status: StatusConnected, Disabled: true}, false},
		{"expired", Device{Status: StatusConnected, ExpiresAt: &past}, false},
		{"not yet expired", Device{Status: StatusConnected, ExpiresAt: &future}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.dev.Sendable(now))
		})
	}
}

func TestDevice_RemainingQuota(t *testing.T) {
	assert.Equal(t, 3, (&Device{QuotaLimit: 5, QuotaUsed: 2}).RemainingQuota())
	assert.Equal(t, 0, (&Device{QuotaLimit: 5, QuotaUsed: 7}).RemainingQuota())
}

func TestDevice_Assignable(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	assert.True(t, (&Device{Status: StatusConnecting}).Assignable(now))
	assert.True(t, (&Device{Status: StatusDisconnected}).Assignable(now))
	assert.False(t, (&Device{Status: StatusError}).Assignable(now))
	assert.False(t, (&Device{Status: StatusConnected, Disabled: true}).Assignable(now))
	assert.False(t, (&Device{Status: StatusConnected, ExpiresAt: &past}).Assignable(now))
}

func TestNextQuotaReset(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 30, 0, 0, time.UTC)

	cases := []struct {
		name    string
		resetAt time.Time
		period  time.Duration
		want    time.Time
	}{
		{"still ahead", now.Add(time.Minute), time.Hour, now.Add(time.Minute)},
		{"one period", now.Add(-time.Minute), time.Hour, now.Add(59 * time.Minute)},
		{"exactly now", now, time.Hour, now.Add(time.Hour)},
		{"many periods behind", now.Add(-5*time.Hour - 30*time.Minute), time.Hour, now.Add(30 * time.Minute)},
		{"on a boundary", now.Add(-5 * time.Hour), time.Hour, now.Add(time.Hour)},
		{"zero period", now.Add(-time.Hour), 0, now.Add(23 * time.Hour)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextQuotaReset(tc.resetAt, tc.period, now)
			assert.Equal(t, tc.want, got)
			assert.True(t, got.After(now))
		})
	}
}
