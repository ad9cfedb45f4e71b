// Package device models WhatsApp gateway sessions and their quota/throttle budget.
package device

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusError        Status = "error"
)

var (
	// ErrNotFound is returned when no device matches the lookup.
	ErrNotFound = errors.New("device not found")
	// ErrNotAvailable is returned when none of the candidates can send right now.
	ErrNotAvailable = errors.New("no sendable device available")
	// ErrQuotaExceeded is returned when a reservation would pass quota_limit.
	ErrQuotaExceeded = errors.New("device quota exceeded")
)

// DefaultQuotaPeriod applies when a device carries no positive quota period.
const DefaultQuotaPeriod = 24 * time.Hour

// Device is a configured gateway session used to send and receive messages.
type Device struct {
	ID   uuid.UUID
	Name string
	// Token is the external serial/token the gateway identifies the session by.
	Token string
	Phone string

	Status       Status
	QuotaLimit   int
	QuotaUsed    int
	QuotaPeriod  time.Duration
	QuotaResetAt time.Time

	// ThrottleInterval is the minimum spacing between two sends.
	ThrottleInterval time.Duration
	MaxRetries       int
	AutoReplyEnabled bool
	ExpiresAt        *time.Time
	// Disabled is the soft-delete flag; disabled devices keep their messages.
	Disabled bool

	ConsecutiveFailures int
	LastSeenAt          *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Expired reports whether the device is past its expiry date.
func (d *Device) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && !now.Before(*d.ExpiresAt)
}

// Sendable reports whether the dispatcher may select this device at now.
func (d *Device) Sendable(now time.Time) bool {
	return d.Status == StatusConnected && !d.Disabled && !d.Expired(now)
}

// Assignable reports whether a new message may be bound to this device. A
// session that is only connecting or disconnected qualifies; the dispatcher
// holds its messages until it connects.
func (d *Device) Assignable(now time.Time) bool {
	return d.Status != StatusError && !d.Disabled && !d.Expired(now)
}

// NextQuotaReset returns the first period boundary after now, counting whole
// periods from resetAt. It returns resetAt unchanged if that is still ahead.
func NextQuotaReset(resetAt time.Time, period time.Duration, now time.Time) time.Time {
	if resetAt.After(now) {
		return resetAt
	}
	if period <= 0 {
		period = DefaultQuotaPeriod
	}
	periods := now.Sub(resetAt)/period + 1
	return resetAt.Add(periods * period)
}

// RemainingQuota is how many sends are left in the current period.
func (d *Device) RemainingQuota() int {
	if r := d.QuotaLimit - d.QuotaUsed; r > 0 {
		return r
	}
	return 0
}
