// Package schedule models deferred send intents that have not been turned into
// messages yet, so cancelling them never touches the message store.
package schedule

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var (
	ErrNotFound          = errors.New("schedule not found")
	ErrInvalidTransition = errors.New("invalid schedule status transition")
	// ErrNotCancellable is returned when the schedule already reached a final state.
	ErrNotCancellable = errors.New("schedule can no longer be cancelled")
	// ErrCancelDeferred is returned when the schedule is being sent; the
	// cancellation is applied once the in-flight send completes.
	ErrCancelDeferred  = errors.New("schedule is being sent, cancellation deferred")
	ErrRetryExhausted  = errors.New("schedule has no retries left")
	ErrEmptyRecipient  = errors.New("recipient phone number is required")
	ErrEmptyContent    = errors.New("schedule content is required")
	ErrMissingSendTime = errors.New("scheduled_at is required")
)

var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusSent, StatusFailed, StatusCancelled, StatusPending},
	StatusFailed:     {StatusPending},
}

// CanTransition reports whether from -> to is an allowed move.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Schedule is a deferred send intent.
type Schedule struct {
	ID              uuid.UUID
	DeviceID        uuid.UUID
	Recipient       string
	Content         string
	MediaURL        string
	Priority        int
	ScheduledAt     time.Time
	Status          Status
	RetryCount      int
	MaxRetries      int
	MessageID       *uuid.UUID
	Error           string
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// New builds a pending schedule.
func New(deviceID uuid.UUID, to, content string, at time.Time, maxRetries int) (*Schedule, error) {
	to = strings.TrimSpace(to)
	content = strings.TrimSpace(content)
	if to == "" {
		return nil, ErrEmptyRecipient
	}
	if content == "" {
		return nil, ErrEmptyContent
	}
	if at.IsZero() {
		return nil, ErrMissingSendTime
	}

	now := time.Now()
	return &Schedule{
		ID:          uuid.New(),
		DeviceID:    deviceID,
		Recipient:   to,
		Content:     content,
		ScheduledAt: at,
		Status:      StatusPending,
		MaxRetries:  maxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Update carries the columns written together with a status transition.
type Update struct {
	MessageID   *uuid.UUID
	RetryCount  *int
	Error       *string
	ClearCancel bool
}

// Apply copies the update onto s.
func (u Update) Apply(s *Schedule) {
	if u.MessageID != nil {
		id := *u.MessageID
		s.MessageID = &id
	}
	if u.RetryCount != nil {
		s.RetryCount = *u.RetryCount
	}
	if u.Error != nil {
		s.Error = *u.Error
	}
	if u.ClearCancel {
		s.CancelRequested = false
	}
}
