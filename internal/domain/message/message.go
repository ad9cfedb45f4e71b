// Package message holds the domain model, state machine and invariants for
// outbound and inbound WhatsApp messages.
package message

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxContentLength is the maximum allowed length for message content.
	MaxContentLength = 4096

	// DefaultMaxRetries applies when neither the caller nor the device sets one.
	DefaultMaxRetries = 3

	// PriorityNormal is the default priority. Higher values are dispatched first.
	PriorityNormal = 0
	// PriorityHigh is used for interactive traffic such as auto-replies.
	PriorityHigh = 10
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusDelivered  Status = "delivered"
	StatusRead       Status = "read"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

var (
	// ErrEmptyRecipient is returned when no recipient phone number is provided.
	ErrEmptyRecipient = errors.New("recipient phone number is required")
	// ErrEmptyContent is returned when the message body is empty.
	ErrEmptyContent = errors.New("message content is required")
	// ErrContentTooLong is returned when the message body exceeds MaxContentLength.
	ErrContentTooLong = errors.New("message content exceeds maximum length")
	// ErrNoDevice is returned when a message is built without a device.
	ErrNoDevice = errors.New("device is required")

	// ErrNotFound is returned when no message matches the lookup.
	ErrNotFound = errors.New("message not found")
	// ErrDuplicate is returned when an inbound message was already recorded.
	ErrDuplicate = errors.New("message already recorded")
	// ErrInvalidTransition is returned when the stored status is not the expected
	// one or the move is not allowed. Callers treat it as a lost race.
	ErrInvalidTransition = errors.New("invalid message status transition")
	// ErrNotCancellable is returned when the message already left pending for good.
	ErrNotCancellable = errors.New("message can no longer be cancelled")
	// ErrCancelDeferred is returned while a send is in flight; the cancellation
	// is applied if that send fails.
	ErrCancelDeferred = errors.New("message is being sent, cancellation deferred")
	// ErrNotRetryable is returned when a retry is requested for a message that has not failed.
	ErrNotRetryable = errors.New("only failed messages can be retried")
)

// transitions is the allowed-move table. Everything not listed is rejected.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusSent, StatusPending, StatusFailed},
	StatusSent:       {StatusDelivered, StatusRead, StatusFailed},
	StatusDelivered:  {StatusRead},
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

// deliveryRank orders the provider-reported progress states.
var deliveryRank = map[Status]int{
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// IsForwardProgress reports whether next moves further along sent -> delivered -> read.
func IsForwardProgress(current, next Status) bool {
	c, ok1 := deliveryRank[current]
	n, ok2 := deliveryRank[next]
	return ok1 && ok2 && n > c
}

// IsTerminal reports whether the dispatcher is done with a message in this status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusRead, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSent, StatusDelivered, StatusRead, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Message is one outbound or inbound WhatsApp message.
type Message struct {
	ID                uuid.UUID
	ProviderMessageID string
	DeviceID          uuid.UUID
	ScheduleID        *uuid.UUID
	Recipient         string
	Direction         Direction
	Content           string
	MediaURL          string
	Status            Status
	RetryCount        int
	MaxRetries        int
	Priority          int
	// ScheduledAt doubles as the not-before marker for backed-off retries.
	ScheduledAt     *time.Time
	SentAt          *time.Time
	DeliveredAt     *time.Time
	ReadAt          *time.Time
	Error           string
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewOutgoing constructs a new pending outbound Message and enforces basic domain rules.
func NewOutgoing(deviceID uuid.UUID, to, content string) (*Message, error) {
	to = strings.TrimSpace(to)
	content = strings.TrimSpace(content)

	if deviceID == uuid.Nil {
		return nil, ErrNoDevice
	}
	if to == "" {
		return nil, ErrEmptyRecipient
	}
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > MaxContentLength {
		return nil, ErrContentTooLong
	}

	now := time.Now()
	return &Message{
		ID:         uuid.New(),
		DeviceID:   deviceID,
		Recipient:  to,
		Direction:  DirectionOutgoing,
		Content:    content,
		Status:     StatusPending,
		MaxRetries: DefaultMaxRetries,
		Priority:   PriorityNormal,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// NewIncoming records an inbound message. It needs no dispatch, so it starts as read.
func NewIncoming(deviceID uuid.UUID, providerID, from, content string, receivedAt time.Time) *Message {
	return &Message{
		ID:                uuid.New(),
		ProviderMessageID: providerID,
		DeviceID:          deviceID,
		Recipient:         strings.TrimSpace(from),
		Direction:         DirectionIncoming,
		Content:           content,
		Status:            StatusRead,
		ReadAt:            &receivedAt,
		CreatedAt:         receivedAt,
		UpdatedAt:         receivedAt,
	}
}

// Due reports whether the message may be picked up at now.
func (m *Message) Due(now time.Time) bool {
	return m.ScheduledAt == nil || !m.ScheduledAt.After(now)
}

// Update carries the columns written together with a status transition.
// Nil pointers and empty strings leave the stored value untouched.
type Update struct {
	ProviderMessageID string
	RetryCount        *int
	NotBefore         *time.Time
	SentAt            *time.Time
	DeliveredAt       *time.Time
	ReadAt            *time.Time
	Error             *string
	ClearCancel       bool
}

// Apply copies the update onto m. Stores use it to keep in-memory copies consistent.
func (u Update) Apply(m *Message) {
	if u.ProviderMessageID != "" && m.ProviderMessageID == "" {
		m.ProviderMessageID = u.ProviderMessageID
	}
	if u.RetryCount != nil {
		m.RetryCount = *u.RetryCount
	}
	if u.NotBefore != nil {
		t := *u.NotBefore
		m.ScheduledAt = &t
	}
	if u.SentAt != nil {
		t := *u.SentAt
		m.SentAt = &t
	}
	if u.DeliveredAt != nil {
		t := *u.DeliveredAt
		m.DeliveredAt = &t
	}
	if u.ReadAt != nil {
		t := *u.ReadAt
		m.ReadAt = &t
	}
	if u.Error != nil {
		m.Error = *u.Error
	}
	if u.ClearCancel {
		m.CancelRequested = false
	}
}
