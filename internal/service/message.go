package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/clock"
	"github.com/oggyb/wa-notifier/internal/domain/audit"
	"github.com/oggyb/wa-notifier/internal/domain/contact"
	"github.com/oggyb/wa-notifier/internal/domain/device"
	domain "github.com/oggyb/wa-notifier/internal/domain/message"
	"github.com/oggyb/wa-notifier/internal/logging"
)

// SendInput describes one outbound message to enqueue.
type SendInput struct {
	// DeviceID pins the device; nil lets Registry.AssignDevice choose.
	DeviceID   *uuid.UUID
	To         string
	Content    string
	MediaURL   string
	Priority   int
	ScheduleID *uuid.UUID
	MaxRetries int
}

// MessageService enqueues, lists, cancels and retries messages.
type MessageService struct {
	repo        domain.Repository
	registry    *Registry
	schedules   TerminalNotifier
	audit       auditor
	clock       clock.Clock
	countryCode string
}

// NewMessageService creates a message service with the given dependencies.
// countryCode replaces a leading 0 in local phone numbers.
func NewMessageService(
	repo domain.Repository,
	registry *Registry,
	auditRepo audit.Repository,
	clk clock.Clock,
	countryCode string,
) *MessageService {
	if clk == nil {
		clk = clock.Real{}
	}
	return &MessageService{
		repo:        repo,
		registry:    registry,
		audit:       auditor{repo: auditRepo},
		clock:       clk,
		countryCode: countryCode,
	}
}

// SetTerminalNotifier wires the schedule service after construction.
func (s *MessageService) SetTerminalNotifier(n TerminalNotifier) {
	s.schedules = n
}

// Send validates the input and stores a pending outbound message.
func (s *MessageService) Send(ctx context.Context, in SendInput) (*domain.Message, error) {
	phone, err := contact.NormalizePhone(in.To, s.countryCode)
	if err != nil {
		return nil, err
	}

	// Offline devices still queue; the dispatcher picks the message up once
	// the device reconnects.
	var dev *device.Device
	if in.DeviceID != nil {
		dev, err = s.registry.Get(ctx, *in.DeviceID)
	} else {
		dev, err = s.registry.AssignDevice(ctx)
	}
	if err != nil {
		return nil, err
	}

	m, err := domain.NewOutgoing(dev.ID, phone, in.Content)
	if err != nil {
		return nil, err
	}
	m.MediaURL = in.MediaURL
	m.Priority = in.Priority
	m.ScheduleID = in.ScheduleID
	switch {
	case in.MaxRetries > 0:
		m.MaxRetries = in.MaxRetries
	case dev.MaxRetries > 0:
		m.MaxRetries = dev.MaxRetries
	}
	m.CreatedAt = s.clock.Now()
	m.UpdatedAt = m.CreatedAt

	if err := s.repo.Enqueue(ctx, m); err != nil {
		return nil, fmt.Errorf("enqueue message: %w", err)
	}

	logging.Debug().
		Str("message_id", m.ID.String()).
		Str("device", dev.Name).
		Int("priority", m.Priority).
		Msg("[Service] Message enqueued")
	return m, nil
}

func (s *MessageService) Get(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of messages, optionally filtered by status.
func (s *MessageService) List(ctx context.Context, status domain.Status, page, limit int) ([]*domain.Message, int64, error) {
	return s.repo.List(ctx, status, page, limit)
}

// GetSent returns a paginated list of sent messages.
func (s *MessageService) GetSent(ctx context.Context, page, limit int) ([]*domain.Message, int64, error) {
	return s.repo.List(ctx, domain.StatusSent, page, limit)
}

// Cancel cancels a pending message. A message in flight gets a cancellation
// request instead, applied if that send fails, and ErrCancelDeferred is returned.
func (s *MessageService) Cancel(ctx context.Context, id uuid.UUID) error {
	// Two rounds: the message may move from pending to processing between read and write.
	for range 2 {
		m, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}

		switch m.Status {
		case domain.StatusPending:
			err := s.repo.Transition(ctx, id, domain.StatusPending, domain.StatusCancelled, domain.Update{ClearCancel: true})
			if errors.Is(err, domain.ErrInvalidTransition) {
				continue
			}
			if err != nil {
				return err
			}
			s.audit.transition(ctx, "message", id.String(), string(domain.StatusPending), string(domain.StatusCancelled), "cancelled by request")
			if m.ScheduleID != nil && s.schedules != nil {
				s.schedules.OnMessageTerminal(ctx, *m.ScheduleID, domain.StatusCancelled, "cancelled")
			}
			return nil

		case domain.StatusProcessing:
			if err := s.repo.RequestCancel(ctx, id); err != nil {
				return err
			}
			return domain.ErrCancelDeferred

		default:
			return domain.ErrNotCancellable
		}
	}
	return domain.ErrNotCancellable
}

// Retry moves a failed message back to pending with a fresh retry budget.
func (s *MessageService) Retry(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.StatusFailed {
		return nil, domain.ErrNotRetryable
	}

	zero, empty, now := 0, "", s.clock.Now()
	err = s.repo.Transition(ctx, id, domain.StatusFailed, domain.StatusPending, domain.Update{
		RetryCount: &zero,
		Error:      &empty,
		NotBefore:  &now,
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		return nil, domain.ErrNotRetryable
	}
	if err != nil {
		return nil, err
	}

	s.audit.transition(ctx, "message", id.String(), string(domain.StatusFailed), string(domain.StatusPending), "manual retry")
	return s.repo.Get(ctx, id)
}
