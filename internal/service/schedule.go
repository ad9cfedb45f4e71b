package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/clock"
	"github.com/oggyb/wa-notifier/internal/domain/audit"
	"github.com/oggyb/wa-notifier/internal/domain/contact"
	"github.com/oggyb/wa-notifier/internal/domain/message"
	"github.com/oggyb/wa-notifier/internal/domain/schedule"
	"github.com/oggyb/wa-notifier/internal/logging"
	"github.com/oggyb/wa-notifier/internal/metrics"
)

// ScheduleService owns deferred sends and promotes them into messages when due.
type ScheduleService struct {
	repo        schedule.Repository
	messages    message.Repository
	registry    *Registry
	audit       auditor
	clock       clock.Clock
	countryCode string
	batchSize   int
	maxRetries  int
}

func NewScheduleService(
	repo schedule.Repository,
	messages message.Repository,
	registry *Registry,
	auditRepo audit.Repository,
	clk clock.Clock,
	countryCode string,
	batchSize int,
	defaultMaxRetries int,
) *ScheduleService {
	if clk == nil {
		clk = clock.Real{}
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if defaultMaxRetries <= 0 {
		defaultMaxRetries = message.DefaultMaxRetries
	}
	return &ScheduleService{
		repo:        repo,
		messages:    messages,
		registry:    registry,
		audit:       auditor{repo: auditRepo},
		clock:       clk,
		countryCode: countryCode,
		batchSize:   batchSize,
		maxRetries:  defaultMaxRetries,
	}
}

// Create stores a pending schedule. Without a device one is assigned now
// through Registry.AssignDevice.
func (s *ScheduleService) Create(ctx context.Context, sc *schedule.Schedule) error {
	phone, err := contact.NormalizePhone(sc.Recipient, s.countryCode)
	if err != nil {
		return err
	}
	sc.Recipient = phone

	if sc.DeviceID == uuid.Nil {
		dev, err := s.registry.AssignDevice(ctx)
		if err != nil {
			return err
		}
		sc.DeviceID = dev.ID
	}
	if sc.MaxRetries <= 0 {
		sc.MaxRetries = s.maxRetries
	}
	sc.Status = schedule.StatusPending

	if err := s.repo.Create(ctx, sc); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

func (s *ScheduleService) Get(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error) {
	return s.repo.Get(ctx, id)
}

// Cancel cancels a pending schedule. A schedule whose message is being sent
// is flagged instead and ErrCancelDeferred is returned.
func (s *ScheduleService) Cancel(ctx context.Context, id uuid.UUID) error {
	for range 2 {
		sc, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}

		switch sc.Status {
		case schedule.StatusPending:
			err := s.repo.Transition(ctx, id, schedule.StatusPending, schedule.StatusCancelled, schedule.Update{ClearCancel: true})
			if errors.Is(err, schedule.ErrInvalidTransition) {
				continue
			}
			if err != nil {
				return err
			}
			s.audit.transition(ctx, "schedule", id.String(), string(schedule.StatusPending), string(schedule.StatusCancelled), "cancelled by request")
			return nil

		case schedule.StatusProcessing:
			if sc.MessageID != nil {
				// The promoted message has not been picked up yet: cancel both now.
				err := s.messages.Transition(ctx, *sc.MessageID, message.StatusPending, message.StatusCancelled, message.Update{ClearCancel: true})
				if err == nil {
					s.audit.transition(ctx, "message", sc.MessageID.String(), string(message.StatusPending), string(message.StatusCancelled), "schedule cancelled")
					s.OnMessageTerminal(ctx, id, message.StatusCancelled, "cancelled")
					return nil
				}
				if !errors.Is(err, message.ErrInvalidTransition) && !errors.Is(err, message.ErrNotFound) {
					return err
				}
			}

			if err := s.repo.RequestCancel(ctx, id); err != nil {
				return err
			}
			if sc.MessageID != nil {
				if err := s.messages.RequestCancel(ctx, *sc.MessageID); err != nil && !errors.Is(err, message.ErrNotFound) {
					return err
				}
			}
			return schedule.ErrCancelDeferred

		default:
			return schedule.ErrNotCancellable
		}
	}
	return schedule.ErrNotCancellable
}

// Retry puts a failed schedule back to pending while it has retries left.
func (s *ScheduleService) Retry(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error) {
	sc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sc.Status != schedule.StatusFailed {
		return nil, schedule.ErrInvalidTransition
	}
	if sc.RetryCount >= sc.MaxRetries {
		return nil, schedule.ErrRetryExhausted
	}

	n, empty := sc.RetryCount+1, ""
	if err := s.repo.Transition(ctx, id, schedule.StatusFailed, schedule.StatusPending, schedule.Update{RetryCount: &n, Error: &empty}); err != nil {
		return nil, err
	}
	s.audit.transition(ctx, "schedule", id.String(), string(schedule.StatusFailed), string(schedule.StatusPending), "manual retry")
	return s.repo.Get(ctx, id)
}

// ProcessBatch runs one sweep. It satisfies scheduler.BatchProcessor.
func (s *ScheduleService) ProcessBatch(ctx context.Context) error {
	_, err := s.SweepDue(ctx)
	return err
}

// SweepDue promotes every due pending schedule into exactly one pending message
// and returns how many were promoted.
func (s *ScheduleService) SweepDue(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.repo.Due(ctx, now, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("load due schedules: %w", err)
	}

	promoted := 0
	for _, sc := range due {
		if ctx.Err() != nil {
			break
		}
		if s.promote(ctx, sc) {
			promoted++
		}
	}

	if promoted > 0 {
		metrics.SchedulesPromoted.Add(float64(promoted))
		logging.Info().Int("promoted", promoted).Msg("[Scheduler] Due schedules promoted")
	}
	return promoted, nil
}

func (s *ScheduleService) promote(ctx context.Context, sc *schedule.Schedule) bool {
	m, buildErr := message.NewOutgoing(sc.DeviceID, sc.Recipient, sc.Content)
	if buildErr != nil {
		s.failInvalid(ctx, sc, buildErr)
		return false
	}

	// The message id is claimed together with the status so a schedule maps to one message.
	err := s.repo.Transition(ctx, sc.ID, schedule.StatusPending, schedule.StatusProcessing, schedule.Update{MessageID: &m.ID})
	if err != nil {
		if !errors.Is(err, schedule.ErrInvalidTransition) {
			logging.Error().Err(err).Str("schedule_id", sc.ID.String()).Msg("[Scheduler] Failed to claim schedule")
		}
		return false
	}

	scheduleID := sc.ID
	m.ScheduleID = &scheduleID
	m.MediaURL = sc.MediaURL
	m.Priority = sc.Priority
	m.MaxRetries = sc.MaxRetries
	m.CreatedAt = s.clock.Now()
	m.UpdatedAt = m.CreatedAt

	if err := s.messages.Enqueue(ctx, m); err != nil {
		reason := err.Error()
		if rbErr := s.repo.Transition(ctx, sc.ID, schedule.StatusProcessing, schedule.StatusPending, schedule.Update{Error: &reason}); rbErr != nil {
			logging.Error().Err(rbErr).Str("schedule_id", sc.ID.String()).Msg("[Scheduler] Failed to roll schedule back")
		}
		logging.Error().Err(err).Str("schedule_id", sc.ID.String()).Msg("[Scheduler] Failed to enqueue message, rolled back")
		return false
	}

	s.audit.transition(ctx, "schedule", sc.ID.String(), string(schedule.StatusPending), string(schedule.StatusProcessing), m.ID.String())
	return true
}

func (s *ScheduleService) failInvalid(ctx context.Context, sc *schedule.Schedule, cause error) {
	reason := cause.Error()
	if err := s.repo.Transition(ctx, sc.ID, schedule.StatusPending, schedule.StatusProcessing, schedule.Update{}); err != nil {
		return
	}
	if err := s.repo.Transition(ctx, sc.ID, schedule.StatusProcessing, schedule.StatusFailed, schedule.Update{Error: &reason}); err != nil {
		logging.Error().Err(err).Str("schedule_id", sc.ID.String()).Msg("[Scheduler] Failed to mark invalid schedule")
		return
	}
	logging.Warn().Err(cause).Str("schedule_id", sc.ID.String()).Msg("[Scheduler] Invalid schedule failed")
}

// OnMessageTerminal mirrors the final state of a schedule's message onto the schedule.
func (s *ScheduleService) OnMessageTerminal(ctx context.Context, scheduleID uuid.UUID, status message.Status, reason string) {
	var (
		to schedule.Status
		u  schedule.Update
	)
	switch status {
	case message.StatusSent, message.StatusDelivered, message.StatusRead:
		to, u = schedule.StatusSent, schedule.Update{ClearCancel: true}
	case message.StatusFailed:
		to, u = schedule.StatusFailed, schedule.Update{Error: &reason, ClearCancel: true}
	case message.StatusCancelled:
		to, u = schedule.StatusCancelled, schedule.Update{ClearCancel: true}
	default:
		return
	}

	err := s.repo.Transition(ctx, scheduleID, schedule.StatusProcessing, to, u)
	if err != nil {
		if !errors.Is(err, schedule.ErrInvalidTransition) && !errors.Is(err, schedule.ErrNotFound) {
			logging.Error().Err(err).Str("schedule_id", scheduleID.String()).Msg("[Scheduler] Failed to propagate message outcome")
		}
		return
	}
	s.audit.transition(ctx, "schedule", scheduleID.String(), string(schedule.StatusProcessing), string(to), reason)
}

var _ TerminalNotifier = (*ScheduleService)(nil)
