package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/cache"
	"github.com/oggyb/wa-notifier/internal/clock"
	"github.com/oggyb/wa-notifier/internal/domain/audit"
	"github.com/oggyb/wa-notifier/internal/domain/device"
	"github.com/oggyb/wa-notifier/internal/domain/message"
	"github.com/oggyb/wa-notifier/internal/gateway"
	"github.com/oggyb/wa-notifier/internal/logging"
	"github.com/oggyb/wa-notifier/internal/metrics"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// sentMessageTTL is how long a provider id -> message id mapping stays cached.
const sentMessageTTL = 24 * time.Hour

// TerminalNotifier is told when a schedule-linked message stops moving.
type TerminalNotifier interface {
	OnMessageTerminal(ctx context.Context, scheduleID uuid.UUID, status message.Status, reason string)
}

// DispatcherConfig carries the batch processing settings, injected from config at startup.
type DispatcherConfig struct {
	// BatchSize is the maximum number of messages pulled per device per cycle.
	BatchSize int
	// MaxWorkers bounds how many devices are dispatched concurrently.
	MaxWorkers int
	// SendTimeout bounds a single gateway call.
	SendTimeout time.Duration
	Backoff     Backoff
}

// lane serializes dispatch on one device and owns its throttle state.
type lane struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	interval time.Duration
}

// Dispatcher moves pending messages to sent or failed, one lane per device.
type Dispatcher struct {
	messages  message.Repository
	registry  *Registry
	gateway   gateway.Client
	cache     cache.Cache
	schedules TerminalNotifier
	audit     auditor
	clock     clock.Clock
	cfg       DispatcherConfig

	lanesMu sync.Mutex
	lanes   map[uuid.UUID]*lane
}

// NewDispatcher creates a dispatcher. cache and schedules may be nil.
func NewDispatcher(
	messages message.Repository,
	registry *Registry,
	gw gateway.Client,
	c cache.Cache,
	schedules TerminalNotifier,
	auditRepo audit.Repository,
	clk clock.Clock,
	cfg DispatcherConfig,
) *Dispatcher {
	// Apply sane defaults if config values are missing or invalid.
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &Dispatcher{
		messages:  messages,
		registry:  registry,
		gateway:   gw,
		cache:     c,
		schedules: schedules,
		audit:     auditor{repo: auditRepo},
		clock:     clk,
		cfg:       cfg,
		lanes:     make(map[uuid.UUID]*lane),
	}
}

// SetTerminalNotifier wires the schedule service after construction, since
// the two depend on each other.
func (d *Dispatcher) SetTerminalNotifier(n TerminalNotifier) {
	d.schedules = n
}

// ProcessBatch runs one dispatcher cycle. It satisfies scheduler.BatchProcessor.
func (d *Dispatcher) ProcessBatch(ctx context.Context) error {
	return d.RunCycle(ctx)
}

// RunCycle dispatches every sendable device concurrently and waits for all of
// them. Per-message failures are absorbed; only a failure to list devices is returned.
func (d *Dispatcher) RunCycle(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.DispatchCycleDuration.Observe(time.Since(start).Seconds())
	}()

	devices, err := d.registry.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	now := d.clock.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.MaxWorkers)

	active := 0
	for _, dev := range devices {
		if !dev.Sendable(now) {
			continue
		}
		active++
		g.Go(func() error {
			d.dispatchDevice(gctx, dev)
			return nil
		})
	}
	_ = g.Wait()

	logging.Debug().
		Int("devices", active).
		Dur("took", time.Since(start)).
		Msg("[Dispatcher] Cycle completed")
	return nil
}

func (d *Dispatcher) laneFor(dev *device.Device) *lane {
	d.lanesMu.Lock()
	defer d.lanesMu.Unlock()

	l, ok := d.lanes[dev.ID]
	if !ok {
		l = &lane{limiter: rate.NewLimiter(throttleLimit(dev.ThrottleInterval), 1), interval: dev.ThrottleInterval}
		d.lanes[dev.ID] = l
		return l
	}
	if l.interval != dev.ThrottleInterval {
		l.limiter.SetLimitAt(d.clock.Now(), throttleLimit(dev.ThrottleInterval))
		l.interval = dev.ThrottleInterval
	}
	return l
}

// throttled reports whether the device sent less than one interval ago.
func (l *lane) throttled(now time.Time) bool {
	return l.interval > 0 && l.limiter.TokensAt(now) < 1
}

func throttleLimit(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}

// dispatchDevice drains up to BatchSize messages of one device. It returns
// early when the device is throttled, out of quota or its breaker is open.
func (d *Dispatcher) dispatchDevice(ctx context.Context, dev *device.Device) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("device", dev.Name).
				Interface("panic", r).
				Msg("[Dispatcher] Recovered from panic in device lane")
		}
	}()

	l := d.laneFor(dev)
	if !l.mu.TryLock() {
		logging.Debug().Str("device", dev.Name).Msg("[Dispatcher] Device lane busy, skipping")
		return
	}
	defer l.mu.Unlock()

	now := d.clock.Now()
	if l.throttled(now) {
		metrics.DeviceThrottled.WithLabelValues(dev.Name).Inc()
		return
	}

	pending, err := d.messages.NextPending(ctx, dev.ID, now, d.cfg.BatchSize)
	if err != nil {
		logging.Error().Err(err).Str("device", dev.Name).Msg("[Dispatcher] Failed to fetch pending messages")
		return
	}
	if len(pending) == 0 {
		return
	}

	logging.Debug().
		Str("device", dev.Name).
		Int("pending", len(pending)).
		Msg("[Dispatcher] Processing device batch")

	for _, m := range pending {
		if ctx.Err() != nil {
			return
		}
		if !d.dispatchOne(ctx, l, dev, m) {
			return
		}
	}
}

// dispatchOne attempts a single message and reports whether the lane may continue.
func (d *Dispatcher) dispatchOne(ctx context.Context, l *lane, dev *device.Device, m *message.Message) bool {
	if m.CancelRequested {
		d.applyDeferredCancel(context.WithoutCancel(ctx), m)
		return true
	}

	now := d.clock.Now()
	if l.throttled(now) {
		metrics.DeviceThrottled.WithLabelValues(dev.Name).Inc()
		return false
	}

	ok, err := d.registry.ReserveQuota(ctx, dev.ID, 1)
	if err != nil {
		logging.Error().Err(err).Str("device", dev.Name).Msg("[Dispatcher] Quota reservation failed")
		return false
	}
	if !ok {
		metrics.QuotaExhausted.WithLabelValues(dev.Name).Inc()
		logging.Info().
			Str("device", dev.Name).
			Str("error", device.ErrQuotaExceeded.Error()).
			Msg("[Dispatcher] Device out of quota, leaving messages pending")
		return false
	}

	if err := d.messages.Transition(ctx, m.ID, message.StatusPending, message.StatusProcessing, message.Update{}); err != nil {
		d.registry.ReleaseQuota(ctx, dev.ID, 1)
		if !errors.Is(err, message.ErrInvalidTransition) && !errors.Is(err, message.ErrNotFound) {
			logging.Error().Err(err).Str("message_id", m.ID.String()).Msg("[Dispatcher] Failed to claim message")
		}
		metrics.DispatchAttempts.WithLabelValues("skipped").Inc()
		return true
	}
	l.limiter.AllowN(now, 1)

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	providerID, sendErr := d.gateway.Send(sendCtx, dev, m.Recipient, m.Content, m.MediaURL)
	cancel()

	// The outcome has to be persisted even if the cycle was cancelled meanwhile.
	bg := context.WithoutCancel(ctx)
	d.registry.RecordResult(bg, dev, sendErr)

	switch {
	case sendErr == nil:
		d.onSent(bg, dev, m, providerID)
		return true

	case errors.Is(sendErr, gateway.ErrCircuitOpen):
		d.onNotAttempted(bg, dev, m)
		return false

	case gateway.IsValidation(sendErr):
		d.onRejected(bg, dev, m, sendErr)
		return true

	default:
		d.onTransportError(bg, dev, m, sendErr)
		return dev.Status != device.StatusError
	}
}

func (d *Dispatcher) onSent(ctx context.Context, dev *device.Device, m *message.Message, providerID string) {
	now := d.clock.Now()
	err := d.messages.Transition(ctx, m.ID, message.StatusProcessing, message.StatusSent, message.Update{
		ProviderMessageID: providerID,
		SentAt:            &now,
		ClearCancel:       true,
	})
	if err != nil {
		logging.Error().Err(err).
			Str("message_id", m.ID.String()).
			Str("provider_id", providerID).
			Msg("[Dispatcher] Failed to persist sent status")
		return
	}

	metrics.DispatchAttempts.WithLabelValues("sent").Inc()
	d.audit.transition(ctx, "message", m.ID.String(), string(message.StatusProcessing), string(message.StatusSent), providerID)
	logging.Info().
		Str("device", dev.Name).
		Str("message_id", m.ID.String()).
		Str("provider_id", providerID).
		Msg("[Dispatcher] Message sent")

	if d.cache != nil {
		if err := d.cache.Set(ctx, cache.SentMessages.Key(providerID), m.ID.String(), sentMessageTTL); err != nil {
			logging.Warn().Err(err).Str("provider_id", providerID).Msg("[Dispatcher] Failed to cache provider id")
		}
	}

	d.notifyTerminal(ctx, m, message.StatusSent, "")
}

// onNotAttempted puts the message back untouched: the breaker refused the call.
func (d *Dispatcher) onNotAttempted(ctx context.Context, dev *device.Device, m *message.Message) {
	d.registry.ReleaseQuota(ctx, dev.ID, 1)
	if err := d.messages.Transition(ctx, m.ID, message.StatusProcessing, message.StatusPending, message.Update{}); err != nil {
		logging.Error().Err(err).Str("message_id", m.ID.String()).Msg("[Dispatcher] Failed to requeue message")
		return
	}
	metrics.DispatchAttempts.WithLabelValues("skipped").Inc()
	logging.Warn().Str("device", dev.Name).Msg("[Dispatcher] Circuit open, skipping device for this cycle")
	d.applyDeferredCancel(ctx, m)
}

// onRejected fails the message for good: the gateway refused it as malformed.
func (d *Dispatcher) onRejected(ctx context.Context, dev *device.Device, m *message.Message, sendErr error) {
	d.registry.ReleaseQuota(ctx, dev.ID, 1)

	reason := sendErr.Error()
	err := d.messages.Transition(ctx, m.ID, message.StatusProcessing, message.StatusFailed, message.Update{
		Error:       &reason,
		ClearCancel: true,
	})
	if err != nil {
		logging.Error().Err(err).Str("message_id", m.ID.String()).Msg("[Dispatcher] Failed to persist failed status")
		return
	}

	metrics.DispatchAttempts.WithLabelValues("rejected").Inc()
	d.audit.transition(ctx, "message", m.ID.String(), string(message.StatusProcessing), string(message.StatusFailed), reason)
	logging.Warn().
		Str("device", dev.Name).
		Str("message_id", m.ID.String()).
		Err(sendErr).
		Msg("[Dispatcher] Message rejected by gateway")

	d.notifyTerminal(ctx, m, message.StatusFailed, reason)
}

// onTransportError schedules a retry with backoff, or fails the message once
// retries are exhausted. The quota stays consumed: the attempt was billed.
func (d *Dispatcher) onTransportError(ctx context.Context, dev *device.Device, m *message.Message, sendErr error) {
	maxRetries := m.MaxRetries
	if maxRetries <= 0 {
		maxRetries = dev.MaxRetries
	}
	if maxRetries <= 0 {
		maxRetries = message.DefaultMaxRetries
	}

	attempt := m.RetryCount + 1
	reason := sendErr.Error()

	if attempt >= maxRetries {
		err := d.messages.Transition(ctx, m.ID, message.StatusProcessing, message.StatusFailed, message.Update{
			RetryCount:  &attempt,
			Error:       &reason,
			ClearCancel: true,
		})
		if err != nil {
			logging.Error().Err(err).Str("message_id", m.ID.String()).Msg("[Dispatcher] Failed to persist failed status")
			return
		}
		metrics.DispatchAttempts.WithLabelValues("failed").Inc()
		d.audit.transition(ctx, "message", m.ID.String(), string(message.StatusProcessing), string(message.StatusFailed), reason)
		logging.Warn().
			Str("device", dev.Name).
			Str("message_id", m.ID.String()).
			Int("retry_count", attempt).
			Err(sendErr).
			Msg("[Dispatcher] Retries exhausted, message failed")
		d.notifyTerminal(ctx, m, message.StatusFailed, reason)
		return
	}

	notBefore := d.clock.Now().Add(d.cfg.Backoff.Delay(attempt))
	err := d.messages.Transition(ctx, m.ID, message.StatusProcessing, message.StatusPending, message.Update{
		RetryCount: &attempt,
		NotBefore:  &notBefore,
		Error:      &reason,
	})
	if err != nil {
		logging.Error().Err(err).Str("message_id", m.ID.String()).Msg("[Dispatcher] Failed to requeue message")
		return
	}

	metrics.DispatchAttempts.WithLabelValues("retry").Inc()
	logging.Info().
		Str("device", dev.Name).
		Str("message_id", m.ID.String()).
		Int("retry_count", attempt).
		Time("not_before", notBefore).
		Err(sendErr).
		Msg("[Dispatcher] Send failed, retry scheduled")

	d.applyDeferredCancel(ctx, m)
}

// applyDeferredCancel cancels a requeued message whose cancellation arrived while it was in flight.
func (d *Dispatcher) applyDeferredCancel(ctx context.Context, m *message.Message) {
	cur, err := d.messages.Get(ctx, m.ID)
	if err != nil || !cur.CancelRequested || cur.Status != message.StatusPending {
		return
	}

	err = d.messages.Transition(ctx, m.ID, message.StatusPending, message.StatusCancelled, message.Update{ClearCancel: true})
	if err != nil {
		if !errors.Is(err, message.ErrInvalidTransition) {
			logging.Error().Err(err).Str("message_id", m.ID.String()).Msg("[Dispatcher] Failed to apply deferred cancellation")
		}
		return
	}

	d.audit.transition(ctx, "message", m.ID.String(), string(message.StatusPending), string(message.StatusCancelled), "deferred cancellation")
	logging.Info().Str("message_id", m.ID.String()).Msg("[Dispatcher] Deferred cancellation applied")
	d.notifyTerminal(ctx, m, message.StatusCancelled, "cancelled")
}

func (d *Dispatcher) notifyTerminal(ctx context.Context, m *message.Message, status message.Status, reason string) {
	if m.ScheduleID == nil || d.schedules == nil {
		return
	}
	d.schedules.OnMessageTerminal(ctx, *m.ScheduleID, status, reason)
}
