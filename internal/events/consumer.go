package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"
	"github.com/oggyb/wa-notifier/internal/logging"
	"github.com/oggyb/wa-notifier/internal/metrics"
	"github.com/oggyb/wa-notifier/internal/service"
)

// EventComposer turns one attendance event into queued notifications.
type EventComposer interface {
	BuildFromEvent(ctx context.Context, ev service.AttendanceEvent) (*service.Composition, error)
}

// ConsumerConfig tunes redelivery of events whose composition failed.
type ConsumerConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	CloseTimeout    time.Duration
}

// Consumer subscribes to TopicAttendance and feeds the composer.
// It implements suture.Service.
type Consumer struct {
	bus      *Bus
	composer EventComposer
	cfg      ConsumerConfig

	readyOnce sync.Once
	ready     chan struct{}
}

func NewConsumer(bus *Bus, composer EventComposer, cfg ConsumerConfig) *Consumer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 10 * time.Second
	}
	return &Consumer{bus: bus, composer: composer, cfg: cfg, ready: make(chan struct{})}
}

func (c *Consumer) String() string { return "event-consumer" }

// Serve builds a fresh router on every call, since a watermill router
// cannot be restarted once closed.
func (c *Consumer) Serve(ctx context.Context) error {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: c.cfg.CloseTimeout}, c.bus.logger)
	if err != nil {
		return fmt.Errorf("create event router: %w", err)
	}

	router.AddMiddleware(
		giveUp,
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      c.cfg.MaxRetries,
			InitialInterval: c.cfg.InitialInterval,
			MaxInterval:     10 * c.cfg.InitialInterval,
			Multiplier:      2,
			Logger:          c.bus.logger,
		}.Middleware,
	)
	router.AddConsumerHandler("attendance-composer", TopicAttendance, c.bus.pubsub, c.handle)

	go func() {
		select {
		case <-router.Running():
			c.readyOnce.Do(func() { close(c.ready) })
		case <-ctx.Done():
		}
	}()

	if err := router.Run(ctx); err != nil {
		return err
	}
	return ctx.Err()
}

// Ready is closed once the first router has subscribed. Events published
// before that are dropped by the in-memory pub/sub.
func (c *Consumer) Ready() <-chan struct{} { return c.ready }

// handle acks malformed events instead of redelivering them forever.
func (c *Consumer) handle(msg *message.Message) error {
	var ev service.AttendanceEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		metrics.EventsConsumed.WithLabelValues("dropped").Inc()
		logging.Warn().Err(err).Str("uuid", msg.UUID).Msg("[Events] Dropping undecodable event")
		return nil
	}

	comp, err := c.composer.BuildFromEvent(msg.Context(), ev)
	switch {
	case errors.Is(err, service.ErrNoRecipients), errors.Is(err, service.ErrUnknownEvent):
		metrics.EventsConsumed.WithLabelValues("dropped").Inc()
		logging.Warn().Err(err).Str("uuid", msg.UUID).Msg("[Events] Dropping invalid event")
		return nil
	case err != nil:
		return err
	}

	metrics.EventsConsumed.WithLabelValues("composed").Inc()
	logEv := logging.Info().
		Str("uuid", msg.UUID).
		Str("event", string(ev.Event)).
		Int("messages", len(comp.Messages)).
		Int("schedules", len(comp.Schedules))
	if len(comp.Failed) > 0 {
		logEv = logEv.Int("failed", len(comp.Failed))
	}
	logEv.Msg("[Events] Attendance event composed")
	return nil
}

// giveUp acks an event that still fails after the retry middleware, since
// gochannel would otherwise redeliver a nacked message forever.
func giveUp(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		out, err := h(msg)
		if err != nil {
			metrics.EventsConsumed.WithLabelValues("error").Inc()
			logging.Error().Err(err).Str("uuid", msg.UUID).Msg("[Events] Giving up on attendance event")
			return nil, nil
		}
		return out, nil
	}
}
