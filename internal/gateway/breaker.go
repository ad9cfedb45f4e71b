package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/domain/device"
	"github.com/oggyb/wa-notifier/internal/logging"
	"github.com/oggyb/wa-notifier/internal/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig tunes the per-device circuit breakers.
type BreakerConfig struct {
	// ConsecutiveFailures opens the breaker. Zero disables breaking.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before a half-open probe.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
}

// BreakerClient wraps a Client with one circuit breaker per device, so a dead
// session stops burning quota and time without affecting other devices.
type BreakerClient struct {
	next Client
	cfg  BreakerConfig

	mu       sync.Mutex
	breakers map[uuid.UUID]*gobreaker.CircuitBreaker[string]
}

func NewBreakerClient(next Client, cfg BreakerConfig) *BreakerClient {
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	return &BreakerClient{
		next:     next,
		cfg:      cfg,
		breakers: make(map[uuid.UUID]*gobreaker.CircuitBreaker[string]),
	}
}

func (b *BreakerClient) breaker(dev *device.Device) *gobreaker.CircuitBreaker[string] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[dev.ID]; ok {
		return cb
	}

	name := dev.Name
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: b.cfg.HalfOpenRequests,
		Timeout:     b.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.cfg.ConsecutiveFailures
		},
		// Provider rejections of a single message say nothing about the session.
		IsSuccessful: func(err error) bool {
			return err == nil || IsValidation(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("device", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("[Gateway] Circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	b.breakers[dev.ID] = cb
	return cb
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Send runs the call through the device breaker. Rejections by an open breaker
// are reported as ErrCircuitOpen.
func (b *BreakerClient) Send(ctx context.Context, dev *device.Device, recipient, content, mediaURL string) (string, error) {
	if b.cfg.ConsecutiveFailures == 0 {
		return b.next.Send(ctx, dev, recipient, content, mediaURL)
	}

	id, err := b.breaker(dev).Execute(func() (string, error) {
		return b.next.Send(ctx, dev, recipient, content, mediaURL)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", ErrCircuitOpen
	}
	return id, err
}

func (b *BreakerClient) Health(ctx context.Context) error {
	return b.next.Health(ctx)
}

var _ Client = (*BreakerClient)(nil)
