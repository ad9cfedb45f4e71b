package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/oggyb/wa-notifier/internal/clock"
	"github.com/oggyb/wa-notifier/internal/logging"
)

// BatchProcessor is the dependency that actually does the work.
// The scheduler will call ProcessBatch on every tick.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context) error
}

// BatchFunc adapts a plain function to BatchProcessor.
type BatchFunc func(ctx context.Context) error

func (f BatchFunc) ProcessBatch(ctx context.Context) error { return f(ctx) }

// SchedulerService exposes a small control surface for a recurring worker.
// Start/Stop are synchronous controls, and IsRunning reports
// whether the worker is currently accepting ticks.
type SchedulerService interface {
	Start() error
	Stop() error
	IsRunning() bool
}

// DefaultInterval is used when no custom interval is provided.
const DefaultInterval = 2 * time.Minute

// DefaultBatchTimeout is how long we allow a single batch to run
// before cancelling it via context timeout.
const DefaultBatchTimeout = 30 * time.Second

// controlTimeout is how long we wait for the control loop to
// accept a command and acknowledge it. This protects callers
// from hanging forever if the loop is not serving.
const controlTimeout = 2 * time.Second

// ErrNotServing is returned by Start/Stop when the control loop is not running.
var ErrNotServing = errors.New("scheduler control loop not responding")

type controlOp int

const (
	opStart controlOp = iota
	opStop
	opStatus
)

// controlMsg is sent over the ctrl channel to drive the runner's state.
type controlMsg struct {
	op   controlOp
	resp chan bool
}

// Config tunes a Runner.
type Config struct {
	// Name labels log lines and the supervisor entry.
	Name         string
	Interval     time.Duration
	BatchTimeout time.Duration
	// Jitter adds a random delay in [0, Jitter) to every interval.
	Jitter time.Duration
	// AutoStart makes the runner accept ticks as soon as Serve begins.
	AutoStart bool
	// Clock arms the tick timer. Defaults to the wall clock.
	Clock clock.TimerClock
}

// Runner calls a BatchProcessor on a fixed interval while it is started.
// All mutable state lives in the Serve goroutine, so no locks are needed.
// Runner implements suture.Service.
type Runner struct {
	processor BatchProcessor
	cfg       Config
	ctrl      chan controlMsg
	serving   atomic.Bool
}

// New creates a runner. Zero interval or timeout fall back to the defaults.
func New(p BatchProcessor, cfg Config) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if cfg.Name == "" {
		cfg.Name = "scheduler"
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &Runner{
		processor: p,
		cfg:       cfg,
		ctrl:      make(chan controlMsg),
	}
}

func (r *Runner) String() string { return r.cfg.Name }

// Start tells the runner to begin processing ticks.
// It blocks until the loop has acknowledged the state change.
func (r *Runner) Start() error {
	if _, err := r.send(opStart); err != nil {
		return fmt.Errorf("[Scheduler] %s start: %w", r.cfg.Name, err)
	}
	return nil
}

// Stop tells the runner to stop accepting new ticks. If a batch is
// currently running, Stop waits until that batch finishes (or times out).
func (r *Runner) Stop() error {
	if _, err := r.send(opStop); err != nil {
		return fmt.Errorf("[Scheduler] %s stop: %w", r.cfg.Name, err)
	}
	return nil
}

// IsRunning reports whether new ticks will be processed. It is false while
// the loop is not serving.
func (r *Runner) IsRunning() bool {
	running, err := r.send(opStatus)
	return err == nil && running
}

func (r *Runner) send(op controlOp) (bool, error) {
	if !r.serving.Load() {
		return false, ErrNotServing
	}
	resp := make(chan bool, 1)

	// Batches run inline in the loop, so a command can wait for one to finish.
	wait := controlTimeout + r.cfg.BatchTimeout

	select {
	case r.ctrl <- controlMsg{op: op, resp: resp}:
	case <-time.After(wait):
		return false, ErrNotServing
	}

	select {
	case v := <-resp:
		return v, nil
	case <-time.After(controlTimeout):
		return false, errors.New("acknowledgement timeout")
	}
}

func (r *Runner) nextDelay() time.Duration {
	d := r.cfg.Interval
	if r.cfg.Jitter > 0 {
		d += rand.N(r.cfg.Jitter)
	}
	return d
}

// Serve is the heart of the runner. It owns all mutable state and reacts to
// control messages or timer ticks until ctx is done.
func (r *Runner) Serve(ctx context.Context) error {
	timer := r.cfg.Clock.NewTimer(r.nextDelay())
	defer timer.Stop()

	r.serving.Store(true)
	defer r.serving.Store(false)

	running := r.cfg.AutoStart
	if running {
		logging.Info().
			Str("runner", r.cfg.Name).
			Dur("interval", r.cfg.Interval).
			Msg("[Scheduler] Started")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg := <-r.ctrl:
			switch msg.op {
			case opStart:
				if !running {
					logging.Info().
						Str("runner", r.cfg.Name).
						Dur("interval", r.cfg.Interval).
						Dur("batch_timeout", r.cfg.BatchTimeout).
						Msg("[Scheduler] Started")
				}
				running = true
				msg.resp <- true

			case opStop:
				if running {
					logging.Info().Str("runner", r.cfg.Name).Msg("[Scheduler] Stopped")
				}
				running = false
				msg.resp <- true

			case opStatus:
				msg.resp <- running
			}

		case <-timer.C():
			if running {
				r.runBatch(ctx)
			}
			timer.Reset(r.nextDelay())
		}
	}
}

// runBatch executes one time-bounded batch and never panics.
func (r *Runner) runBatch(ctx context.Context) {
	start := time.Now()
	batchCtx, cancel := context.WithTimeout(ctx, r.cfg.BatchTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			logging.Error().
				Str("runner", r.cfg.Name).
				Interface("panic", rec).
				Msg("[Scheduler] Recovered from panic in batch")
		}
	}()

	if err := r.processor.ProcessBatch(batchCtx); err != nil {
		logging.Error().Err(err).Str("runner", r.cfg.Name).Msg("[Scheduler] Batch failed")
		return
	}
	logging.Debug().
		Str("runner", r.cfg.Name).
		Dur("took", time.Since(start)).
		Msg("[Scheduler] Batch completed")
}

// Group controls several runners as one. IsRunning is true when any member runs.
type Group []SchedulerService

func (g Group) Start() error {
	var errs []error
	for _, s := range g {
		errs = append(errs, s.Start())
	}
	return errors.Join(errs...)
}

func (g Group) Stop() error {
	var errs []error
	for _, s := range g {
		errs = append(errs, s.Stop())
	}
	return errors.Join(errs...)
}

func (g Group) IsRunning() bool {
	for _, s := range g {
		if s.IsRunning() {
			return true
		}
	}
	return false
}
