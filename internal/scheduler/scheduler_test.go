package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oggyb/wa-notifier/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// fakeBatchProcessor is a test double that counts ProcessBatch calls,
// signals when a batch starts, and can block until explicitly released.
type fakeBatchProcessor struct {
	callCount int32

	started chan struct{} // signals when a batch starts
	block   chan struct{} // keeps ProcessBatch blocked until closed
}

func newFakeBatchProcessor() *fakeBatchProcessor {
	return &fakeBatchProcessor{
		started: make(chan struct{}, 1),
		block:   make(chan struct{}),
	}
}

func (f *fakeBatchProcessor) ProcessBatch(ctx context.Context) error {
	atomic.AddInt32(&f.callCount, 1)

	select {
	case f.started <- struct{}{}:
	default:
	}

	select {
	case <-f.block:
	case <-ctx.Done():
	}
	return nil
}

func (f *fakeBatchProcessor) Calls() int32 {
	return atomic.LoadInt32(&f.callCount)
}

func (f *fakeBatchProcessor) waitStarted(t *testing.T, msg string) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(time.Second):
		t.Fatal(msg)
	}
}

// serve runs r until the test ends and returns once its loop accepts commands.
func serve(t *testing.T, r *Runner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, r.serving.Load, time.Second, time.Millisecond)
}

// tick waits until the runner has re-armed its timer, then moves the clock by d.
func tick(t *testing.T, clk *clock.Fake, d time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool { return clk.ActiveTimers() == 1 }, time.Second, time.Millisecond)
	clk.Advance(d)
}

func TestRunner_StartTriggersBatch(t *testing.T) {
	clk := clock.NewFake(epoch)
	fake := newFakeBatchProcessor()
	r := New(fake, Config{Interval: time.Minute, BatchTimeout: 2 * time.Second, Clock: clk})
	serve(t, r)

	require.NoError(t, r.Start())
	defer close(fake.block)

	tick(t, clk, time.Minute)
	fake.waitStarted(t, "expected ProcessBatch to be called after Start")
	assert.True(t, r.IsRunning())
}

func TestRunner_TicksFollowTheClock(t *testing.T) {
	clk := clock.NewFake(epoch)
	var calls atomic.Int32
	r := New(BatchFunc(func(context.Context) error {
		calls.Add(1)
		return nil
	}), Config{Interval: 2 * time.Minute, AutoStart: true, Clock: clk})
	serve(t, r)

	tick(t, clk, 2*time.Minute-time.Second)
	assert.Zero(t, calls.Load())

	clk.Advance(time.Second)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	tick(t, clk, 2*time.Minute)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
}

func TestRunner_IdleUntilStarted(t *testing.T) {
	clk := clock.NewFake(epoch)
	fake := newFakeBatchProcessor()
	close(fake.block)
	r := New(fake, Config{Interval: time.Minute, Clock: clk})
	serve(t, r)

	for range 3 {
		tick(t, clk, time.Minute)
	}
	tick(t, clk, 0)
	assert.Zero(t, fake.Calls())
	assert.False(t, r.IsRunning())
}

func TestRunner_AutoStart(t *testing.T) {
	clk := clock.NewFake(epoch)
	fake := newFakeBatchProcessor()
	close(fake.block)
	r := New(fake, Config{Interval: time.Minute, AutoStart: true, Jitter: time.Second, Clock: clk})
	serve(t, r)

	tick(t, clk, time.Minute+time.Second)
	fake.waitStarted(t, "auto-started runner did not tick")
}

func TestRunner_StopWaitsForBatchCompletion(t *testing.T) {
	clk := clock.NewFake(epoch)
	fake := newFakeBatchProcessor()
	r := New(fake, Config{Interval: time.Minute, BatchTimeout: 2 * time.Second, Clock: clk})
	serve(t, r)

	require.NoError(t, r.Start())
	tick(t, clk, time.Minute)
	fake.waitStarted(t, "ProcessBatch was not called in time")

	done := make(chan struct{})
	go func() {
		_ = r.Stop()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Stop() returned before batch finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(fake.block)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() did not return after batch completion")
	}
	assert.False(t, r.IsRunning())
}

func TestRunner_StartStopStartFlow(t *testing.T) {
	clk := clock.NewFake(epoch)
	fake := newFakeBatchProcessor()
	r := New(fake, Config{Interval: time.Minute, BatchTimeout: 2 * time.Second, Clock: clk})
	serve(t, r)

	require.NoError(t, r.Start())
	tick(t, clk, time.Minute)
	fake.waitStarted(t, "first Start: ProcessBatch was not called")
	close(fake.block)

	require.NoError(t, r.Stop())
	assert.False(t, r.IsRunning())

	// Ticks while stopped are skipped.
	tick(t, clk, time.Minute)
	tick(t, clk, 0)
	assert.Equal(t, int32(1), fake.Calls())

	require.NoError(t, r.Start())
	assert.True(t, r.IsRunning())

	tick(t, clk, time.Minute)
	fake.waitStarted(t, "second Start: ProcessBatch was not called")
}

func TestRunner_BatchPanicIsRecovered(t *testing.T) {
	clk := clock.NewFake(epoch)
	var calls atomic.Int32
	r := New(BatchFunc(func(context.Context) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return errors.New("still failing")
	}), Config{Interval: time.Minute, AutoStart: true, Clock: clk})
	serve(t, r)

	for i := range 3 {
		tick(t, clk, time.Minute)
		require.Eventually(t, func() bool { return calls.Load() == int32(i+1) }, time.Second, time.Millisecond)
	}
	assert.True(t, r.IsRunning())
}

func TestRunner_NotServing(t *testing.T) {
	r := New(newFakeBatchProcessor(), Config{})

	err := r.Start()
	assert.ErrorIs(t, err, ErrNotServing)
	assert.False(t, r.IsRunning())
}

func TestRunner_RaceStartStop(t *testing.T) {
	fake := newFakeBatchProcessor()
	r := New(fake, Config{Interval: time.Minute, BatchTimeout: 50 * time.Millisecond, Clock: clock.NewFake(epoch)})
	serve(t, r)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.Start()
		}()
		go func() {
			defer wg.Done()
			_ = r.Stop()
		}()
	}
	wg.Wait()
}

func TestGroup(t *testing.T) {
	clk := clock.NewFake(epoch)
	a := New(newFakeBatchProcessor(), Config{Name: "a", Interval: time.Hour, Clock: clk})
	b := New(newFakeBatchProcessor(), Config{Name: "b", Interval: time.Hour, Clock: clk})
	serve(t, a)
	serve(t, b)

	g := Group{a, b}
	assert.False(t, g.IsRunning())

	require.NoError(t, g.Start())
	assert.True(t, a.IsRunning())
	assert.True(t, b.IsRunning())

	require.NoError(t, b.Stop())
	assert.True(t, g.IsRunning())

	require.NoError(t, g.Stop())
	assert.False(t, g.IsRunning())
}
