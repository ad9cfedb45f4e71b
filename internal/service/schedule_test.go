package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/domain/device"
	"github.com/oggyb/wa-notifier/internal/domain/message"
	"github.com/oggyb/wa-notifier/internal/domain/schedule"
	"github.com/oggyb/wa-notifier/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSchedule(t *testing.T, h *harness, dev *device.Device, at time.Time) *schedule.Schedule {
	t.Helper()
	sc, err := schedule.New(dev.ID, "081200000001", "reminder", at, 0)
	require.NoError(t, err)
	require.NoError(t, h.schedules.Create(h.ctx, sc))
	return sc
}

func TestSchedule_SweepProducesExactlyOneMessage(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, "d1")
	sc := newSchedule(t, h, dev, testStart.Add(time.Hour))
	assert.Equal(t, "6281200000001", sc.Recipient)
	assert.Equal(t, 3, sc.MaxRetries)

	n, err := h.schedules.SweepDue(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	h.clock.Advance(time.Hour + time.Second)
	n, err = h.schedules.SweepDue(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = h.schedules.SweepDue(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := h.schedules.Get(h.ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusProcessing, got.Status)
	require.NotNil(t, got.MessageID)

	m := h.message(t, *got.MessageID)
	assert.Equal(t, message.StatusPending, m.Status)
	require.NotNil(t, m.ScheduleID)
	assert.Equal(t, sc.ID, *m.ScheduleID)
	assert.Equal(t, 1, h.countByStatus(t, message.StatusPending))
}

func TestSchedule_TerminalOutcomePropagates(t *testing.T) {
	t.Run("sent", func(t *testing.T) {
		h := newHarness(t)
		dev := h.addDevice(t, "d1")
		sc := newSchedule(t, h, dev, testStart)

		_, err := h.schedules.SweepDue(h.ctx)
		require.NoError(t, err)
		require.NoError(t, h.dispatcher.RunCycle(h.ctx))

		got, err := h.schedules.Get(h.ctx, sc.ID)
		require.NoError(t, err)
		assert.Equal(t, schedule.StatusSent, got.Status)
	})

	t.Run("failed", func(t *testing.T) {
		h := newHarness(t)
		dev := h.addDevice(t, "d1")
		h.gw.respond = func(context.Context, *device.Device, int) (string, error) {
			return "", &gateway.ValidationError{StatusCode: 422, Body: "bad number"}
		}
		sc := newSchedule(t, h, dev, testStart)

		_, err := h.schedules.SweepDue(h.ctx)
		require.NoError(t, err)
		require.NoError(t, h.dispatcher.RunCycle(h.ctx))

		got, err := h.schedules.Get(h.ctx, sc.ID)
		require.NoError(t, err)
		assert.Equal(t, schedule.StatusFailed, got.Status)
		assert.Contains(t, got.Error, "bad number")

		retried, err := h.schedules.Retry(h.ctx, sc.ID)
		require.NoError(t, err)
		assert.Equal(t, schedule.StatusPending, retried.Status)
		assert.Equal(t, 1, retried.RetryCount)
	})
}

func TestSchedule_SameInstantDifferentDevicesDispatchConcurrently(t *testing.T) {
	h := newHarness(t)
	a := h.addDevice(t, "a")
	b := h.addDevice(t, "b")
	sa := newSchedule(t, h, a, testStart)
	sb := newSchedule(t, h, b, testStart)

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	h.gw.respond = func(ctx context.Context, _ *device.Device, n int) (string, error) {
		started <- struct{}{}
		select {
		case <-release:
			return fmt.Sprintf("prov-%d", n), nil
		case <-ctx.Done():
			return "", &gateway.TransportError{Err: ctx.Err()}
		}
	}

	n, err := h.schedules.SweepDue(h.ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	done := make(chan struct{})
	go func() {
		_ = h.dispatcher.RunCycle(h.ctx)
		close(done)
	}()

	// Both sends must be in flight at the same time before either is released.
	for range 2 {
		select {
		case <-started:
		case <-time.After(500 * time.Millisecond):
			t.Fatal("devices were not dispatched concurrently")
		}
	}
	close(release)
	<-done

	for _, sc := range []*schedule.Schedule{sa, sb} {
		got, err := h.schedules.Get(h.ctx, sc.ID)
		require.NoError(t, err)
		assert.Equal(t, schedule.StatusSent, got.Status)
	}
}

func TestSchedule_Cancel(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, "d1")

	pending := newSchedule(t, h, dev, testStart.Add(time.Hour))
	require.NoError(t, h.schedules.Cancel(h.ctx, pending.ID))
	got, err := h.schedules.Get(h.ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusCancelled, got.Status)
	assert.ErrorIs(t, h.schedules.Cancel(h.ctx, pending.ID), schedule.ErrNotCancellable)

	// Promoted but not yet picked by the dispatcher: both sides are cancelled.
	promoted := newSchedule(t, h, dev, testStart)
	_, err = h.schedules.SweepDue(h.ctx)
	require.NoError(t, err)
	require.NoError(t, h.schedules.Cancel(h.ctx, promoted.ID))

	got, err = h.schedules.Get(h.ctx, promoted.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusCancelled, got.Status)
	assert.Equal(t, message.StatusCancelled, h.message(t, *got.MessageID).Status)

	require.NoError(t, h.dispatcher.RunCycle(h.ctx))
	assert.Empty(t, h.gw.Calls())
}

func TestSchedule_CancelWhileSending(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, "d1")
	sc := newSchedule(t, h, dev, testStart)

	h.gw.respond = func(ctx context.Context, _ *device.Device, _ int) (string, error) {
		assert.ErrorIs(t, h.schedules.Cancel(ctx, sc.ID), schedule.ErrCancelDeferred)
		return "", &gateway.TransportError{StatusCode: 500, Err: assert.AnError}
	}

	_, err := h.schedules.SweepDue(h.ctx)
	require.NoError(t, err)
	require.NoError(t, h.dispatcher.RunCycle(h.ctx))

	got, err := h.schedules.Get(h.ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusCancelled, got.Status)
	assert.Equal(t, message.StatusCancelled, h.message(t, *got.MessageID).Status)
}

func TestSchedule_RetryRequiresFailed(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, "d1")
	sc := newSchedule(t, h, dev, testStart.Add(time.Hour))

	_, err := h.schedules.Retry(h.ctx, sc.ID)
	assert.ErrorIs(t, err, schedule.ErrInvalidTransition)
}

func TestSchedule_CreatePicksDevice(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "busy", func(d *device.Device) { d.QuotaUsed = 90 })
	idle := h.addDevice(t, "idle")

	sc, err := schedule.New(uuid.Nil, "6281200000001", "hi", testStart.Add(time.Hour), 0)
	require.NoError(t, err)
	require.NoError(t, h.schedules.Create(h.ctx, sc))
	assert.Equal(t, idle.ID, sc.DeviceID)
}

func TestSchedule_CreateWhileSessionConnecting(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, "d1", func(d *device.Device) { d.Status = device.StatusConnecting })

	sc, err := schedule.New(uuid.Nil, "6281200000001", "hi", testStart.Add(time.Hour), 0)
	require.NoError(t, err)
	require.NoError(t, h.schedules.Create(h.ctx, sc))
	assert.Equal(t, dev.ID, sc.DeviceID)
	assert.Equal(t, schedule.StatusPending, sc.Status)
}
