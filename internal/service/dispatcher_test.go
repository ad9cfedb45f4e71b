package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oggyb/wa-notifier/internal/cache"
	"github.com/oggyb/wa-notifier/internal/domain/device"
	"github.com/oggyb/wa-notifier/internal/domain/message"
	"github.com/oggyb/wa-notifier/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_QuotaStopsDeviceForCycle(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, "d1", func(d *device.Device) { d.QuotaLimit = 2 })

	// quota_used must never pass quota_limit while a send is in flight.
	h.gw.respond = func(ctx context.Context, d *device.Device, n int) (string, error) {
		cur, err := h.store.Devices.Get(ctx, d.ID)
		require.NoError(t, err)
		assert.LessOrEqual(t, cur.QuotaUsed, cur.QuotaLimit)
		return fmt.Sprintf("prov-%d", n), nil
	}

	for range 3 {
		h.enqueue(t, dev, "6281200000001")
	}

	require.NoError(t, h.dispatcher.RunCycle(h.ctx))

	assert.Equal(t, 2, h.countByStatus(t, message.StatusSent))
	assert.Equal(t, 1, h.countByStatus(t, message.StatusPending))
	assert.Len(t, h.gw.Calls(), 2)
	assert.Equal(t, 2, h.device(t, dev.ID).QuotaUsed)

	// Another cycle without a reset sends nothing.
	require.NoError(t, h.dispatcher.RunCycle(h.ctx))
	assert.Len(t, h.gw.Calls(), 2)

	// After the period elapses the last one goes out.
	h.clock.Advance(24 * time.Hour)
	n, err := h.registry.ResetQuotas(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, h.dispatcher.RunCycle(h.ctx))
	assert.Equal(t, 3, h.countByStatus(t, message.StatusSent))
}

func TestDispatcher_HighPriorityFirst(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, "d1", func(d *device.Device) { d.QuotaLimit = 1 })
	id := dev.ID

	low, err := h.messages.Send(h.ctx, SendInput{DeviceID: &id, To: "6281200000001", Content: "low"})
	require.NoError(t, err)
	high, err := h.messages.Send(h.ctx, SendInput{DeviceID: &id, To: "6281200000002", Content: "high", Priority: message.PriorityHigh})
	require.NoError(t, err)

	require.NoError(t, h.dispatcher.RunCycle(h.ctx))

	assert.Equal(t, message.StatusSent, h.message(t, high.ID).Status)
	assert.Equal(t, message.StatusPending, h.message(t, low.ID).Status)
}

func TestDispatcher_ThrottleSpacesSends(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, "d1", func(d *device.Device) { d.ThrottleInterval = time.Minute })
	for range 3 {
		h.enqueue(t, dev, "6281200000001")
	}

	require.NoError(t, h.dispatcher.RunCycle(h.ctx))
	assert.Len(t, h.gw.Calls(), 1)

	h.clock.Advance(30 * time.Second)
	require.NoError(t, h.dispatcher.RunCycle(h.ctx))
	assert.Len(t, h.gw.Calls(), 1, "second send must wait for the throttle interval")

	h.clock.Advance(31 * time.Second)
	require.NoError(t, h.dispatcher.RunCycle(h.ctx))
	assert.Len(t, h.gw.Calls(), 2)
}

func TestDispatcher_SuccessRecordsProviderID(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, "d1")
	h.gw.respond = func(context.Context, *device.Device, int) (string, error) { return "abc123", nil }
	m := h.enqueue(t, dev, "6281200000001")

	require.NoError(t, h.dispatcher.RunCycle(h.ctx))

	got := h.message(t, m.ID)
	assert.Equal(t, message.StatusSent, got.Status)
	assert.Equal(t, "abc123", got.ProviderMessageID)
	require.NotNil(t, got.SentAt)
	assert.True(t, got.SentAt.Equal(testStart))

	cached, err := h.redis.Get(cache.SentMessages.Key("abc123"))
	require.NoError(t, err)
	assert.Equal(t, m.ID.String(), cached)
	assert.NotNil(t, h.device(t, dev.ID).LastSeenAt)
}

func TestDispatcher_RetryBackoffUntilFailed(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, "d1")
	h.gw.respond = func(context.Context, *device.Device, int) (string, error) {
		return "", &gateway.TransportError{StatusCode: 503, Err: errors.New("unavailable")}
	}
	m := h.enqueue(t, dev, "6281200000001")
	require.Equal(t, 3, m.MaxRetries)

	require.NoError(t, h.dispatcher.RunCycle(h.ctx))
	got := h.message(t, m.ID)
	assert.Equal(t, message.StatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.ScheduledAt)
	assert.True(t, got.ScheduledAt.Equal(testStart.Add(30*time.Second)))

	// Not due yet.
	require.NoError(t, h.dispatcher.RunCycle(h.ctx))
	assert.Len(t, h.gw.Calls(), 1)

	h.clock.Advance(30 * time.Second)
	require.NoError(t, h.dispatcher.RunCycle(h.ctx))
	got = h.message(t, m.ID)
	assert.Equal(t, 2, got.RetryCount)
	assert.True(t, got.ScheduledAt.Equal(h.clock.Now().Add(time.Minute)))

	h.clock.Advance(time.Minute)
	require.NoError(t, h.dispatcher.RunCycle(h.ctx))
	got = h.message(t, m.ID)
	assert.Equal(t, message.StatusFailed, got.Status)
	assert.Equal(t, got.MaxRetries, got.RetryCount)
	assert.Contains(t, got.Error, "unavailable")

	// Failed messages are never picked again.
	h.clock.Advance(time.Hour)
	require.NoError(t, h.dispatcher.RunCycle(h.ctx))
	assert.Len(t, h.gw.Calls(), 3)
	assert.LessOrEqual(t, h.message(t, m.ID).RetryCount, got.MaxRetries)

	// Every attempt was billed.
	assert.Equal(t, 3, h.device(t, dev.ID).QuotaUsed)
}

func TestDispatcher_ValidationErrorFailsImmediately(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, "d1")
	h.gw.respond = func(context.Context, *device.Device, int) (string, error) {
		return "", &gateway.ValidationError{StatusCode: 400, Body: "invalid recipient"}
	}
	m := h.enqueue(t, dev, "6281200000001")

	require.NoError(t, h.dispatcher.RunCycle(h.ctx))

	got := h.message(t, m.ID)
	assert.Equal(t, message.StatusFailed, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Contains(t, got.Error, "invalid recipient")
	assert.Equal(t, 0, h.device(t, dev.ID).QuotaUsed, "rejected requests give the quota back")
}

func TestDispatcher_CircuitOpenLeavesPending(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, "d1")
	h.gw.respond = func(context.Context, *device.Device, int) (string, error) { return "", gateway.ErrCircuitOpen }
	m1 := h.enqueue(t, dev, "6281200000001")
	m2 := h.enqueue(t, dev, "6281200000002")

	require.NoError(t, h.dispatcher.RunCycle(h.ctx))

	assert.Len(t, h.gw.Calls(), 1, "lane stops after the breaker refuses")
	assert.Equal(t, message.StatusPending, h.message(t, m1.ID).Status)
	assert.Equal(t, message.StatusPending, h.message(t, m2.ID).Status)
	assert.Equal(t, 0, h.message(t, m1.ID).RetryCount+h.message(t, m2.ID).RetryCount)
	assert.Equal(t, 0, h.device(t, dev.ID).QuotaUsed)
}

func TestDispatcher_DeviceFaultsFlipDeviceToError(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, "d1", func(d *device.Device) { d.MaxRetries = 5 })
	h.gw.respond = func(context.Context, *device.Device, int) (string, error) {
		return "", &gateway.TransportError{StatusCode: 401, DeviceFault: true, Err: errors.New("session logged out")}
	}
	for range 4 {
		h.enqueue(t, dev, "6281200000001")
	}

	require.NoError(t, h.dispatcher.RunCycle(h.ctx))

	got := h.device(t, dev.ID)
	assert.Equal(t, device.StatusError, got.Status)
	assert.Len(t, h.gw.Calls(), 3, "lane stops once the device is in error")
	assert.Equal(t, 4, h.countByStatus(t, message.StatusPending))

	entries, err := h.store.Audit.ListByEntity(h.ctx, "device", dev.ID.String())
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, string(device.StatusError), entries[len(entries)-1].To)

	// Error devices are skipped entirely.
	h.clock.Advance(time.Hour)
	require.NoError(t, h.dispatcher.RunCycle(h.ctx))
	assert.Len(t, h.gw.Calls(), 3)
}

func TestDispatcher_DevicesRunConcurrently(t *testing.T) {
	h := newHarness(t)
	a := h.addDevice(t, "a", func(d *device.Device) { d.ThrottleInterval = time.Minute })
	b := h.addDevice(t, "b", func(d *device.Device) { d.ThrottleInterval = time.Minute })

	// Each send waits until the other device's send is also in flight.
	var inFlight atomic.Int32
	both := make(chan struct{})
	var once sync.Once
	h.gw.respond = func(ctx context.Context, _ *device.Device, n int) (string, error) {
		if inFlight.Add(1) == 2 {
			once.Do(func() { close(both) })
		}
		select {
		case <-both:
			return fmt.Sprintf("prov-%d", n), nil
		case <-ctx.Done():
			return "", &gateway.TransportError{Err: ctx.Err()}
		}
	}

	ma := h.enqueue(t, a, "6281200000001")
	mb := h.enqueue(t, b, "6281200000002")

	require.NoError(t, h.dispatcher.RunCycle(h.ctx))

	assert.Equal(t, message.StatusSent, h.message(t, ma.ID).Status)
	assert.Equal(t, message.StatusSent, h.message(t, mb.ID).Status)
}

func TestDispatcher_DeferredCancel(t *testing.T) {
	t.Run("failed send is cancelled", func(t *testing.T) {
		h := newHarness(t)
		dev := h.addDevice(t, "d1")
		var m *message.Message
		h.gw.respond = func(ctx context.Context, _ *device.Device, _ int) (string, error) {
			assert.ErrorIs(t, h.messages.Cancel(ctx, m.ID), message.ErrCancelDeferred)
			return "", &gateway.TransportError{StatusCode: 502, Err: errors.New("bad gateway")}
		}
		m = h.enqueue(t, dev, "6281200000001")

		require.NoError(t, h.dispatcher.RunCycle(h.ctx))

		got := h.message(t, m.ID)
		assert.Equal(t, message.StatusCancelled, got.Status)
		assert.False(t, got.CancelRequested)
	})

	t.Run("successful send clears the request", func(t *testing.T) {
		h := newHarness(t)
		dev := h.addDevice(t, "d1")
		var m *message.Message
		h.gw.respond = func(ctx context.Context, _ *device.Device, _ int) (string, error) {
			assert.ErrorIs(t, h.messages.Cancel(ctx, m.ID), message.ErrCancelDeferred)
			return "prov-1", nil
		}
		m = h.enqueue(t, dev, "6281200000001")

		require.NoError(t, h.dispatcher.RunCycle(h.ctx))

		got := h.message(t, m.ID)
		assert.Equal(t, message.StatusSent, got.Status)
		assert.False(t, got.CancelRequested)
	})
}

func TestDispatcher_SendTimeoutIsRetryable(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, "d1")
	h.dispatcher.cfg.SendTimeout = 20 * time.Millisecond
	h.gw.respond = func(ctx context.Context, _ *device.Device, _ int) (string, error) {
		<-ctx.Done()
		return "", &gateway.TransportError{Err: ctx.Err()}
	}
	m := h.enqueue(t, dev, "6281200000001")

	require.NoError(t, h.dispatcher.RunCycle(h.ctx))

	got := h.message(t, m.ID)
	assert.Equal(t, message.StatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: 30 * time.Second, Max: 5 * time.Minute}
	assert.Equal(t, 30*time.Second, b.Delay(1))
	assert.Equal(t, time.Minute, b.Delay(2))
	assert.Equal(t, 2*time.Minute, b.Delay(3))
	assert.Equal(t, 5*time.Minute, b.Delay(5))
	assert.Equal(t, 5*time.Minute, b.Delay(60))
}
