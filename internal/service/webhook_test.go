package service

import (
	"context"
	"testing"
	"time"

	"github.com/oggyb/wa-notifier/internal/domain/autoreply"
	"github.com/oggyb/wa-notifier/internal/domain/device"
	"github.com/oggyb/wa-notifier/internal/domain/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sentMessage dispatches one message that the gateway accepts as providerID.
func sentMessage(t *testing.T, h *harness, providerID string) *message.Message {
	t.Helper()
	dev := h.addDevice(t, "d1")
	h.gw.respond = func(context.Context, *device.Device, int) (string, error) { return providerID, nil }
	m := h.enqueue(t, dev, "6281200000001")
	require.NoError(t, h.dispatcher.RunCycle(h.ctx))
	require.Equal(t, message.StatusSent, h.message(t, m.ID).Status)
	return m
}

func TestWebhookStatus_DeliveredThenRead(t *testing.T) {
	h := newHarness(t)
	m := sentMessage(t, h, "abc123")

	h.clock.Advance(time.Second)
	res, err := h.webhooks.HandleStatus(h.ctx, StatusUpdate{ProviderID: "abc123", Status: "delivered"})
	require.NoError(t, err)
	assert.True(t, res.Processed)

	h.clock.Advance(time.Second)
	res, err = h.webhooks.HandleStatus(h.ctx, StatusUpdate{ProviderID: "abc123", Status: "read"})
	require.NoError(t, err)
	assert.True(t, res.Processed)

	got := h.message(t, m.ID)
	assert.Equal(t, message.StatusRead, got.Status)
	require.NotNil(t, got.DeliveredAt)
	require.NotNil(t, got.ReadAt)
	assert.True(t, got.DeliveredAt.Before(*got.ReadAt))
}

func TestWebhookStatus_ReplayIsIdempotent(t *testing.T) {
	h := newHarness(t)
	m := sentMessage(t, h, "abc123")

	updates := []StatusUpdate{
		{ProviderID: "abc123", Status: "delivery_ack"},
		{ProviderID: "abc123", Status: "read"},
	}
	for _, u := range updates {
		_, err := h.webhooks.HandleStatus(h.ctx, u)
		require.NoError(t, err)
	}
	once := h.message(t, m.ID)

	h.clock.Advance(time.Minute)
	for _, u := range updates {
		res, err := h.webhooks.HandleStatus(h.ctx, u)
		require.NoError(t, err)
		assert.False(t, res.Processed)
		assert.Equal(t, NoteStale, res.Note)
	}
	twice := h.message(t, m.ID)

	assert.Equal(t, once.Status, twice.Status)
	assert.Equal(t, once.DeliveredAt, twice.DeliveredAt)
	assert.Equal(t, once.ReadAt, twice.ReadAt)
}

func TestWebhookStatus_DeliveredAfterReadDoesNotRegress(t *testing.T) {
	h := newHarness(t)
	m := sentMessage(t, h, "abc123")

	_, err := h.webhooks.HandleStatus(h.ctx, StatusUpdate{ProviderID: "abc123", Status: "seen"})
	require.NoError(t, err)

	got := h.message(t, m.ID)
	assert.Equal(t, message.StatusRead, got.Status)
	assert.NotNil(t, got.DeliveredAt, "read without delivered still stamps delivered_at")

	res, err := h.webhooks.HandleStatus(h.ctx, StatusUpdate{ProviderID: "abc123", Status: "delivered"})
	require.NoError(t, err)
	assert.False(t, res.Processed)
	assert.Equal(t, message.StatusRead, h.message(t, m.ID).Status)
}

func TestWebhookStatus_FailedOnlyFromSent(t *testing.T) {
	h := newHarness(t)
	m := sentMessage(t, h, "abc123")

	res, err := h.webhooks.HandleStatus(h.ctx, StatusUpdate{ProviderID: "abc123", Status: "undelivered", Note: "number not on whatsapp"})
	require.NoError(t, err)
	assert.True(t, res.Processed)

	got := h.message(t, m.ID)
	assert.Equal(t, message.StatusFailed, got.Status)
	assert.Equal(t, "number not on whatsapp", got.Error)

	res, err = h.webhooks.HandleStatus(h.ctx, StatusUpdate{ProviderID: "abc123", Status: "read"})
	require.NoError(t, err)
	assert.False(t, res.Processed)
}

func TestWebhookStatus_OrphanIsAcknowledged(t *testing.T) {
	h := newHarness(t)

	res, err := h.webhooks.HandleStatus(h.ctx, StatusUpdate{ProviderID: "nope", Status: "delivered"})
	require.NoError(t, err)
	assert.False(t, res.Processed)
	assert.Equal(t, NoteOrphan, res.Note)

	res, err = h.webhooks.HandleStatus(h.ctx, StatusUpdate{ProviderID: "nope", Status: "exploded"})
	require.NoError(t, err)
	assert.Equal(t, NoteIgnored, res.Note)
}

func TestWebhookStatus_FallsBackToStoreWithoutCache(t *testing.T) {
	h := newHarness(t)
	m := sentMessage(t, h, "abc123")
	h.redis.FlushAll()

	res, err := h.webhooks.HandleStatus(h.ctx, StatusUpdate{ProviderID: "abc123", Status: "delivered"})
	require.NoError(t, err)
	assert.True(t, res.Processed)
	assert.Equal(t, message.StatusDelivered, h.message(t, m.ID).Status)
}

func TestWebhookIncoming_RecordsOnceAndTouchesContact(t *testing.T) {
	h := newHarness(t)
	h.addDevice(t, "d1")

	in := InboundMessage{DeviceToken: "d1-token", ProviderID: "in-1", From: "081200000009", Name: "Budi", Content: "halo"}
	res, err := h.webhooks.HandleIncoming(h.ctx, in)
	require.NoError(t, err)
	assert.True(t, res.Processed)

	res, err = h.webhooks.HandleIncoming(h.ctx, in)
	require.NoError(t, err)
	assert.False(t, res.Processed)
	assert.Equal(t, NoteDuplicate, res.Note)

	// The store's unique key catches replays the cache missed.
	h.redis.FlushAll()
	res, err = h.webhooks.HandleIncoming(h.ctx, in)
	require.NoError(t, err)
	assert.Equal(t, NoteDuplicate, res.Note)

	m, err := h.store.Messages.FindByProviderID(h.ctx, message.DirectionIncoming, "in-1")
	require.NoError(t, err)
	assert.Equal(t, "6281200000009", m.Recipient)
	assert.Equal(t, message.StatusRead, m.Status)

	c, err := h.store.Contacts.GetByPhone(h.ctx, "6281200000009")
	require.NoError(t, err)
	assert.Equal(t, "Budi", c.Name)
	assert.Equal(t, 1, c.MessageCount)
}

func TestWebhookIncoming_UnknownDeviceAcknowledged(t *testing.T) {
	h := newHarness(t)

	res, err := h.webhooks.HandleIncoming(h.ctx, InboundMessage{DeviceToken: "ghost", ProviderID: "x", From: "6281200000009", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, NoteOrphan, res.Note)
}

func TestWebhookIncoming_AutoReplyOnce(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, "d1", func(d *device.Device) { d.AutoReplyEnabled = true })

	first := &autoreply.Rule{DeviceID: dev.ID, Keyword: "info", Mode: autoreply.MatchContains, Priority: 1, Active: true, Response: "Hi {name}, office hours are 07:00-15:00."}
	second := &autoreply.Rule{DeviceID: dev.ID, Keyword: "info sekolah", Mode: autoreply.MatchContains, Priority: 2, Active: true, Response: "second"}
	require.NoError(t, h.store.Rules.Upsert(h.ctx, first))
	require.NoError(t, h.store.Rules.Upsert(h.ctx, second))

	in := InboundMessage{DeviceToken: "d1-token", ProviderID: "in-1", From: "6281200000009", Name: "Budi", Content: "minta info sekolah"}
	_, err := h.webhooks.HandleIncoming(h.ctx, in)
	require.NoError(t, err)
	_, err = h.webhooks.HandleIncoming(h.ctx, in)
	require.NoError(t, err)

	replies, _, err := h.store.Messages.List(h.ctx, message.StatusPending, 1, 10)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "Hi Budi, office hours are 07:00-15:00.", replies[0].Content)
	assert.Equal(t, message.PriorityHigh, replies[0].Priority)
	assert.Equal(t, dev.ID, replies[0].DeviceID)

	rules, err := h.store.Rules.ListActive(h.ctx, dev.ID)
	require.NoError(t, err)
	for _, r := range rules {
		if r.ID == first.ID {
			assert.Equal(t, 1, r.UsageCount)
		} else {
			assert.Equal(t, 0, r.UsageCount)
		}
	}
}

func TestWebhookIncoming_NoReplyOutsideBusinessHours(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC))
	dev := h.addDevice(t, "d1", func(d *device.Device) { d.AutoReplyEnabled = true })

	rule := &autoreply.Rule{
		DeviceID: dev.ID, Keyword: "info", Mode: autoreply.MatchExact, Active: true, Response: "open",
		BusinessHours: &autoreply.BusinessHours{Start: 9 * 60, End: 17 * 60},
	}
	require.NoError(t, h.store.Rules.Upsert(h.ctx, rule))

	_, err := h.webhooks.HandleIncoming(h.ctx, InboundMessage{DeviceToken: "d1-token", ProviderID: "in-1", From: "6281200000009", Content: "info"})
	require.NoError(t, err)

	assert.Equal(t, 0, h.countByStatus(t, message.StatusPending))
}

func TestWebhookIncoming_AutoReplyDisabledOnDevice(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, "d1")
	require.NoError(t, h.store.Rules.Upsert(h.ctx, &autoreply.Rule{DeviceID: dev.ID, Keyword: "info", Active: true, Response: "x"}))

	_, err := h.webhooks.HandleIncoming(h.ctx, InboundMessage{DeviceToken: "d1-token", ProviderID: "in-1", From: "6281200000009", Content: "info"})
	require.NoError(t, err)

	assert.Equal(t, 0, h.countByStatus(t, message.StatusPending))
}

func TestWebhookDeviceStatus(t *testing.T) {
	h := newHarness(t)
	dev := h.addDevice(t, "d1", func(d *device.Device) { d.Status = device.StatusDisconnected })

	res, err := h.webhooks.HandleDeviceStatus(h.ctx, DeviceStatusUpdate{DeviceToken: "d1-token", Status: "open", Phone: "6281299999999"})
	require.NoError(t, err)
	assert.True(t, res.Processed)

	got := h.device(t, dev.ID)
	assert.Equal(t, device.StatusConnected, got.Status)
	assert.Equal(t, "6281299999999", got.Phone)

	// Replaying the same report changes nothing.
	_, err = h.webhooks.HandleDeviceStatus(h.ctx, DeviceStatusUpdate{DeviceToken: "d1-token", Status: "open"})
	require.NoError(t, err)
	assert.Equal(t, device.StatusConnected, h.device(t, dev.ID).Status)

	entries, err := h.store.Audit.ListByEntity(h.ctx, "device", dev.ID.String())
	require.NoError(t, err)
	transitions := 0
	for _, e := range entries {
		if e.To == string(device.StatusConnected) {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions)

	res, err = h.webhooks.HandleDeviceStatus(h.ctx, DeviceStatusUpdate{DeviceToken: "ghost", Status: "open"})
	require.NoError(t, err)
	assert.Equal(t, NoteOrphan, res.Note)
}

func TestMapVocabulary(t *testing.T) {
	for raw, want := range map[string]message.Status{
		"server_ack": message.StatusSent,
		"DELIVERED":  message.StatusDelivered,
		"played":     message.StatusRead,
		"error":      message.StatusFailed,
	} {
		got, ok := MapProviderStatus(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := MapProviderStatus("queued")
	assert.False(t, ok)

	assert.Equal(t, device.StatusConnected, MapDeviceStatus("authenticated"))
	assert.Equal(t, device.StatusDisconnected, MapDeviceStatus("logout"))
	assert.Equal(t, device.StatusConnecting, MapDeviceStatus("qr"))
	assert.Equal(t, device.StatusError, MapDeviceStatus("banned"))
}
