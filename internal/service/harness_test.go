package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	rediscache "github.com/oggyb/wa-notifier/internal/cache/redis"
	"github.com/oggyb/wa-notifier/internal/clock"
	"github.com/oggyb/wa-notifier/internal/domain/device"
	"github.com/oggyb/wa-notifier/internal/domain/message"
	"github.com/oggyb/wa-notifier/internal/repository/memory"
	"github.com/stretchr/testify/require"
)

// 2026-03-02 is a Monday.
var testStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type sendCall struct {
	DeviceID  uuid.UUID
	Recipient string
	Content   string
}

// fakeGateway records sends. respond decides the outcome of each call; the
// default returns a fresh provider id.
type fakeGateway struct {
	mu      sync.Mutex
	calls   []sendCall
	seq     int
	respond func(ctx context.Context, dev *device.Device, n int) (string, error)
}

func (g *fakeGateway) Send(ctx context.Context, dev *device.Device, recipient, content, _ string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, sendCall{DeviceID: dev.ID, Recipient: recipient, Content: content})
	g.seq++
	n := g.seq
	respond := g.respond
	g.mu.Unlock()

	if respond != nil {
		return respond(ctx, dev, n)
	}
	return fmt.Sprintf("prov-%d", n), nil
}

func (g *fakeGateway) Health(context.Context) error { return nil }

func (g *fakeGateway) Calls() []sendCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sendCall(nil), g.calls...)
}

type harness struct {
	ctx   context.Context
	clock *clock.Fake
	store *memory.Store
	gw    *fakeGateway
	redis *miniredis.Miniredis

	registry   *Registry
	messages   *MessageService
	schedules  *ScheduleService
	dispatcher *Dispatcher
	replier    *AutoReplier
	webhooks   *WebhookProcessor
	composer   *Composer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	c := rediscache.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })

	h := &harness{
		ctx:   context.Background(),
		clock: clock.NewFake(testStart),
		store: memory.NewStore(),
		gw:    &fakeGateway{},
		redis: mr,
	}

	h.registry = NewRegistry(h.store.Devices, h.store.Audit, h.clock, 3)
	h.messages = NewMessageService(h.store.Messages, h.registry, h.store.Audit, h.clock, "62")
	h.schedules = NewScheduleService(h.store.Schedules, h.store.Messages, h.registry, h.store.Audit, h.clock, "62", 100, 3)
	h.messages.SetTerminalNotifier(h.schedules)
	h.dispatcher = NewDispatcher(h.store.Messages, h.registry, h.gw, c, h.schedules, h.store.Audit, h.clock, DispatcherConfig{
		BatchSize:   50,
		MaxWorkers:  4,
		SendTimeout: time.Second,
		Backoff:     Backoff{Base: 30 * time.Second, Max: 30 * time.Minute},
	})
	h.replier = NewAutoReplier(h.store.Rules, h.messages, h.clock, time.UTC)
	h.webhooks = NewWebhookProcessor(h.store.Messages, h.registry, h.store.Contacts, h.replier, c, h.store.Audit, h.clock, "62")
	h.composer = NewComposer(h.store.Templates, h.store.Contacts, h.messages, h.schedules, h.clock, ComposerConfig{
		DefaultLanguage: "en",
		SchoolName:      "SMA 1",
		Location:        time.UTC,
	})
	return h
}

func (h *harness) addDevice(t *testing.T, name string, mutate ...func(*device.Device)) *device.Device {
	t.Helper()
	d := &device.Device{
		Name:         name,
		Token:        name + "-token",
		Status:       device.StatusConnected,
		QuotaLimit:   100,
		QuotaPeriod:  24 * time.Hour,
		QuotaResetAt: testStart.Add(24 * time.Hour),
		MaxRetries:   3,
	}
	for _, m := range mutate {
		m(d)
	}
	require.NoError(t, h.store.Devices.Upsert(h.ctx, d))
	return d
}

func (h *harness) enqueue(t *testing.T, dev *device.Device, to string) *message.Message {
	t.Helper()
	id := dev.ID
	m, err := h.messages.Send(h.ctx, SendInput{DeviceID: &id, To: to, Content: "hello"})
	require.NoError(t, err)
	return m
}

func (h *harness) message(t *testing.T, id uuid.UUID) *message.Message {
	t.Helper()
	m, err := h.store.Messages.Get(h.ctx, id)
	require.NoError(t, err)
	return m
}

func (h *harness) device(t *testing.T, id uuid.UUID) *device.Device {
	t.Helper()
	d, err := h.store.Devices.Get(h.ctx, id)
	require.NoError(t, err)
	return d
}

func (h *harness) countByStatus(t *testing.T, status message.Status) int {
	t.Helper()
	_, total, err := h.store.Messages.List(h.ctx, status, 1, 1000)
	require.NoError(t, err)
	return int(total)
}
