package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oggyb/wa-notifier/internal/domain/template"
	"github.com/oggyb/wa-notifier/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeComposer struct {
	mu     sync.Mutex
	got    []service.AttendanceEvent
	calls  atomic.Int32
	result func(n int32, ev service.AttendanceEvent) error
}

func (f *fakeComposer) BuildFromEvent(_ context.Context, ev service.AttendanceEvent) (*service.Composition, error) {
	n := f.calls.Add(1)
	if f.result != nil {
		if err := f.result(n, ev); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	f.got = append(f.got, ev)
	f.mu.Unlock()
	return &service.Composition{}, nil
}

func (f *fakeComposer) events() []service.AttendanceEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]service.AttendanceEvent(nil), f.got...)
}

// start runs a consumer and waits until its subscription is live.
func start(t *testing.T, composer EventComposer) *Bus {
	t.Helper()
	bus := NewBus(16)
	c := NewConsumer(bus, composer, ConsumerConfig{MaxRetries: 2, InitialInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = bus.Close()
	})

	select {
	case <-c.Ready():
	case <-time.After(time.Second):
		t.Fatal("consumer never subscribed")
	}
	return bus
}

func TestConsumer_DeliversEventToComposer(t *testing.T) {
	composer := &fakeComposer{}
	bus := start(t, composer)

	occurred := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	id, err := bus.PublishAttendance(context.Background(), service.AttendanceEvent{
		Event:      template.EventLate,
		Recipients: []service.Recipient{{Phone: "6281200000001", Name: "Sari"}},
		Variables:  map[string]string{"student_name": "Andi"},
		OccurredAt: occurred,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Eventually(t, func() bool { return len(composer.events()) == 1 }, time.Second, 5*time.Millisecond)
	got := composer.events()[0]
	assert.Equal(t, template.EventLate, got.Event)
	assert.Equal(t, "Andi", got.Variables["student_name"])
	assert.True(t, got.OccurredAt.Equal(occurred))
}

func TestConsumer_RetriesTransientFailures(t *testing.T) {
	composer := &fakeComposer{result: func(n int32, _ service.AttendanceEvent) error {
		if n == 1 {
			return errors.New("store unavailable")
		}
		return nil
	}}
	bus := start(t, composer)

	_, err := bus.PublishAttendance(context.Background(), service.AttendanceEvent{
		Event:      template.EventAbsent,
		Recipients: []service.Recipient{{Phone: "6281200000001"}},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(composer.events()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), composer.calls.Load())
}

func TestConsumer_DropsInvalidEventsWithoutRetry(t *testing.T) {
	composer := &fakeComposer{result: func(int32, service.AttendanceEvent) error {
		return service.ErrNoRecipients
	}}
	bus := start(t, composer)

	_, err := bus.PublishAttendance(context.Background(), service.AttendanceEvent{Event: template.EventLate})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return composer.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), composer.calls.Load())
}

func TestConsumer_GivesUpAfterRetries(t *testing.T) {
	composer := &fakeComposer{result: func(int32, service.AttendanceEvent) error {
		return errors.New("still down")
	}}
	bus := start(t, composer)

	_, err := bus.PublishAttendance(context.Background(), service.AttendanceEvent{
		Event:      template.EventAbsent,
		Recipients: []service.Recipient{{Phone: "6281200000001"}},
	})
	require.NoError(t, err)

	// One attempt plus two retries, then the event is acked and not redelivered.
	require.Eventually(t, func() bool { return composer.calls.Load() == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), composer.calls.Load())
}
