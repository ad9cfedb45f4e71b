// Package events carries attendance events from the HTTP intake to the
// composer over an in-process watermill pub/sub.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/oggyb/wa-notifier/internal/service"
)

// TopicAttendance carries service.AttendanceEvent payloads.
const TopicAttendance = "attendance.events"

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("event bus closed")

// Bus owns the pub/sub. Publish and the Consumer share it.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// NewBus creates an in-memory bus. buffer is the per-subscriber channel size.
func NewBus(buffer int64) *Bus {
	logger := NewLogger()
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            buffer,
			BlockPublishUntilSubscriberAck: false,
		}, logger),
		logger: logger,
	}
}

// PublishAttendance encodes ev and puts it on TopicAttendance.
func (b *Bus) PublishAttendance(ctx context.Context, ev service.AttendanceEvent) (string, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("encode attendance event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event", string(ev.Event))
	msg.SetContext(context.WithoutCancel(ctx))

	if err := b.pubsub.Publish(TopicAttendance, msg); err != nil {
		return "", errors.Join(ErrClosed, err)
	}
	return msg.UUID, nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}
