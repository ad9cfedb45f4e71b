package service

import (
	"context"
	"fmt"
	"time"

	"github.com/oggyb/wa-notifier/internal/clock"
	"github.com/oggyb/wa-notifier/internal/domain/autoreply"
	"github.com/oggyb/wa-notifier/internal/domain/device"
	"github.com/oggyb/wa-notifier/internal/domain/message"
	"github.com/oggyb/wa-notifier/internal/domain/template"
	"github.com/oggyb/wa-notifier/internal/logging"
	"github.com/oggyb/wa-notifier/internal/metrics"
)

// AutoReplier answers inbound messages with the best matching keyword rule.
type AutoReplier struct {
	rules    autoreply.Repository
	messages *MessageService
	clock    clock.Clock
	location *time.Location
}

// NewAutoReplier creates an auto-replier. loc is used to render {date} and {time}.
func NewAutoReplier(rules autoreply.Repository, messages *MessageService, clk clock.Clock, loc *time.Location) *AutoReplier {
	if clk == nil {
		clk = clock.Real{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AutoReplier{rules: rules, messages: messages, clock: clk, location: loc}
}

// HandleInbound enqueues at most one reply for an inbound message. It returns
// the reply, or nil when no rule matched.
func (a *AutoReplier) HandleInbound(ctx context.Context, dev *device.Device, in *message.Message, senderName string) (*message.Message, error) {
	rules, err := a.rules.ListActive(ctx, dev.ID)
	if err != nil {
		return nil, fmt.Errorf("list auto-reply rules: %w", err)
	}

	now := a.clock.Now()
	rule := autoreply.FindMatchingRule(rules, dev.ID, in.Content, now)
	if rule == nil {
		return nil, nil
	}

	vars := builtinVars(now.In(a.location))
	vars["name"] = senderName
	vars["phone"] = in.Recipient
	content, unresolved := template.Render(rule.Response, vars)
	if len(unresolved) > 0 {
		logging.Warn().
			Str("rule_id", rule.ID.String()).
			Strs("placeholders", unresolved).
			Msg("[AutoReply] Unresolved placeholders left in reply")
	}

	deviceID := dev.ID
	reply, err := a.messages.Send(ctx, SendInput{
		DeviceID: &deviceID,
		To:       in.Recipient,
		Content:  content,
		Priority: message.PriorityHigh,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue auto-reply: %w", err)
	}

	if err := a.rules.IncrementUsage(ctx, rule.ID); err != nil {
		logging.Warn().Err(err).Str("rule_id", rule.ID.String()).Msg("[AutoReply] Failed to bump usage count")
	}
	metrics.AutoReplies.Inc()

	logging.Info().
		Str("device", dev.Name).
		Str("rule", rule.Keyword).
		Str("reply_id", reply.ID.String()).
		Msg("[AutoReply] Reply enqueued")
	return reply, nil
}
