package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/cache"
	"github.com/oggyb/wa-notifier/internal/clock"
	"github.com/oggyb/wa-notifier/internal/domain/audit"
	"github.com/oggyb/wa-notifier/internal/domain/contact"
	"github.com/oggyb/wa-notifier/internal/domain/device"
	"github.com/oggyb/wa-notifier/internal/domain/message"
	"github.com/oggyb/wa-notifier/internal/logging"
	"github.com/oggyb/wa-notifier/internal/metrics"
)

const (
	incomingDedupeTTL = 24 * time.Hour
	// statusRetries bounds how often a status update is re-read after losing a race.
	statusRetries = 3
)

// Notes returned with acknowledged webhooks.
const (
	NoteApplied   = "applied"
	NoteOrphan    = "unknown reference"
	NoteStale     = "stale or duplicate"
	NoteDuplicate = "duplicate"
	NoteIgnored   = "unknown status"
)

// WebhookResult tells the caller whether a callback changed anything. Every
// result is acknowledged to the provider.
type WebhookResult struct {
	Processed bool
	Note      string
}

// StatusUpdate is a delivery report for an outbound message.
type StatusUpdate struct {
	ProviderID string `json:"id"`
	Status     string `json:"status"`
	Note       string `json:"note,omitempty"`
}

// InboundMessage is a message received by one of our devices.
type InboundMessage struct {
	DeviceToken string    `json:"device"`
	ProviderID  string    `json:"id"`
	From        string    `json:"from"`
	Name        string    `json:"name,omitempty"`
	Content     string    `json:"message"`
	MediaURL    string    `json:"media_url,omitempty"`
	ReceivedAt  time.Time `json:"timestamp"`
}

// DeviceStatusUpdate is a connection state report for a device.
type DeviceStatusUpdate struct {
	DeviceToken string `json:"device"`
	Status      string `json:"status"`
	Phone       string `json:"phone,omitempty"`
}

// MapProviderStatus translates the gateway's delivery vocabulary. ok is false
// for words it does not know.
func MapProviderStatus(raw string) (message.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sent", "server_ack":
		return message.StatusSent, true
	case "delivered", "delivery_ack":
		return message.StatusDelivered, true
	case "read", "played", "seen":
		return message.StatusRead, true
	case "failed", "error", "undelivered":
		return message.StatusFailed, true
	default:
		return "", false
	}
}

// MapDeviceStatus translates the gateway's connection vocabulary. Unknown words map to error.
func MapDeviceStatus(raw string) device.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "connected", "open", "online", "authenticated", "ready":
		return device.StatusConnected
	case "disconnected", "close", "closed", "offline", "logout":
		return device.StatusDisconnected
	case "connecting", "pairing", "qr", "syncing", "opening":
		return device.StatusConnecting
	default:
		return device.StatusError
	}
}

// WebhookProcessor applies provider callbacks. Every handler is idempotent.
type WebhookProcessor struct {
	messages    message.Repository
	registry    *Registry
	contacts    contact.Repository
	replier     *AutoReplier
	cache       cache.Cache
	audit       auditor
	clock       clock.Clock
	countryCode string
}

// NewWebhookProcessor wires the webhook handlers. c and replier may be nil.
func NewWebhookProcessor(
	messages message.Repository,
	registry *Registry,
	contacts contact.Repository,
	replier *AutoReplier,
	c cache.Cache,
	auditRepo audit.Repository,
	clk clock.Clock,
	countryCode string,
) *WebhookProcessor {
	if clk == nil {
		clk = clock.Real{}
	}
	return &WebhookProcessor{
		messages:    messages,
		registry:    registry,
		contacts:    contacts,
		replier:     replier,
		cache:       c,
		audit:       auditor{repo: auditRepo},
		clock:       clk,
		countryCode: countryCode,
	}
}

// HandleStatus moves an outbound message forward along sent -> delivered -> read.
// Unknown ids and stale reports are acknowledged without changes.
func (p *WebhookProcessor) HandleStatus(ctx context.Context, in StatusUpdate) (WebhookResult, error) {
	target, ok := MapProviderStatus(in.Status)
	if !ok {
		p.audit.webhook(ctx, "message", in.ProviderID, NoteIgnored, in)
		return p.ack("status", WebhookResult{Note: NoteIgnored}), nil
	}

	m, err := p.lookupOutgoing(ctx, in.ProviderID)
	if errors.Is(err, message.ErrNotFound) {
		logging.Warn().
			Str("provider_id", in.ProviderID).
			Str("status", in.Status).
			Msg("[Webhook] Status for unknown message, acknowledging")
		p.audit.webhook(ctx, "message", in.ProviderID, NoteOrphan, in)
		return p.ack("status", WebhookResult{Note: NoteOrphan}), nil
	}
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("status", "error").Inc()
		return WebhookResult{}, err
	}

	for range statusRetries {
		from := m.Status
		u, apply := p.statusUpdate(m, target, in.Note)
		if !apply {
			p.audit.webhook(ctx, "message", m.ID.String(), NoteStale, in)
			return p.ack("status", WebhookResult{Note: NoteStale}), nil
		}

		err := p.messages.Transition(ctx, m.ID, from, target, u)
		if err == nil {
			p.audit.transition(ctx, "message", m.ID.String(), string(from), string(target), "webhook")
			p.audit.webhook(ctx, "message", m.ID.String(), NoteApplied, in)
			logging.Debug().
				Str("message_id", m.ID.String()).
				Str("from", string(from)).
				Str("to", string(target)).
				Msg("[Webhook] Status applied")
			return p.ack("status", WebhookResult{Processed: true, Note: NoteApplied}), nil
		}
		if !errors.Is(err, message.ErrInvalidTransition) {
			metrics.WebhookEvents.WithLabelValues("status", "error").Inc()
			return WebhookResult{}, err
		}

		// Lost a race with another callback: re-read and re-evaluate.
		if m, err = p.messages.Get(ctx, m.ID); err != nil {
			metrics.WebhookEvents.WithLabelValues("status", "error").Inc()
			return WebhookResult{}, err
		}
	}

	return p.ack("status", WebhookResult{Note: NoteStale}), nil
}

// statusUpdate decides whether target is progress for m and builds the columns to write.
func (p *WebhookProcessor) statusUpdate(m *message.Message, target message.Status, note string) (message.Update, bool) {
	now := p.clock.Now()

	if target == message.StatusFailed {
		if m.Status != message.StatusSent {
			return message.Update{}, false
		}
		reason := note
		if reason == "" {
			reason = "reported failed by provider"
		}
		return message.Update{Error: &reason}, true
	}

	if !message.IsForwardProgress(m.Status, target) {
		return message.Update{}, false
	}

	var u message.Update
	switch target {
	case message.StatusDelivered:
		u.DeliveredAt = &now
	case message.StatusRead:
		u.ReadAt = &now
		if m.DeliveredAt == nil {
			u.DeliveredAt = &now
		}
	}
	return u, true
}

func (p *WebhookProcessor) lookupOutgoing(ctx context.Context, providerID string) (*message.Message, error) {
	if p.cache != nil {
		v, err := p.cache.Get(ctx, cache.SentMessages.Key(providerID))
		switch {
		case err == nil:
			if id, perr := uuid.Parse(v); perr == nil {
				m, gerr := p.messages.Get(ctx, id)
				if gerr == nil {
					return m, nil
				}
				if !errors.Is(gerr, message.ErrNotFound) {
					return nil, gerr
				}
			}
		case !errors.Is(err, cache.ErrNotFound):
			logging.Warn().Err(err).Str("provider_id", providerID).Msg("[Webhook] Cache lookup failed, falling back to store")
		}
	}
	return p.messages.FindByProviderID(ctx, message.DirectionOutgoing, providerID)
}

// HandleIncoming records an inbound message once, touches the sender contact
// and runs the auto-replier when the device has it enabled.
func (p *WebhookProcessor) HandleIncoming(ctx context.Context, in InboundMessage) (WebhookResult, error) {
	dev, err := p.registry.GetByToken(ctx, in.DeviceToken)
	if errors.Is(err, device.ErrNotFound) {
		logging.Warn().Str("device", in.DeviceToken).Msg("[Webhook] Inbound message for unknown device, acknowledging")
		p.audit.webhook(ctx, "device", in.DeviceToken, NoteOrphan, in)
		return p.ack("incoming", WebhookResult{Note: NoteOrphan}), nil
	}
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("incoming", "error").Inc()
		return WebhookResult{}, err
	}

	phone, err := contact.NormalizePhone(in.From, p.countryCode)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("incoming", "invalid").Inc()
		return WebhookResult{}, err
	}

	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = p.clock.Now()
	}

	dedupeKey := ""
	if in.ProviderID != "" && p.cache != nil {
		dedupeKey = cache.IncomingMessages.Key(dev.ID.String() + ":" + in.ProviderID)
		fresh, err := p.cache.SetNX(ctx, dedupeKey, "1", incomingDedupeTTL)
		switch {
		case err != nil:
			logging.Warn().Err(err).Str("provider_id", in.ProviderID).Msg("[Webhook] Dedupe cache unavailable, relying on store")
			dedupeKey = ""
		case !fresh:
			return p.ack("incoming", WebhookResult{Note: NoteDuplicate}), nil
		}
	}

	m := message.NewIncoming(dev.ID, in.ProviderID, phone, in.Content, receivedAt)
	m.MediaURL = in.MediaURL
	if err := p.messages.Enqueue(ctx, m); err != nil {
		if errors.Is(err, message.ErrDuplicate) {
			return p.ack("incoming", WebhookResult{Note: NoteDuplicate}), nil
		}
		if dedupeKey != "" {
			_ = p.cache.Del(ctx, dedupeKey)
		}
		metrics.WebhookEvents.WithLabelValues("incoming", "error").Inc()
		return WebhookResult{}, fmt.Errorf("record inbound message: %w", err)
	}

	if err := p.contacts.Touch(ctx, phone, in.Name, receivedAt); err != nil {
		logging.Warn().Err(err).Str("phone", phone).Msg("[Webhook] Failed to update contact")
	}
	p.audit.webhook(ctx, "message", m.ID.String(), "incoming", in)

	if dev.AutoReplyEnabled && p.replier != nil {
		if _, err := p.replier.HandleInbound(ctx, dev, m, in.Name); err != nil {
			logging.Error().Err(err).Str("message_id", m.ID.String()).Msg("[Webhook] Auto-reply failed")
		}
	}

	return p.ack("incoming", WebhookResult{Processed: true, Note: NoteApplied}), nil
}

// HandleDeviceStatus applies a connection state report to the device.
func (p *WebhookProcessor) HandleDeviceStatus(ctx context.Context, in DeviceStatusUpdate) (WebhookResult, error) {
	dev, err := p.registry.GetByToken(ctx, in.DeviceToken)
	if errors.Is(err, device.ErrNotFound) {
		logging.Warn().Str("device", in.DeviceToken).Msg("[Webhook] Status for unknown device, acknowledging")
		p.audit.webhook(ctx, "device", in.DeviceToken, NoteOrphan, in)
		return p.ack("device_status", WebhookResult{Note: NoteOrphan}), nil
	}
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("device_status", "error").Inc()
		return WebhookResult{}, err
	}

	status := MapDeviceStatus(in.Status)
	if err := p.registry.SetStatus(ctx, dev, status, in.Phone); err != nil {
		metrics.WebhookEvents.WithLabelValues("device_status", "error").Inc()
		return WebhookResult{}, err
	}
	p.audit.webhook(ctx, "device", dev.ID.String(), string(status), in)

	logging.Info().
		Str("device", dev.Name).
		Str("reported", in.Status).
		Str("status", string(status)).
		Msg("[Webhook] Device status updated")
	return p.ack("device_status", WebhookResult{Processed: true, Note: NoteApplied}), nil
}

func (p *WebhookProcessor) ack(kind string, r WebhookResult) WebhookResult {
	outcome := "processed"
	if !r.Processed {
		outcome = strings.ReplaceAll(r.Note, " ", "_")
	}
	metrics.WebhookEvents.WithLabelValues(kind, outcome).Inc()
	return r
}
