package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/clock"
	"github.com/oggyb/wa-notifier/internal/domain/contact"
	"github.com/oggyb/wa-notifier/internal/domain/message"
	"github.com/oggyb/wa-notifier/internal/domain/schedule"
	"github.com/oggyb/wa-notifier/internal/domain/template"
	"github.com/oggyb/wa-notifier/internal/logging"
	"github.com/oggyb/wa-notifier/internal/metrics"
)

var (
	// ErrNoRecipients is returned when an event names nobody to notify.
	ErrNoRecipients = errors.New("event has no recipients")
	// ErrUnknownEvent is returned for an event type with no meaning here.
	ErrUnknownEvent = errors.New("unknown event type")
)

// builtinBodies are used when no stored template exists for an event.
var builtinBodies = map[template.EventType]string{
	template.EventCheckIn:  "Hello {name}, {student_name} checked in at {school_name} at {time} on {date}.",
	template.EventCheckOut: "Hello {name}, {student_name} checked out of {school_name} at {time} on {date}.",
	template.EventLate:     "Hello {name}, {student_name} arrived late at {school_name} at {time} on {date}.",
	template.EventAbsent:   "Hello {name}, {student_name} is marked absent at {school_name} on {date}.",
	template.EventGeneral:  "Hello {name}, {school_name}: {message}",
}

// builtinVars are the placeholders every template can use.
func builtinVars(t time.Time) map[string]string {
	return map[string]string{
		"date":     t.Format("2006-01-02"),
		"time":     t.Format("15:04"),
		"datetime": t.Format("2006-01-02 15:04"),
	}
}

// Recipient is one guardian to notify.
type Recipient struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

// AttendanceEvent is an attendance occurrence to turn into notifications.
type AttendanceEvent struct {
	Event      template.EventType `json:"event"`
	Language   string             `json:"language,omitempty"`
	DeviceID   *uuid.UUID         `json:"device_id,omitempty"`
	Recipients []Recipient        `json:"recipients"`
	Variables  map[string]string  `json:"variables,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
	// ScheduledAt in the future turns every notification into a Schedule.
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// RecipientError reports a recipient that could not be queued.
type RecipientError struct {
	Phone string
	Err   error
}

// Composition is what BuildFromEvent queued.
type Composition struct {
	Messages  []*message.Message
	Schedules []*schedule.Schedule
	Failed    []RecipientError
}

// ComposerConfig holds the defaults applied to every event.
type ComposerConfig struct {
	DefaultLanguage string
	SchoolName      string
	Location        *time.Location
}

// Composer renders attendance events into one notification per recipient.
type Composer struct {
	templates template.Repository
	contacts  contact.Repository
	messages  *MessageService
	schedules *ScheduleService
	clock     clock.Clock
	cfg       ComposerConfig
}

func NewComposer(
	templates template.Repository,
	contacts contact.Repository,
	messages *MessageService,
	schedules *ScheduleService,
	clk clock.Clock,
	cfg ComposerConfig,
) *Composer {
	if clk == nil {
		clk = clock.Real{}
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Composer{
		templates: templates,
		contacts:  contacts,
		messages:  messages,
		schedules: schedules,
		clock:     clk,
		cfg:       cfg,
	}
}

// BuildFromEvent queues one message (or schedule) per recipient. A recipient
// that fails is reported in Composition.Failed and does not stop the others.
// device.ErrNotAvailable is returned when no device could take any of them.
func (c *Composer) BuildFromEvent(ctx context.Context, ev AttendanceEvent) (*Composition, error) {
	if !ev.Event.Valid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownEvent, ev.Event)
	}
	if len(ev.Recipients) == 0 {
		return nil, ErrNoRecipients
	}

	body, err := c.resolveBody(ctx, ev.Event, ev.Language)
	if err != nil {
		return nil, err
	}

	// Nothing is stored when no device can take the event, so the consumer
	// can redeliver it later.
	if ev.DeviceID == nil {
		if _, err := c.messages.registry.AssignDevice(ctx); err != nil {
			return nil, fmt.Errorf("assign device: %w", err)
		}
	}

	now := c.clock.Now()
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	deferred := ev.ScheduledAt != nil && ev.ScheduledAt.After(now)

	base := builtinVars(occurred.In(c.cfg.Location))
	base["school_name"] = c.cfg.SchoolName
	base["event"] = string(ev.Event)
	maps.Copy(base, ev.Variables)

	out := &Composition{}
	for _, r := range ev.Recipients {
		vars := maps.Clone(base)
		vars["phone"] = r.Phone
		vars["name"] = c.recipientName(ctx, r)

		content, unresolved := template.Render(body, vars)
		if len(unresolved) > 0 {
			logging.Warn().
				Str("event", string(ev.Event)).
				Str("phone", r.Phone).
				Strs("placeholders", unresolved).
				Msg("[Composer] Unresolved placeholders left in notification")
		}

		if deferred {
			sc, err := c.schedule(ctx, ev, r.Phone, content)
			if err != nil {
				out.Failed = append(out.Failed, RecipientError{Phone: r.Phone, Err: err})
				continue
			}
			out.Schedules = append(out.Schedules, sc)
			continue
		}

		m, err := c.messages.Send(ctx, SendInput{DeviceID: ev.DeviceID, To: r.Phone, Content: content})
		if err != nil {
			out.Failed = append(out.Failed, RecipientError{Phone: r.Phone, Err: err})
			continue
		}
		out.Messages = append(out.Messages, m)
	}

	metrics.NotificationsComposed.WithLabelValues(string(ev.Event)).Add(float64(len(out.Messages) + len(out.Schedules)))
	for _, f := range out.Failed {
		logging.Warn().Err(f.Err).Str("phone", f.Phone).Str("event", string(ev.Event)).Msg("[Composer] Recipient skipped")
	}
	logging.Info().
		Str("event", string(ev.Event)).
		Int("messages", len(out.Messages)).
		Int("schedules", len(out.Schedules)).
		Int("failed", len(out.Failed)).
		Msg("[Composer] Event composed")
	return out, nil
}

// resolveBody finds the template for (event, language), then the default
// language, then the built-in body.
func (c *Composer) resolveBody(ctx context.Context, ev template.EventType, lang string) (string, error) {
	langs := []string{c.cfg.DefaultLanguage}
	if lang != "" && lang != c.cfg.DefaultLanguage {
		langs = []string{lang, c.cfg.DefaultLanguage}
	}

	for _, l := range langs {
		t, err := c.templates.Find(ctx, ev, l)
		if err == nil {
			return t.Body, nil
		}
		if !errors.Is(err, template.ErrNotFound) {
			return "", fmt.Errorf("find template: %w", err)
		}
	}

	logging.Debug().Str("event", string(ev)).Str("language", lang).Msg("[Composer] No stored template, using built-in body")
	return builtinBodies[ev], nil
}

func (c *Composer) recipientName(ctx context.Context, r Recipient) string {
	if r.Name != "" {
		return r.Name
	}
	if c.contacts == nil {
		return ""
	}
	phone, err := contact.NormalizePhone(r.Phone, c.messages.countryCode)
	if err != nil {
		return ""
	}
	ct, err := c.contacts.GetByPhone(ctx, phone)
	if err != nil {
		return ""
	}
	return ct.Name
}

func (c *Composer) schedule(ctx context.Context, ev AttendanceEvent, phone, content string) (*schedule.Schedule, error) {
	var deviceID uuid.UUID
	if ev.DeviceID != nil {
		deviceID = *ev.DeviceID
	}
	sc, err := schedule.New(deviceID, phone, content, *ev.ScheduledAt, 0)
	if err != nil {
		return nil, err
	}
	sc.CreatedAt = c.clock.Now()
	sc.UpdatedAt = sc.CreatedAt
	if err := c.schedules.Create(ctx, sc); err != nil {
		return nil, err
	}
	return sc, nil
}
