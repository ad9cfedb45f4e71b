package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/oggyb/wa-notifier/internal/domain/autoreply"
	"github.com/oggyb/wa-notifier/internal/domain/device"
	"github.com/oggyb/wa-notifier/internal/domain/template"
	"github.com/oggyb/wa-notifier/internal/validation"
)

// Fixtures is the static provisioning file: devices with their auto-reply
// rules, notification templates and the default business-hours window.
type Fixtures struct {
	BusinessHours HoursFixture      `koanf:"business_hours"`
	Devices       []DeviceFixture   `koanf:"devices" validate:"dive"`
	Templates     []TemplateFixture `koanf:"templates" validate:"dive"`
}

type HoursFixture struct {
	Start    string   `koanf:"start" validate:"omitempty,hhmm"`
	End      string   `koanf:"end" validate:"omitempty,hhmm"`
	Weekdays []string `koanf:"weekdays"`
	Timezone string   `koanf:"timezone"`
}

type DeviceFixture struct {
	Name             string        `koanf:"name" validate:"required"`
	Token            string        `koanf:"token" validate:"required"`
	Phone            string        `koanf:"phone"`
	QuotaLimit       int           `koanf:"quota_limit" validate:"gte=0"`
	QuotaPeriod      time.Duration `koanf:"quota_period"`
	ThrottleInterval time.Duration `koanf:"throttle_interval"`
	MaxRetries       int           `koanf:"max_retries" validate:"gte=0"`
	AutoReply        bool          `koanf:"auto_reply"`
	Disabled         bool          `koanf:"disabled"`
	Status           string        `koanf:"status" validate:"omitempty,oneof=connected disconnected connecting error"`
	// ExpiresAt is RFC 3339; quote it in YAML.
	ExpiresAt string        `koanf:"expires_at"`
	Rules     []RuleFixture `koanf:"rules" validate:"dive"`
}

type RuleFixture struct {
	Keyword       string `koanf:"keyword" validate:"required"`
	Mode          string `koanf:"mode" validate:"omitempty,oneof=exact contains"`
	CaseSensitive bool   `koanf:"case_sensitive"`
	Priority      int    `koanf:"priority"`
	Response      string `koanf:"response" validate:"required"`
	// BusinessHours limits the rule to the file's business_hours window.
	BusinessHours bool `koanf:"business_hours"`
	Inactive      bool `koanf:"inactive"`
}

type TemplateFixture struct {
	Event    string `koanf:"event" validate:"required,oneof=check_in check_out late absent general"`
	Language string `koanf:"language" validate:"required"`
	Name     string `koanf:"name"`
	Body     string `koanf:"body" validate:"required"`
}

// LoadFixtures reads and validates a YAML fixtures file.
func LoadFixtures(path string) (*Fixtures, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load fixtures %s: %w", path, err)
	}

	var f Fixtures
	if err := k.Unmarshal("", &f); err != nil {
		return nil, fmt.Errorf("decode fixtures %s: %w", path, err)
	}
	if err := validation.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid fixtures %s: %w", path, err)
	}
	return &f, nil
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// Hours converts the business_hours block. It returns nil when no window is set.
// fallback is used when the block names no timezone.
func (f *Fixtures) Hours(fallback *time.Location) (*autoreply.BusinessHours, error) {
	h := f.BusinessHours
	if h.Start == "" && h.End == "" {
		return nil, nil
	}

	start, err := autoreply.ParseClock(h.Start)
	if err != nil {
		return nil, err
	}
	end, err := autoreply.ParseClock(h.End)
	if err != nil {
		return nil, err
	}

	loc := fallback
	if h.Timezone != "" {
		if loc, err = time.LoadLocation(h.Timezone); err != nil {
			return nil, fmt.Errorf("business hours timezone %q: %w", h.Timezone, err)
		}
	}

	bh := &autoreply.BusinessHours{Start: start, End: end, Location: loc}
	for _, d := range h.Weekdays {
		key := strings.ToLower(strings.TrimSpace(d))
		if len(key) > 3 {
			key = key[:3]
		}
		wd, ok := weekdays[key]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", d)
		}
		bh.Weekdays = append(bh.Weekdays, wd)
	}
	return bh, nil
}

// Device builds the domain device. The first quota window starts at now.
func (d DeviceFixture) Device(now time.Time) (*device.Device, error) {
	dev := &device.Device{
		Name:             d.Name,
		Token:            d.Token,
		Phone:            d.Phone,
		Status:           device.Status(d.Status),
		QuotaLimit:       d.QuotaLimit,
		QuotaPeriod:      d.QuotaPeriod,
		ThrottleInterval: d.ThrottleInterval,
		MaxRetries:       d.MaxRetries,
		AutoReplyEnabled: d.AutoReply,
		Disabled:         d.Disabled,
	}
	if dev.Status == "" {
		dev.Status = device.StatusDisconnected
	}
	if dev.QuotaPeriod <= 0 {
		dev.QuotaPeriod = 24 * time.Hour
	}
	dev.QuotaResetAt = now.Add(dev.QuotaPeriod)

	if d.ExpiresAt != "" {
		exp, err := time.Parse(time.RFC3339, d.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("device %s expires_at: %w", d.Name, err)
		}
		dev.ExpiresAt = &exp
	}
	return dev, nil
}

// Apply upserts every device, rule and template. Devices are matched by
// name, so runtime counters survive a re-apply.
func (f *Fixtures) Apply(
	ctx context.Context,
	devices device.Repository,
	rules autoreply.Repository,
	templates template.Repository,
	loc *time.Location,
	now time.Time,
) error {
	hours, err := f.Hours(loc)
	if err != nil {
		return err
	}

	for _, df := range f.Devices {
		dev, err := df.Device(now)
		if err != nil {
			return err
		}
		if err := devices.Upsert(ctx, dev); err != nil {
			return fmt.Errorf("upsert device %s: %w", df.Name, err)
		}

		for _, rf := range df.Rules {
			r := &autoreply.Rule{
				DeviceID:      dev.ID,
				Keyword:       rf.Keyword,
				Mode:          autoreply.MatchMode(rf.Mode),
				CaseSensitive: rf.CaseSensitive,
				Priority:      rf.Priority,
				Active:        !rf.Inactive,
				Response:      rf.Response,
			}
			if r.Mode == "" {
				r.Mode = autoreply.MatchExact
			}
			if rf.BusinessHours {
				r.BusinessHours = hours
			}
			if err := rules.Upsert(ctx, r); err != nil {
				return fmt.Errorf("upsert rule %q on %s: %w", rf.Keyword, df.Name, err)
			}
		}
	}

	for _, tf := range f.Templates {
		t := &template.Template{
			Event:    template.EventType(tf.Event),
			Language: tf.Language,
			Name:     tf.Name,
			Body:     tf.Body,
			Active:   true,
		}
		if err := templates.Upsert(ctx, t); err != nil {
			return fmt.Errorf("upsert template %s/%s: %w", tf.Event, tf.Language, err)
		}
	}
	return nil
}
