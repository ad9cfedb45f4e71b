package devicegorm

import (
	"time"

	"github.com/oggyb/wa-notifier/internal/domain/device"
)

func toDomain(m *DeviceModel) *device.Device {
	return &device.Device{
		ID:                  m.ID,
		Name:                m.Name,
		Token:               m.Token,
		Phone:               m.Phone,
		Status:              device.Status(m.Status),
		QuotaLimit:          m.QuotaLimit,
		QuotaUsed:           m.QuotaUsed,
		QuotaPeriod:         time.Duration(m.QuotaPeriodSeconds) * time.Second,
		QuotaResetAt:        m.QuotaResetAt,
		ThrottleInterval:    time.Duration(m.ThrottleMillis) * time.Millisecond,
		MaxRetries:          m.MaxRetries,
		AutoReplyEnabled:    m.AutoReplyEnabled,
		ExpiresAt:           m.ExpiresAt,
		Disabled:            m.Disabled,
		ConsecutiveFailures: m.ConsecutiveFailures,
		LastSeenAt:          m.LastSeenAt,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func toDomainMany(models []DeviceModel) []*device.Device {
	out := make([]*device.Device, len(models))
	for i := range models {
		out[i] = toDomain(&models[i])
	}
	return out
}

func fromDomain(d *device.Device) *DeviceModel {
	return &DeviceModel{
		ID:                  d.ID,
		Name:                d.Name,
		Token:               d.Token,
		Phone:               d.Phone,
		Status:              string(d.Status),
		QuotaLimit:          d.QuotaLimit,
		QuotaUsed:           d.QuotaUsed,
		QuotaPeriodSeconds:  int64(d.QuotaPeriod / time.Second),
		QuotaResetAt:        d.QuotaResetAt,
		ThrottleMillis:      d.ThrottleInterval.Milliseconds(),
		MaxRetries:          d.MaxRetries,
		AutoReplyEnabled:    d.AutoReplyEnabled,
		ExpiresAt:           d.ExpiresAt,
		Disabled:            d.Disabled,
		ConsecutiveFailures: d.ConsecutiveFailures,
		LastSeenAt:          d.LastSeenAt,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}
