package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/clock"
	"github.com/oggyb/wa-notifier/internal/domain/audit"
	"github.com/oggyb/wa-notifier/internal/domain/device"
	"github.com/oggyb/wa-notifier/internal/gateway"
	"github.com/oggyb/wa-notifier/internal/logging"
	"github.com/oggyb/wa-notifier/internal/metrics"
)

// DefaultErrorThreshold is the number of consecutive device faults that flips a device to error.
const DefaultErrorThreshold = 3

// Registry tracks devices, their quota budget and connection health.
type Registry struct {
	devices        device.Repository
	audit          auditor
	clock          clock.Clock
	errorThreshold int
}

func NewRegistry(devices device.Repository, auditRepo audit.Repository, clk clock.Clock, errorThreshold int) *Registry {
	if clk == nil {
		clk = clock.Real{}
	}
	if errorThreshold <= 0 {
		errorThreshold = DefaultErrorThreshold
	}
	return &Registry{
		devices:        devices,
		audit:          auditor{repo: auditRepo},
		clock:          clk,
		errorThreshold: errorThreshold,
	}
}

// GetSendableDevice picks the sendable device with the most remaining quota.
// An empty candidate list means every known device. Devices without quota left
// are still returned when nothing better exists; the dispatcher keeps their
// messages pending until the next reset.
func (r *Registry) GetSendableDevice(ctx context.Context, candidates []uuid.UUID) (*device.Device, error) {
	var pool []*device.Device
	if len(candidates) == 0 {
		all, err := r.devices.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list devices: %w", err)
		}
		pool = all
	} else {
		for _, id := range candidates {
			d, err := r.devices.Get(ctx, id)
			if errors.Is(err, device.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			pool = append(pool, d)
		}
	}

	now := r.clock.Now()
	sendable := pool[:0]
	for _, d := range pool {
		if d.Sendable(now) {
			sendable = append(sendable, d)
		}
	}
	if len(sendable) == 0 {
		return nil, device.ErrNotAvailable
	}

	sort.SliceStable(sendable, func(i, j int) bool {
		return sendable[i].RemainingQuota() > sendable[j].RemainingQuota()
	})
	return sendable[0], nil
}

// AssignDevice picks the device a new message is bound to. A sendable device
// wins; otherwise the assignable one with the most quota left is used so the
// message waits in the store for its session to connect.
func (r *Registry) AssignDevice(ctx context.Context) (*device.Device, error) {
	dev, err := r.GetSendableDevice(ctx, nil)
	if !errors.Is(err, device.ErrNotAvailable) {
		return dev, err
	}

	all, err := r.devices.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	now := r.clock.Now()
	var best *device.Device
	for _, d := range all {
		if !d.Assignable(now) {
			continue
		}
		if best == nil || d.RemainingQuota() > best.RemainingQuota() {
			best = d
		}
	}
	if best == nil {
		return nil, device.ErrNotAvailable
	}
	return best, nil
}

// ReserveQuota atomically takes count sends from the device budget.
func (r *Registry) ReserveQuota(ctx context.Context, deviceID uuid.UUID, count int) (bool, error) {
	return r.devices.ReserveQuota(ctx, deviceID, count)
}

// ReleaseQuota gives back sends that were reserved but never billed.
func (r *Registry) ReleaseQuota(ctx context.Context, deviceID uuid.UUID, count int) {
	if err := r.devices.ReleaseQuota(ctx, deviceID, count); err != nil {
		logging.Warn().Err(err).Str("device_id", deviceID.String()).Msg("[Registry] Failed to release quota")
	}
}

// RecordResult updates device health after a send attempt. Only device faults
// count towards the error threshold; message-level rejections are ignored.
func (r *Registry) RecordResult(ctx context.Context, dev *device.Device, sendErr error) {
	switch {
	case sendErr == nil:
		if err := r.devices.RecordSuccess(ctx, dev.ID, r.clock.Now()); err != nil {
			logging.Warn().Err(err).Str("device", dev.Name).Msg("[Registry] Failed to record success")
		}

	case gateway.IsDeviceFault(sendErr):
		n, err := r.devices.RecordFailure(ctx, dev.ID)
		if err != nil {
			logging.Warn().Err(err).Str("device", dev.Name).Msg("[Registry] Failed to record failure")
			return
		}
		if n < r.errorThreshold || dev.Status == device.StatusError {
			return
		}
		if err := r.devices.SetStatus(ctx, dev.ID, device.StatusError, ""); err != nil {
			logging.Error().Err(err).Str("device", dev.Name).Msg("[Registry] Failed to flip device to error")
			return
		}
		logging.Warn().
			Str("device", dev.Name).
			Int("consecutive_failures", n).
			Msg("[Registry] Device marked as error after repeated faults")
		r.audit.transition(ctx, "device", dev.ID.String(), string(dev.Status), string(device.StatusError), sendErr.Error())
		dev.Status = device.StatusError
	}
}

// ResetQuotas zeroes the counters of every device whose window has elapsed.
func (r *Registry) ResetQuotas(ctx context.Context) (int64, error) {
	n, err := r.devices.ResetQuotas(ctx, r.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("reset quotas: %w", err)
	}
	if n > 0 {
		metrics.QuotaResets.Add(float64(n))
		logging.Info().Int64("devices", n).Msg("[Registry] Quota counters reset")
	}
	return n, nil
}

// SetStatus records a connection state change reported by the gateway.
func (r *Registry) SetStatus(ctx context.Context, dev *device.Device, status device.Status, phone string) error {
	if err := r.devices.SetStatus(ctx, dev.ID, status, phone); err != nil {
		return err
	}
	if dev.Status != status {
		r.audit.transition(ctx, "device", dev.ID.String(), string(dev.Status), string(status), "")
	}
	return nil
}

// ListDevices returns every device, including error, expired and disabled ones.
func (r *Registry) ListDevices(ctx context.Context) ([]*device.Device, error) {
	return r.devices.List(ctx)
}

func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*device.Device, error) {
	return r.devices.Get(ctx, id)
}

func (r *Registry) GetByToken(ctx context.Context, token string) (*device.Device, error) {
	return r.devices.GetByToken(ctx, token)
}
