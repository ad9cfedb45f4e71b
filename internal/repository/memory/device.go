package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/wa-notifier/internal/domain/device"
)

// DeviceRepository is an in-memory device.Repository.
type DeviceRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*device.Device
}

func NewDeviceRepository() *DeviceRepository {
	return &DeviceRepository{byID: make(map[uuid.UUID]*device.Device)}
}

func copyDevice(d *device.Device) *device.Device {
	c := *d
	return &c
}

func (r *DeviceRepository) Upsert(_ context.Context, d *device.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, existing := range r.byID {
		if existing.Name != d.Name {
			continue
		}
		// Keep runtime counters; overwrite configuration.
		d.ID = existing.ID
		d.QuotaUsed = existing.QuotaUsed
		d.ConsecutiveFailures = existing.ConsecutiveFailures
		d.LastSeenAt = existing.LastSeenAt
		if !existing.QuotaResetAt.IsZero() {
			d.QuotaResetAt = existing.QuotaResetAt
		}
		d.CreatedAt = existing.CreatedAt
		d.UpdatedAt = now
		r.byID[d.ID] = copyDevice(d)
		return nil
	}

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	r.byID[d.ID] = copyDevice(d)
	return nil
}

func (r *DeviceRepository) Get(_ context.Context, id uuid.UUID) (*device.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byID[id]
	if !ok {
		return nil, device.ErrNotFound
	}
	return copyDevice(d), nil
}

func (r *DeviceRepository) GetByToken(_ context.Context, token string) (*device.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.byID {
		if d.Token == token {
			return copyDevice(d), nil
		}
	}
	return nil, device.ErrNotFound
}

func (r *DeviceRepository) List(_ context.Context) ([]*device.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*device.Device, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, copyDevice(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *DeviceRepository) ReserveQuota(_ context.Context, id uuid.UUID, n int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byID[id]
	if !ok {
		return false, device.ErrNotFound
	}
	if d.QuotaUsed+n > d.QuotaLimit {
		return false, nil
	}
	d.QuotaUsed += n
	return true, nil
}

func (r *DeviceRepository) ReleaseQuota(_ context.Context, id uuid.UUID, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byID[id]
	if !ok {
		return device.ErrNotFound
	}
	d.QuotaUsed -= n
	if d.QuotaUsed < 0 {
		d.QuotaUsed = 0
	}
	return nil
}

func (r *DeviceRepository) ResetQuotas(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, d := range r.byID {
		if d.QuotaResetAt.IsZero() || d.QuotaResetAt.After(now) {
			continue
		}
		d.QuotaUsed = 0
		d.QuotaResetAt = device.NextQuotaReset(d.QuotaResetAt, d.QuotaPeriod, now)
		d.UpdatedAt = now
		n++
	}
	return n, nil
}

func (r *DeviceRepository) RecordSuccess(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byID[id]
	if !ok {
		return device.ErrNotFound
	}
	d.LastSeenAt = &at
	d.ConsecutiveFailures = 0
	return nil
}

func (r *DeviceRepository) RecordFailure(_ context.Context, id uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byID[id]
	if !ok {
		return 0, device.ErrNotFound
	}
	d.ConsecutiveFailures++
	return d.ConsecutiveFailures, nil
}

func (r *DeviceRepository) SetStatus(_ context.Context, id uuid.UUID, status device.Status, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byID[id]
	if !ok {
		return device.ErrNotFound
	}
	d.Status = status
	if phone != "" {
		d.Phone = phone
	}
	if status == device.StatusConnected {
		d.ConsecutiveFailures = 0
	}
	d.UpdatedAt = time.Now()
	return nil
}

var _ device.Repository = (*DeviceRepository)(nil)
