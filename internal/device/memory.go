package device

import (
	"context"
	"sync"
)

// MemoryRepository is an in-process Repository. It stores deep copies, so
// callers can't mutate stored state through returned values.
type MemoryRepository struct {
	mu      sync.RWMutex
	devices map[string]*Device
	order   []string
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{devices: make(map[string]*Device)}
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (r *MemoryRepository) List(_ context.Context) ([]Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.order))
	for _, id := range r.order {
		devices = append(devices, *r.devices[id].DeepCopy())
	}
	return devices, nil
}

func (r *MemoryRepository) Save(_ context.Context, d *Device) error {
	if d == nil || d.ID == "" {
		return ErrInvalidDevice
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[d.ID]; !ok {
		r.order = append(r.order, d.ID)
	}
	cpy := d.DeepCopy()
	if cpy.Readings == nil {
		cpy.Readings = []Reading{}
	}
	r.devices[d.ID] = cpy
	return nil
}

func (r *MemoryRepository) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = make(map[string]*Device)
	r.order = nil
	return nil
}
