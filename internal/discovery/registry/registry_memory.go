// Package registry stores devices that completed discovery with full trust.
package registry

import (
	"context"
	"slices"
	"strings"
	"sync"

	"trustmesh/internal/models"
	"trustmesh/pkg/platform/sentinel"
)

type InMemoryRegistry struct {
	mu      sync.RWMutex
	devices map[string]models.RegisteredDevice
}

func NewInMemory() *InMemoryRegistry {
	return &InMemoryRegistry{devices: make(map[string]models.RegisteredDevice)}
}

// Register inserts or refreshes a device.
func (r *InMemoryRegistry) Register(_ context.Context, device models.RegisteredDevice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[device.Device.ID] = device
	return nil
}

func (r *InMemoryRegistry) Get(_ context.Context, deviceID string) (models.RegisteredDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return models.RegisteredDevice{}, sentinel.ErrNotFound
	}
	return d, nil
}

func (r *InMemoryRegistry) SetTrustLevel(_ context.Context, deviceID string, level models.TrustLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return sentinel.ErrNotFound
	}
	d.TrustLevel = level
	r.devices[deviceID] = d
	return nil
}

// List returns devices ordered by id.
func (r *InMemoryRegistry) List(_ context.Context) ([]models.RegisteredDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.RegisteredDevice, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b models.RegisteredDevice) int {
		return strings.Compare(a.Device.ID, b.Device.ID)
	})
	return out, nil
}
