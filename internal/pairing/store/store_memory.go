// Package store persists device bindings.
package store

import (
	"bytes"
	"context"
	"sync"

	"trustmesh/internal/models"
	"trustmesh/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	bindings map[string]models.DeviceBinding
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{bindings: make(map[string]models.DeviceBinding)}
}

func (s *InMemoryStore) Get(_ context.Context, deviceID string) (models.DeviceBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[deviceID]
	if !ok {
		return models.DeviceBinding{}, sentinel.ErrNotFound
	}
	b.PublicKey = bytes.Clone(b.PublicKey)
	return b, nil
}

func (s *InMemoryStore) Save(_ context.Context, binding models.DeviceBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	binding.PublicKey = bytes.Clone(binding.PublicKey)
	s.bindings[binding.DeviceID] = binding
	return nil
}

func (s *InMemoryStore) Create(_ context.Context, binding models.DeviceBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bindings[binding.DeviceID]; ok {
		return sentinel.ErrConflict
	}
	binding.PublicKey = bytes.Clone(binding.PublicKey)
	s.bindings[binding.DeviceID] = binding
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bindings[deviceID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.bindings, deviceID)
	return nil
}

// ListByUser returns the bindings owned by userID.
func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]models.DeviceBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.DeviceBinding
	for _, b := range s.bindings {
		if b.UserID == userID {
			b.PublicKey = bytes.Clone(b.PublicKey)
			out = append(out, b)
		}
	}
	return out, nil
}
