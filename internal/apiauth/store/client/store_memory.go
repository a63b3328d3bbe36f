// Package client stores registered API clients.
package client

import (
	"context"
	"slices"
	"sync"

	"trustmesh/internal/models"
	"trustmesh/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	clients map[string]models.APIClient
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{clients: make(map[string]models.APIClient)}
}

// Save inserts or replaces the client registered under c.Subject.
func (s *InMemoryStore) Save(_ context.Context, c models.APIClient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Scopes = slices.Clone(c.Scopes)
	s.clients[c.Subject] = c
	return nil
}

func (s *InMemoryStore) FindBySubject(_ context.Context, subject string) (models.APIClient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[subject]
	if !ok {
		return models.APIClient{}, sentinel.ErrNotFound
	}
	c.Scopes = slices.Clone(c.Scopes)
	return c, nil
}
