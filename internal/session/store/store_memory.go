package store

import (
	"context"
	"slices"
	"sync"

	"trustmesh/internal/models"
	"trustmesh/pkg/domain"
	"trustmesh/pkg/platform/sentinel"
)

// InMemoryStore keeps session records in a map guarded by a RWMutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]models.SessionInfo
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[domain.SessionID]models.SessionInfo)}
}

func (s *InMemoryStore) Create(_ context.Context, info models.SessionInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[info.SessionID]; exists {
		return sentinel.ErrConflict
	}
	s.sessions[info.SessionID] = clone(info)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.SessionID) (models.SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.sessions[id]
	if !ok {
		return models.SessionInfo{}, sentinel.ErrNotFound
	}
	return clone(info), nil
}

func (s *InMemoryStore) CompareAndSwap(_ context.Context, expectedGeneration uint64, next models.SessionInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[next.SessionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Generation != expectedGeneration {
		return sentinel.ErrConflict
	}
	s.sessions[next.SessionID] = clone(next)
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func clone(info models.SessionInfo) models.SessionInfo {
	info.Scope = slices.Clone(info.Scope)
	return info
}
