package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trustmesh/internal/models"
	"trustmesh/pkg/domain"
	"trustmesh/pkg/platform/sentinel"
)

type SessionStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func TestSessionStoreSuite(t *testing.T) {
	suite.Run(t, new(SessionStoreSuite))
}

func (s *SessionStoreSuite) SetupTest() {
	s.store = NewInMemory()
}

func makeSession() models.SessionInfo {
	now := time.Now()
	return models.SessionInfo{
		SessionID:  domain.NewSessionID(),
		Identity:   "spiffe://mesh/svc-a",
		Protocol:   models.ProtocolMutualTLS,
		Scope:      []string{"read"},
		Generation: 1,
		IssuedAt:   now,
		ExpiresAt:  now.Add(time.Hour),
		KeyRef:     "ref-1",
	}
}

func (s *SessionStoreSuite) TestLookup() {
	s.Run("returns stored session when found", func() {
		info := makeSession()
		s.Require().NoError(s.store.Create(context.Background(), info))

		found, err := s.store.Get(context.Background(), info.SessionID)
		s.Require().NoError(err)
		s.Equal(info, found)
	})

	s.Run("returns ErrNotFound when session does not exist", func() {
		_, err := s.store.Get(context.Background(), domain.NewSessionID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("duplicate create conflicts", func() {
		info := makeSession()
		s.Require().NoError(s.store.Create(context.Background(), info))
		s.Require().ErrorIs(s.store.Create(context.Background(), info), sentinel.ErrConflict)
	})

	s.Run("returned records do not alias stored scope", func() {
		info := makeSession()
		s.Require().NoError(s.store.Create(context.Background(), info))
		found, err := s.store.Get(context.Background(), info.SessionID)
		s.Require().NoError(err)
		found.Scope[0] = "admin"

		again, err := s.store.Get(context.Background(), info.SessionID)
		s.Require().NoError(err)
		s.Equal("read", again.Scope[0])
	})
}

func (s *SessionStoreSuite) TestCompareAndSwap() {
	s.Run("swaps when generation matches", func() {
		info := makeSession()
		s.Require().NoError(s.store.Create(context.Background(), info))

		next := info
		next.Generation = 2
		next.KeyRef = "ref-2"
		s.Require().NoError(s.store.CompareAndSwap(context.Background(), 1, next))

		found, err := s.store.Get(context.Background(), info.SessionID)
		s.Require().NoError(err)
		s.Equal(uint64(2), found.Generation)
		s.Equal(models.KeyRef("ref-2"), found.KeyRef)
	})

	s.Run("stale generation conflicts and leaves record untouched", func() {
		info := makeSession()
		s.Require().NoError(s.store.Create(context.Background(), info))

		next := info
		next.Generation = 5
		s.Require().ErrorIs(s.store.CompareAndSwap(context.Background(), 4, next), sentinel.ErrConflict)

		found, err := s.store.Get(context.Background(), info.SessionID)
		s.Require().NoError(err)
		s.Equal(info, found)
	})

	s.Run("missing record", func() {
		s.Require().ErrorIs(s.store.CompareAndSwap(context.Background(), 1, makeSession()), sentinel.ErrNotFound)
	})

	s.Run("exactly one concurrent swap wins", func() {
		info := makeSession()
		s.Require().NoError(s.store.Create(context.Background(), info))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next := info
				next.Generation = 2
				if s.store.CompareAndSwap(context.Background(), 1, next) == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		s.Equal(int32(1), wins.Load())
	})
}

func (s *SessionStoreSuite) TestDelete() {
	info := makeSession()
	s.Require().NoError(s.store.Create(context.Background(), info))
	s.Require().NoError(s.store.Delete(context.Background(), info.SessionID))
	s.Require().ErrorIs(s.store.Delete(context.Background(), info.SessionID), sentinel.ErrNotFound)
	s.Equal(0, s.store.Len())
}
