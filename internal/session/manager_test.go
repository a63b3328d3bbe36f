package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trustmesh/internal/models"
	"trustmesh/internal/platform/config"
	"trustmesh/internal/session/store"
	"trustmesh/pkg/domain"
	dErrors "trustmesh/pkg/domain-errors"
	"trustmesh/pkg/platform/sentinel"
	"trustmesh/pkg/requestcontext"
)

var errStoreDown = errors.New("store unavailable")

type ManagerSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	manager *Manager
	now     time.Time
	ctx     context.Context
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.manager = New(s.store, config.SessionConfig{
		Timeout:          10 * time.Minute,
		RenewalThreshold: 0.2,
		RetiredKeyGrace:  30 * time.Second,
	})
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ManagerSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(offset))
}

func (s *ManagerSuite) create() models.SessionInfo {
	info, err := s.manager.CreateSession(s.ctx, CreateRequest{
		Identity: "client-42",
		Protocol: models.ProtocolAPIAuthentication,
		Scope:    []string{"read", "write"},
	})
	s.Require().NoError(err)
	return info
}

func (s *ManagerSuite) TestCreateSession() {
	s.Run("issues generation one with configured TTL", func() {
		info := s.create()
		s.Equal(uint64(1), info.Generation)
		s.Equal(s.now.Add(10*time.Minute), info.ExpiresAt)
		s.NotEmpty(info.KeyRef)

		key, err := s.manager.KeyMaterial(info)
		s.Require().NoError(err)
		s.Len(key, keySize)
	})

	s.Run("rejects missing identity", func() {
		_, err := s.manager.CreateSession(s.ctx, CreateRequest{Protocol: models.ProtocolMutualTLS})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("cancelled context leaves no material behind", func() {
		before := s.store.Len()
		ctx, cancel := context.WithCancel(s.ctx)
		cancel()
		_, err := s.manager.CreateSession(ctx, CreateRequest{Identity: "x", Protocol: models.ProtocolMutualTLS})
		s.Require().Error(err)
		s.Equal(before, s.store.Len())
	})

	s.Run("store failure discards key material", func() {
		failing := New(failingStore{createErr: errStoreDown}, config.SessionConfig{Timeout: time.Minute})
		_, err := failing.CreateSession(s.ctx, CreateRequest{Identity: "x", Protocol: models.ProtocolMutualTLS})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Equal(0, failing.keys.len())
	})

	s.Run("protocol seed changes the derived key", func() {
		fixed := func() *Manager {
			return New(store.NewInMemory(), config.SessionConfig{Timeout: time.Minute},
				WithRandom(bytes.NewReader(bytes.Repeat([]byte{7}, 64))))
		}
		a, b := fixed(), fixed()
		ia, err := a.CreateSession(s.ctx, CreateRequest{Identity: "x", Protocol: models.ProtocolMutualTLS, Seed: []byte("one")})
		s.Require().NoError(err)
		ib, err := b.CreateSession(s.ctx, CreateRequest{Identity: "x", Protocol: models.ProtocolMutualTLS, Seed: []byte("two")})
		s.Require().NoError(err)

		ka, _ := a.KeyMaterial(ia)
		kb, _ := b.KeyMaterial(ib)
		s.NotEqual(ka, kb)
	})
}

func (s *ManagerSuite) TestValidateSession() {
	info := s.create()

	s.Run("fresh session is valid without renewal", func() {
		v, err := s.manager.ValidateSession(s.at(time.Minute), info, ValidationContext{})
		s.Require().NoError(err)
		s.True(v.Valid)
		s.False(v.NeedsRenewal)
		s.Equal(info.ExpiresAt, v.ExpiresAt)
	})

	s.Run("final fifth of lifetime signals renewal", func() {
		v, err := s.manager.ValidateSession(s.at(8*time.Minute+time.Second), info, ValidationContext{})
		s.Require().NoError(err)
		s.True(v.Valid)
		s.True(v.NeedsRenewal)
	})

	s.Run("expired session is invalid", func() {
		v, err := s.manager.ValidateSession(s.at(10*time.Minute), info, ValidationContext{})
		s.Require().NoError(err)
		s.False(v.Valid)
		s.Equal("expired", v.Reason)
	})

	s.Run("scope requirements are enforced", func() {
		v, err := s.manager.ValidateSession(s.ctx, info, ValidationContext{RequiredScopes: []string{"admin"}})
		s.Require().NoError(err)
		s.False(v.Valid)
		s.Equal("insufficient scope", v.Reason)
	})

	s.Run("protocol mismatch is invalid", func() {
		v, err := s.manager.ValidateSession(s.ctx, info, ValidationContext{Protocol: models.ProtocolMutualTLS})
		s.Require().NoError(err)
		s.False(v.Valid)
	})

	s.Run("unknown session is invalid", func() {
		other := info
		other.SessionID = domain.NewSessionID()
		v, err := s.manager.ValidateSession(s.ctx, other, ValidationContext{})
		s.Require().NoError(err)
		s.False(v.Valid)
		s.Equal("unknown session", v.Reason)
	})

	s.Run("store outage is an error, not a verdict", func() {
		m := New(failingStore{getErr: errStoreDown}, config.SessionConfig{Timeout: time.Minute})
		_, err := m.ValidateSession(s.ctx, info, ValidationContext{})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ManagerSuite) TestRenewSession() {
	s.Run("round trip keeps identity and replaces key material", func() {
		info := s.create()
		oldKey, err := s.manager.KeyMaterial(info)
		s.Require().NoError(err)

		renewed, err := s.manager.RenewSession(s.at(9*time.Minute), info)
		s.Require().NoError(err)

		s.True(renewed.SameIdentity(info))
		s.Equal(info.Generation+1, renewed.Generation)
		s.NotEqual(info.KeyRef, renewed.KeyRef)
		s.Equal(info.TTL(), renewed.TTL())

		newKey, err := s.manager.KeyMaterial(renewed)
		s.Require().NoError(err)
		s.NotEqual(oldKey, newKey)

		v, err := s.manager.ValidateSession(s.at(9*time.Minute), renewed, ValidationContext{})
		s.Require().NoError(err)
		s.True(v.Valid)
		s.False(v.NeedsRenewal)

		old, err := s.manager.ValidateSession(s.at(9*time.Minute), info, ValidationContext{})
		s.Require().NoError(err)
		s.False(old.Valid)
		s.Equal("superseded", old.Reason)
	})

	s.Run("concurrent renewal of the same generation conflicts", func() {
		info := s.create()
		_, err := s.manager.RenewSession(s.ctx, info)
		s.Require().NoError(err)
		_, err = s.manager.RenewSession(s.ctx, info)
		s.Require().Error(err)
	})

	s.Run("failed swap leaves original untouched", func() {
		info := s.create()
		m := s.manager
		m.store = failingStore{InMemoryStore: s.store, casErr: errStoreDown}
		defer func() { m.store = s.store }()

		before := m.keys.len()
		_, err := m.RenewSession(s.ctx, info)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Equal(before, m.keys.len())

		m.store = s.store
		v, err := m.ValidateSession(s.ctx, info, ValidationContext{})
		s.Require().NoError(err)
		s.True(v.Valid)
	})

	s.Run("expired sessions cannot be renewed", func() {
		info := s.create()
		_, err := s.manager.RenewSession(s.at(11*time.Minute), info)
		s.True(dErrors.HasCode(err, dErrors.CodeProtocolViolation))
	})
}

func (s *ManagerSuite) TestSweepZeroizesRetiredMaterial() {
	info := s.create()
	renewed, err := s.manager.RenewSession(s.ctx, info)
	s.Require().NoError(err)
	s.Equal(2, s.manager.keys.len())

	s.Equal(0, s.manager.Sweep(s.now.Add(10*time.Second)))
	s.Equal(1, s.manager.Sweep(s.now.Add(31*time.Second)))

	_, err = s.manager.KeyMaterial(renewed)
	s.NoError(err)
}

func (s *ManagerSuite) TestCleanupSessionResources() {
	s.Run("zeroizes every generation and removes the record", func() {
		info := s.create()
		renewed, err := s.manager.RenewSession(s.ctx, info)
		s.Require().NoError(err)

		s.manager.keys.mu.Lock()
		held := s.manager.keys.entries[renewed.KeyRef].key
		s.manager.keys.mu.Unlock()

		s.Require().NoError(s.manager.CleanupSessionResources(s.ctx, renewed))
		s.Equal(make([]byte, keySize), held, "key bytes must be zeroized in place")
		s.Equal(0, s.manager.keys.len())

		_, err = s.store.Get(s.ctx, info.SessionID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("idempotent for already removed sessions", func() {
		info := s.create()
		s.Require().NoError(s.manager.CleanupSessionResources(s.ctx, info))
		s.Require().NoError(s.manager.CleanupSessionResources(s.ctx, info))
	})

	s.Run("store failure is reported after local zeroization", func() {
		info := s.create()
		m := s.manager
		m.store = failingStore{InMemoryStore: s.store, deleteErr: errors.New("connection reset")}
		defer func() { m.store = s.store }()

		err := m.CleanupSessionResources(s.ctx, info)
		s.True(dErrors.HasCode(err, dErrors.CodeResourceCleanupFailure))
		_, keyErr := m.KeyMaterial(info)
		s.Error(keyErr)
	})
}

// failingStore wraps an in-memory store and injects errors per operation.
type failingStore struct {
	*store.InMemoryStore
	createErr error
	getErr    error
	casErr    error
	deleteErr error
}

func (f failingStore) Create(ctx context.Context, info models.SessionInfo) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.InMemoryStore.Create(ctx, info)
}

func (f failingStore) Get(ctx context.Context, id domain.SessionID) (models.SessionInfo, error) {
	if f.getErr != nil {
		return models.SessionInfo{}, f.getErr
	}
	return f.InMemoryStore.Get(ctx, id)
}

func (f failingStore) CompareAndSwap(ctx context.Context, gen uint64, next models.SessionInfo) error {
	if f.casErr != nil {
		return f.casErr
	}
	return f.InMemoryStore.CompareAndSwap(ctx, gen, next)
}

func (f failingStore) Delete(ctx context.Context, id domain.SessionID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.InMemoryStore.Delete(ctx, id)
}
