// Package session creates, validates, renews and destroys protocol-agnostic
// sessions. Key material never leaves the Manager except through KeyMaterial;
// stores only ever see session metadata.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"trustmesh/internal/models"
	"trustmesh/internal/platform/config"
	"trustmesh/pkg/domain"
	dErrors "trustmesh/pkg/domain-errors"
	"trustmesh/pkg/platform/sentinel"
	"trustmesh/pkg/requestcontext"
)

const keySize = 32

// Store persists session metadata. Implementations return sentinel errors.
type Store interface {
	Create(ctx context.Context, info models.SessionInfo) error
	Get(ctx context.Context, id domain.SessionID) (models.SessionInfo, error)
	// CompareAndSwap replaces the record only if its stored generation equals
	// expectedGeneration; otherwise it returns sentinel.ErrConflict.
	CompareAndSwap(ctx context.Context, expectedGeneration uint64, next models.SessionInfo) error
	Delete(ctx context.Context, id domain.SessionID) error
}

// CreateRequest describes the session to create.
type CreateRequest struct {
	Identity string
	Protocol models.ProtocolKind
	Scope    []string
	// TTL overrides the configured session timeout when positive.
	TTL time.Duration
	// Seed is protocol keying material (for example exported TLS keying
	// material) mixed into the derived key.
	Seed []byte
}

// ValidationContext narrows what counts as valid for a particular caller.
type ValidationContext struct {
	Protocol       models.ProtocolKind
	RequiredScopes []string
}

type Manager struct {
	store  Store
	cfg    config.SessionConfig
	keys   *keyring
	random io.Reader
	logger *slog.Logger
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithRandom replaces the entropy source; tests only.
func WithRandom(r io.Reader) Option {
	return func(m *Manager) {
		m.random = r
	}
}

func New(store Store, cfg config.SessionConfig, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		cfg:    cfg,
		keys:   newKeyring(),
		random: rand.Reader,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.RenewalThreshold <= 0 || m.cfg.RenewalThreshold >= 1 {
		m.cfg.RenewalThreshold = 0.2
	}
	return m
}

func (m *Manager) CreateSession(ctx context.Context, req CreateRequest) (models.SessionInfo, error) {
	if req.Identity == "" {
		return models.SessionInfo{}, dErrors.New(dErrors.CodeInvalidInput, "session identity required")
	}
	if !req.Protocol.Valid() {
		return models.SessionInfo{}, dErrors.New(dErrors.CodeInvalidInput, "session protocol required")
	}
	if err := ctx.Err(); err != nil {
		return models.SessionInfo{}, contextError(err)
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = m.cfg.Timeout
	}
	now := requestcontext.Now(ctx)
	info := models.SessionInfo{
		SessionID:  domain.NewSessionID(),
		Identity:   req.Identity,
		Protocol:   req.Protocol,
		Scope:      slices.Clone(req.Scope),
		Generation: 1,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
		KeyRef:     models.KeyRef(uuid.NewString()),
	}

	key, err := m.deriveKey(info, req.Seed)
	if err != nil {
		return models.SessionInfo{}, err
	}
	m.keys.put(info.KeyRef, info.SessionID, key)

	if err := m.store.Create(ctx, info); err != nil {
		m.keys.destroy(info.KeyRef)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.SessionInfo{}, contextError(ctxErr)
		}
		return models.SessionInfo{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist session")
	}
	// Cancellation after the write still discards the session.
	if err := ctx.Err(); err != nil {
		m.discard(info)
		return models.SessionInfo{}, contextError(err)
	}

	m.logger.DebugContext(ctx, "session created",
		"session_id", info.SessionID.String(),
		"protocol", info.Protocol.String(),
		"expires_at", info.ExpiresAt,
	)
	return info, nil
}

// ValidateSession checks info against the authoritative record. The returned
// error is non-nil only when validity could not be determined.
func (m *Manager) ValidateSession(ctx context.Context, info models.SessionInfo, vctx ValidationContext) (models.SessionValidation, error) {
	now := requestcontext.Now(ctx)
	result := models.SessionValidation{ExpiresAt: info.ExpiresAt}

	if info.IsExpired(now) {
		result.Reason = "expired"
		return result, nil
	}
	if vctx.Protocol.Valid() && vctx.Protocol != info.Protocol {
		result.Reason = "protocol mismatch"
		return result, nil
	}

	stored, err := m.store.Get(ctx, info.SessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			result.Reason = "unknown session"
			return result, nil
		}
		return result, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	if stored.Generation != info.Generation || stored.KeyRef != info.KeyRef {
		result.Reason = "superseded"
		return result, nil
	}
	if !m.keys.live(info.KeyRef) {
		result.Reason = "key material discarded"
		return result, nil
	}
	for _, scope := range vctx.RequiredScopes {
		if !slices.Contains(info.Scope, scope) {
			result.Reason = "insufficient scope"
			return result, nil
		}
	}

	result.Valid = true
	threshold := time.Duration(float64(info.TTL()) * m.cfg.RenewalThreshold)
	result.NeedsRenewal = info.Remaining(now) < threshold
	return result, nil
}

// RenewSession atomically replaces info with a new generation carrying fresh
// key material. On any failure the original session is left untouched.
func (m *Manager) RenewSession(ctx context.Context, info models.SessionInfo) (models.SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return models.SessionInfo{}, contextError(err)
	}
	now := requestcontext.Now(ctx)
	if info.IsExpired(now) {
		return models.SessionInfo{}, dErrors.ProtocolViolation("session", "cannot renew an expired session")
	}
	if !m.keys.live(info.KeyRef) {
		return models.SessionInfo{}, dErrors.ProtocolViolation("session", "session is not current")
	}

	next := info
	next.Scope = slices.Clone(info.Scope)
	next.Generation = info.Generation + 1
	next.IssuedAt = now
	next.ExpiresAt = now.Add(info.TTL())
	next.KeyRef = models.KeyRef(uuid.NewString())

	key, err := m.deriveKey(next, nil)
	if err != nil {
		return models.SessionInfo{}, err
	}
	m.keys.put(next.KeyRef, next.SessionID, key)

	if err := m.store.CompareAndSwap(ctx, info.Generation, next); err != nil {
		m.keys.destroy(next.KeyRef)
		switch {
		case ctx.Err() != nil:
			return models.SessionInfo{}, contextError(ctx.Err())
		case errors.Is(err, sentinel.ErrConflict):
			return models.SessionInfo{}, dErrors.Wrap(err, dErrors.CodeConflict, "session was renewed concurrently")
		case errors.Is(err, sentinel.ErrNotFound):
			return models.SessionInfo{}, dErrors.Wrap(err, dErrors.CodeNotFound, "session not found")
		default:
			return models.SessionInfo{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to renew session")
		}
	}

	m.keys.retire(info.KeyRef, now)
	m.logger.DebugContext(ctx, "session renewed",
		"session_id", next.SessionID.String(),
		"generation", next.Generation,
	)
	return next, nil
}

// CleanupSessionResources zeroizes every generation of the session's key
// material, then deletes its record. Local zeroization always happens; a
// store failure is reported as ResourceCleanupFailure afterwards.
func (m *Manager) CleanupSessionResources(ctx context.Context, info models.SessionInfo) error {
	m.keys.destroySession(info.SessionID)

	err := m.store.Delete(ctx, info.SessionID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeResourceCleanupFailure, "failed to delete session record")
	}
	return nil
}

// KeyMaterial returns a copy of the current key for info.
func (m *Manager) KeyMaterial(info models.SessionInfo) ([]byte, error) {
	key, ok := m.keys.copyOf(info.KeyRef)
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "session key material not available")
	}
	return key, nil
}

// Sweep zeroizes retired key material whose grace period has elapsed.
func (m *Manager) Sweep(now time.Time) int {
	return m.keys.sweep(now.Add(-m.cfg.RetiredKeyGrace))
}

// discard is used when a session must not survive a cancelled creation.
func (m *Manager) discard(info models.SessionInfo) {
	m.keys.destroySession(info.SessionID)
	if err := m.store.Delete(context.Background(), info.SessionID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		m.logger.Warn("failed to delete discarded session", "session_id", info.SessionID.String(), "error", err)
	}
}

// deriveKey expands fresh entropy and the optional protocol seed with
// HKDF-SHA256, bound to the session id and generation.
func (m *Manager) deriveKey(info models.SessionInfo, seed []byte) ([]byte, error) {
	secret := make([]byte, keySize, keySize+len(seed))
	if _, err := io.ReadFull(m.random, secret); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read entropy")
	}
	secret = append(secret, seed...)
	defer clear(secret)

	label := fmt.Sprintf("trustmesh session %s gen %d", info.SessionID, info.Generation)
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(label)), key); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive session key")
	}
	return key, nil
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "session operation timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "session operation cancelled")
}
