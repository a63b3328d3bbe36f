package models

import (
	"slices"
	"time"

	"trustmesh/pkg/domain"
)

// KeyRef is an opaque handle to session key material held by the session
// manager. It reveals nothing about the key.
type KeyRef string

// SessionInfo describes an established session. The session manager owns it;
// renewal replaces it wholesale with a new generation and KeyRef.
type SessionInfo struct {
	SessionID  domain.SessionID
	Identity   string
	Protocol   ProtocolKind
	Scope      []string
	Generation uint64
	IssuedAt   time.Time
	ExpiresAt  time.Time
	KeyRef     KeyRef
}

// TTL is the full lifetime granted at issuance.
func (s SessionInfo) TTL() time.Duration {
	return s.ExpiresAt.Sub(s.IssuedAt)
}

// Remaining is the lifetime left at now; negative once expired.
func (s SessionInfo) Remaining(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}

func (s SessionInfo) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SameIdentity reports whether two sessions describe the same principal,
// protocol and scope regardless of generation or key material.
func (s SessionInfo) SameIdentity(o SessionInfo) bool {
	return s.SessionID == o.SessionID &&
		s.Identity == o.Identity &&
		s.Protocol == o.Protocol &&
		slices.Equal(s.Scope, o.Scope)
}

// SessionValidation is the outcome of validating a session.
type SessionValidation struct {
	Valid        bool
	NeedsRenewal bool
	ExpiresAt    time.Time
	Reason       string
}
