// Package domain holds typed identifiers used across the coordination layer.
//
// Each identifier is a distinct named type over uuid.UUID so a session id can
// never be passed where a connection id is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "trustmesh/pkg/domain-errors"
)

type (
	ConnectionID uuid.UUID
	SessionID    uuid.UUID
	ChallengeID  uuid.UUID
)

func NewConnectionID() ConnectionID { return ConnectionID(uuid.New()) }
func NewSessionID() SessionID       { return SessionID(uuid.New()) }
func NewChallengeID() ChallengeID   { return ChallengeID(uuid.New()) }

func (id ConnectionID) String() string { return uuid.UUID(id).String() }
func (id SessionID) String() string    { return uuid.UUID(id).String() }
func (id ChallengeID) String() string  { return uuid.UUID(id).String() }

func (id ConnectionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ChallengeID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

func ParseConnectionID(s string) (ConnectionID, error) {
	u, err := parseUUID(s, "connection")
	return ConnectionID(u), err
}

func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session")
	return SessionID(u), err
}

func ParseChallengeID(s string) (ChallengeID, error) {
	u, err := parseUUID(s, "challenge")
	return ChallengeID(u), err
}

// parseUUID enforces the identifier invariant at trust boundaries:
// non-empty, well-formed and not the nil UUID.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" ID required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind+" ID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" ID cannot be nil")
	}
	return u, nil
}
