package models

import (
	"context"
	"crypto/ed25519"
	"time"

	"trustmesh/pkg/domain"
)

// PairingState is the lifecycle of one pairing attempt.
type PairingState int

const (
	PairingIdle PairingState = iota
	PairingChallengeIssued
	PairingChallengeAnswered
	PairingPaired
	PairingFailed
)

func (s PairingState) String() string {
	switch s {
	case PairingChallengeIssued:
		return "challenge_issued"
	case PairingChallengeAnswered:
		return "challenge_answered"
	case PairingPaired:
		return "paired"
	case PairingFailed:
		return "failed"
	default:
		return "idle"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s PairingState) IsTerminal() bool {
	return s == PairingPaired || s == PairingFailed
}

// PairingCredentials are presented by a human user pairing a device.
type PairingCredentials struct {
	UserID string
	// PublicKey is offered on first pairing of a device; later pairings use the
	// stored binding and may omit it.
	PublicKey ed25519.PublicKey
	Device    DeviceInfo
	// Responder answers the challenge on the device side.
	Responder ChallengeResponder
}

// ChallengeResponder is the device side of the pairing exchange.
type ChallengeResponder interface {
	Respond(ctx context.Context, challenge PairingChallenge) (PairingResponse, error)
}

// PairingRequest opens a pairing attempt.
type PairingRequest struct {
	RequesterID       string
	DeviceFingerprint string
}

// PairingChallenge carries a single-use nonce the device must sign.
type PairingChallenge struct {
	ChallengeID domain.ChallengeID
	Nonce       []byte
	TTL         time.Duration
	IssuedAt    time.Time
}

// ExpiresAt is IssuedAt + TTL.
func (c PairingChallenge) ExpiresAt() time.Time {
	return c.IssuedAt.Add(c.TTL)
}

// PairingResponse is the device's signature over the challenge nonce.
type PairingResponse struct {
	ChallengeID        domain.ChallengeID
	Nonce              []byte
	SignatureOverNonce []byte
}

// DeviceBinding associates a device fingerprint with its owner and key.
type DeviceBinding struct {
	Fingerprint  string            `json:"fingerprint"`
	UserID       string            `json:"user_id"`
	DeviceID     string            `json:"device_id"`
	DisplayName  string            `json:"display_name"`
	PublicKey    ed25519.PublicKey `json:"public_key"`
	CreatedAt    time.Time         `json:"created_at"`
	LastPairedAt time.Time         `json:"last_paired_at"`
}

// PairingResult is returned when a challenge completes successfully.
type PairingResult struct {
	UserIdentity string
	Binding      DeviceBinding
	// NewBinding is true when this pairing registered the device.
	NewBinding bool
}
