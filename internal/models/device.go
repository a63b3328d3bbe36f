package models

import (
	"crypto/ed25519"
	"time"
)

// TrustLevel is the graded confidence assigned to a discovered device.
type TrustLevel int

const (
	TrustUntrusted TrustLevel = iota
	TrustProvisional
	TrustTrusted
	TrustRevoked
)

func (t TrustLevel) String() string {
	switch t {
	case TrustProvisional:
		return "provisional"
	case TrustTrusted:
		return "trusted"
	case TrustRevoked:
		return "revoked"
	default:
		return "untrusted"
	}
}

// DeviceInfo describes a device as it presents itself.
type DeviceInfo struct {
	ID        string
	Name      string
	UserAgent string
	Platform  string
}

// SecurityCapabilities are the protocol versions, cipher suites and
// authentication protocols a device advertises.
type SecurityCapabilities struct {
	Protocols        []ProtocolKind
	ProtocolVersions []string
	CipherSuites     []string
}

// DiscoveryBeacon is announced by a device that wants to join the ecosystem.
type DiscoveryBeacon struct {
	DeviceID               string   `cbor:"1,keyasint"`
	Name                   string   `cbor:"2,keyasint,omitempty"`
	AdvertisedCapabilities []string `cbor:"3,keyasint"`
	ProtocolVersions       []string `cbor:"4,keyasint"`
	CipherSuites           []string `cbor:"5,keyasint"`
	PublicKey              []byte   `cbor:"6,keyasint"`
	// Endorsement is a trust-anchor signature over DeviceID || PublicKey.
	Endorsement []byte `cbor:"7,keyasint,omitempty"`
	// Nonce is the device's challenge to the coordinator.
	Nonce []byte `cbor:"8,keyasint"`
}

// TrustChallenge is sent to a discovered device. CoordinatorSignature answers
// the device's beacon nonce; Nonce is the coordinator's challenge back.
type TrustChallenge struct {
	DeviceID             string `cbor:"1,keyasint"`
	CoordinatorID        string `cbor:"2,keyasint"`
	CoordinatorKey       []byte `cbor:"3,keyasint"`
	CoordinatorSignature []byte `cbor:"4,keyasint"`
	Nonce                []byte `cbor:"5,keyasint"`
}

// DiscoveryResponse is the device's answer to a TrustChallenge. TrustToken is
// the device signature over the coordinator nonce.
type DiscoveryResponse struct {
	Ack        bool   `cbor:"1,keyasint"`
	TrustToken []byte `cbor:"2,keyasint,omitempty"`
}

// DiscoveredDevice is a device observed during a discovery window.
type DiscoveredDevice struct {
	Device       DeviceInfo
	Capabilities SecurityCapabilities
	PublicKey    ed25519.PublicKey
	Endorsement  []byte
	Nonce        []byte
	ObservedAt   time.Time
}

// RegisteredDevice exists only after capability verification and trust
// establishment both succeeded with TrustTrusted.
type RegisteredDevice struct {
	Device       DeviceInfo
	Capabilities SecurityCapabilities
	TrustLevel   TrustLevel
	PublicKey    ed25519.PublicKey
	RegisteredAt time.Time
}
