package models

import (
	"crypto/tls"
	"slices"
	"time"
)

// EntityType classifies an ecosystem participant.
type EntityType int

const (
	EntityService EntityType = iota
	EntityAPIClient
	EntityHumanDevice
)

func (t EntityType) String() string {
	switch t {
	case EntityService:
		return "service"
	case EntityAPIClient:
		return "api_client"
	case EntityHumanDevice:
		return "human_device"
	default:
		return "unknown"
	}
}

// EntityInfo identifies a participant and the protocols it declares.
type EntityInfo struct {
	ID           string
	Type         EntityType
	Capabilities []ProtocolKind
	// Endpoint is the network address used by the mutual TLS handshake.
	Endpoint    string
	Credentials Credentials
}

// Supports reports whether the entity declares protocol p.
func (e EntityInfo) Supports(p ProtocolKind) bool {
	return slices.Contains(e.Capabilities, p)
}

// Public returns a copy safe to retain after establishment: credentials,
// including private keys and secrets, are dropped.
func (e EntityInfo) Public() EntityInfo {
	return EntityInfo{
		ID:           e.ID,
		Type:         e.Type,
		Capabilities: slices.Clone(e.Capabilities),
		Endpoint:     e.Endpoint,
	}
}

// Credentials is the material an entity presents. At most the fields relevant
// to the negotiated protocol are consulted.
type Credentials struct {
	// TLSCertificate is the entity's own certificate and key (local side of mutual TLS).
	TLSCertificate *tls.Certificate
	BearerToken    string
	Claims         *ClaimSet
	Pairing        *PairingCredentials
}

// ClaimSet is a structured programmatic credential.
type ClaimSet struct {
	ID      string
	Issuer  string
	Subject string
	Scope   []string
	Expiry  time.Time
	// Secret is the client secret registered for Subject.
	Secret string
}
