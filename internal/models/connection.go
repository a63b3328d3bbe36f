package models

import (
	"crypto/tls"
	"time"

	"trustmesh/pkg/domain"
)

// SecurityProperties records what the establishment routine proved about the
// peer and the channel.
type SecurityProperties struct {
	Protocol          ProtocolKind
	PeerIdentity      string
	TLSVersion        uint16
	CipherSuite       uint16
	PeerCapabilities  map[string]string
	Scope             []string
	// CredentialID is the token id an API client authenticated with.
	CredentialID      string
	DeviceFingerprint string
	AuthenticatedAt   time.Time
}

// TLSVersionName is the human-readable TLS version, empty for non-TLS protocols.
func (p SecurityProperties) TLSVersionName() string {
	if p.TLSVersion == 0 {
		return ""
	}
	return tls.VersionName(p.TLSVersion)
}

// CipherSuiteName is the negotiated cipher suite name, empty for non-TLS protocols.
func (p SecurityProperties) CipherSuiteName() string {
	if p.CipherSuite == 0 {
		return ""
	}
	return tls.CipherSuiteName(p.CipherSuite)
}

// SecureConnection is an authenticated association between two entities.
// Everything except Session is fixed at establishment.
type SecureConnection struct {
	ID            domain.ConnectionID
	Protocol      ProtocolKind
	Local         EntityInfo
	Remote        EntityInfo
	Session       SessionInfo
	Properties    SecurityProperties
	EstablishedAt time.Time
}

// ConnectionMetrics are per-connection counters kept by the registry.
type ConnectionMetrics struct {
	Validations     uint64
	Renewals        uint64
	LastValidatedAt time.Time
	LastRenewedAt   time.Time
}

// ConnectionStatus is a point-in-time snapshot of a registry entry.
type ConnectionStatus struct {
	Connection   SecureConnection
	Metrics      ConnectionMetrics
	LastActivity time.Time
}
