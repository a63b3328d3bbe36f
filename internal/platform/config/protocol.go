package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"trustmesh/internal/models"
)

// Strictness controls how thoroughly peer certificates are verified.
type Strictness int

const (
	// StrictnessStandard checks revocation whenever revocation data exists.
	StrictnessStandard Strictness = iota
	// StrictnessStrict requires revocation data, the client-auth usage and an identity.
	StrictnessStrict
	// StrictnessRelaxed skips revocation. Chain and validity are always checked.
	StrictnessRelaxed
	// StrictnessCustom is Standard plus a caller-supplied verification hook.
	StrictnessCustom
)

func (s Strictness) String() string {
	switch s {
	case StrictnessStrict:
		return "strict"
	case StrictnessRelaxed:
		return "relaxed"
	case StrictnessCustom:
		return "custom"
	default:
		return "standard"
	}
}

func ParseStrictness(s string) (Strictness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return StrictnessStrict, nil
	case "standard", "":
		return StrictnessStandard, nil
	case "relaxed":
		return StrictnessRelaxed, nil
	case "custom":
		return StrictnessCustom, nil
	default:
		return 0, fmt.Errorf("unknown verification strictness %q", s)
	}
}

// ProtocolConfiguration groups the per-subsystem settings.
type ProtocolConfiguration struct {
	MutualTLS       MutualTLSConfig
	APIAuth         APIAuthConfig
	UserPairing     UserPairingConfig
	DeviceDiscovery DeviceDiscoveryConfig
	Session         SessionConfig
	Negotiation     NegotiationConfig
}

type MutualTLSConfig struct {
	MinVersion       uint16
	CipherSuites     []uint16
	Strictness       Strictness
	HandshakeTimeout time.Duration
}

// APIAuthConfig is the token acceptance policy for programmatic clients.
type APIAuthConfig struct {
	SigningKey       []byte
	AllowedIssuers   []string
	Audience         string
	RequiredScopes   []string
	ClockSkew        time.Duration
	MaxTokenLifetime time.Duration
}

type UserPairingConfig struct {
	NonceTTL time.Duration
	// NonceWindow bounds the set of recently issued nonces kept for replay checks.
	NonceWindow     int
	ResponseTimeout time.Duration
}

type DeviceDiscoveryConfig struct {
	Window              time.Duration
	MinProtocolVersion  uint16
	AllowedCipherSuites []uint16
	TrustTimeout        time.Duration
	MaxBatch            int
}

type SessionConfig struct {
	Timeout time.Duration
	// RenewalThreshold is the fraction of the TTL below which renewal is signalled.
	RenewalThreshold float64
	RetiredKeyGrace  time.Duration
}

type NegotiationConfig struct {
	Disabled []models.ProtocolKind
}

// Enabled reports whether p is negotiable under this configuration.
func (c NegotiationConfig) Enabled(p models.ProtocolKind) bool {
	return !slices.Contains(c.Disabled, p)
}

// DefaultCipherSuites are the AEAD suites with forward secrecy.
func DefaultCipherSuites() []uint16 {
	return []uint16{
		tls.TLS_AES_128_GCM_SHA256,
		tls.TLS_AES_256_GCM_SHA384,
		tls.TLS_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	}
}

// Default returns production-leaning defaults.
func Default() ProtocolConfiguration {
	return ProtocolConfiguration{
		MutualTLS: MutualTLSConfig{
			MinVersion:       tls.VersionTLS12,
			CipherSuites:     DefaultCipherSuites(),
			Strictness:       StrictnessStandard,
			HandshakeTimeout: 10 * time.Second,
		},
		APIAuth: APIAuthConfig{
			ClockSkew:        30 * time.Second,
			MaxTokenLifetime: 24 * time.Hour,
		},
		UserPairing: UserPairingConfig{
			NonceTTL:        120 * time.Second,
			NonceWindow:     4096,
			ResponseTimeout: 30 * time.Second,
		},
		DeviceDiscovery: DeviceDiscoveryConfig{
			Window:              5 * time.Second,
			MinProtocolVersion:  tls.VersionTLS12,
			AllowedCipherSuites: DefaultCipherSuites(),
			TrustTimeout:        5 * time.Second,
			MaxBatch:            256,
		},
		Session: SessionConfig{
			Timeout:          time.Hour,
			RenewalThreshold: 0.2,
			RetiredKeyGrace:  30 * time.Second,
		},
	}
}

// Validate rejects settings no subsystem can honour.
func (c ProtocolConfiguration) Validate() error {
	var errs []error
	if c.MutualTLS.MinVersion < tls.VersionTLS12 {
		errs = append(errs, errors.New("mutual_tls: minimum TLS version must be at least 1.2"))
	}
	if len(c.MutualTLS.CipherSuites) == 0 {
		errs = append(errs, errors.New("mutual_tls: cipher suite allow-list is empty"))
	}
	if c.MutualTLS.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("mutual_tls: handshake timeout must be positive"))
	}
	if c.APIAuth.ClockSkew < 0 {
		errs = append(errs, errors.New("api_auth: clock skew must not be negative"))
	}
	if c.UserPairing.NonceTTL <= 0 {
		errs = append(errs, errors.New("user_pairing: nonce TTL must be positive"))
	}
	if c.UserPairing.NonceWindow <= 0 {
		errs = append(errs, errors.New("user_pairing: nonce window must be positive"))
	}
	if c.DeviceDiscovery.Window <= 0 {
		errs = append(errs, errors.New("device_discovery: window must be positive"))
	}
	if c.Session.Timeout <= 0 {
		errs = append(errs, errors.New("session: timeout must be positive"))
	}
	if c.Session.RenewalThreshold <= 0 || c.Session.RenewalThreshold >= 1 {
		errs = append(errs, errors.New("session: renewal threshold must be in (0, 1)"))
	}
	enabled := 0
	for _, p := range models.ProtocolPriority {
		if c.Negotiation.Enabled(p) {
			enabled++
		}
	}
	if enabled == 0 {
		errs = append(errs, errors.New("negotiation: every protocol is disabled"))
	}
	return errors.Join(errs...)
}

func parseProtocol(name string) (models.ProtocolKind, bool) {
	return models.ParseProtocolKind(name)
}
