package models

import (
	"strings"
	"time"
)

// ProtocolKind is the closed set of authentication protocols the coordinator
// can negotiate. Dispatch on it with an exhaustive switch.
type ProtocolKind int

const (
	ProtocolUnknown ProtocolKind = iota
	ProtocolMutualTLS
	ProtocolAPIAuthentication
	ProtocolUserPairing
)

// ProtocolPriority is the fixed negotiation order, strongest first.
var ProtocolPriority = []ProtocolKind{
	ProtocolMutualTLS,
	ProtocolAPIAuthentication,
	ProtocolUserPairing,
}

func (p ProtocolKind) String() string {
	switch p {
	case ProtocolMutualTLS:
		return "mutual_tls"
	case ProtocolAPIAuthentication:
		return "api_authentication"
	case ProtocolUserPairing:
		return "user_pairing"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the negotiable protocols.
func (p ProtocolKind) Valid() bool {
	return p == ProtocolMutualTLS || p == ProtocolAPIAuthentication || p == ProtocolUserPairing
}

// ParseProtocolKind accepts the String form, case-insensitively.
func ParseProtocolKind(s string) (ProtocolKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mutual_tls", "mtls":
		return ProtocolMutualTLS, true
	case "api_authentication", "api":
		return ProtocolAPIAuthentication, true
	case "user_pairing", "pairing":
		return ProtocolUserPairing, true
	default:
		return ProtocolUnknown, false
	}
}

// DeploymentContext describes where a connection is being made and biases
// negotiation toward the protocols that fit it.
type DeploymentContext int

const (
	DeploymentUnspecified DeploymentContext = iota
	DeploymentServiceMesh
	DeploymentProgrammatic
	DeploymentHumanInteractive
)

func (d DeploymentContext) String() string {
	switch d {
	case DeploymentServiceMesh:
		return "service_mesh"
	case DeploymentProgrammatic:
		return "programmatic"
	case DeploymentHumanInteractive:
		return "human_interactive"
	default:
		return "unspecified"
	}
}

// AssuranceLevel is the minimum authentication strength a connection demands.
type AssuranceLevel int

const (
	AssuranceBasic AssuranceLevel = iota
	AssuranceElevated
	AssuranceHigh
)

func (a AssuranceLevel) String() string {
	switch a {
	case AssuranceElevated:
		return "elevated"
	case AssuranceHigh:
		return "high"
	default:
		return "basic"
	}
}

// ConnectionContext is the situational metadata used to bias negotiation.
type ConnectionContext struct {
	Deployment        DeploymentContext
	RequiredAssurance AssuranceLevel
	RequiredScopes    []string
	// ForcedProtocol, when valid, is the only protocol the context accepts.
	ForcedProtocol ProtocolKind
}

// NegotiatedParameters are the knobs the chosen protocol runs with.
type NegotiatedParameters struct {
	MinTLSVersion  uint16
	CipherSuites   []uint16
	SessionTTL     time.Duration
	RequiredScopes []string
	PairingTTL     time.Duration
}

// ProtocolSelection is the deterministic outcome of negotiation.
type ProtocolSelection struct {
	Protocol   ProtocolKind
	Parameters NegotiatedParameters
}
