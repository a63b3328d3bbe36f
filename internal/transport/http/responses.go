package httptransport

import (
	"time"

	"trustmesh/internal/discovery"
	"trustmesh/internal/models"
)

type connectionResponse struct {
	ID            string          `json:"id"`
	Protocol      string          `json:"protocol"`
	LocalID       string          `json:"local_id"`
	RemoteID      string          `json:"remote_id"`
	RemoteType    string          `json:"remote_type"`
	PeerIdentity  string          `json:"peer_identity"`
	TLSVersion    string          `json:"tls_version,omitempty"`
	CipherSuite   string          `json:"cipher_suite,omitempty"`
	Scope         []string        `json:"scope,omitempty"`
	Fingerprint   string          `json:"device_fingerprint,omitempty"`
	EstablishedAt time.Time       `json:"established_at"`
	LastActivity  time.Time       `json:"last_activity"`
	Session       sessionResponse `json:"session"`
	Validations   uint64          `json:"validations"`
	Renewals      uint64          `json:"renewals"`
}

// sessionResponse omits the key reference.
type sessionResponse struct {
	SessionID  string    `json:"session_id"`
	Identity   string    `json:"identity"`
	Generation uint64    `json:"generation"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type validationResponse struct {
	Valid        bool      `json:"valid"`
	NeedsRenewal bool      `json:"needs_renewal"`
	ExpiresAt    time.Time `json:"expires_at"`
	Reason       string    `json:"reason,omitempty"`
}

type terminateResponse struct {
	Removed      bool   `json:"removed"`
	CleanupError string `json:"cleanup_error"`
}

type revokeTokenRequest struct {
	Token string `json:"token"`
}

type revokeTokenResponse struct {
	TerminatedConnections int `json:"terminated_connections"`
}

type deviceOutcome struct {
	DeviceID   string `json:"device_id"`
	Stage      string `json:"stage"`
	TrustLevel string `json:"trust_level"`
	Error      string `json:"error,omitempty"`
}

type discoveryResponse struct {
	Discovered int             `json:"discovered"`
	Registered []string        `json:"registered"`
	Outcomes   []deviceOutcome `json:"outcomes"`
}

func toSessionResponse(s models.SessionInfo) sessionResponse {
	return sessionResponse{
		SessionID:  s.SessionID.String(),
		Identity:   s.Identity,
		Generation: s.Generation,
		IssuedAt:   s.IssuedAt,
		ExpiresAt:  s.ExpiresAt,
	}
}

func toConnectionResponse(s models.ConnectionStatus) connectionResponse {
	c := s.Connection
	return connectionResponse{
		ID:            c.ID.String(),
		Protocol:      c.Protocol.String(),
		LocalID:       c.Local.ID,
		RemoteID:      c.Remote.ID,
		RemoteType:    c.Remote.Type.String(),
		PeerIdentity:  c.Properties.PeerIdentity,
		TLSVersion:    c.Properties.TLSVersionName(),
		CipherSuite:   c.Properties.CipherSuiteName(),
		Scope:         c.Properties.Scope,
		Fingerprint:   c.Properties.DeviceFingerprint,
		EstablishedAt: c.EstablishedAt,
		LastActivity:  s.LastActivity,
		Session:       toSessionResponse(c.Session),
		Validations:   s.Metrics.Validations,
		Renewals:      s.Metrics.Renewals,
	}
}

func toDiscoveryResponse(r discovery.Report) discoveryResponse {
	out := discoveryResponse{
		Discovered: len(r.Discovered),
		Registered: make([]string, 0, len(r.Registered)),
		Outcomes:   make([]deviceOutcome, 0, len(r.Outcomes)),
	}
	for _, d := range r.Registered {
		out.Registered = append(out.Registered, d.Device.ID)
	}
	for _, o := range r.Outcomes {
		do := deviceOutcome{DeviceID: o.DeviceID, Stage: string(o.Stage), TrustLevel: o.Level.String()}
		if o.Err != nil {
			do.Error = o.Err.Error()
		}
		out.Outcomes = append(out.Outcomes, do)
	}
	return out
}
