// Package negotiation selects the authentication protocol for a connection
// from the capabilities both entities declare and the connection context.
package negotiation

import (
	"crypto/tls"
	"log/slog"
	"slices"

	"trustmesh/internal/models"
	"trustmesh/internal/platform/config"
	dErrors "trustmesh/pkg/domain-errors"
	platformstrings "trustmesh/pkg/platform/strings"
)

// Negotiator is a pure function of its configuration and inputs. It holds no
// mutable state and is safe for concurrent use.
type Negotiator struct {
	cfg    config.ProtocolConfiguration
	logger *slog.Logger
}

type Option func(*Negotiator)

func WithLogger(logger *slog.Logger) Option {
	return func(n *Negotiator) {
		n.logger = logger
	}
}

func New(cfg config.ProtocolConfiguration, opts ...Option) *Negotiator {
	n := &Negotiator{cfg: cfg}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Negotiate picks the highest-priority protocol both sides support that the
// context allows. Protocols disabled by configuration count as unsupported.
func (n *Negotiator) Negotiate(local, remote models.EntityInfo, cctx models.ConnectionContext) (models.ProtocolSelection, error) {
	common := n.commonProtocols(local, remote)
	if len(common) == 0 {
		return models.ProtocolSelection{}, dErrors.WithDetails(dErrors.CodeIncompatibleProtocols,
			"no protocol supported by both entities",
			"local="+joinKinds(local.Capabilities),
			"remote="+joinKinds(remote.Capabilities),
		)
	}

	var chosen models.ProtocolKind
	var rejected []string
	for _, p := range common {
		if reason := contextRejects(p, cctx); reason != "" {
			rejected = append(rejected, p.String()+": "+reason)
			continue
		}
		chosen = p
		break
	}
	if !chosen.Valid() {
		return models.ProtocolSelection{}, dErrors.WithDetails(dErrors.CodeContextMismatch,
			"every common protocol is disallowed by the connection context", rejected...)
	}

	if n.logger != nil {
		n.logger.Debug("protocol negotiated",
			"protocol", chosen.String(),
			"local_id", local.ID,
			"remote_id", remote.ID,
			"deployment", cctx.Deployment.String(),
		)
	}
	return models.ProtocolSelection{
		Protocol:   chosen,
		Parameters: n.parameters(chosen, cctx),
	}, nil
}

// commonProtocols returns the intersection in priority order. Duplicates and
// unknown kinds in either declaration are ignored.
func (n *Negotiator) commonProtocols(local, remote models.EntityInfo) []models.ProtocolKind {
	var out []models.ProtocolKind
	for _, p := range models.ProtocolPriority {
		if !n.cfg.Negotiation.Enabled(p) {
			continue
		}
		if local.Supports(p) && remote.Supports(p) {
			out = append(out, p)
		}
	}
	return out
}

// contextRejects returns a non-empty reason when cctx disallows p.
func contextRejects(p models.ProtocolKind, cctx models.ConnectionContext) string {
	if cctx.ForcedProtocol.Valid() && cctx.ForcedProtocol != p {
		return "context forces " + cctx.ForcedProtocol.String()
	}
	switch cctx.Deployment {
	case models.DeploymentHumanInteractive:
		if p != models.ProtocolUserPairing {
			return "human interactive context requires user pairing"
		}
	case models.DeploymentServiceMesh:
		if p != models.ProtocolMutualTLS {
			return "service mesh context requires mutual TLS"
		}
	case models.DeploymentProgrammatic:
		if p == models.ProtocolUserPairing {
			return "programmatic context cannot pair users"
		}
	case models.DeploymentUnspecified:
	}
	if cctx.RequiredAssurance == models.AssuranceHigh && p == models.ProtocolAPIAuthentication {
		return "bearer credentials do not meet high assurance"
	}
	return ""
}

func (n *Negotiator) parameters(p models.ProtocolKind, cctx models.ConnectionContext) models.NegotiatedParameters {
	params := models.NegotiatedParameters{
		SessionTTL: n.cfg.Session.Timeout,
	}
	switch p {
	case models.ProtocolMutualTLS:
		params.MinTLSVersion = n.cfg.MutualTLS.MinVersion
		if cctx.RequiredAssurance == models.AssuranceHigh && params.MinTLSVersion < tls.VersionTLS13 {
			params.MinTLSVersion = tls.VersionTLS13
		}
		params.CipherSuites = slices.Clone(n.cfg.MutualTLS.CipherSuites)
	case models.ProtocolAPIAuthentication:
		params.RequiredScopes = platformstrings.SortedSet(n.cfg.APIAuth.RequiredScopes, cctx.RequiredScopes)
	case models.ProtocolUserPairing:
		params.PairingTTL = n.cfg.UserPairing.NonceTTL
	case models.ProtocolUnknown:
	}
	return params
}

func joinKinds(kinds []models.ProtocolKind) string {
	s := ""
	for i, k := range kinds {
		if i > 0 {
			s += ","
		}
		s += k.String()
	}
	if s == "" {
		return "none"
	}
	return s
}
