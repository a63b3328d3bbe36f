package coordinator

import (
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"trustmesh/internal/models"
	"trustmesh/internal/session"
	"trustmesh/pkg/domain"
	dErrors "trustmesh/pkg/domain-errors"
	audit "trustmesh/pkg/platform/audit"
)

// established is what a protocol routine proved, before a session exists.
type established struct {
	properties models.SecurityProperties
	identity   string
	scope      []string
	seed       []byte
	channel    io.Closer
}

// EstablishSecureConnection negotiates a protocol, runs it, binds a session
// and registers the connection. Any failure leaves no registry entry and no
// session behind. An API connection whose token is revoked while it is being
// established is terminated and reported as TokenRevoked.
func (c *Coordinator) EstablishSecureConnection(ctx context.Context, local, remote models.EntityInfo, cctx models.ConnectionContext) (models.SecureConnection, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.EstablishSecureConnection")
	defer span.End()
	start := time.Now()

	selection, err := c.negotiator.Negotiate(local, remote, cctx)
	if err != nil {
		return models.SecureConnection{}, c.establishFailed(ctx, span, models.ProtocolUnknown, remote, err)
	}
	protocol := selection.Protocol
	span.SetAttributes(attribute.String("protocol", protocol.String()))

	est, err := c.establish(ctx, selection, local, remote)
	if err != nil {
		return models.SecureConnection{}, c.establishFailed(ctx, span, protocol, remote, err)
	}

	info, err := c.sessions.CreateSession(ctx, session.CreateRequest{
		Identity: est.identity,
		Protocol: protocol,
		Scope:    est.scope,
		TTL:      selection.Parameters.SessionTTL,
		Seed:     est.seed,
	})
	clear(est.seed)
	if err != nil {
		closeChannel(est.channel)
		return models.SecureConnection{}, c.establishFailed(ctx, span, protocol, remote, err)
	}

	// Cancellation after the session exists discards it rather than registering.
	if ctxErr := ctx.Err(); ctxErr != nil {
		c.discardSession(ctx, info)
		closeChannel(est.channel)
		return models.SecureConnection{}, c.establishFailed(ctx, span, protocol, remote, contextError(ctxErr))
	}

	now := c.clock()
	e := &entry{
		conn: models.SecureConnection{
			Protocol:      protocol,
			Local:         local.Public(),
			Remote:        remote.Public(),
			Session:       info,
			Properties:    est.properties,
			EstablishedAt: now,
		},
		lastActivity: now,
		channel:      est.channel,
	}
	if c.metrics != nil {
		c.metrics.ActiveConnections.Inc()
	}
	for {
		e.conn.ID = domain.NewConnectionID()
		if c.registry.insert(e) {
			break
		}
	}

	// A revocation that scanned the registry before the insert missed this
	// entry, so the credential is checked again now that it is visible.
	if protocol == models.ProtocolAPIAuthentication {
		if err := c.apiAuth.CheckRevoked(ctx, est.properties.CredentialID); err != nil {
			if termErr := c.terminate(ctx, e.conn.ID, ReasonRevoked); dErrors.HasCode(termErr, dErrors.CodeResourceCleanupFailure) {
				c.logger.WarnContext(ctx, "revoked connection cleanup failed", "connection_id", e.conn.ID.String(), "error", termErr)
			}
			return models.SecureConnection{}, c.establishFailed(ctx, span, protocol, remote, err)
		}
	}

	if c.metrics != nil {
		c.metrics.ConnectionsEstablished.WithLabelValues(protocol.String()).Inc()
		c.metrics.EstablishDuration.WithLabelValues(protocol.String()).Observe(time.Since(start).Seconds())
	}
	span.SetAttributes(attribute.String("connection_id", e.conn.ID.String()))
	c.logAudit(ctx, audit.EventConnectionEstablished,
		"subject", est.identity,
		"connection_id", e.conn.ID.String(),
		"protocol", protocol.String(),
		"remote_id", remote.ID,
	)
	return e.conn, nil
}

// AuthenticateAIApp establishes a connection with a programmatic client,
// which must authenticate with API credentials carrying the given scopes.
func (c *Coordinator) AuthenticateAIApp(ctx context.Context, local, app models.EntityInfo, scopes []string) (models.SecureConnection, error) {
	return c.EstablishSecureConnection(ctx, local, app, models.ConnectionContext{
		Deployment:     models.DeploymentProgrammatic,
		RequiredScopes: scopes,
		ForcedProtocol: models.ProtocolAPIAuthentication,
	})
}

// AuthenticateUser establishes a connection with a human's device through
// user pairing.
func (c *Coordinator) AuthenticateUser(ctx context.Context, local, device models.EntityInfo) (models.SecureConnection, error) {
	return c.EstablishSecureConnection(ctx, local, device, models.ConnectionContext{
		Deployment:     models.DeploymentHumanInteractive,
		ForcedProtocol: models.ProtocolUserPairing,
	})
}

func (c *Coordinator) establish(ctx context.Context, selection models.ProtocolSelection, local, remote models.EntityInfo) (established, error) {
	params := selection.Parameters
	switch selection.Protocol {
	case models.ProtocolMutualTLS:
		if c.mtls == nil {
			return established{}, notConfigured(selection.Protocol)
		}
		res, err := c.mtls.EstablishConnection(ctx, local, remote, params)
		if err != nil {
			return established{}, err
		}
		est := established{
			properties: res.Properties,
			identity:   res.Properties.PeerIdentity,
			seed:       res.KeyingMaterial,
		}
		if res.Conn != nil {
			est.channel = res.Conn
		}
		return est, nil

	case models.ProtocolAPIAuthentication:
		if c.apiAuth == nil {
			return established{}, notConfigured(selection.Protocol)
		}
		res, err := c.apiAuth.EstablishConnection(ctx, remote, params)
		if err != nil {
			return established{}, err
		}
		return established{
			properties: res.Properties,
			identity:   res.Principal.Subject,
			scope:      res.Principal.Scope,
		}, nil

	case models.ProtocolUserPairing:
		if c.pairing == nil {
			return established{}, notConfigured(selection.Protocol)
		}
		if remote.Credentials.Pairing == nil {
			return established{}, dErrors.New(dErrors.CodeInvalidInput, "remote presented no pairing credentials")
		}
		res, err := c.pairing.Pair(ctx, *remote.Credentials.Pairing, params)
		if err != nil {
			return established{}, err
		}
		return established{
			properties: models.SecurityProperties{
				Protocol:          models.ProtocolUserPairing,
				PeerIdentity:      res.UserIdentity,
				DeviceFingerprint: res.Binding.Fingerprint,
				AuthenticatedAt:   c.clock(),
			},
			identity: res.UserIdentity,
		}, nil

	case models.ProtocolUnknown:
	}
	return established{}, dErrors.ProtocolViolation("negotiation", "no protocol selected")
}

func (c *Coordinator) establishFailed(ctx context.Context, span trace.Span, protocol models.ProtocolKind, remote models.EntityInfo, err error) error {
	code := dErrors.CodeOf(err)
	if code == "" {
		code = dErrors.CodeInternal
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, string(code))
	if c.metrics != nil {
		c.metrics.EstablishmentFailures.WithLabelValues(protocol.String(), string(code)).Inc()
	}
	retryable := dErrors.Retryable(err)
	span.SetAttributes(attribute.Bool("retryable", retryable))
	c.logAudit(ctx, audit.EventEstablishmentFailed,
		"subject", remote.ID,
		"protocol", protocol.String(),
		"reason", string(code),
		"retryable", retryable,
	)
	return err
}

// discardSession destroys a session that must not outlive a failed attempt.
func (c *Coordinator) discardSession(ctx context.Context, info models.SessionInfo) {
	if err := c.sessions.CleanupSessionResources(context.WithoutCancel(ctx), info); err != nil {
		c.logger.WarnContext(ctx, "failed to discard session", "session_id", info.SessionID.String(), "error", err)
	}
}

func closeChannel(ch io.Closer) {
	if ch != nil {
		_ = ch.Close()
	}
}

func notConfigured(p models.ProtocolKind) error {
	return dErrors.Newf(dErrors.CodeInternal, "%s is not configured", p)
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "connection establishment timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "connection establishment cancelled")
}
