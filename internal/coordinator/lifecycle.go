package coordinator

import (
	"context"
	"errors"
	"net"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"trustmesh/internal/models"
	"trustmesh/internal/session"
	"trustmesh/pkg/domain"
	dErrors "trustmesh/pkg/domain-errors"
	audit "trustmesh/pkg/platform/audit"
)

// Termination reasons recorded in metrics and audit events.
const (
	ReasonRequested = "requested"
	ReasonExpired   = "expired"
	ReasonRevoked   = "revoked"
)

// Connection returns a snapshot of one active connection.
func (c *Coordinator) Connection(id domain.ConnectionID) (models.ConnectionStatus, error) {
	e, ok := c.registry.get(id)
	if !ok {
		return models.ConnectionStatus{}, dErrors.Newf(dErrors.CodeNotFound, "connection %s not found", id)
	}
	return e.status(), nil
}

// ActiveConnections returns snapshots of every active connection, oldest first.
func (c *Coordinator) ActiveConnections() []models.ConnectionStatus {
	entries := c.registry.all()
	out := make([]models.ConnectionStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.status())
	}
	slices.SortFunc(out, func(a, b models.ConnectionStatus) int {
		if n := a.Connection.EstablishedAt.Compare(b.Connection.EstablishedAt); n != 0 {
			return n
		}
		return strings.Compare(a.Connection.ID.String(), b.Connection.ID.String())
	})
	return out
}

// ValidateSession checks the session bound to a connection. The protocol is
// always the connection's own.
func (c *Coordinator) ValidateSession(ctx context.Context, id domain.ConnectionID, requiredScopes []string) (models.SessionValidation, error) {
	e, ok := c.registry.get(id)
	if !ok {
		return models.SessionValidation{}, unknownConnection(id)
	}
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return models.SessionValidation{}, unknownConnection(id)
	}
	info := e.conn.Session
	protocol := e.conn.Protocol
	e.mu.Unlock()

	result, err := c.sessions.ValidateSession(ctx, info, session.ValidationContext{
		Protocol:       protocol,
		RequiredScopes: requiredScopes,
	})
	if err != nil {
		c.countValidation("error")
		return models.SessionValidation{}, err
	}

	now := c.clock()
	e.mu.Lock()
	e.metrics.Validations++
	e.metrics.LastValidatedAt = now
	e.lastActivity = now
	e.mu.Unlock()

	switch {
	case !result.Valid:
		c.countValidation("invalid")
	case result.NeedsRenewal:
		c.countValidation("needs_renewal")
	default:
		c.countValidation("valid")
	}
	return result, nil
}

// RenewSession replaces a connection's session with a new generation. The
// entry lock is not held while the session manager works, so a concurrent
// termination can win; the renewal then destroys the session it produced.
func (c *Coordinator) RenewSession(ctx context.Context, id domain.ConnectionID) (models.SessionInfo, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.RenewSession")
	defer span.End()
	span.SetAttributes(attribute.String("connection_id", id.String()))

	e, ok := c.registry.get(id)
	if !ok {
		return models.SessionInfo{}, unknownConnection(id)
	}
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return models.SessionInfo{}, unknownConnection(id)
	}
	current := e.conn.Session
	e.mu.Unlock()

	next, err := c.sessions.RenewSession(ctx, current)
	if err != nil {
		e.mu.Lock()
		removed := e.removed
		e.mu.Unlock()
		c.countRenewal("failed")
		span.RecordError(err)
		if removed {
			return models.SessionInfo{}, terminatedDuringRenewal(id)
		}
		return models.SessionInfo{}, err
	}

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		c.discardSession(ctx, next)
		c.countRenewal("discarded")
		c.logAudit(ctx, audit.EventRenewalDiscarded,
			"subject", current.Identity,
			"connection_id", id.String(),
			"session_id", next.SessionID.String(),
		)
		return models.SessionInfo{}, terminatedDuringRenewal(id)
	}
	now := c.clock()
	e.conn.Session = next
	e.metrics.Renewals++
	e.metrics.LastRenewedAt = now
	e.lastActivity = now
	protocol := e.conn.Protocol
	e.mu.Unlock()

	c.countRenewal("renewed")
	c.logAudit(ctx, audit.EventSessionRenewed,
		"subject", next.Identity,
		"connection_id", id.String(),
		"protocol", protocol.String(),
		"generation", next.Generation,
	)
	return next, nil
}

// TerminateConnection removes a connection and destroys its session. Removal
// always happens; cleanup problems are returned as ResourceCleanupFailure
// afterwards. An unknown id is a protocol violation and changes nothing.
func (c *Coordinator) TerminateConnection(ctx context.Context, id domain.ConnectionID) error {
	ctx, span := c.tracer.Start(ctx, "coordinator.TerminateConnection")
	defer span.End()
	span.SetAttributes(attribute.String("connection_id", id.String()))

	err := c.terminate(ctx, id, ReasonRequested)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (c *Coordinator) terminate(ctx context.Context, id domain.ConnectionID, reason string) error {
	e, ok := c.registry.get(id)
	if !ok {
		return unknownConnection(id)
	}
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return unknownConnection(id)
	}
	e.removed = true
	c.registry.remove(id, e)
	conn := e.conn
	channel := e.channel
	e.channel = nil
	e.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ActiveConnections.Dec()
		c.metrics.ConnectionsTerminated.WithLabelValues(reason).Inc()
	}

	var errs []error
	cleanupCtx := context.WithoutCancel(ctx)
	if err := c.sessions.CleanupSessionResources(cleanupCtx, conn.Session); err != nil {
		errs = append(errs, err)
	}
	if channel != nil {
		if err := channel.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}

	event := audit.EventConnectionTerminated
	if reason == ReasonExpired {
		event = audit.EventConnectionExpired
	}
	c.logAudit(ctx, event,
		"subject", conn.Session.Identity,
		"connection_id", id.String(),
		"protocol", conn.Protocol.String(),
		"reason", reason,
	)

	if len(errs) == 0 {
		return nil
	}
	if c.metrics != nil {
		c.metrics.CleanupFailures.Inc()
	}
	err := dErrors.Wrap(errors.Join(errs...), dErrors.CodeResourceCleanupFailure, "connection removed but cleanup failed")
	c.logAudit(ctx, audit.EventSessionCleanupFailed,
		"subject", conn.Session.Identity,
		"connection_id", id.String(),
		"reason", err.Error(),
	)
	return err
}

// Sweep terminates connections whose session has expired and ages out
// retired key material and stale pairing attempts.
func (c *Coordinator) Sweep(ctx context.Context) int {
	now := c.clock()
	expired := 0
	for _, e := range c.registry.all() {
		e.mu.Lock()
		id, dead := e.conn.ID, !e.removed && e.conn.Session.IsExpired(now)
		e.mu.Unlock()
		if !dead {
			continue
		}
		err := c.terminate(ctx, id, ReasonExpired)
		if err != nil && dErrors.HasCode(err, dErrors.CodeProtocolViolation) {
			continue
		}
		if err != nil {
			c.logger.WarnContext(ctx, "expired connection cleanup failed", "connection_id", id.String(), "error", err)
		}
		expired++
	}

	retired := c.sessions.Sweep(now)
	stale := 0
	if c.pairing != nil {
		stale = c.pairing.Sweep(now)
	}
	if expired+retired+stale > 0 {
		c.logger.DebugContext(ctx, "janitor sweep",
			"expired_connections", expired,
			"retired_keys", retired,
			"stale_pairings", stale,
		)
	}
	return expired
}

// Run sweeps every interval until ctx is done.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

func unknownConnection(id domain.ConnectionID) error {
	return dErrors.ProtocolViolation("coordinator", "unknown connection "+id.String())
}

func terminatedDuringRenewal(id domain.ConnectionID) error {
	return dErrors.ProtocolViolation("coordinator", "connection "+id.String()+" terminated during renewal")
}
