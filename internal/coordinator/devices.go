package coordinator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"trustmesh/internal/discovery"
	"trustmesh/internal/models"
	dErrors "trustmesh/pkg/domain-errors"
	audit "trustmesh/pkg/platform/audit"
)

// DiscoverAndRegisterDevice runs one discovery batch. Only devices that pass
// capability verification and reach Trusted are registered.
func (c *Coordinator) DiscoverAndRegisterDevice(ctx context.Context) (discovery.Report, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.DiscoverAndRegisterDevice")
	defer span.End()

	if c.discovery == nil {
		return discovery.Report{}, dErrors.New(dErrors.CodeInternal, "device discovery is not configured")
	}
	report, err := c.discovery.DiscoverAndRegister(ctx)
	if err != nil {
		span.RecordError(err)
		return discovery.Report{}, err
	}
	span.SetAttributes(
		attribute.Int("devices.discovered", len(report.Discovered)),
		attribute.Int("devices.registered", len(report.Registered)),
	)

	if c.metrics != nil {
		c.metrics.DevicesDiscovered.Add(float64(len(report.Discovered)))
	}
	for _, out := range report.Outcomes {
		if c.metrics != nil {
			c.metrics.DeviceOutcomes.WithLabelValues(string(out.Stage), out.Level.String()).Inc()
			if out.Stage == discovery.StageRegistered {
				c.metrics.DevicesRegistered.Inc()
			}
		}
		if out.Stage == discovery.StageRegistered {
			c.logAudit(ctx, audit.EventDeviceRegistered,
				"subject", out.DeviceID,
				"trust_level", out.Level.String(),
			)
			continue
		}
		attrs := []any{
			"subject", out.DeviceID,
			"stage", string(out.Stage),
			"trust_level", out.Level.String(),
		}
		if out.Err != nil {
			attrs = append(attrs, "reason", out.Err.Error())
		}
		c.logAudit(ctx, audit.EventDeviceRejected, attrs...)
	}
	return report, nil
}

// RevokeToken revokes an API token and terminates every connection that
// authenticated with it. It returns how many connections were terminated.
func (c *Coordinator) RevokeToken(ctx context.Context, raw string) (int, error) {
	if c.apiAuth == nil {
		return 0, notConfigured(models.ProtocolAPIAuthentication)
	}
	principal, err := c.apiAuth.RevokeToken(ctx, raw)
	if err != nil {
		return 0, err
	}
	c.logAudit(ctx, audit.EventTokenRevoked,
		"subject", principal.Subject,
		"token_id", principal.TokenID,
	)

	terminated := 0
	for _, e := range c.registry.all() {
		e.mu.Lock()
		id := e.conn.ID
		match := !e.removed &&
			e.conn.Protocol == models.ProtocolAPIAuthentication &&
			e.conn.Properties.CredentialID == principal.TokenID
		e.mu.Unlock()
		if !match {
			continue
		}
		err := c.terminate(ctx, id, ReasonRevoked)
		switch {
		case err == nil:
			terminated++
		case dErrors.HasCode(err, dErrors.CodeResourceCleanupFailure):
			terminated++
			c.logger.WarnContext(ctx, "revoked connection cleanup failed", "connection_id", id.String(), "error", err)
		}
	}
	return terminated, nil
}
