package coordinator

import (
	"context"

	"trustmesh/pkg/attrs"
	audit "trustmesh/pkg/platform/audit"
	"trustmesh/pkg/requestcontext"
)

func (c *Coordinator) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(event), "log_type", "audit")
	if c.logger != nil {
		c.logger.InfoContext(ctx, string(event), args...)
	}
	if c.auditPublisher == nil {
		return
	}
	severity := audit.SeverityInfo
	if event.Category() == audit.CategorySecurity {
		severity = audit.SeverityWarning
	}
	_ = c.auditPublisher.Emit(ctx, audit.Event{
		Category:     event.Category(),
		Timestamp:    c.clock(),
		Subject:      attrs.ExtractString(attributes, "subject"),
		Action:       string(event),
		Protocol:     attrs.ExtractString(attributes, "protocol"),
		ConnectionID: attrs.ExtractString(attributes, "connection_id"),
		Reason:       attrs.ExtractString(attributes, "reason"),
		RequestID:    requestID,
		Severity:     severity,
	})
}

func (c *Coordinator) countValidation(outcome string) {
	if c.metrics != nil {
		c.metrics.SessionValidations.WithLabelValues(outcome).Inc()
	}
}

func (c *Coordinator) countRenewal(outcome string) {
	if c.metrics != nil {
		c.metrics.SessionRenewals.WithLabelValues(outcome).Inc()
	}
}
