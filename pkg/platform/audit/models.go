package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategorySecurity covers events relevant to security monitoring and forensics.
	// Examples: authentication failures, revocations, cleanup anomalies.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine lifecycle events that can be sampled.
	// Examples: connection established, session renewed.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category     EventCategory `json:"category"`
	Timestamp    time.Time     `json:"timestamp"`
	Subject      string        `json:"subject"`
	Action       string        `json:"action"`
	Protocol     string        `json:"protocol,omitempty"`
	ConnectionID string        `json:"connection_id,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	RequestID    string        `json:"request_id,omitempty"`
	Severity     Severity      `json:"severity,omitempty"`
}

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type AuditEvent string

const (
	// Connection lifecycle
	EventConnectionEstablished AuditEvent = "connection_established"
	EventConnectionTerminated  AuditEvent = "connection_terminated"
	EventConnectionExpired     AuditEvent = "connection_expired"
	EventEstablishmentFailed   AuditEvent = "establishment_failed"

	// Sessions
	EventSessionCreated       AuditEvent = "session_created"
	EventSessionRenewed       AuditEvent = "session_renewed"
	EventSessionCleanupFailed AuditEvent = "session_cleanup_failed"
	EventRenewalDiscarded     AuditEvent = "renewal_discarded"

	// Credentials
	EventAuthFailed   AuditEvent = "auth_failed"
	EventTokenRevoked AuditEvent = "token_revoked"

	// Pairing
	EventChallengeIssued AuditEvent = "pairing_challenge_issued"
	EventDevicePaired    AuditEvent = "device_paired"
	EventDeviceBound     AuditEvent = "device_bound"

	// Discovery
	EventDeviceDiscovered AuditEvent = "device_discovered"
	EventDeviceRegistered AuditEvent = "device_registered"
	EventDeviceRejected   AuditEvent = "device_rejected"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventEstablishmentFailed:  CategorySecurity,
	EventSessionCleanupFailed: CategorySecurity,
	EventRenewalDiscarded:     CategorySecurity,
	EventAuthFailed:           CategorySecurity,
	EventTokenRevoked:         CategorySecurity,
	EventDeviceBound:          CategorySecurity,
	EventDeviceRejected:       CategorySecurity,

	EventConnectionEstablished: CategoryOperations,
	EventConnectionTerminated:  CategoryOperations,
	EventConnectionExpired:     CategoryOperations,
	EventSessionCreated:        CategoryOperations,
	EventSessionRenewed:        CategoryOperations,
	EventChallengeIssued:       CategoryOperations,
	EventDevicePaired:          CategoryOperations,
	EventDeviceDiscovered:      CategoryOperations,
	EventDeviceRegistered:      CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}

// Emitter is the narrow interface services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
