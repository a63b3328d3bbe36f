// Package coordinator is the entry point of the security layer. It negotiates
// a protocol per connection, runs the matching establishment routine, binds a
// session and tracks the result in a sharded registry of active connections.
package coordinator

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"trustmesh/internal/apiauth"
	"trustmesh/internal/discovery"
	"trustmesh/internal/models"
	"trustmesh/internal/mtls"
	"trustmesh/internal/platform/metrics"
	"trustmesh/internal/session"
	audit "trustmesh/pkg/platform/audit"
)

// Negotiator selects the protocol for a connection.
type Negotiator interface {
	Negotiate(local, remote models.EntityInfo, cctx models.ConnectionContext) (models.ProtocolSelection, error)
}

// MutualTLS runs the certificate handshake with a remote entity.
type MutualTLS interface {
	EstablishConnection(ctx context.Context, local, remote models.EntityInfo, params models.NegotiatedParameters) (*mtls.Result, error)
}

// APIAuthenticator checks bearer tokens and claim sets.
type APIAuthenticator interface {
	EstablishConnection(ctx context.Context, remote models.EntityInfo, params models.NegotiatedParameters) (*apiauth.Result, error)
	RevokeToken(ctx context.Context, raw string) (apiauth.Principal, error)
	CheckRevoked(ctx context.Context, tokenID string) error
}

// UserPairing runs the challenge-response exchange with a human's device.
type UserPairing interface {
	Pair(ctx context.Context, creds models.PairingCredentials, params models.NegotiatedParameters) (models.PairingResult, error)
	Sweep(now time.Time) int
}

// DeviceDiscovery finds, verifies and registers devices.
type DeviceDiscovery interface {
	DiscoverAndRegister(ctx context.Context) (discovery.Report, error)
}

// SessionManager owns session lifecycles and key material.
type SessionManager interface {
	CreateSession(ctx context.Context, req session.CreateRequest) (models.SessionInfo, error)
	ValidateSession(ctx context.Context, info models.SessionInfo, vctx session.ValidationContext) (models.SessionValidation, error)
	RenewSession(ctx context.Context, info models.SessionInfo) (models.SessionInfo, error)
	CleanupSessionResources(ctx context.Context, info models.SessionInfo) error
	Sweep(now time.Time) int
}

// Coordinator owns the subsystems outright. The registry is the only state
// shared between concurrent operations.
type Coordinator struct {
	negotiator Negotiator
	mtls       MutualTLS
	apiAuth    APIAuthenticator
	pairing    UserPairing
	discovery  DeviceDiscovery
	sessions   SessionManager

	registry       *registry
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher audit.Emitter
	tracer         trace.Tracer
	clock          func() time.Time
}

type Option func(*Coordinator)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithAuditPublisher(p audit.Emitter) Option {
	return func(c *Coordinator) {
		c.auditPublisher = p
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = t
	}
}

func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithMutualTLS, WithAPIAuthentication, WithUserPairing and WithDiscovery
// install the subsystems. A missing subsystem fails its protocol with an
// internal error; negotiation still considers it.
func WithMutualTLS(m MutualTLS) Option {
	return func(c *Coordinator) {
		c.mtls = m
	}
}

func WithAPIAuthentication(a APIAuthenticator) Option {
	return func(c *Coordinator) {
		c.apiAuth = a
	}
}

func WithUserPairing(p UserPairing) Option {
	return func(c *Coordinator) {
		c.pairing = p
	}
}

func WithDiscovery(d DeviceDiscovery) Option {
	return func(c *Coordinator) {
		c.discovery = d
	}
}

func New(negotiator Negotiator, sessions SessionManager, opts ...Option) *Coordinator {
	c := &Coordinator{
		negotiator: negotiator,
		sessions:   sessions,
		registry:   newRegistry(),
		logger:     slog.Default(),
		tracer:     otel.Tracer("trustmesh/coordinator"),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
