package mtls

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"os"
	"time"

	"trustmesh/internal/models"
	"trustmesh/internal/platform/config"
	dErrors "trustmesh/pkg/domain-errors"
)

// ExporterLabel is the RFC 5705 label for session seed material.
const ExporterLabel = "EXPORTER-trustmesh-session"

const keyingMaterialSize = 32

var errPeerRejected = errors.New("peer certificate rejected")

// Dialer opens the transport connection the handshake runs over.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Result is a completed mutual handshake. The caller owns Conn.
type Result struct {
	Conn           *tls.Conn
	Properties     models.SecurityProperties
	Verification   CertificateVerification
	KeyingMaterial []byte
}

// Establisher runs client-side mutual TLS handshakes.
type Establisher struct {
	verifier *Verifier
	cfg      config.MutualTLSConfig
	dialer   Dialer
	logger   *slog.Logger
	clock    func() time.Time
}

type Option func(*Establisher)

func WithDialer(d Dialer) Option {
	return func(e *Establisher) {
		e.dialer = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Establisher) {
		e.logger = logger
	}
}

func WithEstablisherClock(clock func() time.Time) Option {
	return func(e *Establisher) {
		e.clock = clock
	}
}

func NewEstablisher(verifier *Verifier, cfg config.MutualTLSConfig, opts ...Option) *Establisher {
	e := &Establisher{
		verifier: verifier,
		cfg:      cfg,
		dialer:   &net.Dialer{},
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EstablishConnection dials remote.Endpoint and performs a handshake in which
// both sides present and verify certificates. Transport failures, including
// the handshake deadline, return a retryable Timeout error. Certificate
// problems return AuthenticationFailed listing every validation error.
func (e *Establisher) EstablishConnection(ctx context.Context, local, remote models.EntityInfo, params models.NegotiatedParameters) (*Result, error) {
	if local.Credentials.TLSCertificate == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "local entity has no TLS certificate")
	}
	if remote.Endpoint == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "remote entity has no endpoint")
	}

	if e.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.HandshakeTimeout)
		defer cancel()
	}

	raw, err := e.dialer.DialContext(ctx, "tcp", remote.Endpoint)
	if err != nil {
		return nil, transportError(ctx, err, "dial peer")
	}

	var verification CertificateVerification
	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{*local.Credentials.TLSCertificate},
		MinVersion:   max(params.MinTLSVersion, e.cfg.MinVersion),
		CipherSuites: cipherSuites(params.CipherSuites, e.cfg.CipherSuites),
		ServerName:   serverName(remote.Endpoint),
		// Chain verification is done by the Verifier in VerifyConnection so
		// that every failure is reported, not just the first.
		InsecureSkipVerify: true, //nolint:gosec
		VerifyConnection: func(cs tls.ConnectionState) error {
			verification = e.verifier.VerifyCertificate(CertificateFromX509(cs.PeerCertificates), ConnectionInfo{State: &cs})
			if !verification.Valid {
				return errPeerRejected
			}
			return nil
		},
	}

	conn := tls.Client(raw, tlsCfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		if errors.Is(err, errPeerRejected) {
			e.logger.WarnContext(ctx, "peer certificate rejected",
				"remote_id", remote.ID,
				"errors", verification.ErrorDetails(),
			)
			return nil, dErrors.AuthenticationFailed("peer certificate rejected", verification.ErrorDetails()...)
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "remote error" {
			return nil, dErrors.AuthenticationFailed("peer aborted handshake", opErr.Err.Error())
		}
		var recordErr tls.RecordHeaderError
		if errors.As(err, &recordErr) {
			return nil, dErrors.AuthenticationFailed("peer did not speak TLS", recordErr.Msg)
		}
		return nil, transportError(ctx, err, "handshake")
	}

	state := conn.ConnectionState()
	if remote.ID != "" && verification.Identity != remote.ID {
		_ = conn.Close()
		return nil, dErrors.AuthenticationFailed("peer identity mismatch",
			"expected="+remote.ID, "presented="+verification.Identity)
	}

	material, err := state.ExportKeyingMaterial(ExporterLabel, nil, keyingMaterialSize)
	if err != nil {
		_ = conn.Close()
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "export keying material")
	}

	return &Result{
		Conn: conn,
		Properties: models.SecurityProperties{
			Protocol:         models.ProtocolMutualTLS,
			PeerIdentity:     verification.Identity,
			TLSVersion:       state.Version,
			CipherSuite:      state.CipherSuite,
			PeerCapabilities: verification.Capabilities,
			AuthenticatedAt:  e.clock(),
		},
		Verification:   verification,
		KeyingMaterial: material,
	}, nil
}

// NewServerTLSConfig builds the accepting side: a client certificate is
// required and checked by verifier.
func NewServerTLSConfig(cert tls.Certificate, verifier *Verifier, cfg config.MutualTLSConfig) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAnyClientCert,
		MinVersion:   cfg.MinVersion,
		CipherSuites: cipherSuites(nil, cfg.CipherSuites),
		VerifyConnection: func(cs tls.ConnectionState) error {
			v := verifier.VerifyCertificate(CertificateFromX509(cs.PeerCertificates), ConnectionInfo{State: &cs})
			if !v.Valid {
				return errPeerRejected
			}
			return nil
		},
	}
}

func transportError(ctx context.Context, err error, op string) error {
	if ctx.Err() != nil || errors.Is(err, os.ErrDeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, op+" timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return dErrors.Wrap(err, dErrors.CodeTimeout, op+" timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeTimeout, op+" failed")
}

// cipherSuites prefers the negotiated list and falls back to configuration.
// crypto/tls ignores the list for TLS 1.3.
func cipherSuites(negotiated, configured []uint16) []uint16 {
	if len(negotiated) > 0 {
		return negotiated
	}
	return configured
}

func serverName(endpoint string) string {
	host, _, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint
	}
	return host
}
