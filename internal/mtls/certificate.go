package mtls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"
)

// ValidationErrorKind enumerates why a certificate was rejected.
type ValidationErrorKind string

const (
	ErrMalformed             ValidationErrorKind = "malformed"
	ErrUntrustedRoot         ValidationErrorKind = "untrusted_root"
	ErrExpired               ValidationErrorKind = "expired"
	ErrNotYetValid           ValidationErrorKind = "not_yet_valid"
	ErrRevoked               ValidationErrorKind = "revoked"
	ErrRevocationUnavailable ValidationErrorKind = "revocation_unavailable"
	ErrWrongUsage            ValidationErrorKind = "wrong_key_usage"
	ErrMissingIdentity       ValidationErrorKind = "missing_identity"
	ErrTLSVersionTooLow      ValidationErrorKind = "tls_version_below_floor"
	ErrCipherNotAllowed      ValidationErrorKind = "cipher_suite_not_allowed"
	ErrCustomRejected        ValidationErrorKind = "custom_check_rejected"
)

// ValidationError is one reason a certificate failed verification.
type ValidationError struct {
	Kind   ValidationErrorKind
	Detail string
}

func (e ValidationError) String() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

// Certificate is a presented chain in DER form, leaf first.
type Certificate struct {
	Chain [][]byte
}

// CertificateFromTLS converts a loaded key pair into its public chain.
func CertificateFromTLS(c tls.Certificate) Certificate {
	return Certificate{Chain: c.Certificate}
}

// CertificateFromX509 converts parsed certificates, leaf first.
func CertificateFromX509(certs []*x509.Certificate) Certificate {
	chain := make([][]byte, 0, len(certs))
	for _, c := range certs {
		chain = append(chain, c.Raw)
	}
	return Certificate{Chain: chain}
}

// parse decodes the chain. It never panics on hostile input.
func (c Certificate) parse() (leaf *x509.Certificate, intermediates []*x509.Certificate, err error) {
	if len(c.Chain) == 0 {
		return nil, nil, fmt.Errorf("empty certificate chain")
	}
	certs := make([]*x509.Certificate, 0, len(c.Chain))
	for i, der := range c.Chain {
		if len(der) == 0 {
			return nil, nil, fmt.Errorf("certificate %d is empty", i)
		}
		parsed, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, nil, fmt.Errorf("certificate %d: %w", i, err)
		}
		certs = append(certs, parsed)
	}
	return certs[0], certs[1:], nil
}

// ConnectionInfo is the context a certificate is verified in.
type ConnectionInfo struct {
	// State is the negotiated TLS state, when verification happens during or
	// after a handshake.
	State *tls.ConnectionState
	// At overrides the verification time.
	At time.Time
}

// TLSSession summarizes the negotiated channel.
type TLSSession struct {
	Version     uint16
	CipherSuite uint16
	ServerName  string
	Resumed     bool
}

// CertificateVerification is the typed outcome of VerifyCertificate.
type CertificateVerification struct {
	Valid        bool
	Errors       []ValidationError
	TLSSession   *TLSSession
	Identity     string
	Capabilities map[string]string
}

// ErrorDetails renders each validation error for inclusion in a domain error.
func (v CertificateVerification) ErrorDetails() []string {
	out := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		out = append(out, e.String())
	}
	return out
}

// Has reports whether kind is among the validation errors.
func (v CertificateVerification) Has(kind ValidationErrorKind) bool {
	for _, e := range v.Errors {
		if e.Kind == kind {
			return true
		}
	}
	return false
}
