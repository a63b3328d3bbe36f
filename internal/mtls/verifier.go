package mtls

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"time"

	"trustmesh/internal/platform/config"
)

// CustomCheck is the caller-supplied hook run under StrictnessCustom.
type CustomCheck func(leaf *x509.Certificate, chains [][]*x509.Certificate) error

// Verifier validates peer certificates against pinned roots and revocation
// data. It is safe for concurrent use; revocation data may be replaced at
// runtime with SetCRLs and RevokeSerial.
type Verifier struct {
	roots  *x509.CertPool
	cfg    config.MutualTLSConfig
	custom CustomCheck
	clock  func() time.Time

	mu      sync.RWMutex
	crls    []*x509.RevocationList
	serials map[string]struct{}
}

type VerifierOption func(*Verifier)

func WithCRLs(crls ...*x509.RevocationList) VerifierOption {
	return func(v *Verifier) {
		v.crls = append(v.crls, crls...)
	}
}

func WithRevokedSerials(serials ...*big.Int) VerifierOption {
	return func(v *Verifier) {
		for _, s := range serials {
			v.serials[s.String()] = struct{}{}
		}
	}
}

func WithCustomCheck(check CustomCheck) VerifierOption {
	return func(v *Verifier) {
		v.custom = check
	}
}

func WithClock(clock func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.clock = clock
	}
}

func NewVerifier(roots *x509.CertPool, cfg config.MutualTLSConfig, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		roots:   roots,
		cfg:     cfg,
		clock:   time.Now,
		serials: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// SetCRLs replaces the revocation lists.
func (v *Verifier) SetCRLs(crls ...*x509.RevocationList) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.crls = slices.Clone(crls)
}

// RevokeSerial adds a serial number to the local revocation set.
func (v *Verifier) RevokeSerial(serial *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.serials[serial.String()] = struct{}{}
}

// VerifyCertificate never panics and never returns an error: every problem,
// including unparseable input, is reported in the result.
func (v *Verifier) VerifyCertificate(cert Certificate, info ConnectionInfo) (result CertificateVerification) {
	defer func() {
		if r := recover(); r != nil {
			result = CertificateVerification{Errors: []ValidationError{{Kind: ErrMalformed, Detail: fmt.Sprint(r)}}}
		}
	}()

	add := func(kind ValidationErrorKind, format string, args ...any) {
		result.Errors = append(result.Errors, ValidationError{Kind: kind, Detail: fmt.Sprintf(format, args...)})
	}

	if info.State != nil {
		result.TLSSession = &TLSSession{
			Version:     info.State.Version,
			CipherSuite: info.State.CipherSuite,
			ServerName:  info.State.ServerName,
			Resumed:     info.State.DidResume,
		}
		v.checkChannel(info.State.Version, info.State.CipherSuite, add)
	}

	leaf, intermediates, err := cert.parse()
	if err != nil {
		add(ErrMalformed, "%v", err)
		return result
	}

	now := info.At
	if now.IsZero() {
		now = v.clock()
	}
	if now.Before(leaf.NotBefore) {
		add(ErrNotYetValid, "valid from %s", leaf.NotBefore.UTC().Format(time.RFC3339))
	}
	if now.After(leaf.NotAfter) {
		add(ErrExpired, "expired at %s", leaf.NotAfter.UTC().Format(time.RFC3339))
	}

	chains := v.verifyChain(leaf, intermediates, now, add)

	if v.cfg.Strictness != config.StrictnessRelaxed {
		v.checkRevocation(leaf, chains, now, add)
	}

	result.Identity = identityOf(leaf)
	caps, err := capabilitiesOf(leaf)
	if err != nil {
		add(ErrMalformed, "%v", err)
	}
	result.Capabilities = caps

	if v.cfg.Strictness == config.StrictnessStrict && result.Identity == "" {
		add(ErrMissingIdentity, "certificate has neither URI SAN nor common name")
	}
	if v.cfg.Strictness == config.StrictnessCustom && v.custom != nil {
		if err := v.custom(leaf, chains); err != nil {
			add(ErrCustomRejected, "%v", err)
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func (v *Verifier) checkChannel(version, suite uint16, add func(ValidationErrorKind, string, ...any)) {
	if version < v.cfg.MinVersion {
		add(ErrTLSVersionTooLow, "%s below %s", tls.VersionName(version), tls.VersionName(v.cfg.MinVersion))
	}
	if len(v.cfg.CipherSuites) > 0 && !slices.Contains(v.cfg.CipherSuites, suite) {
		add(ErrCipherNotAllowed, "%s", tls.CipherSuiteName(suite))
	}
}

// verifyChain builds chains to the pinned roots. The validity window is
// reported separately, so chain building runs at a time inside the leaf's
// window to keep expiry from masking an untrusted root.
func (v *Verifier) verifyChain(leaf *x509.Certificate, intermediates []*x509.Certificate, now time.Time, add func(ValidationErrorKind, string, ...any)) [][]*x509.Certificate {
	if v.roots == nil {
		add(ErrUntrustedRoot, "no trust roots configured")
		return nil
	}
	pool := x509.NewCertPool()
	for _, c := range intermediates {
		pool.AddCert(c)
	}
	at := now
	if at.Before(leaf.NotBefore) {
		at = leaf.NotBefore
	}
	if at.After(leaf.NotAfter) {
		at = leaf.NotAfter
	}
	usages := []x509.ExtKeyUsage{x509.ExtKeyUsageAny}
	if v.cfg.Strictness == config.StrictnessStrict {
		usages = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	}

	chains, err := leaf.Verify(x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: pool,
		CurrentTime:   at,
		KeyUsages:     usages,
	})
	if err == nil {
		return chains
	}

	var unknown x509.UnknownAuthorityError
	var invalid x509.CertificateInvalidError
	switch {
	case errors.As(err, &unknown):
		add(ErrUntrustedRoot, "%v", err)
	case errors.As(err, &invalid) && invalid.Reason == x509.IncompatibleUsage:
		add(ErrWrongUsage, "%v", err)
	case errors.As(err, &invalid) && invalid.Reason == x509.Expired:
		// An intermediate outside its window.
		add(ErrExpired, "%v", err)
	default:
		add(ErrUntrustedRoot, "%v", err)
	}
	return nil
}

// checkRevocation consults the local serial set and any CRL signed by the
// leaf's verified issuer. Strict mode fails closed without a usable CRL.
func (v *Verifier) checkRevocation(leaf *x509.Certificate, chains [][]*x509.Certificate, now time.Time, add func(ValidationErrorKind, string, ...any)) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if _, revoked := v.serials[leaf.SerialNumber.String()]; revoked {
		add(ErrRevoked, "serial %s is on the local revocation list", leaf.SerialNumber)
		return
	}

	var issuer *x509.Certificate
	if len(chains) > 0 && len(chains[0]) > 1 {
		issuer = chains[0][1]
	}

	usable := false
	for _, crl := range v.crls {
		if !bytes.Equal(crl.RawIssuer, leaf.RawIssuer) {
			continue
		}
		if issuer == nil || crl.CheckSignatureFrom(issuer) != nil {
			continue
		}
		if !crl.NextUpdate.IsZero() && now.After(crl.NextUpdate) {
			continue
		}
		usable = true
		for _, entry := range crl.RevokedCertificateEntries {
			if entry.SerialNumber != nil && entry.SerialNumber.Cmp(leaf.SerialNumber) == 0 {
				add(ErrRevoked, "serial %s revoked at %s", leaf.SerialNumber, entry.RevocationTime.UTC().Format(time.RFC3339))
				return
			}
		}
	}

	if !usable && v.cfg.Strictness == config.StrictnessStrict {
		add(ErrRevocationUnavailable, "no current CRL from the issuer")
	}
}
