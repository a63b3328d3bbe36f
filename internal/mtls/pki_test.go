package mtls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trustmesh/internal/platform/config"
)

// testPKI is a throwaway certificate authority.
type testPKI struct {
	cert   *x509.Certificate
	key    *ecdsa.PrivateKey
	roots  *x509.CertPool
	serial int64
}

type leafOptions struct {
	identity   string
	commonName string
	notBefore  time.Time
	notAfter   time.Time
	usages     []x509.ExtKeyUsage
	caps       map[string]string
	extra      []pkix.Extension
}

func newTestPKI(t *testing.T, name string) *testPKI {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: name},
		NotBefore:             now.Add(-24 * time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(cert)
	return &testPKI{cert: cert, key: key, roots: roots, serial: 1}
}

func (p *testPKI) issue(t *testing.T, opts leafOptions) (tls.Certificate, *x509.Certificate) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	now := time.Now()
	if opts.notBefore.IsZero() {
		opts.notBefore = now.Add(-time.Hour)
	}
	if opts.notAfter.IsZero() {
		opts.notAfter = now.Add(time.Hour)
	}
	if opts.usages == nil {
		opts.usages = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth}
	}

	p.serial++
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(p.serial),
		Subject:      pkix.Name{CommonName: opts.commonName},
		NotBefore:    opts.notBefore,
		NotAfter:     opts.notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  opts.usages,
	}
	if opts.identity != "" {
		u, err := url.Parse(opts.identity)
		require.NoError(t, err)
		tmpl.URIs = []*url.URL{u}
	}
	if opts.caps != nil {
		ext, err := CapabilityExtension(opts.caps)
		require.NoError(t, err)
		tmpl.ExtraExtensions = []pkix.Extension{ext}
	}
	tmpl.ExtraExtensions = append(tmpl.ExtraExtensions, opts.extra...)

	der, err := x509.CreateCertificate(rand.Reader, tmpl, p.cert, &key.PublicKey, p.key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, leaf
}

func (p *testPKI) crl(t *testing.T, nextUpdate time.Time, revoked ...*x509.Certificate) *x509.RevocationList {
	t.Helper()
	now := time.Now()
	entries := make([]x509.RevocationListEntry, 0, len(revoked))
	for _, c := range revoked {
		entries = append(entries, x509.RevocationListEntry{SerialNumber: c.SerialNumber, RevocationTime: now.Add(-time.Minute)})
	}
	der, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:                    big.NewInt(1),
		ThisUpdate:                now.Add(-time.Hour),
		NextUpdate:                nextUpdate,
		RevokedCertificateEntries: entries,
	}, p.cert, p.key)
	require.NoError(t, err)
	list, err := x509.ParseRevocationList(der)
	require.NoError(t, err)
	return list
}

func defaultLeaf(identity string) leafOptions {
	return leafOptions{
		identity:   identity,
		commonName: "svc",
		caps:       map[string]string{ProtocolsCapability: "mutual_tls,api_authentication", "tier": "gold"},
	}
}

func defaultMutualTLS() config.MutualTLSConfig {
	return config.Default().MutualTLS
}
