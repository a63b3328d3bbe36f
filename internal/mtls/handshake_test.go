package mtls

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustmesh/internal/models"
	dErrors "trustmesh/pkg/domain-errors"
)

const (
	clientIdentity = "spiffe://trustmesh/svc/client"
	serverIdentity = "spiffe://trustmesh/svc/server"
)

// serveOnce accepts one connection, runs the server handshake and drains the
// connection until the client closes it.
func serveOnce(t *testing.T, cfg *tls.Config) (string, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	errc := make(chan error, 1)
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			errc <- err
			return
		}
		defer raw.Close()
		conn := tls.Server(raw, cfg)
		err = conn.HandshakeContext(context.Background())
		errc <- err
		if err == nil {
			_, _ = io.Copy(io.Discard, conn)
		}
	}()
	return ln.Addr().String(), errc
}

// silentServer accepts connections and never answers.
func silentServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		var held []net.Conn
		defer func() {
			for _, c := range held {
				_ = c.Close()
			}
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			held = append(held, conn)
		}
	}()
	return ln.Addr().String()
}

func TestEstablishConnection(t *testing.T) {
	pki := newTestPKI(t, "mesh ca")
	cfg := defaultMutualTLS()
	verifier := NewVerifier(pki.roots, cfg)

	clientCert, _ := pki.issue(t, defaultLeaf(clientIdentity))
	serverCert, _ := pki.issue(t, defaultLeaf(serverIdentity))
	local := models.EntityInfo{ID: clientIdentity, Credentials: models.Credentials{TLSCertificate: &clientCert}}

	t.Run("both sides verify and keying material is exported", func(t *testing.T) {
		addr, serverErr := serveOnce(t, NewServerTLSConfig(serverCert, verifier, cfg))
		remote := models.EntityInfo{ID: serverIdentity, Endpoint: addr}

		result, err := NewEstablisher(verifier, cfg).EstablishConnection(context.Background(), local, remote, models.NegotiatedParameters{})
		require.NoError(t, err)
		defer result.Conn.Close()
		require.NoError(t, <-serverErr)

		assert.Equal(t, models.ProtocolMutualTLS, result.Properties.Protocol)
		assert.Equal(t, serverIdentity, result.Properties.PeerIdentity)
		assert.Equal(t, uint16(tls.VersionTLS13), result.Properties.TLSVersion)
		assert.NotZero(t, result.Properties.CipherSuite)
		assert.Equal(t, "gold", result.Properties.PeerCapabilities["tier"])
		assert.Len(t, result.KeyingMaterial, 32)
		assert.True(t, result.Verification.Valid)
	})

	t.Run("untrusted server is rejected with enumerated errors", func(t *testing.T) {
		rogue := newTestPKI(t, "rogue ca")
		rogueCert, _ := rogue.issue(t, defaultLeaf(serverIdentity))
		addr, _ := serveOnce(t, NewServerTLSConfig(rogueCert, verifier, cfg))
		remote := models.EntityInfo{ID: serverIdentity, Endpoint: addr}

		_, err := NewEstablisher(verifier, cfg).EstablishConnection(context.Background(), local, remote, models.NegotiatedParameters{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthenticationFailed))
		assert.False(t, dErrors.Retryable(err))
		require.NotEmpty(t, dErrors.DetailsOf(err))
		assert.Contains(t, dErrors.DetailsOf(err)[0], string(ErrUntrustedRoot))
	})

	t.Run("identity mismatch", func(t *testing.T) {
		addr, _ := serveOnce(t, NewServerTLSConfig(serverCert, verifier, cfg))
		remote := models.EntityInfo{ID: "spiffe://trustmesh/svc/someone-else", Endpoint: addr}

		_, err := NewEstablisher(verifier, cfg).EstablishConnection(context.Background(), local, remote, models.NegotiatedParameters{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthenticationFailed))
	})

	t.Run("silent peer times out and is retryable", func(t *testing.T) {
		short := cfg
		short.HandshakeTimeout = 50 * time.Millisecond
		remote := models.EntityInfo{ID: serverIdentity, Endpoint: silentServer(t)}

		_, err := NewEstablisher(verifier, short).EstablishConnection(context.Background(), local, remote, models.NegotiatedParameters{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
		assert.True(t, dErrors.Retryable(err))
	})

	t.Run("missing local certificate", func(t *testing.T) {
		_, err := NewEstablisher(verifier, cfg).EstablishConnection(context.Background(),
			models.EntityInfo{ID: clientIdentity}, models.EntityInfo{Endpoint: "127.0.0.1:1"}, models.NegotiatedParameters{})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
