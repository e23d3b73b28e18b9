package cert

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justinvforvendetta/electrum-xmc/pkg/pem"
)

// generateTestCertificate creates a self-signed certificate for host with
// the given validity window.
func generateTestCertificate(t *testing.T, host string, notBefore, notAfter time.Time) tls.Certificate {
	t.Helper()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: host,
		},
		DNSNames:              []string{host},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(certDER)
	require.NoError(t, err)

	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  privateKey,
		Leaf:        cert,
	}
}

// startTLSServer runs a loopback TLS server presenting cert. Every
// accepted connection is handshaken and then held open briefly.
func startTLSServer(t *testing.T, cert tls.Certificate) net.Addr {
	t.Helper()

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				// Drive the handshake; the client side decides trust.
				if tc, ok := c.(*tls.Conn); ok {
					_ = tc.Handshake()
				}
				buf := make([]byte, 1)
				_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
				_, _ = c.Read(buf)
			}(conn)
		}
	}()

	return ln.Addr()
}

func dialTo(addr net.Addr) DialFunc {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr.String())
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(NewStore(t.TempDir()), nil)
}

func TestTOFUFirstContactPins(t *testing.T) {
	const host = "node.example"

	serverCert := generateTestCertificate(t, host,
		time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))
	addr := startTLSServer(t, serverCert)

	m := newTestManager(t)
	conn, err := m.Handshake(context.Background(), host, dialTo(addr))
	require.NoError(t, err)
	conn.Close()

	// Pin persisted at <dir>/<host>, staging file gone.
	assert.True(t, m.Store().Exists(host))
	_, err = os.Stat(m.Store().StagingPath(host))
	assert.True(t, os.IsNotExist(err))

	pinned, err := m.Store().Load(host)
	require.NoError(t, err)
	cert, err := ParseCertificate(pinned)
	require.NoError(t, err)
	assert.Equal(t, serverCert.Leaf.Raw, cert.Raw)
}

func TestTOFUSecondContactSameCertificate(t *testing.T) {
	const host = "node.example"

	serverCert := generateTestCertificate(t, host,
		time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))
	addr := startTLSServer(t, serverCert)

	m := newTestManager(t)

	conn, err := m.Handshake(context.Background(), host, dialTo(addr))
	require.NoError(t, err)
	conn.Close()

	conn, err = m.Handshake(context.Background(), host, dialTo(addr))
	require.NoError(t, err)
	conn.Close()
}

func TestTOFUWrongCertificateLeavesPinUntouched(t *testing.T) {
	const host = "node.example"

	original := generateTestCertificate(t, host,
		time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))
	addr := startTLSServer(t, original)

	m := newTestManager(t)

	conn, err := m.Handshake(context.Background(), host, dialTo(addr))
	require.NoError(t, err)
	conn.Close()

	pinnedBefore, err := m.Store().Load(host)
	require.NoError(t, err)

	// Same host now presents a different certificate.
	impostor := generateTestCertificate(t, host,
		time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))
	addr2 := startTLSServer(t, impostor)

	_, err = m.Handshake(context.Background(), host, dialTo(addr2))
	require.ErrorIs(t, err, ErrPinMismatch)

	pinnedAfter, err := m.Store().Load(host)
	require.NoError(t, err)
	assert.Equal(t, pinnedBefore, pinnedAfter)
}

func TestTOFUJustCreatedPinRejected(t *testing.T) {
	const host = "node.example"

	// The server presents one certificate during retrieval and another
	// during the pinned handshake, so the freshly staged pin must be
	// moved aside as rejected.
	certA := generateTestCertificate(t, host,
		time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))
	certB := generateTestCertificate(t, host,
		time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))

	addrA := startTLSServer(t, certA)
	addrB := startTLSServer(t, certB)

	// Dials 1 and 2 (CA attempt and retrieval) reach server A; dial 3
	// (pinned handshake) reaches server B.
	var dials int
	dial := func(ctx context.Context) (net.Conn, error) {
		dials++
		var d net.Dialer
		if dials <= 2 {
			return d.DialContext(ctx, "tcp", addrA.String())
		}
		return d.DialContext(ctx, "tcp", addrB.String())
	}

	m := newTestManager(t)

	_, err := m.Handshake(context.Background(), host, dial)
	require.ErrorIs(t, err, ErrPinMismatch)

	// No pin, but a rejected artifact.
	assert.False(t, m.Store().Exists(host))
	_, err = os.Stat(m.Store().RejectedPath(host))
	assert.NoError(t, err)
}

func TestTOFUExpiredPinRemovedThenRepinned(t *testing.T) {
	const host = "node.example"

	expired := generateTestCertificate(t, host,
		time.Now().Add(-48*time.Hour), time.Now().Add(-24*time.Hour))
	current := generateTestCertificate(t, host,
		time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))
	addr := startTLSServer(t, current)

	m := newTestManager(t)

	// Pre-seed an expired pin.
	require.NoError(t, m.Store().Stage(host, encodeLeaf(t, expired)))
	require.NoError(t, m.Store().Promote(host))

	_, err := m.Handshake(context.Background(), host, dialTo(addr))
	require.ErrorIs(t, err, ErrExpiredPin)
	assert.False(t, m.Store().Exists(host), "expired pin should be removed")

	// The next attempt re-pins from scratch.
	conn, err := m.Handshake(context.Background(), host, dialTo(addr))
	require.NoError(t, err)
	conn.Close()
	assert.True(t, m.Store().Exists(host))
}

func TestHandshakeUnreachable(t *testing.T) {
	m := newTestManager(t)
	dialErr := func(ctx context.Context) (net.Conn, error) {
		return nil, context.DeadlineExceeded
	}
	_, err := m.Handshake(context.Background(), "node.example", dialErr)
	require.Error(t, err)
}

func encodeLeaf(t *testing.T, cert tls.Certificate) string {
	t.Helper()
	return pem.Encode(cert.Leaf.Raw, "CERTIFICATE")
}
