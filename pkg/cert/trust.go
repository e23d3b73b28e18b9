package cert

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/justinvforvendetta/electrum-xmc/pkg/pem"
)

// Trust errors. Handshake outcomes are typed so the connection state
// machine can discriminate pin-mutating failures from plain ones.
var (
	// ErrUntrustedCertificate indicates the stored pin is unreadable or
	// the peer could not be validated at all.
	ErrUntrustedCertificate = errors.New("certificate not trusted")

	// ErrHostnameMismatch indicates a CA-valid certificate that does not
	// cover the host being contacted.
	ErrHostnameMismatch = errors.New("certificate hostname mismatch")

	// ErrExpiredPin indicates the stored pin's validity window has
	// elapsed; the pin has been removed so a later attempt re-pins.
	ErrExpiredPin = errors.New("pinned certificate has expired")

	// ErrPinMismatch indicates the peer presented a certificate other
	// than the pinned one.
	ErrPinMismatch = errors.New("certificate does not match pinned certificate")
)

// DialFunc opens a fresh TCP connection to the host being trusted.
// The trust protocol may dial more than once per connection attempt.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Manager decides whether a TLS peer is acceptable for a host using
// trust-on-first-use: the first contact pins the peer's certificate and
// every later contact requires an exact match. It never downgrades to an
// unvalidated connection for a host that already has a pin.
//
// Retrieving the certificate on first contact uses an unauthenticated
// handshake and is therefore interceptable at that moment; this is the
// accepted trust-on-first-use trade-off, not an oversight.
type Manager struct {
	store *Store
	log   *slog.Logger

	// now is replaceable for tests.
	now func() time.Time
}

// NewManager creates a trust manager over the given store.
func NewManager(store *Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, log: logger, now: time.Now}
}

// Store returns the underlying pin store.
func (m *Manager) Store() *Store {
	return m.store
}

// Handshake produces a validated TLS connection to host, dialing through
// dial as many times as the trust protocol requires.
//
// With no pin on file it first attempts a CA-validated handshake with
// hostname checking; if that fails it retrieves the peer certificate,
// stages it, and re-handshakes pinned to exactly the staged bytes,
// promoting the pin on success and recording a rejected artifact on
// mismatch. With a pin on file the handshake is pinned to the stored
// bytes only, after an independent validity-window check that removes an
// expired pin.
func (m *Manager) Handshake(ctx context.Context, host string, dial DialFunc) (*tls.Conn, error) {
	pinned, err := m.store.Load(host)
	isNew := false

	switch {
	case errors.Is(err, os.ErrNotExist):
		conn, caErr := m.handshakeCA(ctx, host, dial)
		if caErr == nil {
			m.log.Debug("certificate signed by CA", "host", host)
			return conn, nil
		}
		m.log.Debug("CA validation failed, retrieving certificate",
			"host", host, "err", caErr)

		pinned, err = m.retrieveCertificate(ctx, host, dial)
		if err != nil {
			return nil, err
		}
		if err := m.store.Stage(host, pinned); err != nil {
			return nil, err
		}
		isNew = true

	case err != nil:
		return nil, fmt.Errorf("read pinned certificate for %s: %w", host, err)

	default:
		// Check the stored pin's dates ourselves; the pinned handshake
		// below compares raw bytes and has no date logic of its own.
		stored, perr := ParseCertificate(pinned)
		if perr != nil {
			return nil, fmt.Errorf("%w: stored pin for %s unreadable: %v",
				ErrUntrustedCertificate, host, perr)
		}
		if verr := CheckValidity(stored, m.now()); errors.Is(verr, ErrCertExpired) {
			m.log.Warn("pinned certificate expired, removing", "host", host)
			if rerr := m.store.Remove(host); rerr != nil {
				return nil, rerr
			}
			return nil, fmt.Errorf("%w: %s", ErrExpiredPin, host)
		}
	}

	conn, err := m.handshakePinned(ctx, host, dial, pinned)
	if err != nil {
		if !errors.Is(err, ErrPinMismatch) {
			return nil, err
		}
		if isNew {
			// The certificate we just retrieved no longer matches what
			// the server presents. Keep it aside for inspection.
			if rerr := m.store.Reject(host); rerr != nil {
				m.log.Warn("could not record rejected certificate",
					"host", host, "err", rerr)
			}
			m.log.Warn("retrieved certificate rejected", "host", host)
			return nil, err
		}
		m.log.Warn("server presented wrong certificate", "host", host)
		return nil, err
	}

	if isNew {
		if err := m.store.Promote(host); err != nil {
			conn.Close()
			return nil, err
		}
		m.log.Info("pinned new certificate", "host", host)
	}
	return conn, nil
}

// handshakeCA performs a handshake validated against the system CA bundle
// with SAN/common-name hostname checking.
func (m *Manager) handshakeCA(ctx context.Context, host string, dial DialFunc) (*tls.Conn, error) {
	roots, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("load system CA bundle: %w", err)
	}

	// Hostname checking happens in the callback: Go's built-in
	// verification rejects CommonName-only certificates, but the trust
	// protocol accepts a wildcard-aware CommonName when SANs are absent.
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         host, // SNI only
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return fmt.Errorf("%w: no certificate presented", ErrUntrustedCertificate)
			}
			leaf, err := x509.ParseCertificate(rawCerts[0])
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUntrustedCertificate, err)
			}
			intermediates := x509.NewCertPool()
			for _, raw := range rawCerts[1:] {
				if ic, err := x509.ParseCertificate(raw); err == nil {
					intermediates.AddCert(ic)
				}
			}
			opts := x509.VerifyOptions{
				Roots:         roots,
				Intermediates: intermediates,
				CurrentTime:   m.now(),
			}
			if _, err := leaf.Verify(opts); err != nil {
				return fmt.Errorf("%w: %v", ErrUntrustedCertificate, err)
			}
			if !MatchHostname(leaf, host) {
				return fmt.Errorf("%w: certificate not valid for %s", ErrHostnameMismatch, host)
			}
			return nil
		},
	}

	return m.handshake(ctx, dial, cfg)
}

// retrieveCertificate performs a verification-disabled handshake purely to
// read the peer's certificate, and returns it PEM-encoded.
func (m *Manager) retrieveCertificate(ctx context.Context, host string, dial DialFunc) (string, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         host,
		InsecureSkipVerify: true,
	}
	conn, err := m.handshake(ctx, dial, cfg)
	if err != nil {
		return "", fmt.Errorf("retrieve certificate from %s: %w", host, err)
	}
	defer conn.Close()

	peers := conn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		return "", fmt.Errorf("%w: %s presented no certificate", ErrUntrustedCertificate, host)
	}
	return pem.Encode(peers[0].Raw, "CERTIFICATE"), nil
}

// handshakePinned performs a handshake that accepts exactly the given
// PEM-encoded certificate and nothing else.
func (m *Manager) handshakePinned(ctx context.Context, host string, dial DialFunc, pemText string) (*tls.Conn, error) {
	pin, err := ParseCertificate(pemText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUntrustedCertificate, err)
	}

	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         host,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return fmt.Errorf("%w: no certificate presented", ErrPinMismatch)
			}
			if !bytes.Equal(rawCerts[0], pin.Raw) {
				return fmt.Errorf("%w: %s", ErrPinMismatch, host)
			}
			return nil
		},
	}

	return m.handshake(ctx, dial, cfg)
}

// handshake dials a fresh connection and runs the TLS handshake over it,
// closing the raw connection on failure.
func (m *Manager) handshake(ctx context.Context, dial DialFunc, cfg *tls.Config) (*tls.Conn, error) {
	raw, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	conn := tls.Client(raw, cfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, err
	}
	return conn, nil
}
