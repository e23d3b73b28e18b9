package cert

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justinvforvendetta/electrum-xmc/pkg/pem"
)

func TestCheckValidity(t *testing.T) {
	now := time.Now()
	cert := generateTestCertificate(t, "x", now.Add(-time.Hour), now.Add(time.Hour))

	assert.NoError(t, CheckValidity(cert.Leaf, now))
	assert.ErrorIs(t, CheckValidity(cert.Leaf, now.Add(2*time.Hour)), ErrCertExpired)
	assert.ErrorIs(t, CheckValidity(cert.Leaf, now.Add(-2*time.Hour)), ErrCertNotYetValid)
}

func TestMatchHostnameSAN(t *testing.T) {
	cert := &x509.Certificate{
		Subject:  pkix.Name{CommonName: "ignored.example"},
		DNSNames: []string{"node.example", "*.pool.example"},
	}

	assert.True(t, MatchHostname(cert, "node.example"))
	assert.True(t, MatchHostname(cert, "a.pool.example"))
	assert.False(t, MatchHostname(cert, "other.example"))
	// CommonName is not consulted when SANs exist.
	assert.False(t, MatchHostname(cert, "ignored.example"))
}

func TestMatchHostnameCommonNameFallback(t *testing.T) {
	cn := &x509.Certificate{Subject: pkix.Name{CommonName: "node.example"}}
	assert.True(t, MatchHostname(cn, "node.example"))
	assert.False(t, MatchHostname(cn, "sub.node.example"))

	wildcard := &x509.Certificate{Subject: pkix.Name{CommonName: "*.node.example"}}
	assert.True(t, MatchHostname(wildcard, "a.node.example"))
	assert.False(t, MatchHostname(wildcard, "node.other"))

	empty := &x509.Certificate{}
	assert.False(t, MatchHostname(empty, "node.example"))
}

func TestParseCertificateRoundTrip(t *testing.T) {
	cert := generateTestCertificate(t, "node.example",
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour))

	pemText := pem.Encode(cert.Leaf.Raw, "CERTIFICATE")
	parsed, err := ParseCertificate(pemText)
	require.NoError(t, err)
	assert.Equal(t, cert.Leaf.Raw, parsed.Raw)
}

func TestParseCertificateGarbage(t *testing.T) {
	_, err := ParseCertificate("not a certificate")
	assert.Error(t, err)

	_, err = ParseCertificate(pem.Encode([]byte("junk"), "CERTIFICATE"))
	assert.Error(t, err)
}
