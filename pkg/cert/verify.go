package cert

import (
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/justinvforvendetta/electrum-xmc/pkg/pem"
)

// Validity errors.
var (
	ErrCertExpired     = errors.New("certificate has expired")
	ErrCertNotYetValid = errors.New("certificate is not yet valid")
)

// ParseCertificate decodes a PEM-encoded certificate into its X.509 form.
func ParseCertificate(pemText string) (*x509.Certificate, error) {
	der, err := pem.Decode(pemText, "CERTIFICATE")
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return cert, nil
}

// CheckValidity verifies the certificate's validity window at the given
// instant, independently of any TLS-level date handling.
func CheckValidity(cert *x509.Certificate, at time.Time) error {
	if at.Before(cert.NotBefore) {
		return ErrCertNotYetValid
	}
	if at.After(cert.NotAfter) {
		return ErrCertExpired
	}
	return nil
}

// MatchHostname reports whether cert is acceptable for host. DNS
// subject-alternative-names are checked first; the (most specific)
// CommonName is consulted only when the certificate carries no SANs,
// with wildcard awareness in both cases.
func MatchHostname(cert *x509.Certificate, host string) bool {
	if len(cert.DNSNames) > 0 {
		for _, san := range cert.DNSNames {
			if matchPattern(host, san) {
				return true
			}
		}
		return false
	}
	if cn := cert.Subject.CommonName; cn != "" {
		return matchPattern(host, cn)
	}
	return false
}

// matchPattern matches host against a certificate name, where a leading
// "*." label matches any suffix of the remaining labels.
func matchPattern(host, pattern string) bool {
	if pattern == host {
		return true
	}
	return strings.HasPrefix(pattern, "*.") && strings.HasSuffix(host, pattern[1:])
}
