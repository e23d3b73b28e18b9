package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Connection schemes.
type Scheme string

const (
	// SchemeTCP is a plaintext TCP connection.
	SchemeTCP Scheme = "t"

	// SchemeTLS is a TLS connection validated by the trust manager.
	SchemeTLS Scheme = "s"
)

// ErrInvalidEndpoint indicates an endpoint string that does not parse.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// Endpoint identifies a server as host, port and connection scheme. The
// wire form is "host:port:t" or "host:port:s". Endpoints are immutable
// values.
type Endpoint struct {
	Host   string
	Port   uint16
	Scheme Scheme
}

// ParseEndpoint parses the host:port:scheme form.
func ParseEndpoint(s string) (Endpoint, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidEndpoint, s)
	}

	host := parts[0]
	if host == "" {
		return Endpoint{}, fmt.Errorf("%w: empty host in %q", ErrInvalidEndpoint, s)
	}

	port, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || port == 0 {
		return Endpoint{}, fmt.Errorf("%w: bad port in %q", ErrInvalidEndpoint, s)
	}

	scheme := Scheme(parts[2])
	if scheme != SchemeTCP && scheme != SchemeTLS {
		return Endpoint{}, fmt.Errorf("%w: unknown scheme %q", ErrInvalidEndpoint, parts[2])
	}

	return Endpoint{Host: host, Port: uint16(port), Scheme: scheme}, nil
}

// String returns the host:port:scheme form. It round-trips with
// ParseEndpoint.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d:%s", e.Host, e.Port, e.Scheme)
}

// Addr returns the host:port dial address.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}
