package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/justinvforvendetta/electrum-xmc/pkg/cert"
)

// Dial errors.
var (
	// ErrResolution indicates the endpoint host could not be resolved.
	ErrResolution = errors.New("hostname resolution failed")

	// ErrUnreachable indicates no resolved address accepted a connection.
	ErrUnreachable = errors.New("server unreachable")

	// ErrNoTrustManager indicates a TLS endpoint was dialed without a
	// trust manager to validate it.
	ErrNoTrustManager = errors.New("no trust manager configured")
)

// DefaultConnectTimeout is the per-candidate TCP connect timeout.
const DefaultConnectTimeout = 2 * time.Second

// Dialer opens connections to endpoints. TLS endpoints are validated by
// the trust manager before the connection is handed to the caller.
type Dialer struct {
	// Trust validates TLS endpoints. Required for scheme "s".
	Trust *cert.Manager

	// ConnectTimeout bounds each candidate address attempt
	// (default: DefaultConnectTimeout).
	ConnectTimeout time.Duration

	// Log receives operational messages (default: slog.Default()).
	Log *slog.Logger

	// resolve is replaceable for tests.
	resolve func(ctx context.Context, host string) ([]string, error)
}

func (d *Dialer) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

func (d *Dialer) connectTimeout() time.Duration {
	if d.ConnectTimeout > 0 {
		return d.ConnectTimeout
	}
	return DefaultConnectTimeout
}

// Dial connects to the endpoint, returning a connection that is ready to
// carry payload data. For TLS endpoints the returned connection has
// completed a handshake accepted by the trust manager.
func (d *Dialer) Dial(ctx context.Context, endpoint Endpoint) (net.Conn, error) {
	switch endpoint.Scheme {
	case SchemeTLS:
		if d.Trust == nil {
			return nil, fmt.Errorf("%w for %s", ErrNoTrustManager, endpoint)
		}
		return d.Trust.Handshake(ctx, endpoint.Host, func(ctx context.Context) (net.Conn, error) {
			return d.dialTCP(ctx, endpoint)
		})
	default:
		return d.dialTCP(ctx, endpoint)
	}
}

// dialTCP resolves the endpoint host and tries each candidate address in
// turn with a short connect timeout.
func (d *Dialer) dialTCP(ctx context.Context, endpoint Endpoint) (net.Conn, error) {
	resolve := d.resolve
	if resolve == nil {
		resolve = net.DefaultResolver.LookupHost
	}

	addrs, err := resolve(ctx, endpoint.Host)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrResolution, endpoint.Host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s: no addresses", ErrResolution, endpoint.Host)
	}

	port := strconv.Itoa(int(endpoint.Port))
	dialer := net.Dialer{
		Timeout:   d.connectTimeout(),
		KeepAlive: 30 * time.Second,
	}

	var lastErr error
	for _, addr := range addrs {
		conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, port))
		if err == nil {
			return conn, nil
		}
		d.logger().Debug("connect attempt failed",
			"host", endpoint.Host, "addr", addr, "err", err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, endpoint.Host, lastErr)
}
