package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialerConnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go ln.Accept()

	endpoint := Endpoint{
		Host:   "127.0.0.1",
		Port:   uint16(ln.Addr().(*net.TCPAddr).Port),
		Scheme: SchemeTCP,
	}

	d := &Dialer{}
	conn, err := d.Dial(context.Background(), endpoint)
	require.NoError(t, err)
	conn.Close()
}

func TestDialerResolutionFailure(t *testing.T) {
	d := &Dialer{
		resolve: func(context.Context, string) ([]string, error) {
			return nil, errors.New("no such host")
		},
	}

	_, err := d.Dial(context.Background(), Endpoint{Host: "nowhere", Port: 50001, Scheme: SchemeTCP})
	assert.ErrorIs(t, err, ErrResolution)
}

func TestDialerNoAddresses(t *testing.T) {
	d := &Dialer{
		resolve: func(context.Context, string) ([]string, error) {
			return nil, nil
		},
	}

	_, err := d.Dial(context.Background(), Endpoint{Host: "nowhere", Port: 50001, Scheme: SchemeTCP})
	assert.ErrorIs(t, err, ErrResolution)
}

func TestDialerUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	ln.Close() // the port is free again

	d := &Dialer{ConnectTimeout: 500 * time.Millisecond}
	_, err = d.Dial(context.Background(), Endpoint{Host: "127.0.0.1", Port: port, Scheme: SchemeTCP})
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestDialerUsesResolvedAddresses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go ln.Accept()

	// The endpoint host is a name only the injected resolver knows.
	d := &Dialer{
		ConnectTimeout: 500 * time.Millisecond,
		resolve: func(context.Context, string) ([]string, error) {
			return []string{"127.0.0.1"}, nil
		},
	}
	endpoint := Endpoint{
		Host:   "node.example",
		Port:   uint16(ln.Addr().(*net.TCPAddr).Port),
		Scheme: SchemeTCP,
	}

	conn, err := d.Dial(context.Background(), endpoint)
	require.NoError(t, err)
	conn.Close()
}

func TestDialerTLSRequiresTrustManager(t *testing.T) {
	d := &Dialer{}
	_, err := d.Dial(context.Background(), Endpoint{Host: "node", Port: 50002, Scheme: SchemeTLS})
	assert.ErrorIs(t, err, ErrNoTrustManager)
}
