// Package network owns the client's server connection. It spawns one
// connection worker at a time, consumes the shared event queue, and
// applies the reconnection policy: the worker itself never retries, a
// failed connection is replaced by a fresh one after an exponential
// backoff.
package network

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/justinvforvendetta/electrum-xmc/pkg/connection"
	"github.com/justinvforvendetta/electrum-xmc/pkg/log"
	"github.com/justinvforvendetta/electrum-xmc/pkg/transport"
)

// ErrNotConnected indicates there is no established connection to send
// on.
var ErrNotConnected = errors.New("not connected")

// Handler receives every event from the connection workers: replies,
// notifications, and state-change signals. Called from the network's
// event loop, so it must not block for long.
type Handler func(connection.Event)

// Config configures a Network.
type Config struct {
	// Server is the endpoint to maintain a connection to.
	Server transport.Endpoint

	// Dialer opens and validates connections. Required.
	Dialer *transport.Dialer

	// Handler observes connection events. Optional.
	Handler Handler

	// InitialBackoff and MaxBackoff tune the reconnect delays.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// PollInterval, PingInterval and StaleTimeout are passed to each
	// connection worker.
	PollInterval time.Duration
	PingInterval time.Duration
	StaleTimeout time.Duration

	// Log receives operational messages (default: slog.Default()).
	Log *slog.Logger

	// Events receives protocol events (default: discard).
	Events log.Logger
}

// Network keeps one connection to the configured server alive,
// reconnecting with backoff whenever the current worker fails.
type Network struct {
	config Config
	log    *slog.Logger

	queue   *connection.Queue
	backoff *Backoff

	mu     sync.Mutex
	server transport.Endpoint
	iface  *connection.Interface

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	done    chan struct{}
}

// New creates a Network. It does not connect until Start is called.
func New(config Config) (*Network, error) {
	if config.Dialer == nil {
		return nil, connection.ErrNoDialer
	}
	if config.Log == nil {
		config.Log = slog.Default()
	}
	if config.Events == nil {
		config.Events = log.NoopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Network{
		config:  config,
		log:     config.Log,
		queue:   connection.NewQueue(),
		backoff: NewBackoff(config.InitialBackoff, config.MaxBackoff),
		server:  config.Server,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}, nil
}

// Start launches the connection loop. Subsequent calls do nothing.
func (n *Network) Start() {
	if n.started.Swap(true) {
		return
	}
	go n.run()
}

// Stop disconnects and stops reconnecting. Blocks until the loop has
// terminated.
func (n *Network) Stop() {
	n.cancel()
	if n.started.Load() {
		<-n.done
	}
}

// Server returns the endpoint currently being maintained.
func (n *Network) Server() transport.Endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.server
}

// SetServer switches to a different endpoint. The current connection is
// torn down and the loop reconnects to the new server immediately.
func (n *Network) SetServer(endpoint transport.Endpoint) {
	n.mu.Lock()
	n.server = endpoint
	iface := n.iface
	n.mu.Unlock()

	n.backoff.Reset()
	if iface != nil {
		iface.Stop()
	}
}

// IsConnected reports whether the current worker is connected.
func (n *Network) IsConnected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.iface != nil && n.iface.IsConnected()
}

// ServerVersion returns the version reported by the connected server.
func (n *Network) ServerVersion() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.iface == nil {
		return ""
	}
	return n.iface.ServerVersion()
}

// Send submits a request on the current connection. The reply arrives
// at target, or through the Handler when target is nil.
func (n *Network) Send(method string, params []any, callerID any, target *connection.Queue) (uint64, error) {
	n.mu.Lock()
	iface := n.iface
	n.mu.Unlock()

	if iface == nil || !iface.IsConnected() {
		return 0, ErrNotConnected
	}
	return iface.Send(method, params, callerID, target)
}

// run maintains the connection until Stop.
func (n *Network) run() {
	defer close(n.done)

	for n.ctx.Err() == nil {
		if !n.runConnection() {
			return
		}

		delay := n.backoff.Next()
		n.log.Info("reconnecting",
			"server", n.Server().String(),
			"delay", delay,
			"attempt", n.backoff.Attempts())
		select {
		case <-time.After(delay):
		case <-n.ctx.Done():
			return
		}
	}
}

// runConnection drives one worker from construction to failure.
// Returns false when the network is stopping.
func (n *Network) runConnection() bool {
	n.mu.Lock()
	server := n.server
	n.mu.Unlock()

	iface, err := connection.New(connection.Config{
		Endpoint:     server,
		Dialer:       n.config.Dialer,
		Notify:       n.queue,
		PollInterval: n.config.PollInterval,
		PingInterval: n.config.PingInterval,
		StaleTimeout: n.config.StaleTimeout,
		Log:          n.config.Log,
		Events:       n.config.Events,
	})
	if err != nil {
		n.log.Error("cannot construct connection", "err", err)
		return false
	}

	n.mu.Lock()
	n.iface = iface
	n.mu.Unlock()

	iface.Start()

	for {
		event, err := n.queue.Pop(n.ctx)
		if err != nil {
			iface.Stop()
			<-iface.Done()
			return false
		}

		if n.config.Handler != nil {
			n.config.Handler(event)
		}

		if !event.IsStateChange() || event.Interface != iface {
			continue
		}
		switch event.Interface.State() {
		case connection.StateConnected:
			n.backoff.Reset()
			n.log.Info("server connected", "server", server.String())
		case connection.StateFailed:
			return true
		}
	}
}
