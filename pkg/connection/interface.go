package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/justinvforvendetta/electrum-xmc/pkg/log"
	"github.com/justinvforvendetta/electrum-xmc/pkg/transport"
	"github.com/justinvforvendetta/electrum-xmc/pkg/version"
	"github.com/justinvforvendetta/electrum-xmc/pkg/wire"
)

// Interface states.
type State int32

const (
	// StateOpening indicates the connection attempt is in progress.
	StateOpening State = iota

	// StateConnected indicates an established, validated connection.
	StateConnected

	// StateFailed is terminal. Construct a fresh Interface to retry.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateOpening:
		return "OPENING"
	case StateConnected:
		return "CONNECTED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Interface errors.
var (
	ErrStopped  = errors.New("interface stopped")
	ErrNoNotify = errors.New("no owner queue configured")
	ErrNoDialer = errors.New("no dialer configured")
)

// Default worker timings.
const (
	// DefaultPingInterval is how often the keepalive version request is
	// sent.
	DefaultPingInterval = 60 * time.Second

	// DefaultStaleTimeout is how long requests may remain unanswered,
	// with an equally idle transport, before the server is considered
	// unresponsive.
	DefaultStaleTimeout = 10 * time.Second
)

// Config configures an Interface.
type Config struct {
	// Endpoint is the server to connect to.
	Endpoint transport.Endpoint

	// Dialer opens and validates the connection. Required.
	Dialer *transport.Dialer

	// Notify is the owner's shared queue. It receives state-change
	// events, notifications, and replies whose request named no target.
	// Required.
	Notify *Queue

	// PingInterval overrides the keepalive period (default:
	// DefaultPingInterval).
	PingInterval time.Duration

	// StaleTimeout overrides the staleness thresholds (default:
	// DefaultStaleTimeout).
	StaleTimeout time.Duration

	// PollInterval overrides the transport receive poll (default:
	// transport.DefaultPollInterval).
	PollInterval time.Duration

	// Log receives operational messages (default: slog.Default()).
	Log *slog.Logger

	// Events receives protocol events (default: discard).
	Events log.Logger
}

// Interface is one connection worker. It owns its transport pipe and
// all connection-local mutable state; the owner interacts with it only
// through Send, the owner queue, and the state query methods.
type Interface struct {
	// ID uniquely identifies this connection attempt in logs.
	ID string

	config     Config
	endpoint   transport.Endpoint
	log        *slog.Logger
	events     log.Logger
	correlator *correlator

	ctx    context.Context
	cancel context.CancelFunc

	sendMu  sync.Mutex
	sendBuf []wire.Request

	state   atomic.Int32
	stopped atomic.Bool
	started atomic.Bool
	done    chan struct{}
}

// New constructs a worker bound to its owner queue. The worker does not
// run until Start is called.
func New(config Config) (*Interface, error) {
	if config.Notify == nil {
		return nil, ErrNoNotify
	}
	if config.Dialer == nil {
		return nil, ErrNoDialer
	}
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.StaleTimeout <= 0 {
		config.StaleTimeout = DefaultStaleTimeout
	}
	if config.Log == nil {
		config.Log = slog.Default()
	}
	if config.Events == nil {
		config.Events = log.NoopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	i := &Interface{
		ID:       uuid.NewString(),
		config:   config,
		endpoint: config.Endpoint,
		log:      config.Log.With("host", config.Endpoint.Host, "conn", config.Endpoint.String()),
		events:   config.Events,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	i.correlator = newCorrelator(config.Notify, i.log, config.Events)
	i.correlator.iface = i
	i.state.Store(int32(StateOpening))
	return i, nil
}

// Start launches the worker goroutine. Subsequent calls do nothing.
func (i *Interface) Start() {
	if i.started.Swap(true) {
		return
	}
	go i.run()
}

// Endpoint returns the server this worker connects to.
func (i *Interface) Endpoint() transport.Endpoint {
	return i.endpoint
}

// State returns the current connection state.
func (i *Interface) State() State {
	return State(i.state.Load())
}

// IsConnected reports whether the connection is established.
func (i *Interface) IsConnected() bool {
	return i.State() == StateConnected
}

// ServerVersion returns the version string the server reported, empty
// until the first keepalive response arrives.
func (i *Interface) ServerVersion() string {
	return i.correlator.version()
}

// Done is closed when the worker has fully terminated.
func (i *Interface) Done() <-chan struct{} {
	return i.done
}

// Stop asks the worker to disconnect. Idempotent; the worker observes
// the flag within one receive poll interval.
func (i *Interface) Stop() {
	if i.stopped.Swap(true) {
		return
	}
	i.cancel()
}

// Send queues a request. The reply is delivered to target, or to the
// owner queue when target is nil, tagged with callerID. Returns the
// assigned request id.
func (i *Interface) Send(method string, params []any, callerID any, target *Queue) (uint64, error) {
	if i.State() == StateFailed {
		return 0, ErrStopped
	}

	req := i.correlator.submit(method, params, callerID, target)

	i.sendMu.Lock()
	i.sendBuf = append(i.sendBuf, req)
	i.sendMu.Unlock()
	return req.ID, nil
}

// takeOutbound removes and returns everything queued for sending.
func (i *Interface) takeOutbound() []wire.Request {
	i.sendMu.Lock()
	defer i.sendMu.Unlock()
	out := i.sendBuf
	i.sendBuf = nil
	return out
}

// run is the worker loop. It is the only goroutine that touches the
// pipe and the timing state.
func (i *Interface) run() {
	defer close(i.done)

	conn, err := i.config.Dialer.Dial(i.ctx, i.endpoint)
	if err != nil {
		i.log.Warn("connect failed", "err", err)
		i.fail("connect: " + err.Error())
		return
	}

	pipe := transport.NewPipe(conn, transport.PipeConfig{
		PollInterval: i.config.PollInterval,
		Events:       i.events,
		ConnectionID: i.ID,
		Host:         i.endpoint.Host,
	})
	defer pipe.Close()

	i.transition(StateOpening, StateConnected, "")
	i.log.Info("connected")

	var lastPing time.Time
	reason := ""

loop:
	for !i.stopped.Load() {
		// Keepalive doubles as the version handshake; lastPing starts
		// at zero so the first iteration pings immediately.
		if time.Since(lastPing) > i.config.PingInterval {
			i.Send(wire.MethodServerVersion,
				[]any{version.Client, version.Protocol}, nil, nil)
			lastPing = time.Now()
		}

		if oldest, ok := i.correlator.oldestPending(); ok &&
			time.Since(oldest) > i.config.StaleTimeout &&
			pipe.IdleTime() > i.config.StaleTimeout {
			i.log.Warn("server unresponsive, closing",
				"pending", i.correlator.pendingCount(),
				"idle", pipe.IdleTime())
			reason = "stale connection"
			break
		}

		for _, req := range i.takeOutbound() {
			if err := pipe.Send(req); err != nil {
				i.log.Warn("send failed", "err", err, "method", req.Method)
				reason = "send: " + err.Error()
				break loop
			}
		}

		line, err := pipe.Receive()
		switch {
		case errors.Is(err, transport.ErrTimeout):
			continue
		case errors.Is(err, transport.ErrClosed):
			i.log.Info("connection closed by peer")
			reason = "peer closed"
			break loop
		case err != nil:
			i.log.Warn("receive failed", "err", err)
			reason = "receive: " + err.Error()
			break loop
		}

		msg, err := wire.DecodeMessage(line)
		if err != nil {
			// Malformed frames do not kill the connection.
			i.log.Warn("dropping malformed frame", "err", err)
			i.correlator.logError(log.LayerWire, "malformed frame: "+err.Error())
			continue
		}
		i.correlator.dispatch(msg)
	}

	if reason == "" {
		reason = "stopped"
	}
	i.fail(reason)
}

// fail tears the connection down: discard all pending requests,
// transition to the terminal state, and notify the owner exactly once
// more.
func (i *Interface) fail(reason string) {
	i.correlator.teardown()
	i.transition(i.State(), StateFailed, reason)
}

// transition stores the new state and signals the owner queue.
func (i *Interface) transition(from, to State, reason string) {
	i.state.Store(int32(to))

	i.events.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: i.ID,
		Layer:        log.LayerSession,
		Category:     log.CategoryState,
		Host:         i.endpoint.Host,
		StateChange: &log.StateChangeEvent{
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
	i.log.Debug("state change",
		"from", from.String(), "to", to.String(), "reason", reason)

	i.config.Notify.Push(Event{Interface: i})
}

// Describe returns a short human-readable summary for console output.
func (i *Interface) Describe() string {
	return fmt.Sprintf("%s [%s]", i.endpoint, i.State())
}
