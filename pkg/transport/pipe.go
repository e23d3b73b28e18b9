package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/justinvforvendetta/electrum-xmc/pkg/log"
)

// Pipe errors.
var (
	// ErrTimeout indicates no complete line arrived within the poll
	// interval. Recoverable: call Receive again.
	ErrTimeout = errors.New("receive timeout")

	// ErrClosed indicates the pipe was closed, locally or by the peer.
	ErrClosed = errors.New("pipe closed")

	// ErrLineTooLong indicates a line exceeded the size limit.
	ErrLineTooLong = errors.New("line exceeds size limit")
)

const (
	// DefaultPollInterval bounds a single Receive call.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultMaxLineSize bounds a single line (1 MiB).
	DefaultMaxLineSize = 1 << 20

	// eventFrameLimit caps the frame bytes recorded per log event.
	eventFrameLimit = 4096
)

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// PollInterval bounds each Receive call (default: DefaultPollInterval).
	PollInterval time.Duration

	// MaxLineSize bounds a single line (default: DefaultMaxLineSize).
	MaxLineSize int

	// Events receives one transport-layer event per line sent or
	// received (default: discard).
	Events log.Logger

	// ConnectionID and Host annotate logged events.
	ConnectionID string
	Host         string
}

// Pipe frames a byte stream as newline-delimited JSON. Send marshals a
// value and writes it as one line; Receive returns the next complete
// line, waiting at most one poll interval.
//
// Receive must be called from a single goroutine. Send is safe for
// concurrent use.
type Pipe struct {
	conn   net.Conn
	config PipeConfig

	// buf accumulates bytes read ahead of the next newline so a partial
	// line survives across Receive calls.
	buf   []byte
	chunk []byte

	writeMu  sync.Mutex
	closed   atomic.Bool
	lastRecv atomic.Int64 // unix nanos of the last completed Receive
}

// NewPipe wraps an established connection.
func NewPipe(conn net.Conn, config PipeConfig) *Pipe {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.MaxLineSize <= 0 {
		config.MaxLineSize = DefaultMaxLineSize
	}
	if config.Events == nil {
		config.Events = log.NoopLogger{}
	}

	p := &Pipe{
		conn:   conn,
		config: config,
		chunk:  make([]byte, 4096),
	}
	p.lastRecv.Store(time.Now().UnixNano())
	return p
}

// Send marshals v and writes it as a single newline-terminated line.
func (p *Pipe) Send(v any) error {
	if p.closed.Load() {
		return ErrClosed
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode line: %w", err)
	}
	data = append(data, '\n')

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if _, err := p.conn.Write(data); err != nil {
		if p.closed.Load() {
			return ErrClosed
		}
		return fmt.Errorf("write line: %w", err)
	}

	p.logFrame(log.DirectionOut, data)
	return nil
}

// Receive returns the next complete line, without its terminator. It
// waits at most one poll interval: ErrTimeout means no line yet and the
// caller should poll again, ErrClosed means the stream ended. Empty
// lines are skipped. Bytes of a partial line are retained for the next
// call.
func (p *Pipe) Receive() ([]byte, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	deadline := time.Now().Add(p.config.PollInterval)
	for {
		if line, ok := p.takeLine(); ok {
			if len(line) == 0 {
				continue
			}
			p.lastRecv.Store(time.Now().UnixNano())
			p.logFrame(log.DirectionIn, line)
			return line, nil
		}
		if len(p.buf) > p.config.MaxLineSize {
			return nil, fmt.Errorf("%w: %d bytes without terminator",
				ErrLineTooLong, len(p.buf))
		}

		if err := p.conn.SetReadDeadline(deadline); err != nil {
			return nil, ErrClosed
		}
		n, err := p.conn.Read(p.chunk)
		if n > 0 {
			p.buf = append(p.buf, p.chunk[:n]...)
		}
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				if _, ok := p.takeLinePeek(); ok {
					continue
				}
				return nil, ErrTimeout
			}
			if p.closed.Load() || errors.Is(err, io.EOF) {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("read line: %w", err)
		}
	}
}

// takeLine removes and returns the next newline-terminated line from the
// buffer, stripping an optional carriage return.
func (p *Pipe) takeLine() ([]byte, bool) {
	i := bytes.IndexByte(p.buf, '\n')
	if i < 0 {
		return nil, false
	}
	line := bytes.TrimSuffix(p.buf[:i], []byte{'\r'})
	out := make([]byte, len(line))
	copy(out, line)
	p.buf = p.buf[i+1:]
	return out, true
}

func (p *Pipe) takeLinePeek() ([]byte, bool) {
	i := bytes.IndexByte(p.buf, '\n')
	if i < 0 {
		return nil, false
	}
	return p.buf[:i], true
}

// IdleTime reports how long ago the last line was received. A freshly
// created pipe reports the time since creation.
func (p *Pipe) IdleTime() time.Duration {
	return time.Since(time.Unix(0, p.lastRecv.Load()))
}

// Close closes the underlying connection. Safe to call more than once
// and from any goroutine; a blocked Receive returns ErrClosed.
func (p *Pipe) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.conn.Close()
}

func (p *Pipe) logFrame(dir log.Direction, line []byte) {
	data := line
	truncated := false
	if len(data) > eventFrameLimit {
		data = data[:eventFrameLimit]
		truncated = true
	}
	frame := make([]byte, len(data))
	copy(frame, data)

	p.config.Events.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: p.config.ConnectionID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Host:         p.config.Host,
		RemoteAddr:   p.conn.RemoteAddr().String(),
		Frame: &log.FrameEvent{
			Size:      len(line),
			Data:      frame,
			Truncated: truncated,
		},
	})
}
