package connection

import (
	"log/slog"
	"sync"
	"time"

	"github.com/justinvforvendetta/electrum-xmc/pkg/log"
	"github.com/justinvforvendetta/electrum-xmc/pkg/wire"
)

// pendingRequest is an in-flight request awaiting its response.
type pendingRequest struct {
	method   string
	params   []any
	callerID any
	target   *Queue
	sentAt   time.Time
}

// correlator matches responses to submitted requests and routes
// notifications. Ids are monotonically increasing and never reused
// within one connection. Owned by a single Interface.
type correlator struct {
	iface  *Interface
	shared *Queue
	log    *slog.Logger
	events log.Logger

	mu            sync.Mutex
	nextID        uint64
	pending       map[uint64]pendingRequest
	serverVersion string
	now           func() time.Time
}

func newCorrelator(shared *Queue, logger *slog.Logger, events log.Logger) *correlator {
	return &correlator{
		shared:  shared,
		log:     logger,
		events:  events,
		pending: make(map[uint64]pendingRequest),
		now:     time.Now,
	}
}

// submit assigns the next id, records the pending request, and returns
// the wire frame to send. A nil target routes the response to the
// shared queue.
func (c *correlator) submit(method string, params []any, callerID any, target *Queue) wire.Request {
	if params == nil {
		params = []any{}
	}
	if target == nil {
		target = c.shared
	}

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	if c.pending == nil {
		c.pending = make(map[uint64]pendingRequest)
	}
	c.pending[id] = pendingRequest{
		method:   method,
		params:   params,
		callerID: callerID,
		target:   target,
		sentAt:   c.now(),
	}
	c.mu.Unlock()

	c.logMessage(log.DirectionOut, log.MessageTypeRequest, id, method, false)
	return wire.Request{ID: id, Method: method, Params: params}
}

// dispatch routes one inbound message: a response pops its pending
// request and is delivered to that request's target exactly once, a
// notification is normalized and delivered to the shared queue. An
// unknown response id is a protocol violation, logged and dropped.
func (c *correlator) dispatch(msg *wire.Message) {
	if msg.IsResponse() {
		c.dispatchResponse(msg)
		return
	}
	c.dispatchNotification(msg)
}

func (c *correlator) dispatchResponse(msg *wire.Message) {
	id := *msg.ID

	c.mu.Lock()
	req, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Warn("response for unknown request id", "id", id)
		c.logError(log.LayerWire, "response for unknown request id")
		return
	}

	c.logMessage(log.DirectionIn, log.MessageTypeResponse, id, req.method, msg.Error != nil)

	if req.method == wire.MethodServerVersion {
		// Keepalive replies record the negotiated version and go no
		// further.
		if v, ok := msg.Result.(string); ok {
			c.mu.Lock()
			c.serverVersion = v
			c.mu.Unlock()
		}
		return
	}

	req.target.Push(Event{
		Interface: c.iface,
		Reply: &Reply{
			Method:   req.method,
			Params:   req.params,
			CallerID: req.callerID,
			Result:   msg.Result,
			Err:      msg.Error,
		},
	})
}

func (c *correlator) dispatchNotification(msg *wire.Message) {
	result, params := wire.Normalize(msg.Method, msg.Params)

	c.logMessage(log.DirectionIn, log.MessageTypeNotification, 0, msg.Method, false)

	c.shared.Push(Event{
		Interface: c.iface,
		Reply: &Reply{
			Method: msg.Method,
			Params: params,
			Result: result,
			Err:    msg.Error,
		},
	})
}

// oldestPending returns the send time of the oldest unanswered request.
func (c *correlator) oldestPending() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var oldest time.Time
	found := false
	for _, req := range c.pending {
		if !found || req.sentAt.Before(oldest) {
			oldest = req.sentAt
			found = true
		}
	}
	return oldest, found
}

// pendingCount returns the number of unanswered requests.
func (c *correlator) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// version returns the server version negotiated by the keepalive.
func (c *correlator) version() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverVersion
}

// teardown discards every pending request at once. Frames arriving
// afterwards can never match a discarded request.
func (c *correlator) teardown() {
	c.mu.Lock()
	n := len(c.pending)
	c.pending = make(map[uint64]pendingRequest)
	c.mu.Unlock()

	if n > 0 {
		c.log.Debug("discarded pending requests", "count", n)
	}
}

func (c *correlator) logMessage(dir log.Direction, typ log.MessageType, id uint64, method string, isErr bool) {
	host := ""
	connID := ""
	if c.iface != nil {
		host = c.iface.endpoint.Host
		connID = c.iface.ID
	}
	c.events.Log(log.Event{
		Timestamp:    c.now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Host:         host,
		Message: &log.MessageEvent{
			Type:      typ,
			MessageID: id,
			Method:    method,
			IsError:   isErr,
		},
	})
}

func (c *correlator) logError(layer log.Layer, message string) {
	host := ""
	connID := ""
	if c.iface != nil {
		host = c.iface.endpoint.Host
		connID = c.iface.ID
	}
	c.events.Log(log.Event{
		Timestamp:    c.now(),
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Layer:        layer,
		Category:     log.CategoryError,
		Host:         host,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: message,
		},
	})
}
