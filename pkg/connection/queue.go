package connection

import (
	"context"
	"sync"
)

// Reply is a correlated response or a normalized notification.
type Reply struct {
	// Method is the RPC method of the originating request or
	// notification.
	Method string

	// Params are the request parameters (requests) or the remaining
	// notification parameters after normalization.
	Params []any

	// CallerID is the opaque token supplied at submission, nil for
	// notifications.
	CallerID any

	// Result is the response result or the notification's current value.
	Result any

	// Err is the error payload of a failed response, nil otherwise.
	Err any
}

// Event is one item on an owner-facing queue. A nil Reply signals that
// the interface's state changed; the owner queries the interface to
// learn the new state.
type Event struct {
	Interface *Interface
	Reply     *Reply
}

// IsStateChange reports whether the event is a state-change signal
// rather than a reply.
func (e Event) IsStateChange() bool {
	return e.Reply == nil
}

// Queue is an unbounded FIFO of events. Push never blocks, so a worker
// can always hand off without waiting on its owner.
type Queue struct {
	mu     sync.Mutex
	items  []Event
	signal chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Push appends an event. It never blocks.
func (q *Queue) Push(event Event) {
	q.mu.Lock()
	q.items = append(q.items, event)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// TryPop removes and returns the oldest event, if any.
func (q *Queue) TryPop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Event{}, false
	}
	event := q.items[0]
	q.items = q.items[1:]
	return event, true
}

// Pop removes and returns the oldest event, waiting until one is
// available or the context ends.
func (q *Queue) Pop(ctx context.Context) (Event, error) {
	for {
		if event, ok := q.TryPop(); ok {
			// Leave the signal set if items remain for other waiters.
			q.mu.Lock()
			if len(q.items) > 0 {
				select {
				case q.signal <- struct{}{}:
				default:
				}
			}
			q.mu.Unlock()
			return event, nil
		}

		select {
		case <-q.signal:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
