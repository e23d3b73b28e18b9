package network

import (
	"math/rand"
	"sync"
	"time"
)

// Reconnection backoff defaults.
const (
	// InitialBackoff is the delay before the first reconnect attempt.
	InitialBackoff = 1 * time.Second

	// MaxBackoff caps the reconnect delay.
	MaxBackoff = 60 * time.Second

	// backoffMultiplier doubles the delay per failed attempt.
	backoffMultiplier = 2.0

	// jitterFactor is the maximum jitter as a fraction of the base delay.
	jitterFactor = 0.25
)

// Backoff produces exponentially increasing reconnect delays with
// jitter. Reset after a successful connection.
type Backoff struct {
	mu       sync.Mutex
	current  time.Duration
	initial  time.Duration
	max      time.Duration
	attempts int
	rng      *rand.Rand
}

// NewBackoff creates a backoff starting at initial and capped at max.
// Non-positive arguments fall back to the defaults.
func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = InitialBackoff
	}
	if max <= 0 {
		max = MaxBackoff
	}
	return &Backoff{
		current: initial,
		initial: initial,
		max:     max,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the jittered delay to wait before the next attempt and
// advances the sequence.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.current + time.Duration(float64(b.current)*jitterFactor*b.rng.Float64())

	b.attempts++
	next := time.Duration(float64(b.current) * backoffMultiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next

	return delay
}

// Reset returns the sequence to its initial delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
	b.attempts = 0
}

// Attempts reports the number of delays issued since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
