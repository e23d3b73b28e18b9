package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := NewBackoff(time.Second, 8*time.Second)

	// Base sequence 1s, 2s, 4s, 8s, 8s with up to 25% jitter on top.
	for i, base := range []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second,
	} {
		d := b.Next()
		assert.GreaterOrEqual(t, d, base, "attempt %d", i)
		assert.LessOrEqual(t, d, base+base/4, "attempt %d", i)
	}
	assert.Equal(t, 5, b.Attempts())
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute)
	b.Next()
	b.Next()

	b.Reset()
	assert.Zero(t, b.Attempts())

	d := b.Next()
	assert.GreaterOrEqual(t, d, time.Second)
	assert.LessOrEqual(t, d, time.Second+time.Second/4)
}

func TestBackoffDefaults(t *testing.T) {
	b := NewBackoff(0, 0)
	d := b.Next()
	assert.GreaterOrEqual(t, d, InitialBackoff)
}
