package cloud

import (
	"math/rand"
	"time"
)

// Reconnect defaults.
const (
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 60 * time.Second
	backoffMultiplier   = 2.0
	jitterFactor        = 0.25
)

// backoff computes exponential reconnect delays with up to 25% jitter.
// It is only used by the tunnel's run goroutine.
type backoff struct {
	current  time.Duration
	initial  time.Duration
	max      time.Duration
	attempts int
	rng      *rand.Rand
}

func newBackoff(initial, maxDelay time.Duration) *backoff {
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	if maxDelay < initial {
		maxDelay = DefaultMaxDelay
		if maxDelay < initial {
			maxDelay = initial
		}
	}
	return &backoff{
		current: initial,
		initial: initial,
		max:     maxDelay,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // Jitter, not security
	}
}

// next returns the jittered delay and advances the base delay.
func (b *backoff) next() time.Duration {
	delay := b.current + time.Duration(float64(b.current)*jitterFactor*b.rng.Float64())

	b.attempts++
	grown := time.Duration(float64(b.current) * backoffMultiplier)
	if grown > b.max {
		grown = b.max
	}
	b.current = grown
	return delay
}

// reset returns to the initial delay after a successful connection.
func (b *backoff) reset() {
	b.current = b.initial
	b.attempts = 0
}
