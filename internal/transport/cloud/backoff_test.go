package cloud

import (
	"testing"
	"time"
)

func TestBackoff_GrowsToMaxWithJitter(t *testing.T) {
	b := newBackoff(time.Second, 8*time.Second)

	bases := []time.Duration{1, 2, 4, 8, 8}
	for i, base := range bases {
		base *= time.Second
		d := b.next()
		maxJittered := base + time.Duration(float64(base)*jitterFactor)
		if d < base || d > maxJittered {
			t.Errorf("attempt %d: delay %v outside [%v, %v]", i+1, d, base, maxJittered)
		}
	}
	if b.attempts != len(bases) {
		t.Errorf("attempts = %d, want %d", b.attempts, len(bases))
	}

	b.reset()
	if b.current != time.Second || b.attempts != 0 {
		t.Errorf("after reset current=%v attempts=%d", b.current, b.attempts)
	}
}

func TestBackoff_Defaults(t *testing.T) {
	b := newBackoff(0, 0)
	if b.initial != DefaultInitialDelay {
		t.Errorf("initial = %v, want %v", b.initial, DefaultInitialDelay)
	}
	if b.max != DefaultMaxDelay {
		t.Errorf("max = %v, want %v", b.max, DefaultMaxDelay)
	}
}
