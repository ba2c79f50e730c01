package notify

import (
	"math/rand/v2"
	"time"
)

// Backoff computes the wait before a retry attempt: exponential growth
// from Base, capped at Ceiling, with proportional random jitter so
// simultaneous failures do not retry in lockstep.
type Backoff struct {
	Base    time.Duration
	Ceiling time.Duration
	Jitter  float64 // fraction of the delay, e.g. 0.3 for +/-30%
}

func DefaultBackoff() Backoff {
	return Backoff{
		Base:    30 * time.Second,
		Ceiling: 10 * time.Minute,
		Jitter:  0.3,
	}
}

// Delay returns the wait after the given failed attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	// Shift with an overflow guard: past ~30 doublings the ceiling has
	// long since taken over anyway.
	for i := 1; i < attempt && d < b.Ceiling; i++ {
		d *= 2
	}
	if d > b.Ceiling {
		d = b.Ceiling
	}
	if b.Jitter > 0 {
		spread := float64(d) * b.Jitter
		d += time.Duration((rand.Float64()*2 - 1) * spread)
		if d < 0 {
			d = 0
		}
	}
	return d
}
