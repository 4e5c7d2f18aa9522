package webhook

import (
	"math"
	"math/rand/v2"
	"time"
)

// DefaultMaxBackoff caps a single retry delay regardless of attempt count.
const DefaultMaxBackoff = 5 * time.Minute

// Backoff computes the delay before the next delivery attempt.
// The schedule is Base * 2^(attempt-1), optionally jittered, capped at Max.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// Delay returns the wait after the given 1-indexed failed attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	base := b.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	max := b.Max
	if max <= 0 {
		max = DefaultMaxBackoff
	}

	d := float64(base) * math.Pow(2, float64(attempt-1))
	if b.Jitter > 0 {
		d *= 1 + (rand.Float64()*2-1)*b.Jitter
	}
	if d > float64(max) {
		d = float64(max)
	}
	return time.Duration(d)
}
