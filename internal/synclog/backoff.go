package synclog

import (
	"math/rand"
	"time"
)

// maxShift keeps base << n inside time.Duration for any sane base.
const maxShift = 30

// Backoff computes next_retry_at for a failed attempt:
//
//	next = now + Base * 2^retryCount (+ jitter)
//
// MaxExponent caps the exponent when > 0.  Jitter adds a uniformly random
// fraction [0, Jitter) of the delay.  The zero values of both keep the
// original uncapped, jitter-free schedule.
type Backoff struct {
	Base        time.Duration
	MaxExponent int
	Jitter      float64
	Rand        func() float64 // nil means math/rand/v2
}

// DefaultBackoff is 5 minutes doubling, uncapped, no jitter.
var DefaultBackoff = Backoff{Base: 5 * time.Minute}

// Delay returns the wait before the attempt that follows retryCount.
func (b Backoff) Delay(retryCount int) time.Duration {
	n := retryCount
	if n < 0 {
		n = 0
	}
	if b.MaxExponent > 0 && n > b.MaxExponent {
		n = b.MaxExponent
	}
	if n > maxShift {
		n = maxShift
	}
	d := b.Base << uint(n)
	if b.Jitter > 0 {
		r := b.Rand
		if r == nil {
			r = rand.Float64
		}
		d += time.Duration(float64(d) * b.Jitter * r())
	}
	return d
}

// Next returns the absolute retry time.
func (b Backoff) Next(now time.Time, retryCount int) time.Time {
	return now.Add(b.Delay(retryCount))
}
