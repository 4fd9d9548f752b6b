// Package limiter implements token-bucket rate limiting for per-user message
// throttling, with an optional escalation to timed mutes for repeat
// offenders.
package limiter

import (
	"sync"
	"time"
)

// Bucket is a token bucket filling at rate tokens per second up to burst.
// The zero value is not usable; construct with NewBucket.
type Bucket struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	rate   float64
	last   time.Time
	now    func() time.Time
}

// NewBucket returns a bucket that starts full, allowing an initial burst.
func NewBucket(rate, burst float64) *Bucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	b := &Bucket{
		tokens: burst,
		burst:  burst,
		rate:   rate,
		now:    time.Now,
	}
	b.last = b.now()
	return b
}

// TryConsume refills the bucket for the elapsed time and consumes n tokens
// if available. It reports whether the tokens were consumed.
func (b *Bucket) TryConsume(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens < n {
		return false
	}
	b.tokens -= n
	return true
}

// Tokens returns the current token count after refilling.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens
}

// WaitTime returns how long until one token is available, zero if a token
// is available now.
func (b *Bucket) WaitTime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 {
		return 0
	}
	needed := 1 - b.tokens
	return time.Duration(needed / b.rate * float64(time.Second))
}

// refill must be called with the mutex held.
func (b *Bucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.last).Seconds()
	b.last = now
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
}
