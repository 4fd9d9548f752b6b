package limiter

import (
	"sync"
	"time"
)

// Muting keys token buckets by user and escalates sustained abuse to a
// timed mute: after muteAfter consecutive rejected consumes the user is
// muted for muteFor, during which TryConsume fails without consulting the
// bucket. A successful consume resets the violation streak. With
// muteAfter <= 0 the wrapper degrades to plain per-user buckets.
type Muting struct {
	mu         sync.Mutex
	rate       float64
	burst      float64
	muteAfter  int
	muteFor    time.Duration
	buckets    map[string]*Bucket
	violations map[string]int
	mutedUntil map[string]time.Time
	now        func() time.Time
}

// NewMuting returns a muting limiter. Buckets are created lazily per user
// and start full.
func NewMuting(rate, burst float64, muteAfter int, muteFor time.Duration) *Muting {
	return &Muting{
		rate:       rate,
		burst:      burst,
		muteAfter:  muteAfter,
		muteFor:    muteFor,
		buckets:    make(map[string]*Bucket),
		violations: make(map[string]int),
		mutedUntil: make(map[string]time.Time),
		now:        time.Now,
	}
}

// TryConsume consumes one token for userID, honoring any active mute and
// tracking violations.
func (m *Muting) TryConsume(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if until, muted := m.mutedUntil[userID]; muted {
		if m.now().Before(until) {
			return false
		}
		delete(m.mutedUntil, userID)
		delete(m.violations, userID)
	}

	if m.bucket(userID).TryConsume(1) {
		delete(m.violations, userID)
		return true
	}

	if m.muteAfter > 0 {
		m.violations[userID]++
		if m.violations[userID] >= m.muteAfter {
			m.mutedUntil[userID] = m.now().Add(m.muteFor)
		}
	}
	return false
}

// Muted reports whether userID is currently muted, clearing expired mutes.
func (m *Muting) Muted(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	until, muted := m.mutedUntil[userID]
	if !muted {
		return false
	}
	if m.now().Before(until) {
		return true
	}
	delete(m.mutedUntil, userID)
	delete(m.violations, userID)
	return false
}

// MuteRemaining returns the time left on userID's mute, zero if not muted.
func (m *Muting) MuteRemaining(userID string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	until, muted := m.mutedUntil[userID]
	if !muted {
		return 0
	}
	remaining := until.Sub(m.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Remove drops all state for a user. Call on disconnect to free memory.
func (m *Muting) Remove(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.buckets, userID)
	delete(m.violations, userID)
	delete(m.mutedUntil, userID)
}

// Len returns the number of tracked users.
func (m *Muting) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Cleanup drops buckets idle for longer than maxAge and returns how many
// were removed. Mute entries for removed users are dropped with them.
func (m *Muting) Cleanup(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for userID, b := range m.buckets {
		b.mu.Lock()
		idle := now.Sub(b.last)
		b.mu.Unlock()
		if idle > maxAge {
			delete(m.buckets, userID)
			delete(m.violations, userID)
			delete(m.mutedUntil, userID)
			removed++
		}
	}
	return removed
}

// bucket must be called with the mutex held.
func (m *Muting) bucket(userID string) *Bucket {
	b, ok := m.buckets[userID]
	if !ok {
		b = NewBucket(m.rate, m.burst)
		b.now = m.now
		m.buckets[userID] = b
	}
	return b
}
