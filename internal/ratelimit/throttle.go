package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// Throttle manages per-key token buckets. Each unique key gets its own
// independent limiter; idle keys are dropped by Sweep.
type Throttle struct {
	mu       sync.RWMutex
	limiters map[string]*throttleEntry
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewThrottle creates a keyed throttle.
// perSecond: sustained events per second.
// burst: maximum burst size (tokens available immediately).
func NewThrottle(perSecond float64, burst int) *Throttle {
	return &Throttle{
		limiters: make(map[string]*throttleEntry),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (t *Throttle) SetClock(now func() time.Time) {
	t.now = now
}

// Allow reports whether one more event for key fits the budget.
// Returns immediately without blocking.
func (t *Throttle) Allow(key string) bool {
	now := t.now()
	e := t.entry(key)
	e.lastSeen.Store(now.UnixNano())
	return e.limiter.AllowN(now, 1)
}

// entry returns the limiter for a key, creating one if needed.
func (t *Throttle) entry(key string) *throttleEntry {
	// Fast path: read lock
	t.mu.RLock()
	e, exists := t.limiters[key]
	t.mu.RUnlock()

	if exists {
		return e
	}

	// Slow path: write lock to create
	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring write lock
	if e, exists = t.limiters[key]; exists {
		return e
	}

	e = &throttleEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
	t.limiters[key] = e
	return e
}

// Forget drops the limiter for key.
func (t *Throttle) Forget(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.limiters, key)
}

// Sweep drops keys unused for longer than idle and returns how many went.
func (t *Throttle) Sweep(idle time.Duration) int {
	cutoff := t.now().Add(-idle).UnixNano()

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for key, e := range t.limiters {
		if e.lastSeen.Load() < cutoff {
			delete(t.limiters, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (t *Throttle) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.limiters)
}
