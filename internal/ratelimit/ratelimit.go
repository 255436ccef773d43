// Package ratelimit provides the tiered admission limiter that gates the API
// and a keyed token-bucket throttle for per-connection message budgets.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/ladderline/ladder-server/internal/domain"
	domainerrors "github.com/ladderline/ladder-server/internal/errors"
)

// Reason names the window that rejected a request.
type Reason string

const (
	ReasonNone   Reason = ""
	ReasonMinute Reason = "MINUTE"
	ReasonBurst  Reason = "BURST"
	ReasonHour   Reason = "HOUR"
	ReasonDay    Reason = "DAY"
)

// Budget is one tier's request allowance per window.
type Budget struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// Config configures a Limiter.
type Config struct {
	Budgets         map[domain.ClientTier]Budget
	BurstMultiplier float64
}

// Decision is the outcome of one CheckAndIncrement.
type Decision struct {
	Allowed    bool
	Tier       domain.ClientTier
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	Reason     Reason
}

// Err returns a RATE_LIMITED error for rejected decisions, nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return domainerrors.RateLimited("rate limit exceeded", d.RetryAfter).
		WithDetails(map[string]any{
			"reason":              d.Reason,
			"retry_after_seconds": int(d.RetryAfter / time.Second),
		})
}

type window struct {
	start time.Time
	count int
}

// roll resets the window once its duration has fully elapsed.
func (w *window) roll(now time.Time, d time.Duration) {
	if w.start.IsZero() || now.Sub(w.start) >= d {
		w.start = now
		w.count = 0
	}
}

type clientState struct {
	mu       sync.Mutex
	tier     domain.ClientTier
	minute   window
	hour     window
	day      window
	lastSeen time.Time
}

// Limiter enforces per-client minute, hour and day budgets. Windows are fixed
// and start at the first request after the previous one expired.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.RWMutex
	clients map[string]*clientState
}

// New creates a Limiter. A burst multiplier below 1 is treated as 1.
func New(cfg Config) *Limiter {
	if cfg.BurstMultiplier < 1 {
		cfg.BurstMultiplier = 1
	}
	return &Limiter{
		cfg:     cfg,
		now:     time.Now,
		clients: make(map[string]*clientState),
	}
}

// SetClock replaces the time source. Tests only.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

func (l *Limiter) budget(tier domain.ClientTier) Budget {
	if b, ok := l.cfg.Budgets[tier]; ok {
		return b
	}
	return l.cfg.Budgets[domain.ClientAnonymous]
}

// state returns the client's state, creating it if needed.
func (l *Limiter) state(clientID string) *clientState {
	l.mu.RLock()
	st, ok := l.clients[clientID]
	l.mu.RUnlock()
	if ok {
		return st
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok = l.clients[clientID]; ok {
		return st
	}
	st = &clientState{}
	l.clients[clientID] = st
	return st
}

// CheckAndIncrement counts the request in all three windows and then decides.
// The request that crosses a limit is itself counted.
func (l *Limiter) CheckAndIncrement(clientID string, tier domain.ClientTier) Decision {
	st := l.state(clientID)

	st.mu.Lock()
	defer st.mu.Unlock()

	now := l.now()
	st.tier = tier
	st.lastSeen = now

	st.minute.roll(now, time.Minute)
	st.hour.roll(now, time.Hour)
	st.day.roll(now, 24*time.Hour)
	st.minute.count++
	st.hour.count++
	st.day.count++

	b := l.budget(tier)
	burst := int(math.Floor(float64(b.PerMinute) * l.cfg.BurstMultiplier))

	d := Decision{
		Allowed:   true,
		Tier:      tier,
		Limit:     b.PerMinute,
		Remaining: max(0, min(b.PerMinute-st.minute.count, b.PerHour-st.hour.count, b.PerDay-st.day.count)),
		ResetAt:   st.minute.start.Add(time.Minute),
	}

	switch {
	case st.day.count > b.PerDay:
		d.Reason, d.Limit, d.ResetAt = ReasonDay, b.PerDay, st.day.start.Add(24*time.Hour)
	case st.hour.count > b.PerHour:
		d.Reason, d.Limit, d.ResetAt = ReasonHour, b.PerHour, st.hour.start.Add(time.Hour)
	case st.minute.count > burst:
		d.Reason = ReasonBurst
	case st.minute.count > b.PerMinute:
		d.Reason = ReasonMinute
	}

	if d.Reason != ReasonNone {
		d.Allowed = false
		d.Remaining = 0
		d.RetryAfter = retryAfter(d.ResetAt.Sub(now))
	}
	return d
}

// retryAfter rounds up to whole seconds, never below one.
func retryAfter(d time.Duration) time.Duration {
	s := time.Duration(math.Ceil(d.Seconds())) * time.Second
	return max(s, time.Second)
}

// Reset clears a client's state immediately.
func (l *Limiter) Reset(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.clients[clientID]
	delete(l.clients, clientID)
	return ok
}

// Sweep drops clients idle for longer than idle and returns how many went.
// Only one client's lock is held at a time.
func (l *Limiter) Sweep(idle time.Duration) int {
	cutoff := l.now().Add(-idle)

	l.mu.RLock()
	var stale []string
	for id, st := range l.clients {
		st.mu.Lock()
		if st.lastSeen.Before(cutoff) {
			stale = append(stale, id)
		}
		st.mu.Unlock()
	}
	l.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for _, id := range stale {
		st, ok := l.clients[id]
		if !ok {
			continue
		}
		st.mu.Lock()
		idleNow := st.lastSeen.Before(cutoff)
		st.mu.Unlock()
		if idleNow {
			delete(l.clients, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.clients)
}
