package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladderline/ladder-server/internal/domain"
	domainerrors "github.com/ladderline/ladder-server/internal/errors"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(b Budget, burst float64) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	l := New(Config{
		Budgets: map[domain.ClientTier]Budget{
			domain.ClientAnonymous:     b,
			domain.ClientAuthenticated: {PerMinute: b.PerMinute * 2, PerHour: b.PerHour * 2, PerDay: b.PerDay * 2},
		},
		BurstMultiplier: burst,
	})
	l.SetClock(clock.Now)
	return l, clock
}

func TestCheckAndIncrement_FailClosedAtLimit(t *testing.T) {
	l, clock := newTestLimiter(Budget{PerMinute: 5, PerHour: 100, PerDay: 1000}, 1)

	for i := range 5 {
		d := l.CheckAndIncrement("ip:1.2.3.4", domain.ClientAnonymous)
		require.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 4-i, d.Remaining)
	}

	d := l.CheckAndIncrement("ip:1.2.3.4", domain.ClientAnonymous)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonBurst, d.Reason) // multiplier 1: burst ceiling equals the minute limit
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.Equal(t, time.Minute, d.RetryAfter)

	clock.Advance(time.Minute)
	d = l.CheckAndIncrement("ip:1.2.3.4", domain.ClientAnonymous)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
}

func TestCheckAndIncrement_MinuteThenBurst(t *testing.T) {
	l, clock := newTestLimiter(Budget{PerMinute: 4, PerHour: 100, PerDay: 1000}, 1.5)

	for range 4 {
		require.True(t, l.CheckAndIncrement("c", domain.ClientAnonymous).Allowed)
	}

	clock.Advance(20 * time.Second)
	d := l.CheckAndIncrement("c", domain.ClientAnonymous)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonMinute, d.Reason)
	assert.Equal(t, 40*time.Second, d.RetryAfter)

	d = l.CheckAndIncrement("c", domain.ClientAnonymous) // 6 = floor(4*1.5)
	assert.Equal(t, ReasonMinute, d.Reason)

	d = l.CheckAndIncrement("c", domain.ClientAnonymous) // 7 > burst ceiling
	assert.Equal(t, ReasonBurst, d.Reason)
}

func TestCheckAndIncrement_LongerWindowsReportLongerRetry(t *testing.T) {
	l, clock := newTestLimiter(Budget{PerMinute: 10, PerHour: 3, PerDay: 1000}, 1)

	for range 3 {
		require.True(t, l.CheckAndIncrement("c", domain.ClientAnonymous).Allowed)
	}
	clock.Advance(10 * time.Minute)

	d := l.CheckAndIncrement("c", domain.ClientAnonymous)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonHour, d.Reason)
	assert.Equal(t, 50*time.Minute, d.RetryAfter)
	assert.Equal(t, 3, d.Limit)

	l, _ = newTestLimiter(Budget{PerMinute: 10, PerHour: 10, PerDay: 1}, 1)
	require.True(t, l.CheckAndIncrement("c", domain.ClientAnonymous).Allowed)
	d = l.CheckAndIncrement("c", domain.ClientAnonymous)
	assert.Equal(t, ReasonDay, d.Reason)
	assert.Equal(t, 24*time.Hour, d.RetryAfter)
}

func TestCheckAndIncrement_RejectedRequestsCount(t *testing.T) {
	l, clock := newTestLimiter(Budget{PerMinute: 2, PerHour: 3, PerDay: 1000}, 1)

	l.CheckAndIncrement("c", domain.ClientAnonymous)
	l.CheckAndIncrement("c", domain.ClientAnonymous)
	assert.False(t, l.CheckAndIncrement("c", domain.ClientAnonymous).Allowed)

	// The rejected third call still used the hour budget.
	clock.Advance(time.Minute)
	d := l.CheckAndIncrement("c", domain.ClientAnonymous)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonHour, d.Reason)
}

func TestCheckAndIncrement_TiersAndClientsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(Budget{PerMinute: 1, PerHour: 10, PerDay: 10}, 1)

	assert.True(t, l.CheckAndIncrement("a", domain.ClientAnonymous).Allowed)
	assert.False(t, l.CheckAndIncrement("a", domain.ClientAnonymous).Allowed)
	assert.True(t, l.CheckAndIncrement("b", domain.ClientAnonymous).Allowed)

	d := l.CheckAndIncrement("user:u1", domain.ClientAuthenticated)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Limit)

	// Unknown tiers fall back to the anonymous budget.
	d = l.CheckAndIncrement("x", domain.ClientPremium)
	assert.Equal(t, 1, d.Limit)
}

func TestDecisionErr(t *testing.T) {
	l, _ := newTestLimiter(Budget{PerMinute: 1, PerHour: 10, PerDay: 10}, 1)

	assert.NoError(t, l.CheckAndIncrement("c", domain.ClientAnonymous).Err())

	err := l.CheckAndIncrement("c", domain.ClientAnonymous).Err()
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeRateLimited, domainerrors.CodeOf(err))
	assert.Equal(t, time.Minute, domainerrors.RetryAfterOf(err))
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(Budget{PerMinute: 1, PerHour: 10, PerDay: 10}, 1)

	l.CheckAndIncrement("c", domain.ClientAnonymous)
	assert.False(t, l.CheckAndIncrement("c", domain.ClientAnonymous).Allowed)

	assert.True(t, l.Reset("c"))
	assert.False(t, l.Reset("c"))
	assert.True(t, l.CheckAndIncrement("c", domain.ClientAnonymous).Allowed)
}

func TestSweep(t *testing.T) {
	l, clock := newTestLimiter(Budget{PerMinute: 10, PerHour: 10, PerDay: 10}, 1)

	l.CheckAndIncrement("old", domain.ClientAnonymous)
	clock.Advance(2 * time.Hour)
	l.CheckAndIncrement("fresh", domain.ClientAnonymous)

	assert.Equal(t, 1, l.Sweep(time.Hour))
	assert.Equal(t, 1, l.Len())
}

func TestCheckAndIncrement_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(Budget{PerMinute: 50, PerHour: 1000, PerDay: 1000}, 1)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Go(func() {
			if l.CheckAndIncrement("shared", domain.ClientAnonymous).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestResolveClientID(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		xff        string
		realIP     string
		remoteAddr string
		want       string
	}{
		{"user wins over ip", "u1", "9.9.9.9", "", "1.1.1.1:5000", "user:u1"},
		{"first forwarded hop", "", "203.0.113.7, 10.0.0.1", "", "10.0.0.2:1", "ip:203.0.113.7"},
		{"real ip", "", "", "198.51.100.2", "10.0.0.2:1", "ip:198.51.100.2"},
		{"remote addr port stripped", "", "", "", "192.0.2.1:54321", "ip:192.0.2.1"},
		{"ipv6 remote", "", "", "", "[2001:db8::1]:443", "ip:2001:db8::1"},
		{"mapped ipv4", "", "::ffff:192.0.2.9", "", "", "ip:192.0.2.9"},
		{"nothing", "", "", "", "", "ip:unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveClientID(tt.userID, tt.xff, tt.realIP, tt.remoteAddr))
		})
	}
}
