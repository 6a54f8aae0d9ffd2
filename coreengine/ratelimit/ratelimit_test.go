package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(cfg Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(cfg)
	l.now = clock.Now
	return l, clock
}

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{PerMinute: 1}.Enabled())
	assert.True(t, Config{PerHour: 1}.Enabled())
}

// =============================================================================
// ALLOW TESTS
// =============================================================================

func TestAllow_MinuteLimit(t *testing.T) {
	l, _ := newTestLimiter(Config{PerMinute: 3})

	for i := 0; i < 3; i++ {
		res := l.Allow("10.0.0.1")
		require.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 3-(i+1), res.Remaining)
	}

	res := l.Allow("10.0.0.1")
	assert.False(t, res.Allowed)
	assert.Equal(t, "minute", res.Window)
	assert.Equal(t, 3, res.Current)
	assert.Equal(t, 3, res.Limit)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, time.Minute+6*time.Second)
}

func TestAllow_ClientsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(Config{PerMinute: 1})

	assert.True(t, l.Allow("a").Allowed)
	assert.False(t, l.Allow("a").Allowed)
	assert.True(t, l.Allow("b").Allowed)
}

func TestAllow_WindowSlides(t *testing.T) {
	l, clock := newTestLimiter(Config{PerMinute: 2})

	require.True(t, l.Allow("c").Allowed)
	require.True(t, l.Allow("c").Allowed)
	denied := l.Allow("c")
	require.False(t, denied.Allowed)

	clock.Advance(denied.RetryAfter)
	assert.True(t, l.Allow("c").Allowed)
}

func TestAllow_HourLimit(t *testing.T) {
	l, clock := newTestLimiter(Config{PerMinute: 10, PerHour: 3})

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow("h").Allowed)
		clock.Advance(2 * time.Minute)
	}

	res := l.Allow("h")
	assert.False(t, res.Allowed)
	assert.Equal(t, "hour", res.Window)
	assert.Equal(t, 3, res.Limit)
}

func TestAllow_DeniedRequestsAreNotCounted(t *testing.T) {
	l, clock := newTestLimiter(Config{PerMinute: 1})

	require.True(t, l.Allow("d").Allowed)
	for i := 0; i < 5; i++ {
		require.False(t, l.Allow("d").Allowed)
	}

	clock.Advance(2 * time.Minute)
	res := l.Allow("d")
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Current)
}

func TestAllow_DisabledAlwaysAllows(t *testing.T) {
	l, _ := newTestLimiter(Config{})
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("x").Allowed)
	}
	assert.Equal(t, 0, l.Clients())
}

func TestAllow_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(Config{PerMinute: 50})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

// =============================================================================
// CLEANUP TESTS
// =============================================================================

func TestCleanupExpired(t *testing.T) {
	l, clock := newTestLimiter(Config{PerMinute: 5, PerHour: 50})

	l.Allow("old")
	clock.Advance(30 * time.Minute)
	l.Allow("new")
	require.Equal(t, 4, l.Clients())

	// Only the minute window of "old" has expired.
	assert.Equal(t, 1, l.CleanupExpired())
	assert.Equal(t, 3, l.Clients())

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 3, l.CleanupExpired())
	assert.Equal(t, 0, l.Clients())
}
