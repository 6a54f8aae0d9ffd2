// Package ratelimit limits goal runs per client with sliding windows.
//
// Each window is split into sub-buckets, so counts decay smoothly instead
// of resetting at a fixed boundary.
package ratelimit

import (
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Config & Result
// =============================================================================

// Config defines per-client thresholds. A zero limit disables that window.
type Config struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
}

// Enabled reports whether any window is limited.
func (c Config) Enabled() bool {
	return c.PerMinute > 0 || c.PerHour > 0
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool          `json:"allowed"`
	Window     string        `json:"window,omitempty"` // "minute" or "hour" when exceeded
	Current    int           `json:"current"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// =============================================================================
// Sliding Window
// =============================================================================

const bucketCount = 10

// slidingWindow counts events over the trailing window.
// Callers must hold the Limiter lock.
type slidingWindow struct {
	size    time.Duration
	buckets map[int64]int
}

func newSlidingWindow(size time.Duration) *slidingWindow {
	return &slidingWindow{size: size, buckets: make(map[int64]int)}
}

func (w *slidingWindow) bucketSize() time.Duration {
	return w.size / bucketCount
}

func (w *slidingWindow) bucketOf(now time.Time) int64 {
	return now.UnixNano() / int64(w.bucketSize())
}

// evict drops buckets that have slid out of the window.
func (w *slidingWindow) evict(now time.Time) {
	minBucket := w.bucketOf(now) - bucketCount
	for b := range w.buckets {
		if b < minBucket {
			delete(w.buckets, b)
		}
	}
}

func (w *slidingWindow) record(now time.Time) {
	w.evict(now)
	w.buckets[w.bucketOf(now)]++
}

func (w *slidingWindow) count(now time.Time) int {
	minBucket := w.bucketOf(now) - bucketCount
	total := 0
	for b, c := range w.buckets {
		if b >= minBucket {
			total += c
		}
	}
	return total
}

// retryAfter returns how long until the count drops below limit.
func (w *slidingWindow) retryAfter(now time.Time, limit int) time.Duration {
	current := w.count(now)
	if current < limit {
		return 0
	}

	minBucket := w.bucketOf(now) - bucketCount
	live := make([]int64, 0, len(w.buckets))
	for b := range w.buckets {
		if b >= minBucket {
			live = append(live, b)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i] < live[j] })

	excess := current - limit + 1
	expired := 0
	for _, b := range live {
		expired += w.buckets[b]
		if expired >= excess {
			// Bucket b leaves the window once bucket b+bucketCount+1 starts.
			leaves := time.Unix(0, (b+bucketCount+1)*int64(w.bucketSize()))
			if d := leaves.Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}
	return w.size
}

// =============================================================================
// Limiter
// =============================================================================

type windowKey struct {
	client string
	window string
}

// Limiter tracks per-client windows. It is safe for concurrent use.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[windowKey]*slidingWindow
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[windowKey]*slidingWindow),
	}
}

// Allow checks every window for client and records the request when all
// of them have room.
func (l *Limiter) Allow(client string) Result {
	now := l.now()
	checks := []struct {
		window string
		size   time.Duration
		limit  int
	}{
		{"minute", time.Minute, l.cfg.PerMinute},
		{"hour", time.Hour, l.cfg.PerHour},
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, check := range checks {
		if check.limit <= 0 {
			continue
		}
		w := l.window(client, check.window, check.size)
		if current := w.count(now); current >= check.limit {
			return Result{
				Window:     check.window,
				Current:    current,
				Limit:      check.limit,
				RetryAfter: w.retryAfter(now, check.limit),
			}
		}
	}

	res := Result{Allowed: true}
	for _, check := range checks {
		if check.limit <= 0 {
			continue
		}
		w := l.window(client, check.window, check.size)
		w.record(now)
		remaining := check.limit - w.count(now)
		if res.Limit == 0 || remaining < res.Remaining {
			res.Current, res.Limit, res.Remaining = w.count(now), check.limit, remaining
		}
	}
	return res
}

func (l *Limiter) window(client, window string, size time.Duration) *slidingWindow {
	key := windowKey{client, window}
	w, ok := l.windows[key]
	if !ok {
		w = newSlidingWindow(size)
		l.windows[key] = w
	}
	return w
}

// CleanupExpired drops windows with no live requests and returns how many
// were removed. Call it periodically to bound memory.
func (l *Limiter) CleanupExpired() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	cleaned := 0
	for key, w := range l.windows {
		w.evict(now)
		if len(w.buckets) == 0 {
			delete(l.windows, key)
			cleaned++
		}
	}
	return cleaned
}

// Clients returns the number of tracked client windows.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
