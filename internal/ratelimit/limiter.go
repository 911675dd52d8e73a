// Package ratelimit tracks the Strava read budget.
//
// Strava enforces two fixed windows: one that resets every quarter hour and
// one that resets at midnight UTC. Usage is learned from response headers
// when Strava sends them and counted locally otherwise.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultLimit15Min = 100
	DefaultLimitDaily = 1000

	shortWindow = 15 * time.Minute
)

// Status is a point-in-time copy of the limiter state
type Status struct {
	Limit15Min    int
	Usage15Min    int
	LimitDaily    int
	UsageDaily    int
	Usage15MinPct float64
	UsageDailyPct float64
	LastUpdated   time.Time
}

type Limiter struct {
	mu  sync.Mutex
	now func() time.Time

	limit15Min int
	usage15Min int
	limitDaily int
	usageDaily int

	windowStart time.Time
	dayStart    time.Time
	lastUpdated time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter with the given read limits. Non-positive limits fall back to Strava's defaults.
func New(limit15Min, limitDaily int, opts ...Option) *Limiter {
	if limit15Min <= 0 {
		limit15Min = DefaultLimit15Min
	}
	if limitDaily <= 0 {
		limitDaily = DefaultLimitDaily
	}

	l := &Limiter{
		now:        time.Now,
		limit15Min: limit15Min,
		limitDaily: limitDaily,
	}
	for _, opt := range opts {
		opt(l)
	}

	now := l.now().UTC()
	l.windowStart = now.Truncate(shortWindow)
	l.dayStart = startOfDay(now)
	return l
}

// CanMakeReadRequest reports whether both windows still have budget
func (l *Limiter) CanMakeReadRequest() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.roll(l.now().UTC())
	return l.usage15Min < l.limit15Min && l.usageDaily < l.limitDaily
}

// RetryAfter returns how long until an exhausted window resets, or zero when a read is allowed now.
// The daily window wins when both are exhausted.
func (l *Limiter) RetryAfter() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	l.roll(now)

	switch {
	case l.usageDaily >= l.limitDaily:
		return l.dayStart.Add(24 * time.Hour).Sub(now)
	case l.usage15Min >= l.limit15Min:
		return l.windowStart.Add(shortWindow).Sub(now)
	default:
		return 0
	}
}

// RecordRead counts one read request against both windows
func (l *Limiter) RecordRead() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.roll(l.now().UTC())
	l.usage15Min++
	l.usageDaily++
	l.lastUpdated = l.now()
}

// UpdateFromHeaders overwrites limits and usage from a Strava response.
// Read-specific headers are preferred over the overall ones. Reports false when neither pair parses.
func (l *Limiter) UpdateFromHeaders(h http.Header) bool {
	limit15, limitDay, ok := parsePair(h.Get("X-ReadRateLimit-Limit"))
	usage15, usageDay, okUsage := parsePair(h.Get("X-ReadRateLimit-Usage"))
	if !ok || !okUsage {
		limit15, limitDay, ok = parsePair(h.Get("X-RateLimit-Limit"))
		usage15, usageDay, okUsage = parsePair(h.Get("X-RateLimit-Usage"))
		if !ok || !okUsage {
			return false
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.roll(l.now().UTC())
	if limit15 > 0 {
		l.limit15Min = limit15
	}
	if limitDay > 0 {
		l.limitDaily = limitDay
	}
	l.usage15Min = usage15
	l.usageDaily = usageDay
	l.lastUpdated = l.now()
	return true
}

// Status returns the current usage figures
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.roll(l.now().UTC())

	s := Status{
		Limit15Min:  l.limit15Min,
		Usage15Min:  l.usage15Min,
		LimitDaily:  l.limitDaily,
		UsageDaily:  l.usageDaily,
		LastUpdated: l.lastUpdated,
	}
	if l.limit15Min > 0 {
		s.Usage15MinPct = float64(l.usage15Min) / float64(l.limit15Min) * 100
	}
	if l.limitDaily > 0 {
		s.UsageDailyPct = float64(l.usageDaily) / float64(l.limitDaily) * 100
	}
	return s
}

// roll resets usage for any window that has ended. Caller holds mu.
func (l *Limiter) roll(now time.Time) {
	if ws := now.Truncate(shortWindow); ws.After(l.windowStart) {
		l.windowStart = ws
		l.usage15Min = 0
	}
	if ds := startOfDay(now); ds.After(l.dayStart) {
		l.dayStart = ds
		l.usageDaily = 0
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parsePair reads Strava's "short,daily" header format
func parsePair(v string) (int, int, bool) {
	parts := strings.Split(v, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	return a, b, true
}
