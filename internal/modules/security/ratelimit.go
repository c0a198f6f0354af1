package security

import (
	"sync"
	"time"
)

// RateLimiter enforces a per-player sliding-window query budget on the
// forecast and ghost-trade endpoints.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	queries map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing limit calls per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		queries: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records one query for the player and reports whether it fits the
// budget. Rejected queries still count toward the window.
func (l *RateLimiter) Allow(playerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.queries[playerID][:0]
	for _, ts := range l.queries[playerID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	recent = append(recent, now)
	l.queries[playerID] = recent

	return len(recent) <= l.limit
}
