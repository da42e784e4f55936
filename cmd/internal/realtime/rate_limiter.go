package realtime

import "time"

// RateLimiter is a per-connection sliding-window limiter.
//
// It is owned by a single connection loop and is not safe for concurrent use.
type RateLimiter struct {
	ring   []time.Time
	next   int
	filled int
	window time.Duration
}

// NewRateLimiter constructs a RateLimiter with safe defaults when inputs are invalid.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{ring: make([]time.Time, limit), window: window}
}

// Allow reports whether an event at time "now" should be permitted.
// The ring holds the last limit accepted timestamps; the oldest one decides.
func (r *RateLimiter) Allow(now time.Time) bool {
	if r.filled == len(r.ring) {
		oldest := r.ring[r.next]
		if now.Sub(oldest) < r.window {
			return false
		}
	} else {
		r.filled++
	}
	r.ring[r.next] = now
	r.next = (r.next + 1) % len(r.ring)
	return true
}
