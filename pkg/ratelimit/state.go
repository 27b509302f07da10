// Package ratelimit shares Graph API throttling back-off between workers.
// When one request is answered with HTTP 429, the back-off deadline it
// carries is recorded here so that sibling workers (and, with a Redis store,
// sibling processes against the same tenant) can hold off too.
package ratelimit

import (
	"time"
)

// Redis keys for throttle state storage.
const (
	RedisKeyBackoffUntil  = "graph:throttle:backoff_until"
	RedisKeyLastThrottle  = "graph:throttle:last_429"
	RedisKeyThrottleCount = "graph:throttle:count"
)

// ThrottleState is the current shared back-off state.
type ThrottleState struct {
	// BackoffUntil is the latest deadline announced by any 429 response.
	BackoffUntil time.Time `json:"backoff_until"`

	// LastThrottle is when the most recent 429 was recorded.
	LastThrottle time.Time `json:"last_throttle"`

	// Throttles counts 429 responses recorded since the store was created.
	Throttles int64 `json:"throttles"`
}

// Active reports whether requests should still be held back at now.
func (s *ThrottleState) Active(now time.Time) bool {
	return now.Before(s.BackoffUntil)
}

// Remaining returns how long requests should still be held back.
// Returns 0 once the deadline has passed.
func (s *ThrottleState) Remaining(now time.Time) time.Duration {
	d := s.BackoffUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
