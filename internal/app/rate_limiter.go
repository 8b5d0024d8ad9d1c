package app

import (
	"sync"
	"time"

	"github.com/dkeye/Playroom/internal/domain"
)

// RateLimiter is a sliding-window limiter keyed by identity.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[domain.Identity][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

// NewRateLimiter allows limit attempts per interval. A non-positive limit
// disables limiting.
func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[domain.Identity][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(id domain.Identity) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	fresh := rl.freshLocked(id, now)
	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}
	rl.history[id] = append(fresh, now)
	return true
}

func (rl *RateLimiter) freshLocked(id domain.Identity, now time.Time) []time.Time {
	windowStart := now.Add(-rl.interval)
	attempts := rl.history[id]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	return fresh
}

// Prune drops identities with no attempts inside the window.
func (rl *RateLimiter) Prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for id := range rl.history {
		if fresh := rl.freshLocked(id, now); len(fresh) == 0 {
			delete(rl.history, id)
		} else {
			rl.history[id] = fresh
		}
	}
}
