package httpapi

import (
	"sync"

	"golang.org/x/time/rate"
)

// clientLimiter applies a token bucket per client so one flooding
// client cannot starve intake for everyone else. A nil limiter allows
// everything.
type clientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// newClientLimiter returns nil when limiting is disabled (limit <= 0).
func newClientLimiter(limit float64, burst int) *clientLimiter {
	if limit <= 0 {
		return nil
	}
	return &clientLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(limit),
		burst:    burst,
	}
}

func (l *clientLimiter) allow(key string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}
