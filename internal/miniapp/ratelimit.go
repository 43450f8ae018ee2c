package miniapp

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// userLimiter keeps one token bucket per Telegram user.
type userLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*limiterEntry
	rate     rate.Limit
	burst    int
	now      func() time.Time
	swept    time.Time
}

func newUserLimiter(perSecond float64, burst int) *userLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &userLimiter{
		limiters: make(map[int64]*limiterEntry),
		rate:     limit,
		burst:    burst,
		now:      time.Now,
	}
}

func (l *userLimiter) allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.swept) > limiterIdleTTL {
		for id, e := range l.limiters {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(l.limiters, id)
			}
		}
		l.swept = now
	}

	e, ok := l.limiters[userID]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[userID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (l *userLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
