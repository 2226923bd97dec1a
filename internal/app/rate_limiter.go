package app

import (
	"sync"

	"github.com/dkeye/Signal/internal/domain"
	"golang.org/x/time/rate"
)

// RoomRateLimiter throttles room creation per session.
type RoomRateLimiter struct {
	mu       sync.Mutex
	limiters map[domain.SessionID]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewRoomRateLimiter(perSecond float64, burst int) *RoomRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RoomRateLimiter{
		limiters: make(map[domain.SessionID]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (rl *RoomRateLimiter) Allow(sid domain.SessionID) bool {
	rl.mu.Lock()
	l, ok := rl.limiters[sid]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[sid] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}

// Forget drops the state kept for sid.
func (rl *RoomRateLimiter) Forget(sid domain.SessionID) {
	rl.mu.Lock()
	delete(rl.limiters, sid)
	rl.mu.Unlock()
}
