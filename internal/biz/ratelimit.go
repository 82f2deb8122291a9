package biz

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/peerrank/peerrank/internal/conf"
)

// MutationLimiter throttles rating mutations per rater. The window refills
// continuously at mutations-per-minute with the configured burst; a zero
// rate disables limiting entirely.
type MutationLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewMutationLimiter creates a limiter from config. Nil config or a
// non-positive per-minute rate yields a disabled limiter.
func NewMutationLimiter(c *conf.RateLimit) *MutationLimiter {
	l := &MutationLimiter{limiters: make(map[int64]*rate.Limiter)}
	if c == nil || c.MutationsPerMinute <= 0 {
		return l
	}
	l.rate = rate.Limit(float64(c.MutationsPerMinute) / 60.0)
	l.burst = c.Burst
	if l.burst < 1 {
		l.burst = c.MutationsPerMinute
	}
	return l
}

// Allow reports whether the rater may perform another mutation now.
func (l *MutationLimiter) Allow(raterID int64) bool {
	if l.rate == 0 {
		return true
	}
	l.mu.Lock()
	rl, ok := l.limiters[raterID]
	if !ok {
		rl = rate.NewLimiter(l.rate, l.burst)
		l.limiters[raterID] = rl
	}
	l.mu.Unlock()
	return rl.AllowN(time.Now(), 1)
}
