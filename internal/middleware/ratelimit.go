package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jovyweb/authcore/pkg/errors"
	"github.com/jovyweb/authcore/pkg/response"
)

const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RequestLimiter hands out one token bucket per client IP.
type RequestLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	now      func() time.Time
}

func NewRequestLimiter(rps float64, burst int) *RequestLimiter {
	if burst <= 0 {
		burst = max(int(rps), 1)
	}
	return &RequestLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow consumes a token for key.
func (l *RequestLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Sweep forgets clients idle for longer than limiterIdleTTL.
func (l *RequestLimiter) Sweep() int {
	cutoff := l.now().Add(-limiterIdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
			removed++
		}
	}
	return removed
}

// Prune satisfies the maintenance pruner contract.
func (l *RequestLimiter) Prune() int { return l.Sweep() }

// RateLimit throttles requests per client IP with a token bucket. It is
// independent of the failed-login limiter.
func RateLimit(limiter *RequestLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limiter.rps <= 0 {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.burst))
		if !limiter.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			response.Error(c, errors.New("TOO_MANY_REQUESTS", "Too many requests", http.StatusTooManyRequests))
			c.Abort()
			return
		}

		c.Next()
	}
}
