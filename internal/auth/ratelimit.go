package auth

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jovyweb/authcore/pkg/logger"
	"github.com/jovyweb/authcore/pkg/metrics"
)

const (
	DefaultMaxAttempts   = 5
	DefaultAttemptWindow = time.Minute
	DefaultBlockDuration = 15 * time.Minute
)

// RateLimitConfig tunes the failed-login limiter.
type RateLimitConfig struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
	Clock         func() time.Time
}

type attemptWindow struct {
	attempts     []time.Time
	blockedUntil time.Time
}

// RateLimiter tracks failed logins per client address in a sliding window and
// blocks an address once the limit is reached. Blocks lift themselves on the
// first check after they expire.
type RateLimiter struct {
	mu          sync.Mutex
	windows     map[string]*attemptWindow
	maxAttempts int
	window      time.Duration
	block       time.Duration
	now         func() time.Time
	log         *zap.Logger
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultAttemptWindow
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = DefaultBlockDuration
	}
	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &RateLimiter{
		windows:     make(map[string]*attemptWindow),
		maxAttempts: cfg.MaxAttempts,
		window:      cfg.Window,
		block:       cfg.BlockDuration,
		now:         now,
		log:         logger.WithModule("auth.ratelimit"),
	}
}

// IsBlocked reports whether ip is currently blocked, clearing an expired block.
func (l *RateLimiter) IsBlocked(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blockedLocked(ip, l.now())
}

func (l *RateLimiter) blockedLocked(ip string, now time.Time) bool {
	w, ok := l.windows[ip]
	if !ok || w.blockedUntil.IsZero() {
		return false
	}
	if now.Before(w.blockedUntil) {
		return true
	}
	delete(l.windows, ip)
	l.log.Info("client unblocked", zap.String("ip", ip))
	return false
}

// RecordFailedAttempt appends a failure for ip and returns true when this
// attempt caused a new block.
func (l *RateLimiter) RecordFailedAttempt(ip string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	alreadyBlocked := l.blockedLocked(ip, now)

	w, ok := l.windows[ip]
	if !ok {
		w = &attemptWindow{}
		l.windows[ip] = w
	}
	w.attempts = append(l.evict(w.attempts, now), now)

	if alreadyBlocked || len(w.attempts) < l.maxAttempts {
		l.log.Debug("failed attempt recorded",
			zap.String("ip", ip),
			zap.Int("attempts", len(w.attempts)),
			zap.Int("max", l.maxAttempts),
		)
		return false
	}

	w.blockedUntil = now.Add(l.block)
	metrics.RateLimitBlocks.Inc()
	l.log.Warn("client blocked after repeated failures",
		zap.String("ip", ip),
		zap.Time("blocked_until", w.blockedUntil),
	)
	return true
}

// ClearAttempts forgets ip after a successful login.
func (l *RateLimiter) ClearAttempts(ip string) {
	l.mu.Lock()
	delete(l.windows, ip)
	l.mu.Unlock()
}

// RemainingAttempts is informational: failures left before a block.
func (l *RateLimiter) RemainingAttempts(ip string) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.blockedLocked(ip, now) {
		return 0
	}
	w, ok := l.windows[ip]
	if !ok {
		return l.maxAttempts
	}
	w.attempts = l.evict(w.attempts, now)
	return max(l.maxAttempts-len(w.attempts), 0)
}

// UnblockTime returns when a block on ip lifts.
func (l *RateLimiter) UnblockTime(ip string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[ip]
	if !ok || w.blockedUntil.IsZero() {
		return time.Time{}, false
	}
	return w.blockedUntil, true
}

// Prune drops windows whose attempts have aged out and whose block lapsed.
// It returns the number of addresses forgotten.
func (l *RateLimiter) Prune() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for ip, w := range l.windows {
		if !w.blockedUntil.IsZero() && now.Before(w.blockedUntil) {
			continue
		}
		if len(l.evict(w.attempts, now)) == 0 || !w.blockedUntil.IsZero() {
			delete(l.windows, ip)
			removed++
		}
	}
	return removed
}

func (l *RateLimiter) evict(attempts []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(attempts) && !attempts[i].After(cutoff) {
		i++
	}
	return attempts[i:]
}
