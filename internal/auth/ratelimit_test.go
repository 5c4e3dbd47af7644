package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestLimiter(clock *time.Time) *RateLimiter {
	return NewRateLimiter(RateLimitConfig{
		MaxAttempts:   5,
		Window:        time.Minute,
		BlockDuration: 15 * time.Minute,
		Clock:         func() time.Time { return *clock },
	})
}

func TestFifthFailureBlocks(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(&now)

	for i := 0; i < 4; i++ {
		require.False(t, limiter.RecordFailedAttempt("10.0.0.9"))
		now = now.Add(time.Second)
	}
	require.Equal(t, 1, limiter.RemainingAttempts("10.0.0.9"))
	require.False(t, limiter.IsBlocked("10.0.0.9"))

	require.True(t, limiter.RecordFailedAttempt("10.0.0.9"))
	require.True(t, limiter.IsBlocked("10.0.0.9"))
	require.Equal(t, 0, limiter.RemainingAttempts("10.0.0.9"))
	require.False(t, limiter.IsBlocked("10.0.0.10"))

	until, ok := limiter.UnblockTime("10.0.0.9")
	require.True(t, ok)
	require.Equal(t, now.Add(15*time.Minute), until)

	require.False(t, limiter.RecordFailedAttempt("10.0.0.9"), "an existing block is not a new block")
}

func TestBlockLiftsAfterDuration(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(&now)

	for i := 0; i < 5; i++ {
		limiter.RecordFailedAttempt("10.0.0.9")
	}
	now = now.Add(14 * time.Minute)
	require.True(t, limiter.IsBlocked("10.0.0.9"))

	now = now.Add(time.Minute + time.Second)
	require.False(t, limiter.IsBlocked("10.0.0.9"))
	require.Equal(t, 5, limiter.RemainingAttempts("10.0.0.9"))
}

func TestSlidingWindowForgetsOldFailures(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(&now)

	for i := 0; i < 4; i++ {
		limiter.RecordFailedAttempt("10.0.0.1")
	}
	now = now.Add(61 * time.Second)

	require.False(t, limiter.RecordFailedAttempt("10.0.0.1"))
	require.Equal(t, 4, limiter.RemainingAttempts("10.0.0.1"))
}

func TestClearAttemptsResetsTracking(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(&now)

	for i := 0; i < 3; i++ {
		limiter.RecordFailedAttempt("10.0.0.2")
	}
	limiter.ClearAttempts("10.0.0.2")
	require.Equal(t, 5, limiter.RemainingAttempts("10.0.0.2"))
}

func TestPruneForgetsIdleAddresses(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(&now)

	limiter.RecordFailedAttempt("10.0.0.3")
	for i := 0; i < 5; i++ {
		limiter.RecordFailedAttempt("10.0.0.4")
	}

	now = now.Add(2 * time.Minute)
	require.Equal(t, 1, limiter.Prune(), "only the unblocked address is idle")

	now = now.Add(15 * time.Minute)
	require.Equal(t, 1, limiter.Prune())
	require.False(t, limiter.IsBlocked("10.0.0.4"))
}

func TestRecordFailedAttemptConcurrent(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{MaxAttempts: 50, Window: time.Hour})

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		blocks int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.RecordFailedAttempt("10.1.1.1") {
				mu.Lock()
				blocks++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, blocks)
	require.True(t, limiter.IsBlocked("10.1.1.1"))
}
