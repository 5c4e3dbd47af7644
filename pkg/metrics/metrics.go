package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records login attempts by result
	// (success|invalid_credentials|permission_denied|rate_limited).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jovyauth_auth_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks live sessions held by the session store.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jovyauth_active_sessions",
			Help: "Number of live sessions",
		},
	)

	// RevokedTokens tracks blacklist entries still inside the retention window.
	RevokedTokens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jovyauth_revoked_tokens",
			Help: "Number of revoked tokens retained in the blacklist",
		},
	)

	RateLimitBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jovyauth_rate_limit_blocks_total",
			Help: "Number of client addresses blocked after repeated failed logins",
		},
	)

	// TokenRefreshes counts refresh attempts by result (success|failure).
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jovyauth_token_refreshes_total",
			Help: "Total number of token refresh attempts",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jovyauth_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
