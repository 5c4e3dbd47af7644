package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jovyweb/authcore/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultSessionSpec        = "@hourly"
	defaultAuditSpec          = "@daily"
	defaultLimiterSpec        = "@every 5m"
	defaultSessionIdle        = 7 * 24 * time.Hour
)

// SessionPruner drops sessions that have not been refreshed for maxIdle.
type SessionPruner interface {
	PruneIdle(maxIdle time.Duration) int
}

// AttemptPruner drops expired rate limiter state.
type AttemptPruner interface {
	Prune() int
}

// AuditRetainer deletes audit records older than the retention window.
type AuditRetainer interface {
	CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// Cleaner coordinates background maintenance: idle session pruning, login
// limiter pruning and audit retention.
type Cleaner struct {
	sessions  SessionPruner
	limiters  []AttemptPruner
	audit     AuditRetainer
	cron      *cron.Cron
	log       *zap.Logger
	enabled   bool
	retention int
	idle      time.Duration

	sessionSchedule string
	auditSchedule   string
	limiterSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithSessionIdle sets how long a session may go without refresh before it is pruned.
func WithSessionIdle(maxIdle time.Duration) Option {
	return func(cleaner *Cleaner) {
		if maxIdle > 0 {
			cleaner.idle = maxIdle
		}
	}
}

// WithAttemptPruners adds more limiters to prune on the limiter schedule.
func WithAttemptPruners(pruners ...AttemptPruner) Option {
	return func(cleaner *Cleaner) {
		for _, p := range pruners {
			if p != nil {
				cleaner.limiters = append(cleaner.limiters, p)
			}
		}
	}
}

// WithSessionSchedule overrides the cron specification for session cleanup.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// WithLimiterSchedule overrides the cron specification for limiter pruning.
func WithLimiterSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.limiterSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding cleanup job being skipped.
func NewCleaner(sessions SessionPruner, limiter AttemptPruner, audit AuditRetainer, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessions:        sessions,
		audit:           audit,
		retention:       defaultAuditRetentionDays,
		idle:            defaultSessionIdle,
		sessionSchedule: defaultSessionSpec,
		auditSchedule:   defaultAuditSpec,
		limiterSchedule: defaultLimiterSpec,
		log:             logger.WithModule("maintenance"),
	}

	if limiter != nil {
		cleaner.limiters = append(cleaner.limiters, limiter)
	}
	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.sessions != nil || len(cleaner.limiters) > 0 || cleaner.audit != nil

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, c.pruneSessions); err != nil {
			return err
		}
	}

	if len(c.limiters) > 0 {
		if _, err := c.cron.AddFunc(c.limiterSchedule, c.pruneLimiter); err != nil {
			return err
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			if _, err := c.cleanupAudit(context.Background()); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	c.pruneSessions()
	c.pruneLimiter()

	if _, err := c.cleanupAudit(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}

	return errs
}

func (c *Cleaner) pruneSessions() {
	if c.sessions == nil {
		return
	}
	if removed := c.sessions.PruneIdle(c.idle); removed > 0 {
		c.log.Info("pruned idle sessions", zap.Int("count", removed))
	}
}

func (c *Cleaner) pruneLimiter() {
	removed := 0
	for _, l := range c.limiters {
		removed += l.Prune()
	}
	if removed > 0 {
		c.log.Debug("pruned rate limiter entries", zap.Int("count", removed))
	}
}

func (c *Cleaner) cleanupAudit(ctx context.Context) (int64, error) {
	if c.audit == nil || c.retention <= 0 {
		return 0, nil
	}
	removed, err := c.audit.CleanupOlderThan(ctx, c.retention)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.log.Info("removed expired audit records", zap.Int64("count", removed), zap.Int("retention_days", c.retention))
	}
	return removed, nil
}
