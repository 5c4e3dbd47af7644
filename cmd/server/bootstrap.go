package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jovyweb/authcore/internal/api"
	"github.com/jovyweb/authcore/internal/app"
	"github.com/jovyweb/authcore/internal/app/maintenance"
	iauth "github.com/jovyweb/authcore/internal/auth"
	"github.com/jovyweb/authcore/internal/auth/providers"
	"github.com/jovyweb/authcore/internal/database"
	"github.com/jovyweb/authcore/internal/middleware"
	"github.com/jovyweb/authcore/internal/services"
)

const auditSinkFile = "file"

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB             *gorm.DB
	Store          *iauth.SessionStore
	Limiter        *iauth.RateLimiter
	RequestLimiter *middleware.RequestLimiter
	AuthSvc        *iauth.Service
	AuditSvc       *services.AuditService
	FileSink       *services.FileAuditSink
	Cleaner        *maintenance.Cleaner
	Router         *gin.Engine
}

// bootstrapRuntime initialises the database, identity authority, auth
// services, maintenance jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	// a missing signing secret stops startup before anything else is opened
	tokens, err := iauth.NewTokenAuthority(cfg.Auth.TokenConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise token authority: %w", err)
	}

	if needsDatabase(cfg) {
		stack.DB, err = initialiseDatabase(cfg)
		if err != nil {
			return nil, err
		}
	}

	identity, err := providers.DefaultRegistry().Build(cfg.Identity.Provider, stack.DB, cfg.Identity.Settings)
	if err != nil {
		return nil, fmt.Errorf("initialise identity provider: %w", err)
	}
	log.Info("identity provider ready", zap.String("provider", cfg.Identity.Provider))

	var sink iauth.AuditSink
	if isFileSink(cfg) {
		stack.FileSink, err = services.NewFileAuditSink(cfg.Audit.File.FileOptions())
		if err != nil {
			return nil, fmt.Errorf("initialise audit file: %w", err)
		}
		sink = stack.FileSink
	} else {
		stack.AuditSvc, err = services.NewAuditService(stack.DB)
		if err != nil {
			return nil, fmt.Errorf("initialise audit service: %w", err)
		}
		sink = stack.AuditSvc
	}

	svcCfg, err := cfg.Auth.ServiceConfig(cfg.Audit.WindowID)
	if err != nil {
		return nil, err
	}

	stack.Store = iauth.NewSessionStore(cfg.Auth.SessionStoreConfig())
	stack.Limiter = iauth.NewRateLimiter(cfg.Auth.RateLimitConfig())
	stack.AuthSvc, err = iauth.NewService(iauth.ServiceDeps{
		Tokens:   tokens,
		Store:    stack.Store,
		Limiter:  stack.Limiter,
		Identity: identity,
		Audit:    sink,
	}, svcCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise auth service: %w", err)
	}

	if cfg.Server.RequestLimit.Enabled {
		stack.RequestLimiter = middleware.NewRequestLimiter(cfg.Server.RequestLimit.RPS, cfg.Server.RequestLimit.Burst)
	}

	stack.Cleaner = newCleaner(cfg, stack, tokens.RefreshTokenTTL())
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:   cfg,
		Auth:     stack.AuthSvc,
		Sessions: stack.Store,
		DB:       stack.DB,
		Audit:    stack.AuditSvc,
		Limiter:  stack.RequestLimiter,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// newCleaner schedules pruning of sessions idle for longer than a refresh
// token lives, of limiter state and of expired audit rows.
func newCleaner(cfg *app.Config, stack *runtimeStack, refreshTTL time.Duration) *maintenance.Cleaner {
	opts := []maintenance.Option{
		maintenance.WithSessionSchedule(strings.TrimSpace(cfg.Auth.Session.IdleCleanup)),
		maintenance.WithAuditSchedule(strings.TrimSpace(cfg.Audit.Schedule)),
		maintenance.WithAuditRetentionDays(cfg.Audit.RetentionDays),
		maintenance.WithSessionIdle(refreshTTL),
	}
	if stack.RequestLimiter != nil {
		opts = append(opts, maintenance.WithAttemptPruners(stack.RequestLimiter))
	}

	var audit maintenance.AuditRetainer
	if stack.AuditSvc != nil {
		audit = stack.AuditSvc
	}
	return maintenance.NewCleaner(stack.Store, stack.Limiter, audit, opts...)
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			<-stopCtx.Done()
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.FileSink != nil {
		if err := s.FileSink.Close(); err != nil {
			log.Warn("failed to close audit file", zap.Error(err))
		}
	}

	closeDatabase(s.DB, log)
}

func needsDatabase(cfg *app.Config) bool {
	return !isFileSink(cfg) || strings.EqualFold(strings.TrimSpace(cfg.Identity.Provider), providers.ProviderStoredProc)
}

func isFileSink(cfg *app.Config) bool {
	return strings.EqualFold(strings.TrimSpace(cfg.Audit.Sink), auditSinkFile)
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
