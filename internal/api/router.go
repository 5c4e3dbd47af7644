package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jovyweb/authcore/internal/app"
	iauth "github.com/jovyweb/authcore/internal/auth"
	"github.com/jovyweb/authcore/internal/middleware"
	"github.com/jovyweb/authcore/internal/services"
)

// Dependencies are the collaborators the HTTP layer is built from. DB is nil
// when nothing is persisted in a database and Audit is nil when audit records
// go to a file sink. Sessions only feeds the health report.
type Dependencies struct {
	Config   *app.Config
	Auth     *iauth.Service
	Sessions *iauth.SessionStore
	DB       *gorm.DB
	Audit    *services.AuditService
	Limiter  *middleware.RequestLimiter
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, errors.New("config must be provided")
	}
	if deps.Auth == nil {
		return nil, errors.New("auth service must be provided")
	}

	cfg := deps.Config
	limiter := deps.Limiter
	if limiter == nil && cfg.Server.RequestLimit.Enabled {
		limiter = middleware.NewRequestLimiter(cfg.Server.RequestLimit.RPS, cfg.Server.RequestLimit.Burst)
	}

	r := gin.New()
	if len(cfg.Server.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
			return nil, err
		}
	}

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	if limiter != nil {
		r.Use(middleware.RateLimit(limiter))
	}

	registerHealthRoutes(r, deps)

	cookies := middleware.NewCookies(middleware.CookieConfig{
		Secure: cfg.Auth.Cookies.Secure,
		Domain: strings.TrimSpace(cfg.Auth.Cookies.Domain),
	})
	requireAuth := middleware.Auth(deps.Auth, cookies)

	if err := registerAuthRoutes(r, requireAuth, cookies, deps); err != nil {
		return nil, err
	}
	if err := registerAuditRoutes(r, requireAuth, deps); err != nil {
		return nil, err
	}
	registerMonitoringRoutes(r, cfg)

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
