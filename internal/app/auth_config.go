package app

import (
	"strings"

	"github.com/jovyweb/authcore/internal/auth"
	"github.com/jovyweb/authcore/internal/database"
	"github.com/jovyweb/authcore/pkg/logger"
)

// TokenConfig converts AuthConfig into the parameters expected by the token authority.
func (c AuthConfig) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret:          c.JWT.Secret,
		Issuer:          c.JWT.Issuer,
		Audience:        c.JWT.Audience,
		AccessTokenTTL:  c.JWT.AccessTokenTTL,
		RefreshTokenTTL: c.JWT.RefreshTokenTTL,
	}
}

// RateLimitConfig converts AuthConfig into login limiter parameters.
func (c AuthConfig) RateLimitConfig() auth.RateLimitConfig {
	return auth.RateLimitConfig{
		MaxAttempts:   c.RateLimit.MaxAttempts,
		Window:        c.RateLimit.Window,
		BlockDuration: c.RateLimit.BlockDuration,
	}
}

// SessionStoreConfig converts AuthConfig into session registry parameters.
func (c AuthConfig) SessionStoreConfig() auth.SessionStoreConfig {
	return auth.SessionStoreConfig{BlacklistRetention: c.Session.BlacklistRetention}
}

// ServiceConfig converts AuthConfig into auth service parameters.
func (c AuthConfig) ServiceConfig(auditWindowID int) (auth.ServiceConfig, error) {
	policy, err := auth.ParseDevicePolicy(c.Device.MismatchAction)
	if err != nil {
		return auth.ServiceConfig{}, err
	}
	return auth.ServiceConfig{
		RefreshThreshold: c.JWT.RefreshThreshold,
		DeviceValidation: c.Device.Validation,
		MismatchAction:   policy,
		AuditWindowID:    auditWindowID,
	}, nil
}

// ConnectionConfig converts DatabaseConfig into database.Open parameters.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	cfg := database.Config{Driver: driver, Path: c.Path, DSN: c.DSN}

	var host DBAuthConfig
	switch driver {
	case "postgres", "postgresql":
		host = c.Postgres
	case "mysql", "mariadb":
		host = c.MySQL
	default:
		return cfg
	}

	cfg.Host = host.Host
	cfg.Port = host.Port
	cfg.Name = host.Database
	cfg.User = host.Username
	cfg.Password = host.Password
	cfg.Options = host.Options
	return cfg
}

// FileOptions converts FileLogConfig into lumberjack options.
func (c FileLogConfig) FileOptions() logger.FileOptions {
	return logger.FileOptions{
		Path:       strings.TrimSpace(c.Path),
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}
