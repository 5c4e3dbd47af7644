package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/jovyweb/authcore/internal/auth/providers"
)

// EnvPrefix prefixes environment overrides, e.g. JOVYAUTH_AUTH_JWT_SECRET.
const EnvPrefix = "JOVYAUTH"

// Config represents the runtime configuration for the auth service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	LogLevel       string        `mapstructure:"log_level"`
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
	RequestLimit   RequestLimit  `mapstructure:"request_limit"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
}

// RequestLimit throttles every request per client IP.
type RequestLimit struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// LoggingConfig adds rotated file output to the console logger.
type LoggingConfig struct {
	File FileLogConfig `mapstructure:"file"`
}

// FileLogConfig mirrors lumberjack settings.
type FileLogConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"`
	Database string            `mapstructure:"database"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	Options  map[string]string `mapstructure:"options"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT       JWTSettings       `mapstructure:"jwt"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Session   SessionSettings   `mapstructure:"session"`
	Device    DeviceSettings    `mapstructure:"device"`
	Cookies   CookieSettings    `mapstructure:"cookies"`
}

// JWTSettings configures token issuance.
type JWTSettings struct {
	Secret           string        `mapstructure:"secret"`
	Issuer           string        `mapstructure:"issuer"`
	Audience         string        `mapstructure:"audience"`
	AccessTokenTTL   time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL  time.Duration `mapstructure:"refresh_token_ttl"`
	RefreshThreshold time.Duration `mapstructure:"refresh_threshold"`
}

// RateLimitSettings configures login throttling per client IP.
type RateLimitSettings struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	Window        time.Duration `mapstructure:"window"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
}

// SessionSettings configures the in-memory session registry.
type SessionSettings struct {
	BlacklistRetention time.Duration `mapstructure:"blacklist_retention"`
	IdleCleanup        string        `mapstructure:"idle_cleanup"`
}

// DeviceSettings configures device binding on authenticated requests.
type DeviceSettings struct {
	Validation     bool   `mapstructure:"validation"`
	MismatchAction string `mapstructure:"mismatch_action"`
}

// CookieSettings configures the token cookies.
type CookieSettings struct {
	Secure bool   `mapstructure:"secure"`
	Domain string `mapstructure:"domain"`
}

// IdentityConfig selects and configures the identity authority.
type IdentityConfig struct {
	Provider           string `mapstructure:"provider"`
	providers.Settings `mapstructure:",squash"`
}

// AuditConfig configures where auth audit records go.
type AuditConfig struct {
	Sink          string        `mapstructure:"sink"`
	File          FileLogConfig `mapstructure:"file"`
	RetentionDays int           `mapstructure:"retention_days"`
	Schedule      string        `mapstructure:"schedule"`
	WindowID      int           `mapstructure:"window_id"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.request_limit.enabled", true)
	v.SetDefault("server.request_limit.rps", 20)
	v.SetDefault("server.request_limit.burst", 40)
	v.SetDefault("server.shutdown_grace", "10s")

	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 10)
	v.SetDefault("logging.file.max_age_days", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/jovyauth.sqlite")
	v.SetDefault("database.dsn", "")

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "JovyWeb")
	v.SetDefault("auth.jwt.audience", "JovyWeb-API")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.jwt.refresh_token_ttl", "168h") // 7 days
	v.SetDefault("auth.jwt.refresh_threshold", "2m")

	v.SetDefault("auth.rate_limit.max_attempts", 5)
	v.SetDefault("auth.rate_limit.window", "60s")
	v.SetDefault("auth.rate_limit.block_duration", "15m")

	v.SetDefault("auth.session.blacklist_retention", "24h")
	v.SetDefault("auth.session.idle_cleanup", "@hourly")

	v.SetDefault("auth.device.validation", false)
	v.SetDefault("auth.device.mismatch_action", "WARN")

	v.SetDefault("auth.cookies.secure", true)
	v.SetDefault("auth.cookies.domain", "")

	v.SetDefault("identity.provider", providers.ProviderStoredProc)
	v.SetDefault("identity.storedproc.login_query", "")
	v.SetDefault("identity.ldap.port", 389)
	v.SetDefault("identity.ldap.user_filter", "(uid={username})")
	v.SetDefault("identity.ldap.timeout", "10s")

	v.SetDefault("audit.sink", "database")
	v.SetDefault("audit.file.path", "logs/audit.log")
	v.SetDefault("audit.file.max_size_mb", 100)
	v.SetDefault("audit.file.max_backups", 30)
	v.SetDefault("audit.file.max_age_days", 90)
	v.SetDefault("audit.file.compress", true)
	v.SetDefault("audit.retention_days", 90)
	v.SetDefault("audit.schedule", "@daily")
	v.SetDefault("audit.window_id", 1)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
