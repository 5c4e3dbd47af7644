package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jovyweb/authcore/internal/auth"
	"github.com/jovyweb/authcore/internal/auth/providers"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig("testdata")
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, []string{"10.0.0.0/8"}, cfg.Server.TrustedProxies)

	require.Equal(t, "mysql", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.MySQL.Host)
	require.Equal(t, 3307, cfg.Database.MySQL.Port)

	require.Equal(t, 10*time.Minute, cfg.Auth.JWT.AccessTokenTTL)
	require.Equal(t, 72*time.Hour, cfg.Auth.JWT.RefreshTokenTTL)
	require.Equal(t, 90*time.Second, cfg.Auth.JWT.RefreshThreshold)
	require.Equal(t, "JovyWeb", cfg.Auth.JWT.Issuer, "default issuer survives partial jwt block")
	require.Equal(t, 3, cfg.Auth.RateLimit.MaxAttempts)
	require.Equal(t, 30*time.Second, cfg.Auth.RateLimit.Window)
	require.True(t, cfg.Auth.Device.Validation)
	require.False(t, cfg.Auth.Cookies.Secure)

	require.Equal(t, providers.ProviderStatic, cfg.Identity.Provider)
	require.Len(t, cfg.Identity.Static.Users, 1)
	user := cfg.Identity.Static.Users[0]
	require.Equal(t, "ana", user.Username)
	require.Equal(t, int64(101), user.EmployeeID)
	require.Equal(t, 4, user.DepartmentCode)
	require.Equal(t, "17", user.SalesPersonCode)
	require.True(t, user.Granted)
	require.Equal(t, "ldap.example.com", cfg.Identity.LDAP.Host)
	require.Equal(t, 389, cfg.Identity.LDAP.Port)
	require.Equal(t, "employeeID", cfg.Identity.LDAP.Attributes["employee_id"])

	require.Equal(t, "file", cfg.Audit.Sink)
	require.Equal(t, "/var/log/jovyauth/audit.log", cfg.Audit.File.Path)
	require.Equal(t, 30, cfg.Audit.RetentionDays)
	require.Equal(t, 1, cfg.Audit.WindowID)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 15*time.Minute, cfg.Auth.JWT.AccessTokenTTL)
	require.Equal(t, 7*24*time.Hour, cfg.Auth.JWT.RefreshTokenTTL)
	require.Equal(t, 2*time.Minute, cfg.Auth.JWT.RefreshThreshold)
	require.Equal(t, "JovyWeb-API", cfg.Auth.JWT.Audience)
	require.Equal(t, 5, cfg.Auth.RateLimit.MaxAttempts)
	require.Equal(t, time.Minute, cfg.Auth.RateLimit.Window)
	require.Equal(t, 15*time.Minute, cfg.Auth.RateLimit.BlockDuration)
	require.Equal(t, 24*time.Hour, cfg.Auth.Session.BlacklistRetention)
	require.Equal(t, "WARN", cfg.Auth.Device.MismatchAction)
	require.True(t, cfg.Auth.Cookies.Secure)
	require.Equal(t, providers.ProviderStoredProc, cfg.Identity.Provider)
	require.Equal(t, "database", cfg.Audit.Sink)
	require.Equal(t, 90, cfg.Audit.RetentionDays)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("JOVYAUTH_AUTH_JWT_SECRET", "from-env")
	t.Setenv("JOVYAUTH_SERVER_PORT", "7070")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Auth.JWT.Secret)
	require.Equal(t, 7070, cfg.Server.Port)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{
		JWT: JWTSettings{
			Secret:           "secret",
			Issuer:           "issuer",
			Audience:         "aud",
			AccessTokenTTL:   10 * time.Minute,
			RefreshTokenTTL:  time.Hour,
			RefreshThreshold: time.Minute,
		},
		RateLimit: RateLimitSettings{MaxAttempts: 3, Window: time.Minute, BlockDuration: time.Hour},
		Session:   SessionSettings{BlacklistRetention: 2 * time.Hour},
		Device:    DeviceSettings{Validation: true, MismatchAction: "block"},
	}

	require.Equal(t, auth.TokenConfig{
		Secret:          "secret",
		Issuer:          "issuer",
		Audience:        "aud",
		AccessTokenTTL:  10 * time.Minute,
		RefreshTokenTTL: time.Hour,
	}, cfg.TokenConfig())

	require.Equal(t, auth.RateLimitConfig{MaxAttempts: 3, Window: time.Minute, BlockDuration: time.Hour}, cfg.RateLimitConfig())
	require.Equal(t, 2*time.Hour, cfg.SessionStoreConfig().BlacklistRetention)

	svcCfg, err := cfg.ServiceConfig(7)
	require.NoError(t, err)
	require.Equal(t, auth.DevicePolicyBlock, svcCfg.MismatchAction)
	require.True(t, svcCfg.DeviceValidation)
	require.Equal(t, time.Minute, svcCfg.RefreshThreshold)
	require.Equal(t, 7, svcCfg.AuditWindowID)

	cfg.Device.MismatchAction = "explode"
	_, err = cfg.ServiceConfig(1)
	require.Error(t, err)
}

func TestDatabaseConnectionConfig(t *testing.T) {
	cfg := DatabaseConfig{
		Driver: "Postgres",
		Postgres: DBAuthConfig{
			Host: "pg", Port: 5433, Database: "jovy", Username: "u", Password: "p",
			Options: map[string]string{"sslmode": "require"},
		},
	}
	conn := cfg.ConnectionConfig()
	require.Equal(t, "postgres", conn.Driver)
	require.Equal(t, "pg", conn.Host)
	require.Equal(t, 5433, conn.Port)
	require.Equal(t, "jovy", conn.Name)
	require.Equal(t, "require", conn.Options["sslmode"])

	conn = DatabaseConfig{Driver: "sqlite", Path: "x.db"}.ConnectionConfig()
	require.Equal(t, "x.db", conn.Path)
	require.Empty(t, conn.Host)
}
