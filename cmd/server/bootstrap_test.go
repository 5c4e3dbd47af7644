package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jovyweb/authcore/internal/app"
	iauth "github.com/jovyweb/authcore/internal/auth"
	"github.com/jovyweb/authcore/internal/auth/providers"
	"github.com/jovyweb/authcore/pkg/crypto"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()

	hash, err := crypto.HashPassword("Passw0rd!")
	require.NoError(t, err)

	dir := t.TempDir()
	cfg := &app.Config{
		Database: app.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(dir, "auth.sqlite")},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret:           "bootstrap-suite-secret-that-is-long-enough!",
				AccessTokenTTL:   15 * time.Minute,
				RefreshTokenTTL:  24 * time.Hour,
				RefreshThreshold: 2 * time.Minute,
			},
			Session: app.SessionSettings{IdleCleanup: "@hourly"},
		},
		Identity: app.IdentityConfig{Provider: providers.ProviderStatic},
		Audit: app.AuditConfig{
			Sink:          "database",
			File:          app.FileLogConfig{Path: filepath.Join(dir, "audit.log")},
			RetentionDays: 90,
			Schedule:      "@daily",
			WindowID:      1,
		},
	}
	cfg.Identity.Static.Users = []providers.StaticUser{{
		Username:     "ana",
		PasswordHash: hash,
		EmployeeID:   7,
		Granted:      true,
	}}
	return cfg
}

func TestBootstrapRuntimeDatabaseSink(t *testing.T) {
	cfg := testConfig(t)
	log := zap.NewNop()

	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), log) })

	require.NotNil(t, stack.DB)
	require.NotNil(t, stack.AuditSvc)
	require.Nil(t, stack.FileSink)

	_, err = stack.AuthSvc.Login(context.Background(), iauth.LoginInput{Username: "ana", Password: "Passw0rd!", ClientIP: "10.0.0.1"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestBootstrapRuntimeFileSinkSkipsDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Sink = "file"
	log := zap.NewNop()

	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)

	require.Nil(t, stack.DB)
	require.Nil(t, stack.AuditSvc)
	require.NotNil(t, stack.FileSink)

	_, err = stack.AuthSvc.Login(context.Background(), iauth.LoginInput{Username: "ana", Password: "Passw0rd!", ClientIP: "10.0.0.1"})
	require.NoError(t, err)

	stack.Shutdown(context.Background(), log)

	data, err := os.ReadFile(cfg.Audit.File.Path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"action":"LOGIN"`)
}

func TestBootstrapRuntimeRequiresSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWT.Secret = ""

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.ErrorIs(t, err, iauth.ErrSigningKeyMissing)
}

func TestBootstrapRuntimeUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Identity.Provider = "kerberos"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.ErrorIs(t, err, providers.ErrUnknownProvider)
}

func TestBootstrapRuntimeRejectsBadDevicePolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Device.MismatchAction = "IGNORE"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestEnsureSecretsPresent(t *testing.T) {
	require.Error(t, ensureSecretsPresent(nil))
	require.Error(t, ensureSecretsPresent(&app.Config{}))

	cfg := &app.Config{}
	cfg.Auth.JWT.Secret = "  padded-secret  "
	require.NoError(t, ensureSecretsPresent(cfg))
	require.Equal(t, "padded-secret", cfg.Auth.JWT.Secret)
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
