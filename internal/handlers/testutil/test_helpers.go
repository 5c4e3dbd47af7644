package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jovyweb/authcore/internal/api"
	"github.com/jovyweb/authcore/internal/app"
	iauth "github.com/jovyweb/authcore/internal/auth"
	"github.com/jovyweb/authcore/internal/auth/providers"
	sharedtestutil "github.com/jovyweb/authcore/internal/database/testutil"
	"github.com/jovyweb/authcore/internal/middleware"
	"github.com/jovyweb/authcore/internal/services"
	"github.com/jovyweb/authcore/pkg/crypto"
	"github.com/jovyweb/authcore/pkg/response"
)

// Credentials of the employees known to every test environment.
const (
	Username       = "ana.lopez"
	Password       = "Passw0rd!"
	EmployeeID     = int64(1001)
	DepartmentCode = 4

	NoAccessUsername = "nora.diaz"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T       *testing.T
	DB      *gorm.DB
	Router  *gin.Engine
	Config  *app.Config
	Service *iauth.Service
	Store   *iauth.SessionStore
	Audit   *services.AuditService
	now     time.Time
}

// EnvOption adjusts the configuration before the router is built.
type EnvOption func(*app.Config)

// WithFileAuditSink makes the environment behave as if audit records were
// written to a file, leaving no queryable audit service.
func WithFileAuditSink() EnvOption {
	return func(cfg *app.Config) {
		cfg.Audit.Sink = "file"
	}
}

// WithDevicePolicy enables device validation with the given mismatch action.
func WithDevicePolicy(action string) EnvOption {
	return func(cfg *app.Config) {
		cfg.Auth.Device.Validation = true
		cfg.Auth.Device.MismatchAction = action
	}
}

// WithLoginLimit overrides the failed-login limit.
func WithLoginLimit(maxAttempts int) EnvOption {
	return func(cfg *app.Config) {
		cfg.Auth.RateLimit.MaxAttempts = maxAttempts
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret:           "handler-suite-secret-key-with-64-bytes-of-entropy-0123456789ab",
				Issuer:           "test-suite",
				Audience:         "test-suite-api",
				AccessTokenTTL:   15 * time.Minute,
				RefreshTokenTTL:  24 * time.Hour,
				RefreshThreshold: 2 * time.Minute,
			},
			RateLimit: app.RateLimitSettings{
				MaxAttempts:   5,
				Window:        time.Minute,
				BlockDuration: 15 * time.Minute,
			},
			Device: app.DeviceSettings{MismatchAction: "WARN"},
		},
		Audit: app.AuditConfig{Sink: "database", RetentionDays: 90, WindowID: 1},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	env := &Env{
		T:      t,
		DB:     db,
		Config: cfg,
		now:    time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }

	identity := newStaticIdentity(t)

	tokenCfg := cfg.Auth.TokenConfig()
	tokenCfg.Clock = clock
	tokens, err := iauth.NewTokenAuthority(tokenCfg)
	require.NoError(t, err)

	storeCfg := cfg.Auth.SessionStoreConfig()
	storeCfg.Clock = clock
	env.Store = iauth.NewSessionStore(storeCfg)

	limiterCfg := cfg.Auth.RateLimitConfig()
	limiterCfg.Clock = clock

	var sink iauth.AuditSink
	if cfg.Audit.Sink == "database" {
		env.Audit, err = services.NewAuditService(db, services.WithAuditClock(clock))
		require.NoError(t, err)
		sink = env.Audit
	}

	svcCfg, err := cfg.Auth.ServiceConfig(cfg.Audit.WindowID)
	require.NoError(t, err)
	svcCfg.Clock = clock

	env.Service, err = iauth.NewService(iauth.ServiceDeps{
		Tokens:   tokens,
		Store:    env.Store,
		Limiter:  iauth.NewRateLimiter(limiterCfg),
		Identity: identity,
		Audit:    sink,
	}, svcCfg)
	require.NoError(t, err)

	env.Router, err = api.NewRouter(api.Dependencies{
		Config:   cfg,
		Auth:     env.Service,
		Sessions: env.Store,
		DB:       db,
		Audit:    env.Audit,
	})
	require.NoError(t, err)

	return env
}

func newStaticIdentity(t *testing.T) *providers.StaticAuthority {
	t.Helper()

	hash, err := crypto.HashPassword(Password)
	require.NoError(t, err)

	identity, err := providers.NewStaticAuthority([]providers.StaticUser{
		{
			Username:        Username,
			PasswordHash:    hash,
			EmployeeID:      EmployeeID,
			DepartmentCode:  DepartmentCode,
			Name:            "Ana Lopez",
			Email:           "ana.lopez@jovy.test",
			SalesPersonCode: "17",
			Granted:         true,
		},
		{
			Username:     NoAccessUsername,
			PasswordHash: hash,
			EmployeeID:   1002,
			Granted:      false,
		},
	})
	require.NoError(t, err)
	return identity
}

// Advance moves the environment clock forward.
func (e *Env) Advance(d time.Duration) {
	e.now = e.now.Add(d)
}

// EmployeePayload captures the session profile returned from auth endpoints.
type EmployeePayload struct {
	EmployeeID      int64  `json:"employee_id"`
	DepartmentCode  int    `json:"department_code"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	SalesPersonCode string `json:"sales_person_code"`
	Active          bool   `json:"active"`
}

// LoginResult bundles the JSON response from POST /api/auth/login together
// with the cookies it set.
type LoginResult struct {
	AccessToken      string          `json:"access_token"`
	RefreshToken     string          `json:"refresh_token"`
	ExpiresIn        int             `json:"expires_in"`
	RefreshExpiresIn int             `json:"refresh_expires_in"`
	Employee         EmployeePayload `json:"employee"`
	Cookies          []*http.Cookie  `json:"-"`
}

// Login authenticates through the API and returns the issued session.
func (e *Env) Login(username, password string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"username": username,
		"password": password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	require.NotEmpty(e.T, result.RefreshToken)
	require.Greater(e.T, result.ExpiresIn, 0)

	result.Cookies = w.Result().Cookies()
	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Cookie returns the named cookie set by a response, or nil.
func Cookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Request executes an HTTP request against the test router, applying JSON encoding and a bearer token.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.RequestWithCookies(method, path, body, token)
}

// RequestWithCookies is Request with cookies attached. The X-AUTH-TOKEN and
// X-REFRESH-TOKEN cookies are the browser way of authenticating.
func (e *Env) RequestWithCookies(method, path string, body any, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		if c != nil && (c.Name == middleware.AccessTokenCookie || c.Name == middleware.RefreshTokenCookie) {
			req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
