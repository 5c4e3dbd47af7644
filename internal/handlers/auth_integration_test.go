package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jovyweb/authcore/internal/handlers/testutil"
	"github.com/jovyweb/authcore/internal/middleware"
	"github.com/jovyweb/authcore/internal/models"
)

func TestAuthHandler_LoginRefreshLogout(t *testing.T) {
	env := testutil.NewEnv(t)

	login := env.Login(testutil.Username, testutil.Password)
	require.Equal(t, testutil.EmployeeID, login.Employee.EmployeeID)
	require.Equal(t, testutil.DepartmentCode, login.Employee.DepartmentCode)
	require.Equal(t, "Ana Lopez", login.Employee.Name)
	require.Equal(t, 900, login.ExpiresIn)
	require.Equal(t, 86400, login.RefreshExpiresIn)

	me := env.Request(http.MethodGet, "/api/auth/me", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())
	var profile testutil.EmployeePayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, me).Data, &profile)
	require.Equal(t, login.Employee, profile)

	validate := env.RequestWithCookies(http.MethodGet, "/api/auth/validate", nil, "", login.Cookies...)
	require.Equal(t, http.StatusOK, validate.Code, validate.Body.String())
	require.Equal(t, "session active", testutil.DecodeResponse(t, validate).Message)

	refresh := env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": login.RefreshToken}, "")
	require.Equal(t, http.StatusOK, refresh.Code, refresh.Body.String())
	var refreshed testutil.LoginResult
	testutil.DecodeInto(t, testutil.DecodeResponse(t, refresh).Data, &refreshed)
	require.NotEqual(t, login.AccessToken, refreshed.AccessToken)
	require.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	require.Equal(t, testutil.EmployeeID, refreshed.Employee.EmployeeID)

	stale := env.Request(http.MethodGet, "/api/auth/validate", nil, login.AccessToken)
	require.Equal(t, http.StatusUnauthorized, stale.Code)

	logout := env.Request(http.MethodPost, "/api/auth/logout", nil, refreshed.AccessToken)
	require.Equal(t, http.StatusOK, logout.Code, logout.Body.String())
	var logoutData map[string]any
	testutil.DecodeInto(t, testutil.DecodeResponse(t, logout).Data, &logoutData)
	require.Equal(t, true, logoutData["logged_out"])
	require.EqualValues(t, 1, logoutData["sessions_ended"])

	cleared := testutil.Cookie(logout, middleware.AccessTokenCookie)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
	require.Less(t, cleared.MaxAge, 0)

	again := env.Request(http.MethodPost, "/api/auth/logout", nil, refreshed.AccessToken)
	require.Equal(t, http.StatusOK, again.Code, again.Body.String())
	againResp := testutil.DecodeResponse(t, again)
	require.Equal(t, "session already closed", againResp.Message)
	testutil.DecodeInto(t, againResp.Data, &logoutData)
	require.Equal(t, false, logoutData["logged_out"])

	unauth := env.Request(http.MethodGet, "/api/auth/me", nil, refreshed.AccessToken)
	require.Equal(t, http.StatusUnauthorized, unauth.Code)
}

func TestAuthHandler_LoginSetsCookies(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"username": testutil.Username,
		"password": testutil.Password,
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	access := testutil.Cookie(w, middleware.AccessTokenCookie)
	require.NotNil(t, access)
	require.True(t, access.HttpOnly)
	require.Equal(t, http.SameSiteStrictMode, access.SameSite)
	require.Equal(t, "/", access.Path)
	require.Equal(t, 900, access.MaxAge)

	refresh := testutil.Cookie(w, middleware.RefreshTokenCookie)
	require.NotNil(t, refresh)
	require.Equal(t, 86400, refresh.MaxAge)
}

func TestAuthHandler_LoginIsCaseInsensitive(t *testing.T) {
	env := testutil.NewEnv(t)

	login := env.Login("ANA.LOPEZ", testutil.Password)
	require.Equal(t, testutil.EmployeeID, login.Employee.EmployeeID)
}

func TestAuthHandler_LoginValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	cases := []map[string]any{
		{"username": "", "password": ""},
		{"username": "ana lopez", "password": testutil.Password},
		{"username": testutil.Username},
	}
	for _, payload := range cases {
		resp := env.Request(http.MethodPost, "/api/auth/login", payload, "")
		require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())
		decoded := testutil.DecodeResponse(t, resp)
		require.False(t, decoded.Success)
		require.NotNil(t, decoded.Error)
		require.Equal(t, "BAD_REQUEST", decoded.Error.Code)
	}
}

func TestAuthHandler_LoginFailures(t *testing.T) {
	env := testutil.NewEnv(t)

	bad := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"username": testutil.Username,
		"password": "wrong",
	}, "")
	require.Equal(t, http.StatusUnauthorized, bad.Code)
	require.Equal(t, "INVALID_CREDENTIALS", testutil.DecodeResponse(t, bad).Error.Code)
	require.Nil(t, testutil.Cookie(bad, middleware.AccessTokenCookie))

	denied := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"username": testutil.NoAccessUsername,
		"password": testutil.Password,
	}, "")
	require.Equal(t, http.StatusForbidden, denied.Code)
	require.Equal(t, "FORBIDDEN", testutil.DecodeResponse(t, denied).Error.Code)
}

func TestAuthHandler_LoginRateLimited(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithLoginLimit(2))

	for i := 0; i < 2; i++ {
		resp := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
			"username": testutil.Username,
			"password": "wrong",
		}, "")
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	}

	blocked := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"username": testutil.Username,
		"password": testutil.Password,
	}, "")
	require.Equal(t, http.StatusTooManyRequests, blocked.Code, blocked.Body.String())
	require.Equal(t, "RATE_LIMIT_EXCEEDED", testutil.DecodeResponse(t, blocked).Error.Code)

	env.Advance(16 * time.Minute)
	env.Login(testutil.Username, testutil.Password)
}

func TestAuthHandler_RefreshFromCookie(t *testing.T) {
	env := testutil.NewEnv(t)
	login := env.Login(testutil.Username, testutil.Password)

	w := env.RequestWithCookies(http.MethodPost, "/api/auth/refresh", nil, "", login.Cookies...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	access := testutil.Cookie(w, middleware.AccessTokenCookie)
	require.NotNil(t, access)
	require.NotEqual(t, login.AccessToken, access.Value)

	replay := env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": login.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, replay.Code, "refresh tokens are single use")
	require.Equal(t, "UNAUTHORIZED", testutil.DecodeResponse(t, replay).Error.Code)
}

func TestAuthHandler_RefreshRequiresToken(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/refresh", nil, "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": "not-a-jwt"}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_LogoutWithoutToken(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/auth/logout", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, testutil.Cookie(w, middleware.RefreshTokenCookie), "cookies are cleared regardless")
}

func TestAuthHandler_LogoutEndsEverySession(t *testing.T) {
	env := testutil.NewEnv(t)

	first := env.Login(testutil.Username, testutil.Password)
	second := env.Login(testutil.Username, testutil.Password)

	logout := env.Request(http.MethodPost, "/api/auth/logout", nil, second.AccessToken)
	require.Equal(t, http.StatusOK, logout.Code, logout.Body.String())

	w := env.Request(http.MethodGet, "/api/auth/validate", nil, first.AccessToken)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Zero(t, env.Store.Stats().LiveSessions)
}

func TestAuditHandler_ListsCallerRecords(t *testing.T) {
	env := testutil.NewEnv(t)

	first := env.Login(testutil.Username, testutil.Password)
	env.Advance(time.Minute)
	require.Equal(t, http.StatusOK, env.Request(http.MethodPost, "/api/auth/logout", nil, first.AccessToken).Code)
	env.Advance(time.Minute)
	login := env.Login(testutil.Username, testutil.Password)

	w := env.Request(http.MethodGet, "/api/auth/audit", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	var rows []models.AuditLog
	testutil.DecodeInto(t, resp.Data, &rows)
	require.Len(t, rows, 3)
	require.Equal(t, "LOGIN", rows[0].Action)
	require.Equal(t, "LOGOUT", rows[1].Action)
	require.Equal(t, "LOGIN", rows[2].Action)
	for _, row := range rows {
		require.Equal(t, testutil.EmployeeID, row.EmployeeCode)
		require.Equal(t, "AUTH", row.SubjectTable)
	}
	require.NotNil(t, resp.Meta)
	require.Equal(t, 3, resp.Meta.Count)

	filtered := env.Request(http.MethodGet, "/api/auth/audit?action=logout", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, filtered.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, filtered).Data, &rows)
	require.Len(t, rows, 1)
	require.Equal(t, "logout (all devices - 1 sessions)", rows[0].NewValues)
}

func TestAuditHandler_UnavailableWithFileSink(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithFileAuditSink())
	login := env.Login(testutil.Username, testutil.Password)

	w := env.Request(http.MethodGet, "/api/auth/audit", nil, login.AccessToken)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "SERVICE_UNAVAILABLE", testutil.DecodeResponse(t, w).Error.Code)
}

func TestSecurityHandler_Audit(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/security/audit", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	login := env.Login(testutil.Username, testutil.Password)
	w = env.Request(http.MethodGet, "/api/security/audit", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report struct {
		Checks []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &report)

	statuses := make(map[string]string, len(report.Checks))
	for _, check := range report.Checks {
		statuses[check.ID] = check.Status
	}
	require.Equal(t, "pass", statuses["jwt_secret_strength"])
	require.Equal(t, "pass", statuses["token_lifetimes"])
	require.Equal(t, "warn", statuses["device_binding"])
	require.Equal(t, "pass", statuses["audit_storage"])
}

func TestHealthHandler(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]any
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &payload)
	require.Equal(t, "ok", payload["status"])
	require.Equal(t, "ok", payload["database"])
}
