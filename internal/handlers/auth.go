package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/jovyweb/authcore/internal/auth"
	"github.com/jovyweb/authcore/internal/middleware"
	appErrors "github.com/jovyweb/authcore/pkg/errors"
	"github.com/jovyweb/authcore/pkg/response"
)

// AuthHandler manages the session lifecycle endpoints (login/refresh/validate/logout/me).
type AuthHandler struct {
	svc     *iauth.Service
	cookies *middleware.Cookies
}

func NewAuthHandler(svc *iauth.Service, cookies *middleware.Cookies) (*AuthHandler, error) {
	if svc == nil {
		return nil, errors.New("auth handler: auth service is required")
	}
	if cookies == nil {
		cookies = middleware.NewCookies(middleware.CookieConfig{Secure: true})
	}
	return &AuthHandler{svc: svc, cookies: cookies}, nil
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=64,login"`
	Password string `json:"password" validate:"required,max=256"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	Employee         iauth.Session `json:"employee"`
	AccessToken      string        `json:"access_token"`
	RefreshToken     string        `json:"refresh_token"`
	ExpiresIn        int           `json:"expires_in"`
	RefreshExpiresIn int           `json:"refresh_expires_in"`
}

func (h *AuthHandler) sessionPayload(session iauth.Session) sessionResponse {
	return sessionResponse{
		Employee:         session,
		AccessToken:      session.AccessToken,
		RefreshToken:     session.RefreshToken,
		ExpiresIn:        int(h.svc.AccessTokenTTL().Seconds()),
		RefreshExpiresIn: int(h.svc.RefreshTokenTTL().Seconds()),
	}
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	session, err := h.svc.Login(requestContext(c), iauth.LoginInput{
		Username:  strings.TrimSpace(req.Username),
		Password:  req.Password,
		ClientIP:  iauth.ClientIP(c.Request),
		UserAgent: iauth.UserAgent(c.Request),
	})
	if err != nil {
		response.Error(c, middleware.AuthError(err))
		return
	}

	h.cookies.SetTokens(c, session, h.svc.AccessTokenTTL(), h.svc.RefreshTokenTTL())
	response.Success(c, http.StatusOK, h.sessionPayload(session))
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, ok := h.refreshToken(c)
	if !ok {
		return
	}

	session, err := h.svc.Refresh(requestContext(c), token)
	if err != nil {
		h.cookies.Clear(c)
		response.Error(c, middleware.AuthError(err))
		return
	}

	h.cookies.SetTokens(c, session, h.svc.AccessTokenTTL(), h.svc.RefreshTokenTTL())
	response.Success(c, http.StatusOK, h.sessionPayload(session))
}

// refreshToken reads the X-REFRESH-TOKEN cookie, falling back to a JSON body.
func (h *AuthHandler) refreshToken(c *gin.Context) (string, bool) {
	if token, err := c.Cookie(middleware.RefreshTokenCookie); err == nil && strings.TrimSpace(token) != "" {
		return strings.TrimSpace(token), true
	}

	var req refreshRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
			return "", false
		}
	}
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		response.Error(c, appErrors.NewBadRequest("refresh token is required"))
		return "", false
	}
	return token, true
}

// GET /api/auth/validate
func (h *AuthHandler) Validate(c *gin.Context) {
	if !h.svc.Validate(middleware.AccessToken(c)) {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.SuccessWithMessage(c, http.StatusOK, "session active", gin.H{"valid": true})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	token := middleware.AccessToken(c)
	h.cookies.Clear(c)
	if token == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	ended, err := h.svc.Logout(requestContext(c), token)
	switch {
	case errors.Is(err, iauth.ErrNoActiveSession):
		response.SuccessWithMessage(c, http.StatusOK, "session already closed", gin.H{"logged_out": false})
	case err != nil:
		response.Error(c, middleware.AuthError(err))
	default:
		response.SuccessWithMessage(c, http.StatusOK, "logged out on all devices", gin.H{
			"logged_out":     true,
			"sessions_ended": ended,
		})
	}
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.Success(c, http.StatusOK, session)
}
