package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jovyweb/authcore/internal/auditctx"
	iauth "github.com/jovyweb/authcore/internal/auth"
	"github.com/jovyweb/authcore/pkg/errors"
	"github.com/jovyweb/authcore/pkg/logger"
	"github.com/jovyweb/authcore/pkg/response"
)

const (
	CtxSessionKey     = "authSession"
	CtxEmployeeIDKey  = "employeeID"
	CtxAccessTokenKey = "accessToken"
)

// AccessToken returns the caller's access token: the X-AUTH-TOKEN cookie
// first, then an Authorization bearer header.
func AccessToken(c *gin.Context) string {
	if token, err := c.Cookie(AccessTokenCookie); err == nil && strings.TrimSpace(token) != "" {
		return strings.TrimSpace(token)
	}
	authz := c.GetHeader("Authorization")
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[7:])
}

// Auth requires a live session. Tokens close to expiry are refreshed from the
// X-REFRESH-TOKEN cookie; a failed refresh lets the request continue with the
// current token.
func Auth(svc *iauth.Service, cookies *Cookies) gin.HandlerFunc {
	log := logger.WithModule("http.auth")

	return func(c *gin.Context) {
		token := AccessToken(c)
		if token == "" {
			abortUnauthorized(c, errors.ErrUnauthorized)
			return
		}

		session, err := svc.Session(token)
		if err != nil {
			abortUnauthorized(c, AuthError(err))
			return
		}

		if svc.NeedsRefresh(token) {
			if refreshToken, err := c.Cookie(RefreshTokenCookie); err == nil && refreshToken != "" {
				refreshed, err := svc.Refresh(c.Request.Context(), refreshToken)
				if err != nil {
					log.Warn("automatic refresh failed",
						zap.Int64("employee_id", session.EmployeeID),
						zap.Error(err),
					)
				} else {
					cookies.SetTokens(c, refreshed, svc.AccessTokenTTL(), svc.RefreshTokenTTL())
					c.Header("X-Token-Refreshed", "true")
					token = refreshed.AccessToken
					session = refreshed
				}
			}
		}

		clientIP := iauth.ClientIP(c.Request)
		userAgent := iauth.UserAgent(c.Request)
		if err := svc.CheckDevice(session, clientIP, userAgent); err != nil {
			abortUnauthorized(c, AuthError(err))
			return
		}

		c.Set(CtxSessionKey, session)
		c.Set(CtxEmployeeIDKey, session.EmployeeID)
		c.Set(CtxAccessTokenKey, token)
		c.Request = c.Request.WithContext(auditctx.WithActor(c.Request.Context(), auditctx.Actor{
			EmployeeID: session.EmployeeID,
			IPAddress:  clientIP,
			UserAgent:  userAgent,
		}))

		c.Next()
	}
}

// SessionFromContext returns the session attached by Auth.
func SessionFromContext(c *gin.Context) (iauth.Session, bool) {
	value, ok := c.Get(CtxSessionKey)
	if !ok {
		return iauth.Session{}, false
	}
	session, ok := value.(iauth.Session)
	return session, ok
}

func abortUnauthorized(c *gin.Context, err *errors.AppError) {
	c.Header("WWW-Authenticate", "Bearer")
	response.Error(c, err)
	c.Abort()
}
