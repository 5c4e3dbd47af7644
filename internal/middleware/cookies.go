package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jovyweb/authcore/internal/auth"
)

// Token cookie names shared with the browser client.
const (
	AccessTokenCookie  = "X-AUTH-TOKEN"
	RefreshTokenCookie = "X-REFRESH-TOKEN"
)

// CookieConfig controls the attributes of the token cookies.
type CookieConfig struct {
	Secure bool
	Domain string
}

// Cookies writes the HttpOnly SameSite=Strict token cookies.
type Cookies struct {
	cfg CookieConfig
}

func NewCookies(cfg CookieConfig) *Cookies {
	return &Cookies{cfg: cfg}
}

// SetTokens stores both tokens of session, each living as long as its token.
func (k *Cookies) SetTokens(c *gin.Context, session auth.Session, accessTTL, refreshTTL time.Duration) {
	k.set(c, AccessTokenCookie, session.AccessToken, maxAge(accessTTL))
	k.set(c, RefreshTokenCookie, session.RefreshToken, maxAge(refreshTTL))
}

// Clear expires both token cookies.
func (k *Cookies) Clear(c *gin.Context) {
	k.set(c, AccessTokenCookie, "", -1)
	k.set(c, RefreshTokenCookie, "", -1)
}

func (k *Cookies) set(c *gin.Context, name, value string, age int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(name, value, age, "/", k.cfg.Domain, k.cfg.Secure, true)
}

func maxAge(ttl time.Duration) int {
	return max(int(ttl/time.Second), 1)
}
