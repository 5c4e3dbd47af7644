package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jovyweb/authcore/internal/auditctx"
	iauth "github.com/jovyweb/authcore/internal/auth"
	"github.com/jovyweb/authcore/internal/middleware"
)

// requestContext returns the request context carrying the caller as an audit
// actor, with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return auditctx.WithActor(c.Request.Context(), auditctx.Actor{
		EmployeeID: c.GetInt64(middleware.CtxEmployeeIDKey),
		IPAddress:  iauth.ClientIP(c.Request),
		UserAgent:  iauth.UserAgent(c.Request),
	})
}
