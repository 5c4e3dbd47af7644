package api

import (
	"github.com/gin-gonic/gin"

	"github.com/jovyweb/authcore/internal/handlers"
	"github.com/jovyweb/authcore/internal/middleware"
)

func registerAuthRoutes(engine *gin.Engine, requireAuth gin.HandlerFunc, cookies *middleware.Cookies, deps Dependencies) error {
	authHandler, err := handlers.NewAuthHandler(deps.Auth, cookies)
	if err != nil {
		return err
	}

	auth := engine.Group("/api/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.GET("/validate", authHandler.Validate)
		auth.POST("/logout", authHandler.Logout)

		auth.GET("/me", requireAuth, authHandler.Me)
		auth.GET("/audit", requireAuth, handlers.NewAuditHandler(deps.Audit).List)
	}
	return nil
}
