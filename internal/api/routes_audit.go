package api

import (
	"github.com/gin-gonic/gin"

	"github.com/jovyweb/authcore/internal/handlers"
	"github.com/jovyweb/authcore/internal/security"
)

func registerAuditRoutes(engine *gin.Engine, requireAuth gin.HandlerFunc, deps Dependencies) error {
	securitySvc := security.NewAuditService(deps.DB, deps.Config)
	securityHandler, err := handlers.NewSecurityHandler(securitySvc)
	if err != nil {
		return err
	}

	sec := engine.Group("/api/security", requireAuth)
	{
		sec.GET("/audit", securityHandler.Audit)
	}
	return nil
}
