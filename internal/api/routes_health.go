package api

import (
	"github.com/gin-gonic/gin"

	"github.com/jovyweb/authcore/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, deps Dependencies) {
	var sessions handlers.SessionStats
	if deps.Sessions != nil {
		sessions = deps.Sessions
	}

	health := handlers.Health(deps.DB, sessions)
	r.GET("/health", health)
	r.GET("/api/health", health)
}
