package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/jovyweb/authcore/internal/auth"
	"github.com/jovyweb/authcore/internal/database"
	"github.com/jovyweb/authcore/pkg/response"
)

// SessionStats reports the size of the session store.
type SessionStats interface {
	Stats() iauth.StoreStats
}

// Health returns a status payload useful for readiness checks. A database that
// does not answer the ping degrades the status but keeps the endpoint at 200;
// the auth service itself never needs the database.
func Health(db *gorm.DB, sessions SessionStats) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload := gin.H{"status": "ok"}

		if db != nil {
			ctx, cancel := context.WithTimeout(requestContext(c), 2*time.Second)
			defer cancel()
			if err := database.Ping(ctx, db); err != nil {
				payload["status"] = "degraded"
				payload["database"] = "unreachable"
			} else {
				payload["database"] = "ok"
			}
		}
		if sessions != nil {
			payload["sessions"] = sessions.Stats()
		}

		response.Success(c, http.StatusOK, payload)
	}
}
