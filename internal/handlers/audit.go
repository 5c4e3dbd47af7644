package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jovyweb/authcore/internal/middleware"
	"github.com/jovyweb/authcore/internal/services"
	"github.com/jovyweb/authcore/pkg/errors"
	"github.com/jovyweb/authcore/pkg/response"
)

// AuditHandler exposes the audit trail of the calling employee.
type AuditHandler struct {
	svc *services.AuditService
}

// NewAuditHandler accepts a nil service; the endpoint then reports that audit
// rows are not queryable with the configured sink.
func NewAuditHandler(svc *services.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// GET /api/auth/audit
func (h *AuditHandler) List(c *gin.Context) {
	if h.svc == nil {
		response.Error(c, errors.ErrServiceUnavailable.WithMessage("audit records are written to a file sink"))
		return
	}

	employeeID := c.GetInt64(middleware.CtxEmployeeIDKey)
	if employeeID == 0 {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	filters := services.AuditFilters{
		EmployeeID: employeeID,
		Action:     strings.ToUpper(strings.TrimSpace(c.Query("action"))),
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filters.Since = &t
		}
	}
	if u := c.Query("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			filters.Until = &t
		}
	}
	limit := parseIntQuery(c, "limit", 50)

	logs, err := h.svc.List(requestContext(c), filters, limit)
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, logs, &response.Meta{Count: len(logs), Limit: limit})
}
