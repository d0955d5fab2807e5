package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"settlement-engine/internal/core/domain"
	"settlement-engine/internal/core/ports"
	"settlement-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog records operator actions and rejected callbacks. Payment state
// changes are audited by the services themselves; this covers who asked for
// them and who knocked on the callback URL without the right token.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		action, resourceType := mapRouteToAction(c.FullPath(), c.Request.Method, c.Writer.Status())
		if action == "" {
			return
		}

		var userID *uuid.UUID
		if uid, exists := c.Get(CtxUserID); exists {
			if id, ok := uid.(uuid.UUID); ok {
				userID = &id
			}
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"route":      c.FullPath(),
			"status":     c.Writer.Status(),
			"request_id": c.GetString(response.CtxRequestID),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			UserID:       userID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.Param("checkout_id"),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}

func mapRouteToAction(route, method string, status int) (domain.AuditAction, string) {
	if method != http.MethodPost {
		return "", ""
	}
	if route == "/api/v1/callbacks/stk/:token" {
		if status == http.StatusUnauthorized {
			return domain.AuditActionCallbackRejected, "callback"
		}
		return "", ""
	}
	if status < 200 || status >= 300 {
		return "", ""
	}
	switch route {
	case "/api/v1/admin/redrive":
		return domain.AuditActionAdminRedrive, "payment_request"
	case "/api/v1/admin/payments/:checkout_id/requery":
		return domain.AuditActionAdminRequery, "payment_request"
	}
	return "", ""
}
