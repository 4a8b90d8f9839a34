package middleware

import (
	"time"

	"clearbill/internal/common"
	"clearbill/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// AuditMiddleware provides automatic audit logging for HTTP requests
type AuditMiddleware struct {
	auditService services.AuditLogsService
}

// NewAuditMiddleware creates a new audit middleware instance
func NewAuditMiddleware(auditService services.AuditLogsService) *AuditMiddleware {
	return &AuditMiddleware{
		auditService: auditService,
	}
}

// AuditRequest records mutating requests and failed requests after the
// handler runs. Read-only successes are skipped to keep the log lean.
func (m *AuditMiddleware) AuditRequest() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			method := c.Request().Method
			path := c.Path()

			if !m.shouldLog(method, path, err) {
				return err
			}

			ctx := c.Request().Context()
			userID, ok := common.GetUserIDFromContext(ctx)
			var userPtr *uuid.UUID
			if ok {
				userPtr = &userID
			}

			action := method + " " + path
			data := map[string]interface{}{
				"method":     method,
				"path":       path,
				"user_agent": c.Request().UserAgent(),
				"ip":         c.RealIP(),
				"timestamp":  time.Now().Format(time.RFC3339),
			}
			if err != nil {
				data["error"] = err.Error()
			}

			if logErr := m.auditService.LogActivity(ctx, "http_requests", path, action, userPtr, data); logErr != nil {
				// Audit failure never fails the request
				c.Logger().Errorf("Failed to log audit activity: %v", logErr)
			}

			return err
		}
	}
}

// shouldLog determines if a request should be audited
func (m *AuditMiddleware) shouldLog(method, path string, reqErr error) bool {
	// Always log errors
	if reqErr != nil {
		return true
	}

	// Log mutating HTTP methods
	if method == "POST" || method == "PUT" || method == "PATCH" || method == "DELETE" {
		return true
	}

	return false
}
