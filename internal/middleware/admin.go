package middleware

import (
	"net/http"

	"clearbill/internal/common"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequireAdmin restricts a route group to the configured admin
// identity. It must run after AttachIdentity.
func RequireAdmin(adminID uuid.UUID) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := common.GetUserIDFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
			}
			if userID != adminID {
				return echo.NewHTTPError(http.StatusForbidden, "Admin access required")
			}
			return next(c)
		}
	}
}
