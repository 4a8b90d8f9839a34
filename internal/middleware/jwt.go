package middleware

import (
	"context"
	"fmt"
	"net/http"

	"clearbill/internal/caching"
	"clearbill/internal/common"
	"clearbill/internal/services"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// JWT validates the bearer token signature and expiry, parsing the
// claims into services.TokenClaims.
func JWT(jwtSecret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(jwtSecret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(services.TokenClaims)
		},
	})
}

// AttachIdentity runs after JWT: it rejects revoked tokens and puts
// the caller's user id on the request context.
func AttachIdentity(cacheSvc caching.CacheService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing token")
			}

			claims, ok := token.Claims.(*services.TokenClaims)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid claims")
			}

			userID, err := uuid.Parse(claims.UserID)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid user_id format")
			}

			// Revoked access tokens sit on the blacklist until expiry.
			blacklistKey := fmt.Sprintf("token_blacklist:%s", claims.TokenID)
			if revoked, err := cacheSvc.GetString(c.Request().Context(), blacklistKey); err == nil && revoked != "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Token has been revoked")
			}

			ctx := context.WithValue(c.Request().Context(), common.UserIDKey, userID)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}
