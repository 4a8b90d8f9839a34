package middleware

import (
	"fmt"
	"net/http"
	"time"

	"clearbill/internal/caching"

	"github.com/labstack/echo/v4"
)

// RateLimit throttles requests per client IP using the Redis counter.
// Over-limit requests get 429; a Redis failure fails open.
func RateLimit(cacheSvc caching.CacheService, limit int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := fmt.Sprintf("%s:%s", c.Path(), c.RealIP())

			limited, err := cacheSvc.IsRateLimited(c.Request().Context(), key, limit, window)
			if err != nil {
				c.Logger().Warnf("Rate limit check failed for %s: %v", key, err)
				return next(c)
			}
			if limited {
				return echo.NewHTTPError(http.StatusTooManyRequests, "Rate limit exceeded")
			}

			return next(c)
		}
	}
}
