package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// VersionMiddleware pins the set of API versions the router serves and
// rejects requests addressed to any other version prefix.
type VersionMiddleware struct {
	supported      map[string]bool
	defaultVersion string
}

func NewVersionMiddleware() *VersionMiddleware {
	return &VersionMiddleware{
		supported:      map[string]bool{"v1": true},
		defaultVersion: "v1",
	}
}

// VersionHeader stamps responses from a version group with the version
// they were served under.
func (vm *VersionMiddleware) VersionHeader(version string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("X-API-Version", version)
			return next(c)
		}
	}
}

// APIVersionResolver reads the version prefix from the request path,
// rejects unsupported versions with 404, and records the resolved
// version on the request context. Unversioned paths (health, metrics)
// fall back to the default version.
func (vm *VersionMiddleware) APIVersionResolver() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			version := versionPrefix(c.Request().URL.Path)
			if version == "" {
				c.Set("api_version", vm.defaultVersion)
				return next(c)
			}
			if !vm.supported[version] {
				return c.JSON(http.StatusNotFound, map[string]string{
					"error":              "Unsupported API version",
					"supported_versions": vm.defaultVersion,
				})
			}
			c.Set("api_version", version)
			return next(c)
		}
	}
}

// versionPrefix returns the leading path segment when it looks like a
// version tag ("v" followed by digits), else the empty string.
func versionPrefix(path string) string {
	segment, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if len(segment) < 2 || segment[0] != 'v' {
		return ""
	}
	for _, r := range segment[1:] {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return segment
}
