package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func runResolver(t *testing.T, path string) (echo.Context, *httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := NewVersionMiddleware().APIVersionResolver()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	return c, rec, handler(c)
}

func TestAPIVersionResolver_SupportedVersion(t *testing.T) {
	c, rec, err := runResolver(t, "/v1/invoices")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v1", c.Get("api_version"))
}

func TestAPIVersionResolver_UnsupportedVersion(t *testing.T) {
	_, rec, err := runResolver(t, "/v2/invoices")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unsupported API version")
}

func TestAPIVersionResolver_UnversionedPathUsesDefault(t *testing.T) {
	c, rec, err := runResolver(t, "/health")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v1", c.Get("api_version"))
}

func TestAPIVersionResolver_NonNumericSuffixIsNotAVersion(t *testing.T) {
	c, _, err := runResolver(t, "/vendor/assets")
	assert.NoError(t, err)
	assert.Equal(t, "v1", c.Get("api_version"))
}

func TestVersionHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/invoices", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := NewVersionMiddleware().VersionHeader("v1")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	assert.NoError(t, handler(c))
	assert.Equal(t, "v1", rec.Header().Get("X-API-Version"))
}
