package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newProtected(key string) *echo.Echo {
	e := echo.New()
	e.Use(APIKeyMiddleware(key))
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func serve(e *echo.Echo, req *http.Request) int {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestAPIKeyMiddleware_NoKeyConfigured(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if code := serve(newProtected(""), req); code != http.StatusOK {
		t.Errorf("expected 200 with no key configured, got %d", code)
	}
}

func TestAPIKeyMiddleware_ValidKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-API-Key", "secret-key")
	if code := serve(newProtected("secret-key"), req); code != http.StatusOK {
		t.Errorf("expected 200 with valid key, got %d", code)
	}
}

func TestAPIKeyMiddleware_BearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	if code := serve(newProtected("secret-key"), req); code != http.StatusOK {
		t.Errorf("expected 200 with bearer token, got %d", code)
	}

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Basic c2VjcmV0LWtleQ==")
	if code := serve(newProtected("secret-key"), req); code != http.StatusUnauthorized {
		t.Errorf("expected 401 for non-bearer authorization, got %d", code)
	}
}

func TestAPIKeyMiddleware_InvalidKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	if code := serve(newProtected("secret-key"), req); code != http.StatusForbidden {
		t.Errorf("expected 403 with invalid key, got %d", code)
	}
}

func TestAPIKeyMiddleware_MissingKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if code := serve(newProtected("secret-key"), req); code != http.StatusUnauthorized {
		t.Errorf("expected 401 with missing key, got %d", code)
	}
}

func TestAPIKeyMiddleware_QueryParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test?api_key=secret-key", nil)
	if code := serve(newProtected("secret-key"), req); code != http.StatusOK {
		t.Errorf("expected 200 with key in query param, got %d", code)
	}
}
