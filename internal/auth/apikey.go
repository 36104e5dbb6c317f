// Package auth guards the HTTP API with a static shared key.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/bterminal/bterminal/internal/logx"
)

// HeaderAPIKey is the request header carrying the shared key.
const HeaderAPIKey = "X-API-Key"

// QueryAPIKey is the query parameter fallback, used by browser WebSocket
// clients that cannot set headers.
const QueryAPIKey = "api_key"

// ProvidedKey extracts the key a request presents: the X-API-Key header,
// then an "Authorization: Bearer" header, then the api_key query parameter.
func ProvidedKey(c echo.Context) string {
	req := c.Request()
	if key := req.Header.Get(HeaderAPIKey); key != "" {
		return key
	}
	if authz := req.Header.Get(echo.HeaderAuthorization); authz != "" {
		if scheme, token, ok := strings.Cut(authz, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return c.QueryParam(QueryAPIKey)
}

// APIKeyMiddleware validates the presented key against apiKey.
// If apiKey is empty, authentication is disabled (development mode).
func APIKeyMiddleware(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return next(c)
			}

			provided := ProvidedKey(c)
			if provided == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "missing API key",
				})
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				logx.Ctx(c.Request().Context()).Warn("api key rejected",
					"path", c.Path(), "remote", c.RealIP())
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "invalid API key",
				})
			}

			return next(c)
		}
	}
}
