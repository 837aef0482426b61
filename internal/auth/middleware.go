// Package auth provides the shared-secret bearer middleware protecting the
// gateway's control API.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Skipper reports whether a request bypasses authentication.
type Skipper func(c echo.Context) bool

// BearerMiddleware requires "Authorization: Bearer <secret>" on every request
// not excluded by the skipper. The comparison is constant time.
func BearerMiddleware(secret string, skip Skipper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip != nil && skip(c) {
				return next(c)
			}
			if secret == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "gateway secret not configured")
			}
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid bearer token")
			}
			return next(c)
		}
	}
}
