// Package middleware holds echo middleware shared across routes.
package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders sets conservative browser-facing headers on every response.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "SAMEORIGIN")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

			// API responses carry live state. Streaming handlers set their
			// own cache policy after this runs.
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}
