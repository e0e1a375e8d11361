package middleware

import (
	"github.com/labstack/echo/v4"

	"ratelimit-proxy-go/internal/headers"
)

// StripHopByHop returns an Echo middleware that removes hop-by-hop headers
// from the inbound request before it reaches a handler.
func StripHopByHop() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			headers.RemoveHopByHop(c.Request().Header)
			return next(c)
		}
	}
}
