package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"ratelimit-proxy-go/internal/metrics"
)

// StatusClientClosedRequest labels requests whose client went away before
// any response was written.
const StatusClientClosedRequest = 499

// MetricsMiddleware returns an Echo middleware that records Prometheus metrics
// for each inbound request.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)
			elapsed := time.Since(start).Seconds()

			req := c.Request()
			status := strconv.Itoa(responseStatus(c, err))
			method := metrics.NormalizeMethod(req.Method)
			route := metrics.NormalizePath(req.URL.Path)

			m.RequestsTotal.WithLabelValues(method, status, route).Inc()
			m.RequestDuration.WithLabelValues(method, status, route).Observe(elapsed)

			return err
		}
	}
}

// responseStatus resolves the status the client sees. A returned
// *echo.HTTPError is written later by the central error handler, so its code
// wins over the not-yet-written response status.
func responseStatus(c echo.Context, err error) int {
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he.Code
		}
		return http.StatusInternalServerError
	}
	if !c.Response().Committed && c.Request().Context().Err() != nil {
		return StatusClientClosedRequest
	}
	return c.Response().Status
}
