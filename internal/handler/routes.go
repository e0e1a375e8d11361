package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ProxiedMethods are the methods forwarded to the upstream on any path.
var ProxiedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
	http.MethodOptions,
	http.MethodHead,
}

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler, control *ControlHandler, health *HealthHandler) {
	e.POST("/start_rate_limiting", control.StartRateLimiting)
	e.POST("/end_rate_limiting", control.EndRateLimiting)

	e.GET("/_proxy/healthz", health.Healthz)
	e.GET("/_proxy/status", health.Status)

	e.Match(ProxiedMethods, "/*", proxy.Handle)
}
