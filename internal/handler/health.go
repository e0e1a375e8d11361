package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"ratelimit-proxy-go/internal/config"
	"ratelimit-proxy-go/internal/gate"
)

// Version is a string type for dependency injection of the build version.
type Version string

// StatusInfo is the body of GET /_proxy/status.
type StatusInfo struct {
	Status      string     `json:"status"`
	Version     string     `json:"version"`
	UpstreamURL string     `json:"upstream_url"`
	Gate        gate.State `json:"rate_limiting"`
}

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	gate    *gate.Gate
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, g *gate.Gate, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, gate: g, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// Status returns proxy status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusInfo{
		Status:      "ok",
		Version:     string(h.version),
		UpstreamURL: h.cfg.Upstream.BaseURL,
		Gate:        h.gate.Check(),
	})
}
