package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"ratelimit-proxy-go/internal/gate"
	"ratelimit-proxy-go/internal/metrics"
)

// StartRateLimitingRequest is the body of POST /start_rate_limiting.
type StartRateLimitingRequest struct {
	TestName *string `json:"test_name"`
}

// StatusResponse is the body of successful control responses.
type StatusResponse struct {
	Status string `json:"status"`
}

// ControlHandler toggles the rate-limit gate.
type ControlHandler struct {
	gate    *gate.Gate
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewControlHandler creates a ControlHandler. The metrics parameter is optional.
func NewControlHandler(g *gate.Gate, m *metrics.Metrics, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{
		gate:    g,
		metrics: m,
		logger:  logger.With("component", "control_handler"),
	}
}

// StartRateLimiting activates the gate for the named test.
func (h *ControlHandler) StartRateLimiting(c echo.Context) error {
	var body StartRateLimitingRequest
	// Content-Type is not required.
	if err := c.Echo().JSONSerializer.Deserialize(c, &body); err != nil && !errors.Is(err, io.EOF) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Detail: "invalid JSON body"})
	}
	if body.TestName == nil {
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Detail: "test_name is required"})
	}

	h.gate.Start(*body.TestName)
	if h.metrics != nil {
		h.metrics.GateActive.Set(1)
	}
	h.logger.Info("rate limiting started", "test_name", *body.TestName)

	return c.JSON(http.StatusOK, StatusResponse{
		Status: "rate limiting started for test: " + *body.TestName,
	})
}

// EndRateLimiting deactivates the gate. Calling it while inactive is a no-op.
func (h *ControlHandler) EndRateLimiting(c echo.Context) error {
	prev := h.gate.Check()
	h.gate.End()
	if h.metrics != nil {
		h.metrics.GateActive.Set(0)
	}
	h.logger.Info("rate limiting ended", "test_name", prev.Label, "was_active", prev.Active)

	return c.JSON(http.StatusOK, StatusResponse{Status: "rate limiting ended"})
}
