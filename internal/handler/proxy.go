package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"ratelimit-proxy-go/internal/client"
	"ratelimit-proxy-go/internal/gate"
	"ratelimit-proxy-go/internal/metrics"
	"ratelimit-proxy-go/internal/model"
	"ratelimit-proxy-go/internal/relay"
	"ratelimit-proxy-go/internal/service"
)

// ErrorResponse is the JSON body of every error the proxy generates itself.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// ProxyHandler forwards requests to the upstream unless the gate is active.
type ProxyHandler struct {
	service *service.ProxyService
	gate    *gate.Gate
	relay   *relay.Relay
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is optional.
func NewProxyHandler(svc *service.ProxyService, g *gate.Gate, r *relay.Relay, m *metrics.Metrics, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		gate:    g,
		relay:   r,
		metrics: m,
		logger:  logger.With("component", "proxy_handler"),
		now:     time.Now,
	}
}

// Handle rejects the request with a synthetic 429 while the gate is active;
// otherwise it forwards the request and relays the upstream response.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	if state := h.gate.Check(); state.Active {
		h.logger.Info("rate limiting request",
			"test_name", state.Label,
			"method", req.Method,
			"path", req.URL.Path,
		)
		if h.metrics != nil {
			h.metrics.GateRejections.Inc()
		}
		c.Response().Header().Set("Retry-After", gate.RetryAfter(h.now()))
		return c.JSON(http.StatusTooManyRequests, ErrorResponse{Detail: "Rate limit exceeded"})
	}

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Path:          req.URL.Path,
		RawPath:       req.URL.RawPath,
		RawQuery:      req.URL.RawQuery,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}

	res, err := h.relay.Relay(req.Context(), c.Response(), resp)
	if err != nil {
		return h.mapError(c, err)
	}

	if res.Truncated {
		h.logger.Warn("upstream stream ended early",
			"path", req.URL.Path,
			"mode", res.Mode.String(),
			"bytes", res.Bytes,
		)
	}
	if res.ClientGone {
		h.logger.Debug("client went away during relay",
			"path", req.URL.Path,
			"mode", res.Mode.String(),
			"bytes", res.Bytes,
		)
	}

	return nil
}

// mapError turns a failure before the first response byte into a 502. When
// the inbound client has already gone away nothing is written.
func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	req := c.Request()

	if req.Context().Err() != nil {
		h.logger.Debug("client disconnected before upstream responded",
			"path", req.URL.Path,
			"err", err,
		)
		return nil
	}

	h.logger.Error("proxy error",
		"err", err,
		"reason", client.FailureReason(err),
		"path", req.URL.Path,
	)

	return c.JSON(http.StatusBadGateway, ErrorResponse{
		Detail: "Error connecting to upstream server: " + describeError(err),
	})
}

// describeError returns the transport-level cause without the request URL,
// which may carry credentials in its query.
func describeError(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "upstream request timed out"
	}
	return err.Error()
}
