// Package service implements the core proxy forwarding logic.
package service

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"ratelimit-proxy-go/internal/client"
	"ratelimit-proxy-go/internal/config"
	"ratelimit-proxy-go/internal/model"
)

// ProxyService builds and sends upstream requests.
type ProxyService struct {
	client  *client.UpstreamClient
	logger  *slog.Logger
	baseURL *url.URL
}

// NewProxyService creates a ProxyService for the configured upstream base URL.
func NewProxyService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" || !strings.HasSuffix(u.Path, "/") {
		return nil, fmt.Errorf("upstream base_url %q must be absolute and end with a slash", cfg.Upstream.BaseURL)
	}

	return &ProxyService{
		client:  c,
		logger:  logger.With("component", "proxy_service"),
		baseURL: u,
	}, nil
}

// BaseURL returns the upstream base URL.
func (s *ProxyService) BaseURL() string {
	return s.baseURL.String()
}

// Forward sends a ProxyRequest upstream and returns the response as soon as
// its headers arrive. The inbound body is streamed, never buffered.
// The caller is responsible for closing the response body.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	upstreamURL := s.buildUpstreamURL(pr.Path, pr.RawPath, pr.RawQuery)
	header := forwardHeaders(pr.Header)

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"url", upstreamURL,
	)

	resp, err := s.client.DoStream(pr.Ctx, pr.Method, upstreamURL, header, pr.Body, pr.ContentLength)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}
	return resp, nil
}

// buildUpstreamURL resolves the inbound path relative to the base URL, so a
// base of http://h/api/ and a path of /v1/items give http://h/api/v1/items.
// The raw query is forwarded without re-encoding.
func (s *ProxyService) buildUpstreamURL(path, rawPath, rawQuery string) string {
	ref := &url.URL{
		Path:    strings.TrimLeft(path, "/"),
		RawPath: strings.TrimLeft(rawPath, "/"),
	}

	u := s.baseURL.ResolveReference(ref)
	u.RawQuery = rawQuery
	u.Fragment = ""
	return u.String()
}

// forwardHeaders copies every inbound header except Host. Hop-by-hop headers
// are already removed by middleware before the handler runs.
func forwardHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	dst.Del("Host")
	return dst
}
