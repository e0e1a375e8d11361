// Package client provides the upstream HTTP client.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"ratelimit-proxy-go/internal/config"
	"ratelimit-proxy-go/internal/metrics"
	"ratelimit-proxy-go/internal/model"
)

// ErrReadIdleTimeout is returned by a response body whose single Read call
// stalled longer than the configured idle timeout.
var ErrReadIdleTimeout = errors.New("upstream body read idle timeout")

// UpstreamClient sends requests to the configured upstream.
type UpstreamClient struct {
	httpClient      *http.Client
	readIdleTimeout time.Duration
	logger          *slog.Logger
	metrics         *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
//
// There is no overall http.Client.Timeout: it would also bound body reads and
// cut off long streams. Dial and response-header waits are bounded by
// upstream.timeout_seconds; each body read by upstream.read_idle_timeout_seconds.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	timeout := time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second

	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		// Relay encoded bodies untouched.
		DisableCompression: true,
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			// Relay redirects instead of following them.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		readIdleTimeout: time.Duration(cfg.Upstream.ReadIdleTimeoutSeconds) * time.Second,
		logger:          logger.With("component", "upstream_client"),
		metrics:         m,
	}
}

// Do executes an HTTP request against the upstream and returns the raw response.
// The caller is responsible for closing the response body.
//
// Go moves a chunked Transfer-Encoding out of the header map; Do puts it back
// so header-only inspection of the response sees it.
func (c *UpstreamClient) Do(req *http.Request) (*model.ProxyResponse, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"url", req.URL.Redacted(),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
			c.metrics.UpstreamErrors.WithLabelValues(FailureReason(err)).Inc()
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	if len(resp.TransferEncoding) > 0 {
		resp.Header.Set("Transfer-Encoding", strings.Join(resp.TransferEncoding, ", "))
	}

	return &model.ProxyResponse{
		Method:     req.Method,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// DoStream sends body to the upstream as it is read and returns the response
// body as a stream. The caller is responsible for closing the returned body;
// closing it also cancels the upstream exchange.
//
// contentLength is forwarded as-is: -1 makes the upstream request chunked.
// The provided context controls the lifetime of the upstream request: when it
// is canceled (e.g. client disconnects), the upstream request is also canceled.
func (c *UpstreamClient) DoStream(ctx context.Context, method, target string, header http.Header, body io.Reader, contentLength int64) (*model.ProxyResponse, error) {
	ctx, cancel := context.WithCancel(ctx)

	if body == nil || contentLength == 0 {
		body = http.NoBody
		contentLength = 0
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if header == nil {
		header = make(http.Header)
	}
	req.Header = header
	req.ContentLength = contentLength
	// Suppress Go's default User-Agent when the client sent none.
	if _, ok := header["User-Agent"]; !ok {
		req.Header.Set("User-Agent", "")
	}

	resp, err := c.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}

	resp.Body = newIdleTimeoutBody(resp.Body, c.readIdleTimeout, cancel)
	return resp, nil
}

// FailureReason classifies a pre-response upstream error into a bounded label.
func FailureReason(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error
	var urlErr *url.Error

	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &dnsErr):
		return "dns"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "refused"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &urlErr):
		return "connection"
	default:
		return "other"
	}
}

// idleTimeoutBody cancels the upstream exchange when one Read blocks longer
// than timeout. The watchdog only runs while a Read is in progress, so a slow
// downstream writer does not count against the upstream.
type idleTimeoutBody struct {
	rc      io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	fired   atomic.Bool
	cancel  context.CancelFunc
}

func newIdleTimeoutBody(rc io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *idleTimeoutBody {
	b := &idleTimeoutBody{rc: rc, timeout: timeout, cancel: cancel}
	if timeout > 0 {
		b.timer = time.AfterFunc(timeout, func() {
			b.fired.Store(true)
			cancel()
		})
		b.timer.Stop()
	}
	return b
}

func (b *idleTimeoutBody) Read(p []byte) (int, error) {
	if b.timer == nil {
		return b.rc.Read(p)
	}

	b.timer.Reset(b.timeout)
	n, err := b.rc.Read(p)
	b.timer.Stop()

	if err != nil && err != io.EOF && b.fired.Load() {
		return n, fmt.Errorf("%w after %s", ErrReadIdleTimeout, b.timeout)
	}
	return n, err
}

func (b *idleTimeoutBody) Close() error {
	if b.timer != nil {
		b.timer.Stop()
	}
	err := b.rc.Close()
	b.cancel()
	return err
}
