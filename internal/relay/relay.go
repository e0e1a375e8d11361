// Package relay writes upstream responses back to the client, either streamed
// chunk by chunk or buffered in full, depending on the response headers.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"ratelimit-proxy-go/internal/config"
	"ratelimit-proxy-go/internal/headers"
	"ratelimit-proxy-go/internal/metrics"
	"ratelimit-proxy-go/internal/model"
)

// ErrBufferLimit is returned when a buffered response body exceeds the
// configured maximum.
var ErrBufferLimit = errors.New("upstream response body too large to buffer")

const copyBufferSize = 32 * 1024

var copyBufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, copyBufferSize)
		return &buf
	},
}

// Result describes a finished delivery.
type Result struct {
	// Mode is the delivery mode chosen from the response headers.
	Mode model.DeliveryMode
	// Bytes is the number of body bytes written to the client.
	Bytes int64
	// Truncated reports that the upstream body failed mid-stream.
	Truncated bool
	// ClientGone reports that the client went away mid-delivery.
	ClientGone bool
}

// Delivery writes one upstream response to the client.
type Delivery interface {
	Deliver(ctx context.Context, w http.ResponseWriter, resp *model.ProxyResponse) (Result, error)
}

// Relay picks a Delivery per response and records what happened.
type Relay struct {
	stream  Delivery
	buffer  Delivery
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Relay. The metrics parameter is optional.
func New(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *Relay {
	return &Relay{
		stream:  streamDelivery{},
		buffer:  bufferDelivery{maxBytes: cfg.Upstream.MaxBufferBytes},
		metrics: m,
		logger:  logger.With("component", "relay"),
	}
}

// Relay classifies resp and delivers it. ctx is the inbound request context;
// once it is done, a failed upstream read counts as the client leaving rather
// than as a truncation. The upstream body is always closed. A non-nil error
// means nothing was written to w.
func (r *Relay) Relay(ctx context.Context, w http.ResponseWriter, resp *model.ProxyResponse) (Result, error) {
	defer func() { _ = resp.Body.Close() }()

	mode := Classify(resp.Header)
	d := r.buffer
	if mode == model.ModeStream {
		d = r.stream
	}

	res, err := d.Deliver(ctx, w, resp)
	res.Mode = mode
	if err != nil {
		return res, err
	}

	if r.metrics != nil {
		r.metrics.Deliveries.WithLabelValues(mode.String()).Inc()
		r.metrics.RelayedBytes.WithLabelValues(mode.String()).Add(float64(res.Bytes))
		if res.Truncated {
			r.metrics.StreamAborts.Inc()
		}
	}

	r.logger.Debug("response relayed",
		"mode", mode.String(),
		"status", resp.StatusCode,
		"bytes", res.Bytes,
		"truncated", res.Truncated,
		"client_gone", res.ClientGone,
	)

	return res, nil
}

// writeHeader copies end-to-end upstream headers onto w. Content-Length is
// kept only when keepLength is set.
func writeHeader(w http.ResponseWriter, src http.Header, keepLength bool) {
	h := src.Clone()
	if h == nil {
		h = make(http.Header)
	}
	headers.RemoveHopByHop(h)
	if !keepLength {
		h.Del("Content-Length")
	}
	headers.Copy(w.Header(), h)
}

// bodyless reports whether resp can carry no body, so its Content-Length
// describes a representation that is never sent.
func bodyless(resp *model.ProxyResponse) bool {
	switch {
	case resp.Method == http.MethodHead:
		return true
	case resp.StatusCode >= 100 && resp.StatusCode < 200:
		return true
	case resp.StatusCode == http.StatusNoContent, resp.StatusCode == http.StatusNotModified:
		return true
	}
	return false
}

// streamDelivery forwards body chunks as they arrive.
type streamDelivery struct{}

func (streamDelivery) Deliver(ctx context.Context, w http.ResponseWriter, resp *model.ProxyResponse) (Result, error) {
	writeHeader(w, resp.Header, bodyless(resp))
	w.WriteHeader(resp.StatusCode)

	rc := http.NewResponseController(w)
	_ = rc.Flush()

	bufp := copyBufferPool.Get().(*[]byte)
	defer copyBufferPool.Put(bufp)
	buf := *bufp

	var res Result
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			written, werr := w.Write(buf[:n])
			res.Bytes += int64(written)
			if werr != nil {
				res.ClientGone = true
				return res, nil
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				res.ClientGone = true
				return res, nil
			}
		}
		if rerr == io.EOF {
			return res, nil
		}
		if rerr != nil {
			if ctx.Err() != nil {
				res.ClientGone = true
			} else {
				res.Truncated = true
			}
			return res, nil
		}
	}
}

// bufferDelivery reads the whole body before writing anything.
type bufferDelivery struct {
	maxBytes int64
}

func (d bufferDelivery) Deliver(_ context.Context, w http.ResponseWriter, resp *model.ProxyResponse) (Result, error) {
	body, err := readLimited(resp.Body, d.maxBytes)
	if err != nil {
		return Result{}, err
	}

	upstreamLength := resp.Header.Get("Content-Length")
	writeHeader(w, resp.Header, false)
	switch {
	case len(body) > 0:
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	case upstreamLength != "":
		// HEAD and 304 responses advertise a length without sending a body.
		w.Header().Set("Content-Length", upstreamLength)
	}
	w.WriteHeader(resp.StatusCode)

	if len(body) == 0 {
		return Result{}, nil
	}
	n, err := w.Write(body)
	return Result{Bytes: int64(n), ClientGone: err != nil}, nil
}

// readLimited reads r fully. A maxBytes of zero or less means no limit.
func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read upstream body: %w", err)
		}
		return body, nil
	}

	body, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrBufferLimit, maxBytes)
	}
	return body, nil
}
