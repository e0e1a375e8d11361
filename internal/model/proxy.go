// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents a client request to be forwarded upstream.
type ProxyRequest struct {
	Ctx      context.Context
	Method   string
	Path     string
	RawPath  string // escaped form of Path, empty when the default encoding applies
	RawQuery string // forwarded verbatim
	Header   http.Header
	Body     io.ReadCloser
	// ContentLength is -1 when unknown (chunked inbound body).
	ContentLength int64
}

// ProxyResponse represents the upstream response to be relayed back.
// Closing Body releases the upstream connection.
type ProxyResponse struct {
	// Method is the method of the request this response answers.
	Method     string
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// DeliveryMode selects how an upstream response is relayed to the client.
type DeliveryMode int

const (
	// ModeBuffer reads the whole upstream body before replying.
	ModeBuffer DeliveryMode = iota
	// ModeStream relays body bytes as they arrive.
	ModeStream
)

func (m DeliveryMode) String() string {
	switch m {
	case ModeStream:
		return "stream"
	case ModeBuffer:
		return "buffer"
	default:
		return "unknown"
	}
}
