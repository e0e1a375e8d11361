package relay

import (
	"net/http"
	"strconv"
	"strings"

	"ratelimit-proxy-go/internal/model"
)

// StreamThreshold is the Content-Length above which a response is streamed.
const StreamThreshold = 1024 * 1024

// streamedContentTypes are media type prefixes that are always streamed.
var streamedContentTypes = []string{
	"application/octet-stream",
	"application/pdf",
	"application/zip",
	"image/",
	"video/",
	"audio/",
}

// Classify decides the delivery mode from response headers alone. It never
// touches the body, so it can run before any body byte is consumed.
func Classify(h http.Header) model.DeliveryMode {
	if strings.Contains(strings.ToLower(h.Get("Transfer-Encoding")), "chunked") {
		return model.ModeStream
	}

	if strings.Contains(strings.ToLower(h.Get("Content-Disposition")), "attachment") {
		return model.ModeStream
	}

	contentType := strings.ToLower(h.Get("Content-Type"))
	for _, prefix := range streamedContentTypes {
		if strings.HasPrefix(contentType, prefix) {
			return model.ModeStream
		}
	}

	// Missing or unparsable lengths count as zero.
	if n, err := strconv.ParseInt(strings.TrimSpace(h.Get("Content-Length")), 10, 64); err == nil && n > StreamThreshold {
		return model.ModeStream
	}

	return model.ModeBuffer
}
