// Package headers implements the hop-by-hop header rules shared by the
// request and response paths.
package headers

import (
	"net/http"
	"net/textproto"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// hopByHop are headers that apply to a single connection and must not be
// forwarded by proxies (RFC 9110 section 7.6.1).
var hopByHop = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// RemoveHopByHop deletes hop-by-hop headers from h in place, including any
// field named in the Connection header. A "Te: trailers" request header is
// kept because it is meaningful end to end.
func RemoveHopByHop(h http.Header) {
	wantTrailers := httpguts.HeaderValuesContainsToken(h["Te"], "trailers")

	for _, f := range h["Connection"] {
		for _, sf := range strings.Split(f, ",") {
			if sf = textproto.TrimString(sf); sf != "" && httpguts.ValidHeaderFieldName(sf) {
				h.Del(sf)
			}
		}
	}
	for _, f := range hopByHop {
		h.Del(f)
	}

	if wantTrailers {
		h.Set("Te", "trailers")
	}
}

// Copy adds every value of src to dst.
func Copy(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
