package proxy

import "net/http"

// hopByHop lists the headers that name connection-specific information and
// must never be forwarded across a proxy hop, per RFC 7230 section 6.1.
var hopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailers":            true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

func isHopByHop(key string) bool {
	return hopByHop[http.CanonicalHeaderKey(key)]
}

// stripHopByHop returns a copy of h with hop-by-hop headers removed. The Go
// HTTP stack already delivers and stores headers in canonical form, so
// unlike a CGI-style handler there is no HTTP_ prefix or case folding to
// undo first.
func stripHopByHop(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		if isHopByHop(k) {
			continue
		}
		out[k] = v
	}
	return out
}
