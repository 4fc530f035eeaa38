// Package cors holds the fixed cross-origin header set attached to every
// proxy response, success or error.
package cors

import "net/http"

// Header names beyond the standard CORS set.
const (
	HeaderForwardedCookie = "X-Forwarded-Cookie"
	HeaderSetCookie       = "X-Set-Cookie"
	HeaderRedirectCount   = "X-Redirect-Count"
	HeaderFinalURL        = "X-Final-URL"
)

var headers = [][2]string{
	{"Access-Control-Allow-Origin", "*"},
	{"Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS"},
	{"Access-Control-Allow-Headers", "Content-Type, " + HeaderForwardedCookie + ", Authorization"},
	{"Access-Control-Expose-Headers", HeaderSetCookie + ", Date, Content-Length, " + HeaderRedirectCount + ", " + HeaderFinalURL},
	{"Access-Control-Max-Age", "86400"},
}

// Apply sets the CORS header set on h, replacing any existing values.
func Apply(h http.Header) {
	for _, kv := range headers {
		h.Set(kv[0], kv[1])
	}
}

// Headers returns a fresh copy of the CORS header set.
func Headers() http.Header {
	h := make(http.Header, len(headers))
	Apply(h)
	return h
}
