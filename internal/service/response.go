package service

import (
	"net/http"
	"slices"
	"strconv"

	"redirect-proxy-go/internal/cors"
	"redirect-proxy-go/internal/model"
)

// excludedResponseHeaders are never copied from the final upstream response.
// Content-Encoding is dropped because the transport has already decoded the body.
var excludedResponseHeaders = map[string]bool{
	"Set-Cookie":       true,
	"Content-Encoding": true,
}

// AssembleHeaders builds the outbound response headers for a completed chain.
func AssembleHeaders(res *model.ProxyResult) http.Header {
	dst := make(http.Header)
	for key, vals := range res.Response.Header {
		if excludedResponseHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		dst[http.CanonicalHeaderKey(key)] = slices.Clone(vals)
	}

	for _, raw := range res.SetCookies {
		dst.Add(cors.HeaderSetCookie, raw)
	}

	cors.Apply(dst)

	if res.Hops > 0 {
		dst.Set(cors.HeaderRedirectCount, strconv.Itoa(res.Hops))
		dst.Set(cors.HeaderFinalURL, res.FinalURL)
	}

	return dst
}
