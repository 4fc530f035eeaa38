// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// ProxyRequest represents a client request to be forwarded upstream.
// Body is single-use: it is handed to the first outbound hop only.
type ProxyRequest struct {
	Ctx           context.Context
	Method        string
	Query         url.Values
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
}

// ProxyResponse is the response of a single upstream hop.
type ProxyResponse struct {
	StatusCode int
	StatusText string
	Header     http.Header
	Body       io.ReadCloser
}

// ProxyResult is the outcome of a completed redirect chain.
type ProxyResult struct {
	Response   *ProxyResponse
	Hops       int
	FinalURL   string
	SetCookies []string
}
