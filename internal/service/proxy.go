// Package service implements request sanitization, the manual redirect loop
// and response header reconciliation.
package service

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"redirect-proxy-go/internal/client"
	"redirect-proxy-go/internal/cookies"
	"redirect-proxy-go/internal/metrics"
	"redirect-proxy-go/internal/model"
)

// MaxRedirects is the number of redirect hops after which a chain is aborted.
const MaxRedirects = 10

// DefaultUserAgent is sent when the caller did not supply a User-Agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// drainLimit caps how much of a redirect body is read to allow connection reuse.
const drainLimit = 64 << 10

// excludedRequestHeaders are never copied from the inbound request.
// Accept-Encoding is withheld so the transport negotiates compression and
// decodes the body itself; Content-Encoding is dropped on the way back.
var excludedRequestHeaders = map[string]bool{
	"Origin":          true,
	"Host":            true,
	"Cookie":          true,
	"Accept-Encoding": true,
}

// ProxyService drives the redirect-following request cycle.
// It holds no per-request state and is safe for concurrent use.
type ProxyService struct {
	client  *client.UpstreamClient
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyService creates a ProxyService. The metrics parameter is optional.
func NewProxyService(c *client.UpstreamClient, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return &ProxyService{
		client:  c,
		logger:  logger.With("component", "proxy_service"),
		metrics: m,
	}
}

// redirectState tracks one chain. hops never exceeds MaxRedirects.
type redirectState struct {
	current *url.URL
	hops    int
}

// Forward sanitizes pr and follows redirects until a terminal response is
// reached. The caller is responsible for closing the final response body.
//
// Hops run strictly one after another: the Cookie and Referer headers of
// hop n+1 are derived from the response of hop n. The first failure aborts
// the chain and everything accumulated so far is dropped.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResult, error) {
	target, err := Sanitize(pr)
	if err != nil {
		return nil, err
	}

	jar := cookies.New(target.SeedCookie)
	state := &redirectState{current: target.URL}
	body := firstHopBody(pr)

	for state.hops < MaxRedirects {
		header := buildRequestHeaders(pr.Header, state.current, jar)

		s.logger.Debug("forwarding hop",
			"hop", state.hops,
			"method", pr.Method,
			"url", state.current.Redacted(),
		)

		resp, err := s.client.DoStream(pr.Ctx, pr.Method, state.current.String(), header, body, pr.ContentLength)
		// The inbound body is consumed by the first hop only.
		body = nil
		if err != nil {
			return nil, &UpstreamError{Hop: state.hops, URL: state.current.Redacted(), Err: err}
		}

		for _, raw := range resp.Header.Values("Set-Cookie") {
			jar.Record(raw)
		}

		next, ok := s.redirectTarget(resp, state.current)
		if !ok {
			if s.metrics != nil {
				s.metrics.RedirectHops.Observe(float64(state.hops))
			}
			return &model.ProxyResult{
				Response:   resp,
				Hops:       state.hops,
				FinalURL:   state.current.String(),
				SetCookies: jar.Exposed(),
			}, nil
		}

		discard(resp.Body)
		state.current = next
		state.hops++
	}

	if s.metrics != nil {
		s.metrics.RedirectLimitExceeded.Inc()
	}
	return nil, ErrTooManyRedirects
}

// firstHopBody returns the inbound body when the method may carry one.
func firstHopBody(pr *model.ProxyRequest) io.Reader {
	if pr.Body == nil || pr.Method == http.MethodGet || pr.Method == http.MethodHead {
		return nil
	}
	return pr.Body
}

// buildRequestHeaders derives the outbound headers for a hop to current.
func buildRequestHeaders(src http.Header, current *url.URL, jar *cookies.Jar) http.Header {
	dst := make(http.Header, len(src)+3)
	for key, vals := range src {
		if excludedRequestHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		dst[http.CanonicalHeaderKey(key)] = slices.Clone(vals)
	}

	dst.Set("Referer", originOf(current)+"/")

	if c := jar.Header(); c != "" {
		dst.Set("Cookie", c)
	}

	if len(dst.Values("User-Agent")) == 0 {
		dst.Set("User-Agent", DefaultUserAgent)
	}

	return dst
}

// originOf returns scheme://host[:port] of u, omitting the scheme's default port.
func originOf(u *url.URL) string {
	host := strings.ToLower(u.Host)
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		host = strings.TrimSuffix(host, ":"+port)
	}
	return u.Scheme + "://" + host
}

// redirectTarget returns the resolved Location of a 3xx response. It reports
// false when resp is not a redirect or its Location is missing or unusable,
// in which case resp is the final response.
func (s *ProxyService) redirectTarget(resp *model.ProxyResponse, current *url.URL) (*url.URL, bool) {
	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return nil, false
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, false
	}

	next, err := current.Parse(location)
	if err != nil || next.Scheme == "" || next.Host == "" {
		s.logger.Warn("unresolvable redirect location",
			"status", resp.StatusCode,
			"location", location,
			"err", err,
		)
		return nil, false
	}
	return next, true
}

// discard drains a bounded amount of body and closes it.
func discard(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, drainLimit))
	_ = body.Close()
}
