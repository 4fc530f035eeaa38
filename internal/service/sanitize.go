package service

import (
	"net/url"

	"redirect-proxy-go/internal/cors"
	"redirect-proxy-go/internal/model"
)

// TargetParam is the query parameter carrying the URL to fetch.
const TargetParam = "url"

// Target is a validated proxy request.
type Target struct {
	URL        *url.URL
	SeedCookie string
}

// Sanitize validates the target parameter of pr and extracts the caller's
// seed cookie from X-Forwarded-Cookie.
func Sanitize(pr *model.ProxyRequest) (*Target, error) {
	raw := pr.Query.Get(TargetParam)
	if raw == "" {
		return nil, ErrMissingParameter
	}

	u, err := ParseTarget(raw)
	if err != nil {
		return nil, err
	}

	return &Target{
		URL:        u,
		SeedCookie: pr.Header.Get(cors.HeaderForwardedCookie),
	}, nil
}

// ParseTarget parses raw as an absolute http or https URL.
func ParseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrInvalidURL.withCause(err)
	}
	if !u.IsAbs() {
		return nil, ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrUnsupportedScheme
	}
	if u.Host == "" {
		return nil, ErrInvalidURL
	}
	return u, nil
}
