// Package middleware provides Echo middleware for logging, CORS, metrics
// and inbound header hygiene.
package middleware

import (
	"log/slog"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"redirect-proxy-go/internal/cors"
	"redirect-proxy-go/internal/metrics"
)

// RequestLogger returns an Echo middleware that logs one line per request.
// Server errors log at Error, client errors at Warn, everything else at Info.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			res := c.Response()
			status := statusOf(c, err)

			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
			}
			if host := targetHost(c.QueryParam("url")); host != "" {
				attrs = append(attrs, "target_host", host)
			}
			if n := res.Header().Get(cors.HeaderRedirectCount); n != "" {
				attrs = append(attrs, "redirects", n)
			}
			if o, ok := c.Get(metrics.OutcomeKey).(string); ok {
				attrs = append(attrs, "outcome", o)
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			logger.Log(req.Context(), level, "request", attrs...)

			return err
		}
	}
}

// targetHost returns only the host of the proxy target so credentials and
// query strings in the target URL stay out of the logs.
func targetHost(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
