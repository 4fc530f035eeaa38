package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"redirect-proxy-go/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that records request counts,
// latency and, for proxy requests, the outcome stored by the handler under
// metrics.OutcomeKey.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)
			duration := time.Since(start).Seconds()

			req := c.Request()
			status := strconv.Itoa(statusOf(c, err))
			method := metrics.NormalizeMethod(req.Method)
			path := metrics.NormalizePath(req.URL.Path)

			m.RequestsTotal.WithLabelValues(method, status, path).Inc()
			m.RequestDuration.WithLabelValues(method, status, path).Observe(duration)

			if path == "proxy" {
				m.ProxyOutcomes.WithLabelValues(outcomeOf(c)).Inc()
			}

			return err
		}
	}
}

// statusOf resolves the response status. An *echo.HTTPError has not been
// written yet when the middleware sees it.
func statusOf(c echo.Context, err error) int {
	var he *echo.HTTPError
	if err != nil && errors.As(err, &he) {
		return he.Code
	}
	return c.Response().Status
}

func outcomeOf(c echo.Context) string {
	if c.Request().Method == http.MethodOptions {
		return metrics.OutcomePreflight
	}
	if o, ok := c.Get(metrics.OutcomeKey).(string); ok && o != "" {
		return o
	}
	return metrics.OutcomeFailed
}
