package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"redirect-proxy-go/internal/cors"
	"redirect-proxy-go/internal/metrics"
	"redirect-proxy-go/internal/model"
	"redirect-proxy-go/internal/service"
)

// ProxyHandler exposes the redirect-following proxy over HTTP.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle forwards the request named by the url query parameter, follows
// redirects and streams the final upstream response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Query:         req.URL.Query(),
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	res, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	resp := res.Response
	defer func() { _ = resp.Body.Close() }()
	c.Set(metrics.OutcomeKey, metrics.OutcomeForwarded)

	out := c.Response().Header()
	for key, vals := range service.AssembleHeaders(res) {
		out[key] = vals
	}

	h.logger.Debug("chain complete",
		"status", resp.StatusCode,
		"status_text", resp.StatusText,
		"hops", res.Hops,
		"final_url", res.FinalURL,
	)

	c.Response().WriteHeader(resp.StatusCode)

	// The status line is already sent; a failed copy leaves the client
	// with a truncated body.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"final_url", res.FinalURL,
		)
	}

	return nil
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	cors.Apply(c.Response().Header())

	var inputErr *service.InputError
	if errors.As(err, &inputErr) {
		c.Set(metrics.OutcomeKey, metrics.OutcomeRejected)
		h.logger.Info("rejected request", "err", err)
		return c.String(http.StatusBadRequest, inputErr.Message)
	}

	if errors.Is(err, service.ErrTooManyRedirects) {
		c.Set(metrics.OutcomeKey, metrics.OutcomeRedirectLimit)
		h.logger.Warn("redirect limit exceeded",
			"target", redactedTarget(c),
			"max_redirects", service.MaxRedirects,
		)
		return c.String(http.StatusLoopDetected, "Too many redirects")
	}

	c.Set(metrics.OutcomeKey, metrics.OutcomeFailed)
	level := slog.LevelError
	if errors.Is(err, context.Canceled) {
		level = slog.LevelInfo
	}
	h.logger.Log(c.Request().Context(), level, "proxy error",
		"err", err,
		"target", redactedTarget(c),
	)

	return c.String(http.StatusInternalServerError, "Proxy execution error: "+err.Error())
}

// redactedTarget returns the target URL with any password masked.
func redactedTarget(c echo.Context) string {
	raw := c.QueryParam(service.TargetParam)
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Redacted()
}
