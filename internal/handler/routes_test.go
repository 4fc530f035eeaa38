package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"redirect-proxy-go/internal/client"
	"redirect-proxy-go/internal/metrics"
	"redirect-proxy-go/internal/service"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	cfg := testConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewProxyService(client.NewUpstreamClient(cfg, logger, nil), logger, nil)

	e := echo.New()
	RegisterRoutes(e, NewProxyHandler(svc, logger), NewHealthHandler(cfg, "test"))

	target := proxyPath(upstream.URL)
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"GET /proxy/status", http.MethodGet, "/proxy/status", http.StatusOK},
		{"GET root proxy", http.MethodGet, target, http.StatusOK},
		{"POST root proxy", http.MethodPost, target, http.StatusOK},
		{"PUT root proxy", http.MethodPut, target, http.StatusOK},
		{"DELETE root proxy", http.MethodDelete, target, http.StatusOK},
		{"GET nested path proxy", http.MethodGet, "/any/path" + strings.TrimPrefix(target, "/"), http.StatusOK},
		{"GET without url", http.MethodGet, "/", http.StatusBadRequest},
		{"GET /metrics unregistered", http.MethodGet, "/metrics", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterMetrics(t *testing.T) {
	tests := []struct {
		name       string
		enabled    bool
		wantStatus int
	}{
		{"enabled", true, http.StatusOK},
		{"disabled", false, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Metrics.Enabled = tt.enabled
			m := metrics.New()
			m.RedirectLimitExceeded.Inc()

			e := echo.New()
			RegisterMetrics(e, cfg, m)

			req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.enabled && !strings.Contains(rec.Body.String(), "redirect_proxy_redirect_limit_exceeded_total 1") {
				t.Errorf("metrics output missing redirect limit counter:\n%s", rec.Body.String())
			}
		})
	}
}
