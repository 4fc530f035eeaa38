package handler

import (
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"

	"redirect-proxy-go/internal/client"
	"redirect-proxy-go/internal/config"
	"redirect-proxy-go/internal/cors"
	"redirect-proxy-go/internal/middleware"
	"redirect-proxy-go/internal/service"
)

func testConfig() *config.Config {
	return &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
		Metrics: config.MetricsConfig{Path: "/metrics"},
	}
}

// newTestServer returns an Echo instance wired the way the binary wires the
// proxy: CORS middleware in front of the registered routes.
func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	cfg := testConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewProxyService(client.NewUpstreamClient(cfg, logger, nil), logger, nil)

	e := echo.New()
	e.Use(middleware.CORS())
	RegisterRoutes(e, NewProxyHandler(svc, logger), NewHealthHandler(cfg, "test"))
	return e
}

func proxyPath(target string) string {
	return "/?" + url.Values{service.TargetParam: {target}}.Encode()
}

func assertCORS(t *testing.T, h http.Header) {
	t.Helper()
	for key, vals := range cors.Headers() {
		if got := h.Get(key); got != vals[0] {
			t.Errorf("%s = %q, want %q", key, got, vals[0])
		}
	}
}

func TestProxyHandler_RedirectChain(t *testing.T) {
	var endCookie string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/start":
			w.Header().Add("Set-Cookie", "s=1; Path=/")
			w.Header().Set("Location", "/mid")
			w.WriteHeader(http.StatusFound)
		case "/mid":
			w.Header().Add("Set-Cookie", "t=2; HttpOnly")
			w.Header().Set("Location", "/end")
			w.WriteHeader(http.StatusFound)
		case "/end":
			endCookie = r.Header.Get("Cookie")
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("OK"))
		}
	}))
	defer upstream.Close()

	e := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, proxyPath(upstream.URL+"/start"), http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "OK")
	}
	if got := rec.Header().Get(cors.HeaderRedirectCount); got != "2" {
		t.Errorf("%s = %q, want %q", cors.HeaderRedirectCount, got, "2")
	}
	if got := rec.Header().Get(cors.HeaderFinalURL); got != upstream.URL+"/end" {
		t.Errorf("%s = %q, want %q", cors.HeaderFinalURL, got, upstream.URL+"/end")
	}
	wantCookies := []string{"s=1; Path=/", "t=2; HttpOnly"}
	if got := rec.Header().Values(cors.HeaderSetCookie); !reflect.DeepEqual(got, wantCookies) {
		t.Errorf("%s = %v, want %v", cors.HeaderSetCookie, got, wantCookies)
	}
	if got := rec.Header().Values("Set-Cookie"); len(got) != 0 {
		t.Errorf("Set-Cookie = %v, want none", got)
	}
	if endCookie != "s=1; t=2" {
		t.Errorf("Cookie at /end = %q, want %q", endCookie, "s=1; t=2")
	}
	assertCORS(t, rec.Header())
}

func TestProxyHandler_DirectResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	e := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, proxyPath(upstream.URL), http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("X-Upstream") != "yes" {
		t.Error("upstream header not copied")
	}
	if rec.Header().Get(cors.HeaderRedirectCount) != "" || rec.Header().Get(cors.HeaderFinalURL) != "" {
		t.Error("redirect headers must be absent when no redirect was followed")
	}
}

func TestProxyHandler_ForwardsPostBody(t *testing.T) {
	var gotMethod, gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotMethod, gotBody = r.Method, string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer upstream.Close()

	e := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, proxyPath(upstream.URL+"/items"), strings.NewReader(`{"name":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("upstream method = %q, want POST", gotMethod)
	}
	if gotBody != `{"name":"x"}` {
		t.Errorf("upstream body = %q", gotBody)
	}
}

func TestProxyHandler_DecodedBodyDropsContentEncoding(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			_, _ = w.Write([]byte("plain"))
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "text/plain")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte("compressed payload"))
		_ = gz.Close()
	}))
	defer upstream.Close()

	e := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, proxyPath(upstream.URL), http.NoBody)
	req.Header.Set("Accept-Encoding", "br")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("Content-Encoding"); got != "" {
		t.Errorf("Content-Encoding = %q, want absent", got)
	}
	if rec.Body.String() != "compressed payload" {
		t.Errorf("body = %q, want decoded payload", rec.Body.String())
	}
}

func TestProxyHandler_ClientErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantBody string
	}{
		{"missing url", "/", "Missing ?url= parameter in proxy request."},
		{"empty url", "/?url=", "Missing ?url= parameter in proxy request."},
		{"relative url", proxyPath("/just/a/path"), "Invalid URL format."},
		{"malformed url", proxyPath("http://[::1"), "Invalid URL format."},
		{"ftp scheme", proxyPath("ftp://files.example/a"), "Only HTTP/HTTPS URLs are allowed."},
		{"javascript scheme", proxyPath("javascript:alert(1)"), "Only HTTP/HTTPS URLs are allowed."},
	}

	e := newTestServer(t)
	for _, tt := range tests {
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
			t.Run(tt.name+"/"+method, func(t *testing.T) {
				req := httptest.NewRequest(method, tt.path, http.NoBody)
				rec := httptest.NewRecorder()
				e.ServeHTTP(rec, req)

				if rec.Code != http.StatusBadRequest {
					t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
				}
				if rec.Body.String() != tt.wantBody {
					t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
				}
				if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/plain") {
					t.Errorf("Content-Type = %q, want text/plain", ct)
				}
				assertCORS(t, rec.Header())
			})
		}
	}
}

func TestProxyHandler_TooManyRedirects(t *testing.T) {
	var hits atomic.Int32
	var upstream *httptest.Server
	upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		n, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/"))
		w.Header().Add("Set-Cookie", "n="+strconv.Itoa(n))
		w.Header().Set("Location", upstream.URL+"/"+strconv.Itoa(n+1))
		w.WriteHeader(http.StatusMovedPermanently)
	}))
	defer upstream.Close()

	e := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, proxyPath(upstream.URL+"/0"), http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusLoopDetected {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusLoopDetected)
	}
	if rec.Body.String() != "Too many redirects" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "Too many redirects")
	}
	if got := int(hits.Load()); got != service.MaxRedirects {
		t.Errorf("upstream hits = %d, want %d", got, service.MaxRedirects)
	}
	if got := rec.Header().Values(cors.HeaderSetCookie); len(got) != 0 {
		t.Errorf("%s = %v, want none on failure", cors.HeaderSetCookie, got)
	}
	assertCORS(t, rec.Header())
}

func TestProxyHandler_UpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := upstream.URL
	upstream.Close()

	e := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, proxyPath(addr+"/gone"), http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if !strings.HasPrefix(rec.Body.String(), "Proxy execution error: ") {
		t.Errorf("body = %q, want Proxy execution error prefix", rec.Body.String())
	}
	assertCORS(t, rec.Header())
}

func TestProxyHandler_RedirectToUnsupportedScheme(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Location", "ftp://files.example/a")
		w.WriteHeader(http.StatusFound)
	}))
	defer upstream.Close()

	e := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, proxyPath(upstream.URL), http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestProxyHandler_OptionsShortCircuits(t *testing.T) {
	e := newTestServer(t)
	for _, path := range []string{"/", proxyPath("ftp://nope"), proxyPath("https://a.example/"), "/healthz"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusNoContent {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
			}
			if rec.Body.Len() != 0 {
				t.Errorf("body = %q, want empty", rec.Body.String())
			}
			assertCORS(t, rec.Header())
		})
	}
}
