package middleware_test

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen11/cclog-share/internal/config"
	"github.com/jsamuelsen11/cclog-share/internal/metrics"
	"github.com/jsamuelsen11/cclog-share/internal/middleware"
	"github.com/jsamuelsen11/cclog-share/internal/models"
	"github.com/jsamuelsen11/cclog-share/internal/ratelimit"
	"github.com/jsamuelsen11/cclog-share/internal/token"
)

const testSecret = "test-admin-secret"

func newStack(t *testing.T, cfg *config.Config) (*middleware.Stack, *metrics.Metrics, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	m := metrics.New(prometheus.NewRegistry())
	if cfg == nil {
		cfg = &config.Config{}
	}
	return middleware.NewStack(cfg, log, m), m, hook
}

func countingHandler(calls *atomic.Int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	})
}

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("redis: connection refused")
}

func (failingLimiter) Name() string { return "view" }

func (failingLimiter) Max() int { return 100 }

func TestRateLimit_CountsAndRejects(t *testing.T) {
	t.Parallel()

	stack, m, _ := newStack(t, nil)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewMemoryLimiter("upload", 15*time.Minute, 2, logrus.New(), nil,
		ratelimit.WithClock(func() time.Time { return start }))

	var calls atomic.Int32
	handler := stack.RateLimit(limiter)(countingHandler(&calls))

	remaining := []string{"1", "0", "0"}
	statuses := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	var last *httptest.ResponseRecorder
	for i := range statuses {
		req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
		req.RemoteAddr = "10.0.0.1:41234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, statuses[i], w.Code, "request %d", i+1)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, remaining[i], w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "2024-05-01T12:15:00.000Z", w.Header().Get("X-RateLimit-Reset"))
		last = w
	}

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "1", last.Header().Get("Retry-After"))

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(last.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "Rate limit exceeded. Please try again later.", resp.Error)
	assert.Equal(t, "2024-05-01T12:15:00.000Z", resp.ResetAt)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RateLimitRejections.WithLabelValues("upload")), 0)
}

func TestRateLimit_KeysByClient(t *testing.T) {
	t.Parallel()

	// httptest requests arrive from 192.0.2.1.
	cfg := &config.Config{RateLimit: config.RateLimitConfig{TrustedProxies: []string{"192.0.2.1"}}}
	stack, _, _ := newStack(t, cfg)
	limiter := ratelimit.NewMemoryLimiter("view", time.Minute, 1, logrus.New(), nil)

	var calls atomic.Int32
	handler := stack.RateLimit(limiter)(countingHandler(&calls))

	for _, ip := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.1"} {
		req := httptest.NewRequest(http.MethodGet, "/view/x", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, limiter.Len())
}

func TestRateLimit_TrustedProxyBypasses(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{RateLimit: config.RateLimitConfig{TrustedProxies: []string{"10.0.0.9"}}}
	stack, _, _ := newStack(t, cfg)
	limiter := ratelimit.NewMemoryLimiter("view", time.Minute, 1, logrus.New(), nil)

	var calls atomic.Int32
	handler := stack.RateLimit(limiter)(countingHandler(&calls))

	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/view/x", nil)
		req.RemoteAddr = "10.0.0.9:5000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}

	assert.Equal(t, int32(3), calls.Load())
	assert.Zero(t, limiter.Len())
}

func TestRateLimit_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{RateLimit: config.RateLimitConfig{TrustedProxies: []string{"10.0.0.9"}}}
	stack, _, _ := newStack(t, cfg)
	limiter := ratelimit.NewMemoryLimiter("view", time.Minute, 1, logrus.New(), nil)

	var calls atomic.Int32
	handler := stack.RateLimit(limiter)(countingHandler(&calls))

	forwarded := []string{"10.0.0.9", "198.51.100.1", "198.51.100.2"}
	statuses := []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}
	for i, xff := range forwarded {
		req := httptest.NewRequest(http.MethodGet, "/view/x", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", xff)
		req.Header.Set("X-Real-IP", xff)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, statuses[i], w.Code, "request %d", i+1)
	}

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, limiter.Len())
}

func TestRateLimit_CountsClientsBehindTrustedProxy(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{RateLimit: config.RateLimitConfig{TrustedProxies: []string{"10.0.0.9"}}}
	stack, _, _ := newStack(t, cfg)
	limiter := ratelimit.NewMemoryLimiter("view", time.Minute, 1, logrus.New(), nil)

	var calls atomic.Int32
	handler := stack.RateLimit(limiter)(countingHandler(&calls))

	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/view/x", nil)
		req.RemoteAddr = "10.0.0.9:5000"
		req.Header.Set("X-Forwarded-For", "198.51.100.1")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, limiter.Len())
}

func TestRateLimit_FailsOpen(t *testing.T) {
	t.Parallel()

	stack, _, hook := newStack(t, nil)

	var calls atomic.Int32
	handler := stack.RateLimit(failingLimiter{})(countingHandler(&calls))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/view/x", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, w.Header().Get("X-RateLimit-Remaining"))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "Failed to check rate limit", hook.LastEntry().Message)
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	trusted := []string{"10.0.0.1", "2001:db8::9"}
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expected   string
	}{
		{name: "remote_addr", remoteAddr: "192.0.2.7:5555", expected: "192.0.2.7"},
		{name: "remote_addr_ipv6", remoteAddr: "[2001:db8::1]:443", expected: "2001:db8::1"},
		{name: "remote_addr_without_port", remoteAddr: "192.0.2.7", expected: "192.0.2.7"},
		{
			name:       "forwarded_for_first_entry",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": " 198.51.100.4 , 10.0.0.2"},
			expected:   "198.51.100.4",
		},
		{
			name:       "forwarded_for_via_ipv6_proxy",
			remoteAddr: "[2001:db8::9]:443",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.4"},
			expected:   "198.51.100.4",
		},
		{
			name:       "real_ip",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Real-IP": "198.51.100.5"},
			expected:   "198.51.100.5",
		},
		{
			name:       "forwarded_for_wins_over_real_ip",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.4", "X-Real-IP": "198.51.100.5"},
			expected:   "198.51.100.4",
		},
		{
			name:       "empty_forwarded_entry_falls_through",
			remoteAddr: "10.0.0.1:80",
			headers:    map[string]string{"X-Forwarded-For": " ,10.0.0.2"},
			expected:   "10.0.0.1",
		},
		{
			name:       "untrusted_peer_forwarded_for_ignored",
			remoteAddr: "203.0.113.7:40000",
			headers:    map[string]string{"X-Forwarded-For": "10.0.0.1"},
			expected:   "203.0.113.7",
		},
		{
			name:       "untrusted_peer_real_ip_ignored",
			remoteAddr: "203.0.113.7:40000",
			headers:    map[string]string{"X-Real-IP": "198.51.100.5"},
			expected:   "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, middleware.ClientIP(req, trusted))
		})
	}
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	stack, _, hook := newStack(t, nil)
	handler := stack.Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/view/x", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Internal server error", resp.Error)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "boom", hook.LastEntry().Data["panic"])
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	stack, _, _ := newStack(t, nil)
	handler := stack.SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, middleware.ContentSecurityPolicy, w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, "max-age=31536000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
}

func TestAdminAuth(t *testing.T) {
	t.Parallel()

	adminCfg := config.AdminConfig{JWTSecret: testSecret, JWTIssuer: "cclog-share"}
	svc := token.NewJWTService(&adminCfg)
	valid, err := svc.GenerateAdminToken("ops", time.Hour)
	require.NoError(t, err)

	otherCfg := config.AdminConfig{JWTSecret: "another-secret", JWTIssuer: "cclog-share"}
	forged, err := token.NewJWTService(&otherCfg).GenerateAdminToken("ops", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name           string
		secret         string
		service        token.Service
		authorization  string
		expectedStatus int
	}{
		{name: "disabled_without_service", secret: testSecret, authorization: "Bearer " + valid, expectedStatus: http.StatusNotFound},
		{name: "disabled_without_secret", service: svc, authorization: "Bearer " + valid, expectedStatus: http.StatusNotFound},
		{name: "missing_header", secret: testSecret, service: svc, expectedStatus: http.StatusUnauthorized},
		{name: "basic_scheme", secret: testSecret, service: svc, authorization: "Basic b3BzOnB3", expectedStatus: http.StatusUnauthorized},
		{name: "garbage_token", secret: testSecret, service: svc, authorization: "Bearer not.a.jwt", expectedStatus: http.StatusUnauthorized},
		{name: "wrong_signature", secret: testSecret, service: svc, authorization: "Bearer " + forged, expectedStatus: http.StatusUnauthorized},
		{name: "valid_token", secret: testSecret, service: svc, authorization: "Bearer " + valid, expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stack, _, _ := newStack(t, &config.Config{Admin: config.AdminConfig{JWTSecret: tt.secret}})

			var calls atomic.Int32
			handler := stack.AdminAuth(tt.service)(countingHandler(&calls))

			req := httptest.NewRequest(http.MethodPost, "/api/admin/generation/invalidate", nil)
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, int32(1), calls.Load())
			} else {
				assert.Zero(t, calls.Load())
			}
		})
	}
}

func TestRequestLogger_RequestIDAndRouteMetrics(t *testing.T) {
	t.Parallel()

	stack, m, hook := newStack(t, nil)

	var seenID string
	router := mux.NewRouter()
	router.Use(stack.CaptureRoute)
	router.HandleFunc("/view/{id}", func(w http.ResponseWriter, r *http.Request) {
		seenID = middleware.RequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	handler := stack.Chain(router, stack.RequestLogger)

	req := httptest.NewRequest(http.MethodGet, "/view/abc", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", seenID)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	assert.InDelta(t, 1, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/view/{id}", "200")), 0)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "HTTP request processed", entry.Message)
	assert.Equal(t, "/view/{id}", entry.Data["route"])

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.InDelta(t, 1, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")), 0)
}

func TestRequestLogger_SkipsHealthLogging(t *testing.T) {
	t.Parallel()

	stack, m, hook := newStack(t, nil)
	handler := stack.RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Empty(t, hook.AllEntries())
	assert.InDelta(t, 1, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "200")), 0)
}

func TestChain_FirstIsOutermost(t *testing.T) {
	t.Parallel()

	stack, _, _ := newStack(t, nil)

	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := stack.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("first"), mark("second"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second", "handler"}, order)
}
