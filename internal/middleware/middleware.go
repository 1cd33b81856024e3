// Package middleware provides HTTP middleware components for the session
// sharing service including rate limiting, logging, metrics, security headers,
// panic recovery and admin authentication.
package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jsamuelsen11/cclog-share/internal/config"
	"github.com/jsamuelsen11/cclog-share/internal/constants"
	"github.com/jsamuelsen11/cclog-share/internal/metrics"
	"github.com/jsamuelsen11/cclog-share/internal/models"
	"github.com/jsamuelsen11/cclog-share/internal/ratelimit"
	"github.com/jsamuelsen11/cclog-share/internal/token"
	"github.com/jsamuelsen11/cclog-share/pkg/logger"
)

const (
	// HTTPClientError minimum status code (4xx).
	HTTPClientError = 400
	// HTTPServerError minimum status code (5xx).
	HTTPServerError = 500

	// ContentSecurityPolicy allows the inline scripts and styles of the
	// generated conversation pages and the CDNs used by the upload page.
	ContentSecurityPolicy = "default-src 'self'; " +
		"script-src 'self' 'unsafe-inline' https://cdn.tailwindcss.com; " +
		"style-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net; " +
		"font-src 'self'; " +
		"img-src 'self' data:; " +
		"connect-src 'self'; " +
		"object-src 'none'; " +
		"frame-src 'none'; " +
		"base-uri 'self'; " +
		"form-action 'self'"

	unmatchedRoute = "unmatched"
)

// contextKey is an unexported type for keys stored in context to avoid collisions.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	routeKey     contextKey = "route"
)

// routeLabel is filled in by CaptureRoute once mux has matched a route, and
// read by RequestLogger after the handler returns.
type routeLabel struct {
	template string
}

// Stack holds all middleware dependencies and provides
// methods to create HTTP middleware handlers.
type Stack struct {
	config  *config.Config
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

// NewStack creates a new middleware stack with the provided dependencies.
func NewStack(cfg *config.Config, logger *logrus.Logger, m *metrics.Metrics) *Stack {
	return &Stack{
		config:  cfg,
		logger:  logger,
		metrics: m,
	}
}

// Chain applies multiple middleware functions to an HTTP handler. The first
// middleware is the outermost.
func (m *Stack) Chain(h http.Handler, middleware ...func(http.Handler) http.Handler) http.Handler {
	for i := range middleware {
		h = middleware[len(middleware)-1-i](h)
	}
	return h
}

// RequestLogger assigns a request id, logs the request with its status and
// duration, and records the HTTP metrics.
func (m *Stack) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(constants.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		route := &routeLabel{template: unmatchedRoute}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = context.WithValue(ctx, routeKey, route)
		ctx = logger.SetCorrelationID(ctx, requestID)
		r = r.WithContext(ctx)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		wrapped.Header().Set(constants.HeaderXRequestID, requestID)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		m.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route.template, strconv.Itoa(wrapped.statusCode)).Inc()
		m.metrics.HTTPRequestDuration.WithLabelValues(r.Method, route.template).Observe(duration.Seconds())

		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			return
		}

		fields := logrus.Fields{
			"method":         r.Method,
			"path":           r.URL.Path,
			"route":          route.template,
			"status":         wrapped.statusCode,
			"duration":       duration.String(),
			"duration_ms":    duration.Milliseconds(),
			"remote_addr":    ClientIP(r, m.config.RateLimit.TrustedProxies),
			"user_agent":     r.UserAgent(),
			"content_length": r.ContentLength,
		}
		if referer := r.Header.Get(constants.HeaderReferer); referer != "" {
			fields["referer"] = referer
		}

		level := logrus.InfoLevel
		if wrapped.statusCode >= HTTPClientError {
			level = logrus.WarnLevel
		}
		if wrapped.statusCode >= HTTPServerError {
			level = logrus.ErrorLevel
		}

		logger.WithCorrelationID(r.Context(), m.logger).WithFields(fields).Log(level, "HTTP request processed")
	})
}

// CaptureRoute records the matched mux route template for RequestLogger. It
// must be installed with router.Use so the route is known.
func (m *Stack) CaptureRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if label, ok := r.Context().Value(routeKey).(*routeLabel); ok {
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					label.template = tpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit counts each request against l, keyed by endpoint class and
// client IP. A trusted proxy's own requests (no forwarding headers) are not
// counted. A limiter backend error lets the request through.
func (m *Stack) RateLimit(l ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			peer := PeerIP(r)
			clientIP := ClientIP(r, m.config.RateLimit.TrustedProxies)
			if clientIP == peer && m.isTrustedProxy(peer) {
				next.ServeHTTP(w, r)
				return
			}

			result, err := l.Check(r.Context(), l.Name()+":"+clientIP)
			if err != nil {
				logger.WithCorrelationID(r.Context(), m.logger).
					WithError(err).
					WithField("limiter", l.Name()).
					Error("Failed to check rate limit")
				next.ServeHTTP(w, r)
				return
			}

			resetAt := result.ResetAt.UTC().Format(constants.ISOTimestamp)
			w.Header().Set(constants.HeaderRateLimitLimit, strconv.Itoa(l.Max()))
			w.Header().Set(constants.HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
			w.Header().Set(constants.HeaderRateLimitReset, resetAt)

			if !result.Allowed {
				m.metrics.RateLimitRejections.WithLabelValues(l.Name()).Inc()
				logger.WithCorrelationID(r.Context(), m.logger).WithFields(logrus.Fields{
					"limiter":   l.Name(),
					"client_ip": clientIP,
					"path":      r.URL.Path,
					"method":    r.Method,
					"count":     result.Count,
				}).Warn("Rate limit exceeded")

				retryAfter := int(math.Ceil(time.Until(result.ResetAt).Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set(constants.HeaderRetryAfter, strconv.Itoa(retryAfter))
				appErr := models.NewRateLimited(result.ResetAt)
				m.writeJSON(w, models.ErrorResponse{
					Success: false,
					Error:   appErr.Description,
					ResetAt: resetAt,
				}, appErr.StatusCode)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders adds security-related HTTP headers to responses.
func (m *Stack) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", ContentSecurityPolicy)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// Recovery recovers from panics and logs them while returning a proper error response.
func (m *Stack) Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.WithCorrelationID(r.Context(), m.logger).WithFields(logrus.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
					"panic":  err,
				}).Error("Panic recovered")

				m.writeJSON(w, models.ErrorResponse{
					Success: false,
					Error:   "Internal server error",
				}, http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// AdminAuth creates a middleware that requires a bearer token carrying the
// admin scope.
//
// Returns:
//   - 401 Unauthorized: missing, malformed or invalid token
//   - 404 Not Found: admin access is disabled (no secret configured)
func (m *Stack) AdminAuth(tokenSvc token.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenSvc == nil || !m.config.IsAdminEnabled() {
				m.writeJSON(w, models.ErrorResponse{Error: "Not found"}, http.StatusNotFound)
				return
			}

			authHeader := r.Header.Get(constants.HeaderAuthorization)
			if authHeader == "" {
				m.writeJSON(w, models.ErrorResponse{Error: "Authorization header required"}, http.StatusUnauthorized)
				return
			}

			tokenString, ok := strings.CutPrefix(authHeader, constants.BearerPrefix)
			if !ok {
				m.writeJSON(w, models.ErrorResponse{Error: "Invalid authorization header format"}, http.StatusUnauthorized)
				return
			}

			claims, err := tokenSvc.ValidateAdminToken(tokenString)
			if err != nil {
				logger.WithCorrelationID(r.Context(), m.logger).WithError(err).Warn("Invalid admin token")
				m.writeJSON(w, models.ErrorResponse{Error: "Invalid access token"}, http.StatusUnauthorized)
				return
			}

			logger.WithCorrelationID(r.Context(), m.logger).
				WithField("subject", claims.Subject).
				Info("Admin request authorized")
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Stack) writeJSON(w http.ResponseWriter, body interface{}, statusCode int) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		m.logger.WithError(err).Error("Failed to encode middleware response")
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter

	statusCode int
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequestID returns the id assigned by RequestLogger, or "".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ClientIP extracts the client address. Forwarding headers are only honoured
// when the connecting peer is one of trustedProxies: the first X-Forwarded-For
// entry, then X-Real-IP. Otherwise the peer address is the client.
func ClientIP(r *http.Request, trustedProxies []string) string {
	peer := PeerIP(r)
	if !slices.Contains(trustedProxies, peer) {
		return peer
	}

	if xff := r.Header.Get(constants.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get(constants.HeaderXRealIP)); xri != "" {
		return xri
	}
	return peer
}

// PeerIP returns the host part of the connection's remote address.
func PeerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (m *Stack) isTrustedProxy(ip string) bool {
	return slices.Contains(m.config.RateLimit.TrustedProxies, ip)
}
