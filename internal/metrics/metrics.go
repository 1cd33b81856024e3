// Package metrics defines the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Generation triggers and outcomes used as label values.
const (
	TriggerUpload = "upload"
	TriggerView   = "view"

	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeTimeout  = "timeout"
	OutcomeCacheHit = "cache_hit"
)

// Metrics holds Prometheus metrics for monitoring.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Generation metrics
	GenerationsTotal        *prometheus.CounterVec
	GenerationDuration      *prometheus.HistogramVec
	FingerprintComputations prometheus.Counter
	FingerprintInvalidation prometheus.Counter

	// Rate limiting
	RateLimitRejections *prometheus.CounterVec
	RateLimitEntries    *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg. Tests pass a fresh
// prometheus.NewRegistry(); the server passes prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cclog_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cclog_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		GenerationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cclog_generations_total",
				Help: "Freshness checks by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		GenerationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cclog_generation_duration_seconds",
				Help:    "Conversion tool run time in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"trigger"},
		),
		FingerprintComputations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cclog_fingerprint_computations_total",
				Help: "Number of times the generation fingerprint was computed from disk",
			},
		),
		FingerprintInvalidation: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cclog_fingerprint_invalidations_total",
				Help: "Number of times the memoized fingerprint was dropped",
			},
		),
		RateLimitRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cclog_rate_limit_rejections_total",
				Help: "Requests rejected by a rate limiter",
			},
			[]string{"limiter"},
		),
		RateLimitEntries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cclog_rate_limit_entries",
				Help: "Live in-memory rate limit entries after the last sweep",
			},
			[]string{"limiter"},
		),
	}
}
