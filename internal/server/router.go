// Package server assembles the HTTP routes and middleware of the session
// sharing service.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/jsamuelsen11/cclog-share/internal/config"
	"github.com/jsamuelsen11/cclog-share/internal/handlers"
	"github.com/jsamuelsen11/cclog-share/internal/metrics"
	"github.com/jsamuelsen11/cclog-share/internal/middleware"
	"github.com/jsamuelsen11/cclog-share/internal/ratelimit"
	"github.com/jsamuelsen11/cclog-share/internal/session"
	"github.com/jsamuelsen11/cclog-share/internal/token"
)

// Regenerator refreshes session outputs and reports their freshness.
type Regenerator interface {
	handlers.Regenerator
	handlers.SessionStatsProvider
}

// Dependencies are the collaborators the router wires into handlers.
type Dependencies struct {
	Config        *config.Config
	Logger        *logrus.Logger
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	Store         *session.Store
	Regenerator   Regenerator
	Generations   handlers.Generation
	UploadLimiter ratelimit.Limiter
	ViewLimiter   ratelimit.Limiter
	// Redis is optional and only reported by the health check.
	Redis handlers.Pinger
	// Tokens is nil when admin access is disabled.
	Tokens token.Service
}

// NewHandler returns the fully wrapped HTTP handler.
func NewHandler(deps Dependencies) http.Handler {
	stack := middleware.NewStack(deps.Config, deps.Logger, deps.Metrics)

	uploadHandler := handlers.NewUploadHandler(deps.Store, deps.Regenerator, deps.Config, deps.Logger)
	viewHandler := handlers.NewViewHandler(deps.Store, deps.Regenerator, deps.Generations, deps.Logger)
	healthHandler := handlers.NewHealthHandler(deps.Store.Root(), deps.Generations, deps.Redis, deps.Logger)
	adminHandler := handlers.NewAdminHandler(deps.Generations, deps.Regenerator, deps.Logger)
	staticHandler := handlers.NewStaticHandler(deps.Config.Storage.PublicDir, deps.Logger)

	router := mux.NewRouter()
	router.Use(stack.CaptureRoute)
	router.NotFoundHandler = http.HandlerFunc(staticHandler.NotFound)

	router.HandleFunc("/", staticHandler.Index).Methods(http.MethodGet)
	router.HandleFunc("/app.js", staticHandler.File("app.js")).Methods(http.MethodGet)
	router.HandleFunc("/robots.txt", staticHandler.File("robots.txt")).Methods(http.MethodGet)

	router.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/live", healthHandler.Liveness).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	router.Handle("/api/upload", stack.Chain(
		http.HandlerFunc(uploadHandler.Upload),
		stack.RateLimit(deps.UploadLimiter),
	)).Methods(http.MethodPost)

	router.Handle("/view/{id}", stack.Chain(
		http.HandlerFunc(viewHandler.View),
		stack.RateLimit(deps.ViewLimiter),
	)).Methods(http.MethodGet)

	adminRouter := router.PathPrefix("/api/admin").Subrouter()
	adminRouter.Use(stack.AdminAuth(deps.Tokens))
	adminHandler.RegisterRoutes(adminRouter)

	return stack.Chain(
		router,
		stack.Recovery,
		stack.RequestLogger,
		stack.SecurityHeaders,
	)
}
