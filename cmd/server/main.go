// Package main provides the entry point for the session sharing service.
// It initializes storage, the generation fingerprint, the conversion tool
// runner and the rate limiters, sets up HTTP routes with middleware, and starts
// the server with graceful shutdown support.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/jsamuelsen11/cclog-share/internal/config"
	"github.com/jsamuelsen11/cclog-share/internal/generation"
	"github.com/jsamuelsen11/cclog-share/internal/metrics"
	"github.com/jsamuelsen11/cclog-share/internal/server"
	"github.com/jsamuelsen11/cclog-share/internal/session"
	"github.com/jsamuelsen11/cclog-share/internal/startup"
	"github.com/jsamuelsen11/cclog-share/internal/token"
	"github.com/jsamuelsen11/cclog-share/pkg/logger"
)

func main() {
	// Load .env.local file only in development (when GO_ENV is not set or set to "development")
	goEnv := os.Getenv("GO_ENV")
	if goEnv == "" || goEnv == "development" {
		if err := godotenv.Load(".env.local"); err != nil {
			if !os.IsNotExist(err) {
				fmt.Fprintf(os.Stderr, "Warning: Error loading .env.local file: %v\n", err)
			}
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithConfig(&cfg.Logging)
	log.Info("Starting session sharing service")
	log.WithFields(logrus.Fields{
		"port":         cfg.Server.Port,
		"host":         cfg.Server.Host,
		"tls":          cfg.IsTLSEnabled(),
		"storage_path": cfg.Storage.Path,
		"environment":  cfg.Environment.Environment,
	}).Info("Service configuration loaded")

	m := metrics.New(prometheus.DefaultRegisterer)

	store, err := session.NewStore(cfg.Storage.Path, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize session storage")
	}

	binaryPath, err := generation.ResolveBinary(cfg.Generator.BinPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to locate conversion tool")
	}

	fingerprints := generation.NewFingerprinter(binaryPath, store.Root(), log, m)
	if _, err := fingerprints.Initialize(context.Background()); err != nil {
		log.WithError(err).Fatal("Failed to initialize generation marker")
	}

	runner := generation.NewRunner(binaryPath, cfg.Generator.Timeout, log)
	regen := generation.NewRegenerator(store, fingerprints, runner, log, m)

	limiters := startup.InitializeLimiters(cfg, log, m)
	defer limiters.Close()

	deps := server.Dependencies{
		Config:        cfg,
		Logger:        log,
		Metrics:       m,
		Gatherer:      prometheus.DefaultGatherer,
		Store:         store,
		Regenerator:   regen,
		Generations:   fingerprints,
		UploadLimiter: limiters.Upload,
		ViewLimiter:   limiters.View,
	}
	if limiters.Redis != nil {
		deps.Redis = limiters.Redis
	}
	if cfg.IsAdminEnabled() {
		deps.Tokens = token.NewJWTService(&cfg.Admin)
		log.Info("Admin endpoints enabled")
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddr(),
		Handler:      server.NewHandler(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	runServer(srv, cfg, log)
}

func runServer(srv *http.Server, cfg *config.Config, log *logrus.Logger) {
	go startServer(srv, cfg, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.WithError(shutdownErr).Error("Server forced to shutdown")
	} else {
		log.Info("Server exited gracefully")
	}
}

func startServer(srv *http.Server, cfg *config.Config, log *logrus.Logger) {
	log.WithFields(logrus.Fields{
		"addr":     srv.Addr,
		"tls":      cfg.IsTLSEnabled(),
		"view_url": cfg.ViewURL("{id}"),
	}).Info("Starting HTTP server")

	var startErr error
	if cfg.IsTLSEnabled() {
		startErr = srv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
	} else {
		startErr = srv.ListenAndServe()
	}

	if startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
		log.WithError(startErr).Fatal("Failed to start server")
	}
}
