package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jsamuelsen11/cclog-share/internal/models"
	"github.com/jsamuelsen11/cclog-share/pkg/logger"
)

// SessionStatsProvider classifies stored sessions.
type SessionStatsProvider interface {
	Stats(ctx context.Context) (*models.SessionStats, error)
}

// AdminHandler exposes operator endpoints for the generation fingerprint.
type AdminHandler struct {
	generations Generation
	stats       SessionStatsProvider
	logger      *logrus.Logger
}

// NewAdminHandler creates a new admin handler instance with the provided dependencies.
func NewAdminHandler(generations Generation, stats SessionStatsProvider, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		generations: generations,
		stats:       stats,
		logger:      logger,
	}
}

// RegisterRoutes registers admin routes on the provided router.
// Note: The router should already have admin auth middleware applied.
func (h *AdminHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/generation", h.Status).Methods(http.MethodGet)
	router.HandleFunc("/generation/invalidate", h.Invalidate).Methods(http.MethodPost)
	router.HandleFunc("/sessions", h.Sessions).Methods(http.MethodGet)
}

// Status handles GET /api/admin/generation.
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	log := logger.WithCorrelationID(r.Context(), h.logger)

	fingerprint, err := h.generations.Current(r.Context())
	if err != nil {
		log.WithError(err).Error("Failed to read generation fingerprint")
		writeErrorResponse(w, log, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, log, models.GenerationStatus{
		Fingerprint: fingerprint,
		BinaryPath:  h.generations.BinaryPath(),
		ConfigPath:  h.generations.ConfigPath(),
	}, http.StatusOK)
}

// Sessions handles GET /api/admin/sessions. It reports how many stored
// sessions would be regenerated on their next view.
func (h *AdminHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	log := logger.WithCorrelationID(r.Context(), h.logger)

	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		log.WithError(err).Error("Failed to collect session statistics")
		writeErrorResponse(w, log, "Internal server error", http.StatusInternalServerError)
		return
	}

	log.WithFields(logrus.Fields{
		"total": stats.Total,
		"fresh": stats.Fresh,
		"stale": stats.Stale,
	}).Info("Session statistics retrieved")
	writeJSONResponse(w, log, stats, http.StatusOK)
}

// Invalidate handles POST /api/admin/generation/invalidate. Operators call it
// after replacing the conversion tool or editing the generation config; every
// session is then regenerated on its next view.
//
// Responses:
//   - 200: the previous and the recomputed fingerprint
//   - 401: Unauthorized (handled by middleware)
//   - 500: the tool or config can no longer be read
func (h *AdminHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	log := logger.WithCorrelationID(r.Context(), h.logger)

	previous, err := h.generations.Current(r.Context())
	if err != nil {
		log.WithError(err).Warn("Previous generation fingerprint unavailable")
		previous = ""
	}

	h.generations.Invalidate()
	fingerprint, err := h.generations.Initialize(r.Context())
	if err != nil {
		log.WithError(err).Error("Failed to recompute generation fingerprint")
		writeErrorResponse(w, log, "Failed to recompute generation fingerprint", http.StatusInternalServerError)
		return
	}

	log.WithFields(logrus.Fields{
		"previous_fingerprint": previous,
		"fingerprint":          fingerprint,
		"changed":              previous != fingerprint,
	}).Info("Generation fingerprint recomputed")

	writeJSONResponse(w, log, models.InvalidateResponse{
		Success:             true,
		PreviousFingerprint: previous,
		Fingerprint:         fingerprint,
		Timestamp:           time.Now().UTC(),
	}, http.StatusOK)
}
