package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jsamuelsen11/cclog-share/internal/constants"
	"github.com/jsamuelsen11/cclog-share/internal/models"
	"github.com/jsamuelsen11/cclog-share/internal/session"
	"github.com/jsamuelsen11/cclog-share/pkg/logger"
)

const (
	// ViewCacheControl lets browsers reuse a rendering for an hour.
	ViewCacheControl = "public, max-age=3600"
	// etagLength is how many fingerprint characters go into the ETag.
	etagLength = 16
)

// ViewHandler serves rendered sessions, regenerating stale ones first.
type ViewHandler struct {
	store       SessionStore
	regen       Regenerator
	generations Generation
	logger      *logrus.Logger
}

// NewViewHandler creates a new view handler instance with the provided dependencies.
func NewViewHandler(store SessionStore, regen Regenerator, generations Generation, logger *logrus.Logger) *ViewHandler {
	return &ViewHandler{
		store:       store,
		regen:       regen,
		generations: generations,
		logger:      logger,
	}
}

// View handles GET /view/{id}.
//
// Responses:
//   - 200: the conversation HTML with Cache-Control and ETag
//   - 304: If-None-Match matches the current generation
//   - 400: malformed session id
//   - 404: unknown session
//   - 500: conversion failure
func (h *ViewHandler) View(w http.ResponseWriter, r *http.Request) {
	log := logger.WithCorrelationID(r.Context(), h.logger)

	id, err := session.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeHTMLResponse(w, log, []byte(htmlInvalidSession), http.StatusBadRequest)
		return
	}
	log = log.WithField("session_id", id.String())

	if err := h.regen.EnsureFresh(r.Context(), id); err != nil {
		h.writeViewError(w, log, err)
		return
	}

	fingerprint, err := h.generations.Current(r.Context())
	if err != nil {
		h.writeViewError(w, log, err)
		return
	}
	etag := `"` + fingerprint[:etagLength] + `"`

	if etagMatches(r.Header.Get(constants.HeaderIfNoneMatch), etag) {
		setCacheHeaders(w, etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	html, err := h.store.ReadOutput(id)
	if err != nil {
		h.writeViewError(w, log, err)
		return
	}

	setCacheHeaders(w, etag)
	writeHTMLResponse(w, log, html, http.StatusOK)
}

func (h *ViewHandler) writeViewError(w http.ResponseWriter, log *logrus.Entry, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeHTMLResponse(w, log, []byte(htmlSessionMissing), http.StatusNotFound)
	case errors.Is(err, models.ErrGenerationFailed):
		log.WithError(err).Error("Regeneration failed")
		writeHTMLResponse(w, log, []byte(htmlGenerationErr), http.StatusInternalServerError)
	default:
		log.WithError(err).Error("Failed to serve session")
		writeHTMLResponse(w, log, []byte(htmlInternalErr), http.StatusInternalServerError)
	}
}

func setCacheHeaders(w http.ResponseWriter, etag string) {
	w.Header().Set(constants.HeaderCacheControl, ViewCacheControl)
	w.Header().Set(constants.HeaderETag, etag)
}

// etagMatches implements the weak comparison of If-None-Match.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
