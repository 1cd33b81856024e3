// Package handlers provides HTTP handlers for the session sharing endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/jsamuelsen11/cclog-share/internal/constants"
	"github.com/jsamuelsen11/cclog-share/internal/models"
	"github.com/jsamuelsen11/cclog-share/internal/session"
)

// Minimal HTML bodies of the view error responses.
const (
	htmlInvalidSession = "<h1>Invalid session ID</h1>"
	htmlSessionMissing = "<h1>Session not found</h1>"
	htmlGenerationErr  = "<h1>Error generating HTML</h1><p>Please try again later.</p>"
	htmlInternalErr    = "<h1>Internal server error</h1>"
	htmlNotFound       = "<h1>404 - Not Found</h1>"
)

// SessionStore is the part of session.Store the handlers use.
type SessionStore interface {
	Put(id session.ID, content []byte) error
	ReadOutput(id session.ID) ([]byte, error)
}

// Regenerator is the part of generation.Regenerator the handlers use.
type Regenerator interface {
	EnsureFresh(ctx context.Context, id session.ID) error
	Generate(ctx context.Context, id session.ID) error
}

// Generation is the part of generation.Fingerprinter the handlers use.
type Generation interface {
	Current(ctx context.Context) (string, error)
	Invalidate()
	Initialize(ctx context.Context) (string, error)
	BinaryPath() string
	ConfigPath() string
}

// writeJSONResponse writes a JSON response with the given status code.
func writeJSONResponse(w http.ResponseWriter, log logrus.FieldLogger, data interface{}, statusCode int) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse writes the {success:false, error} body.
func writeErrorResponse(w http.ResponseWriter, log logrus.FieldLogger, message string, statusCode int) {
	writeJSONResponse(w, log, models.ErrorResponse{Success: false, Error: message}, statusCode)
}

// writeHTMLResponse writes an HTML body with the given status code.
func writeHTMLResponse(w http.ResponseWriter, log logrus.FieldLogger, body []byte, statusCode int) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeHTMLUTF8)
	w.WriteHeader(statusCode)

	if _, err := w.Write(body); err != nil {
		log.WithError(err).Debug("Failed to write HTML response")
	}
}
