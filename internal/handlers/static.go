package handlers

import (
	"net/http"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/jsamuelsen11/cclog-share/internal/fsutil"
)

// StaticHandler serves the upload page and its assets from a public directory.
type StaticHandler struct {
	publicDir string
	logger    *logrus.Logger
}

// NewStaticHandler creates a handler over publicDir.
func NewStaticHandler(publicDir string, logger *logrus.Logger) *StaticHandler {
	return &StaticHandler{
		publicDir: publicDir,
		logger:    logger,
	}
}

// Index serves index.html for GET /.
func (h *StaticHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "index.html")
}

// File returns a handler serving one named file of the public directory.
// Only names registered by the router are reachable.
func (h *StaticHandler) File(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, name)
	}
}

// NotFound renders the fallback 404 page.
func (h *StaticHandler) NotFound(w http.ResponseWriter, _ *http.Request) {
	writeHTMLResponse(w, h.logger, []byte(htmlNotFound), http.StatusNotFound)
}

func (h *StaticHandler) serve(w http.ResponseWriter, r *http.Request, name string) {
	path := filepath.Join(h.publicDir, filepath.Base(name))
	if !fsutil.FileExists(path) {
		h.logger.WithField("path", path).Warn("Static file missing")
		h.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}
