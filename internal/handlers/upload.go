package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jsamuelsen11/cclog-share/internal/config"
	"github.com/jsamuelsen11/cclog-share/internal/models"
	"github.com/jsamuelsen11/cclog-share/internal/session"
	"github.com/jsamuelsen11/cclog-share/pkg/logger"
)

const (
	// UploadField is the multipart field carrying the session file.
	UploadField = "file"
	// UploadExtension is the only accepted file extension.
	UploadExtension = ".jsonl"

	// multipartOverhead leaves room for boundaries and part headers on top
	// of the file size limit.
	multipartOverhead  = 1 << 20
	maxMultipartMemory = 32 << 20
)

// UploadHandler accepts session files and produces their first rendering.
type UploadHandler struct {
	store  SessionStore
	regen  Regenerator
	config *config.Config
	logger *logrus.Logger
}

// NewUploadHandler creates a new upload handler instance with the provided dependencies.
func NewUploadHandler(store SessionStore, regen Regenerator, cfg *config.Config, logger *logrus.Logger) *UploadHandler {
	return &UploadHandler{
		store:  store,
		regen:  regen,
		config: cfg,
		logger: logger,
	}
}

// Upload handles POST /api/upload.
//
// Responses:
//   - 200: {success:true, id, url}
//   - 400: missing file, wrong extension, empty file or invalid JSONL
//   - 413: file or line count over the configured limit
//   - 429: rate limited (handled by middleware)
//   - 500: storage or conversion failure
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	log := logger.WithCorrelationID(r.Context(), h.logger)

	content, appErr := h.readUpload(w, r)
	if appErr != nil {
		log.WithField("reason", appErr.Description).Info("Upload rejected")
		writeErrorResponse(w, log, appErr.Description, appErr.StatusCode)
		return
	}

	id := session.New()
	log = log.WithField("session_id", id.String())

	if err := h.store.Put(id, content); err != nil {
		log.WithError(err).Error("Failed to store upload")
		writeErrorResponse(w, log, "Failed to process upload. Please try again.", http.StatusInternalServerError)
		return
	}

	if err := h.regen.Generate(r.Context(), id); err != nil {
		log.WithError(err).Error("Failed to generate HTML for upload")
		writeErrorResponse(w, log, "Failed to generate HTML view. Please try again.", http.StatusInternalServerError)
		return
	}

	log.WithField("bytes", len(content)).Info("Session uploaded")
	writeJSONResponse(w, log, models.UploadResponse{
		Success: true,
		ID:      id.String(),
		URL:     h.config.ViewURL(id.String()),
	}, http.StatusOK)
}

// readUpload extracts the file part and validates it.
func (h *UploadHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, *models.AppError) {
	maxBytes := h.config.MaxUploadBytes()
	tooLarge := models.NewPayloadTooLarge(fmt.Sprintf("File too large (max %dMB)", h.config.Upload.MaxFileSizeMB))

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, tooLarge
		}
		return nil, models.NewInvalidUpload("No file uploaded")
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(UploadField)
	if err != nil {
		return nil, models.NewInvalidUpload("No file uploaded")
	}
	defer func() { _ = file.Close() }()

	if !strings.HasSuffix(header.Filename, UploadExtension) {
		return nil, models.NewInvalidUpload("Only .jsonl files allowed")
	}
	if header.Size > maxBytes {
		return nil, tooLarge
	}
	if header.Size == 0 {
		return nil, models.NewInvalidUpload("File is empty")
	}

	content, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, models.NewInvalidUpload("Failed to read uploaded file")
	}
	if int64(len(content)) > maxBytes {
		return nil, tooLarge
	}

	if appErr := ValidateJSONL(content, h.config.Upload.MaxLines); appErr != nil {
		return nil, appErr
	}
	return content, nil
}

// ValidateJSONL checks that content has between one and maxLines non-blank
// lines and that each of them is a JSON value.
func ValidateJSONL(content []byte, maxLines int) *models.AppError {
	var lines [][]byte
	for _, line := range bytes.Split(content, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, line)
		}
		if len(lines) > maxLines {
			return models.NewPayloadTooLarge(fmt.Sprintf("Too many lines (max %d)", maxLines))
		}
	}

	if len(lines) == 0 {
		return models.NewInvalidUpload("File contains no valid lines")
	}

	for i, line := range lines {
		if !json.Valid(line) {
			return models.NewInvalidUpload(fmt.Sprintf("Invalid JSONL format: line %d is not valid JSON", i+1))
		}
	}
	return nil
}
