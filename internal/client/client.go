// Package client is a typed HTTP client for the session sharing API. The
// operator CLI uses it to upload sessions and to drive the admin endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jsamuelsen11/cclog-share/internal/constants"
	"github.com/jsamuelsen11/cclog-share/internal/models"
)

const maxErrorBody = 64 << 10

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
	// ResetAt is set on 429 responses.
	ResetAt string
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Client calls a running service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *logrus.Logger
}

// NewClient creates a client for the service at baseURL.
//
// Parameters:
//   - baseURL: service origin (e.g., "http://localhost:8721")
//   - timeout: HTTP request timeout; uploads wait for the first conversion
//   - logger: structured logger for HTTP operations
func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// WithToken returns a copy of c that sends token as an admin bearer token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// BaseURL returns the configured service origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Upload posts a JSONL session and returns the share link.
func (c *Client) Upload(ctx context.Context, filename string, content []byte) (*models.UploadResponse, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	var resp models.UploadResponse
	if err := c.do(ctx, http.MethodPost, "/api/upload", &buf, form.FormDataContentType(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerationStatus reads the fingerprint currently in force.
func (c *Client) GenerationStatus(ctx context.Context) (*models.GenerationStatus, error) {
	var resp models.GenerationStatus
	if err := c.do(ctx, http.MethodGet, "/api/admin/generation", nil, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionStats reports how many stored sessions are fresh or stale.
func (c *Client) SessionStats(ctx context.Context) (*models.SessionStats, error) {
	var resp models.SessionStats
	if err := c.do(ctx, http.MethodGet, "/api/admin/sessions", nil, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Invalidate drops and recomputes the generation fingerprint.
func (c *Client) Invalidate(ctx context.Context) (*models.InvalidateResponse, error) {
	var resp models.InvalidateResponse
	if err := c.do(ctx, http.MethodPost, "/api/admin/generation/invalidate", nil, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if contentType != "" {
		req.Header.Set(constants.HeaderContentType, contentType)
	}
	if c.token != "" {
		req.Header.Set(constants.HeaderAuthorization, constants.BearerPrefix+c.token)
	}

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    url,
	}).Debug("Sending HTTP request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"url":    url,
		}).WithError(err).Error("HTTP request failed")
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"url":    url,
		"status": resp.StatusCode,
	}).Debug("Received HTTP response")

	if resp.StatusCode >= http.StatusBadRequest {
		return parseErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse turns a {success:false, error} body into an APIError.
func parseErrorResponse(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apiErr
	}

	var body models.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Message = body.Error
	apiErr.ResetAt = body.ResetAt
	return apiErr
}

// IsRateLimited reports whether err is a 429 from the service.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}
