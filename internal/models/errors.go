package models

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes of the service error taxonomy.
const (
	CodeInvalidIdentifier = "invalid_identifier"
	CodePathEscape        = "path_escape"
	CodeNotFound          = "not_found"
	CodeGenerationFailed  = "generation_failed"
	CodeRateLimited       = "rate_limited"
	CodeInvalidUpload     = "invalid_upload"
	CodePayloadTooLarge   = "payload_too_large"
	CodeUnauthorized      = "unauthorized"
	CodeServerError       = "server_error"
)

// AppError is an error that knows which HTTP status it maps to at the
// boundary. Two AppErrors match under errors.Is when their codes match, so
// handlers can test against the sentinels below regardless of description.
type AppError struct {
	// Code is the machine-readable error code.
	Code string `json:"error_code"`
	// Description provides additional human-readable error information.
	Description string `json:"error"`
	// StatusCode is the HTTP status code to return (excluded from JSON).
	StatusCode int `json:"-"`
	// ResetAt is set on rate limit errors.
	ResetAt time.Time `json:"-"`
	// Err is the underlying cause, if any.
	Err error `json:"-"`
}

// Error returns a string representation of the error.
func (e *AppError) Error() string {
	msg := e.Code
	if e.Description != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

var (
	// ErrInvalidIdentifier indicates a session id that does not match the
	// identifier grammar. Returns HTTP 400 Bad Request.
	ErrInvalidIdentifier = &AppError{Code: CodeInvalidIdentifier, StatusCode: http.StatusBadRequest}

	// ErrPathEscape indicates a resolved path outside the storage root. It
	// can only happen if the identifier grammar is loosened.
	// Returns HTTP 500 Internal Server Error.
	ErrPathEscape = &AppError{Code: CodePathEscape, StatusCode: http.StatusInternalServerError}

	// ErrNotFound indicates a missing session or output artifact.
	// Returns HTTP 404 Not Found.
	ErrNotFound = &AppError{Code: CodeNotFound, StatusCode: http.StatusNotFound}

	// ErrGenerationFailed indicates the conversion tool exited non-zero, timed
	// out, or could not be started. Returns HTTP 500 Internal Server Error.
	ErrGenerationFailed = &AppError{Code: CodeGenerationFailed, StatusCode: http.StatusInternalServerError}

	// ErrRateLimited indicates the client exceeded its window.
	// Returns HTTP 429 Too Many Requests.
	ErrRateLimited = &AppError{Code: CodeRateLimited, StatusCode: http.StatusTooManyRequests}

	// ErrUnauthorized indicates a missing or invalid admin token.
	// Returns HTTP 401 Unauthorized.
	ErrUnauthorized = &AppError{Code: CodeUnauthorized, StatusCode: http.StatusUnauthorized}
)

// NewInvalidIdentifier wraps ErrInvalidIdentifier with the rejected reason.
func NewInvalidIdentifier(description string) *AppError {
	return &AppError{Code: CodeInvalidIdentifier, Description: description, StatusCode: http.StatusBadRequest}
}

// NewPathEscape reports a path that resolved outside the sandbox root.
func NewPathEscape(path string) *AppError {
	return &AppError{
		Code:        CodePathEscape,
		Description: fmt.Sprintf("path %q escapes storage root", path),
		StatusCode:  http.StatusInternalServerError,
	}
}

// NewNotFound wraps ErrNotFound with a description of what is missing.
func NewNotFound(description string) *AppError {
	return &AppError{Code: CodeNotFound, Description: description, StatusCode: http.StatusNotFound}
}

// NewGenerationFailed carries the conversion tool diagnostic.
func NewGenerationFailed(description string, cause error) *AppError {
	return &AppError{
		Code:        CodeGenerationFailed,
		Description: description,
		StatusCode:  http.StatusInternalServerError,
		Err:         cause,
	}
}

// NewRateLimited builds a 429 error that carries the window reset time.
func NewRateLimited(resetAt time.Time) *AppError {
	return &AppError{
		Code:        CodeRateLimited,
		Description: "Rate limit exceeded. Please try again later.",
		StatusCode:  http.StatusTooManyRequests,
		ResetAt:     resetAt,
	}
}

// NewInvalidUpload reports an upload that failed validation.
func NewInvalidUpload(description string) *AppError {
	return &AppError{Code: CodeInvalidUpload, Description: description, StatusCode: http.StatusBadRequest}
}

// NewPayloadTooLarge reports an upload above the size or line limit.
func NewPayloadTooLarge(description string) *AppError {
	return &AppError{Code: CodePayloadTooLarge, Description: description, StatusCode: http.StatusRequestEntityTooLarge}
}

// StatusOf maps any error to the HTTP status the boundary should use.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
