package models

// UploadResponse is the JSON body of POST /api/upload.
type UploadResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	ResetAt string `json:"resetAt,omitempty"`
}
