// Package models provides data structures shared by the session sharing service:
// persisted marker records, API payloads and the error taxonomy.
package models

import "time"

// InvalidateResponse is returned after the generation fingerprint has been
// dropped and recomputed.
type InvalidateResponse struct {
	Success             bool      `json:"success"`
	PreviousFingerprint string    `json:"previousFingerprint,omitempty"`
	Fingerprint         string    `json:"fingerprint"`
	Timestamp           time.Time `json:"timestamp"`
}

// GenerationStatus describes the fingerprint currently in force.
type GenerationStatus struct {
	Fingerprint string `json:"fingerprint"`
	BinaryPath  string `json:"binaryPath"`
	ConfigPath  string `json:"configPath"`
}
