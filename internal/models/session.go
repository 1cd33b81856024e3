package models

import "time"

// CacheMarker binds a session's current output artifact to the generation
// fingerprint that produced it. Persisted as {id}/.cache-marker.
type CacheMarker struct {
	Fingerprint string    `json:"generationHash"`
	Timestamp   time.Time `json:"timestamp"`
}

// GenerationMarker is the operator-facing record written at startup.
// It is never read back by the service.
type GenerationMarker struct {
	Fingerprint string    `json:"generationHash"`
	Timestamp   time.Time `json:"timestamp"`
	BinaryPath  string    `json:"binaryPath"`
	ConfigPath  string    `json:"configPath"`
}

// SessionStats summarizes stored sessions against the current generation.
type SessionStats struct {
	Fingerprint string `json:"fingerprint"`
	Total       int    `json:"total"`
	Fresh       int    `json:"fresh"`
	Stale       int    `json:"stale"`
}
