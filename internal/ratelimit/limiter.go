// Package ratelimit implements fixed-window request counters keyed by client.
//
// A window starts on the first hit for a key and lasts for the configured
// length; every hit increments the counter and is allowed while the count
// stays at or below the maximum. Exceeding the maximum never extends the
// window, so a blocked client is admitted again once it resets.
package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of one counted request.
type Result struct {
	Allowed   bool
	Count     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key.
type Limiter interface {
	// Check counts one request for key.
	Check(ctx context.Context, key string) (Result, error)
	// Name identifies the endpoint class, for example "upload" or "view".
	Name() string
	// Max is the number of requests allowed per window.
	Max() int
}

func newResult(count, limit int, resetAt time.Time) Result {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= limit,
		Count:     count,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
