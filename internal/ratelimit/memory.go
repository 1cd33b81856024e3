package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jsamuelsen11/cclog-share/internal/metrics"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps counters in process memory. A single mutex makes each
// read-modify-write of a counter atomic. Sweeping runs on its own ticker and
// shares no code with Allow.
type MemoryLimiter struct {
	name          string
	length        time.Duration
	limit         int
	sweepInterval time.Duration
	logger        *logrus.Logger
	metrics       *metrics.Metrics
	now           func() time.Time

	mu      sync.Mutex
	entries map[string]*window

	stopSweep chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// MemoryOption customizes a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) {
		l.now = now
	}
}

// WithSweepInterval sets how often expired entries are removed. Non-positive
// intervals keep the default.
func WithSweepInterval(interval time.Duration) MemoryOption {
	return func(l *MemoryLimiter) {
		if interval > 0 {
			l.sweepInterval = interval
		}
	}
}

// NewMemoryLimiter creates a limiter allowing limit requests per length.
// m may be nil.
func NewMemoryLimiter(
	name string,
	length time.Duration,
	limit int,
	logger *logrus.Logger,
	m *metrics.Metrics,
	opts ...MemoryOption,
) *MemoryLimiter {
	l := &MemoryLimiter{
		name:          name,
		length:        length,
		limit:         limit,
		sweepInterval: time.Minute,
		logger:        logger,
		metrics:       m,
		now:           time.Now,
		entries:       make(map[string]*window),
		stopSweep:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the endpoint class.
func (l *MemoryLimiter) Name() string { return l.name }

// Max returns the per-window maximum.
func (l *MemoryLimiter) Max() int { return l.limit }

// Check implements Limiter. It never fails.
func (l *MemoryLimiter) Check(_ context.Context, key string) (Result, error) {
	return l.Allow(key), nil
}

// Allow counts one request for key.
func (l *MemoryLimiter) Allow(key string) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || !now.Before(entry.resetAt) {
		entry = &window{resetAt: now.Add(l.length)}
		l.entries[key] = entry
	}
	entry.count++

	return newResult(entry.count, l.limit, entry.resetAt)
}

// Len returns the number of live entries.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep removes entries whose window has elapsed at now and returns how many
// were removed.
func (l *MemoryLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	removed := 0
	for key, entry := range l.entries {
		if !now.Before(entry.resetAt) {
			delete(l.entries, key)
			removed++
		}
	}
	remaining := len(l.entries)
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.RateLimitEntries.WithLabelValues(l.name).Set(float64(remaining))
	}
	if removed > 0 {
		l.logger.WithFields(logrus.Fields{
			"limiter":         l.name,
			"expired_entries": removed,
			"live_entries":    remaining,
		}).Debug("Swept expired rate limit entries")
	}
	return removed
}

// Start launches the background sweep. It is a no-op after the first call.
func (l *MemoryLimiter) Start() {
	l.startOnce.Do(func() {
		go l.sweepLoop()
		l.logger.WithFields(logrus.Fields{
			"limiter":        l.name,
			"window":         l.length.String(),
			"max":            l.limit,
			"sweep_interval": l.sweepInterval.String(),
		}).Info("In-memory rate limiter started")
	})
}

func (l *MemoryLimiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep(l.now())
		case <-l.stopSweep:
			return
		}
	}
}

// Close stops the background sweep.
func (l *MemoryLimiter) Close() error {
	l.stopOnce.Do(func() {
		close(l.stopSweep)
	})
	return nil
}
