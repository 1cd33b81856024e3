// Package startup provides utilities for service initialization: choosing
// the rate limit backend and falling back when Redis is unavailable.
package startup

import (
	"github.com/sirupsen/logrus"

	"github.com/jsamuelsen11/cclog-share/internal/config"
	"github.com/jsamuelsen11/cclog-share/internal/metrics"
	"github.com/jsamuelsen11/cclog-share/internal/ratelimit"
	"github.com/jsamuelsen11/cclog-share/internal/redis"
)

// Limiters are the two endpoint-class limiters and, when counters live in
// Redis, the connection they share.
type Limiters struct {
	Upload ratelimit.Limiter
	View   ratelimit.Limiter
	// Redis is nil with the memory backend.
	Redis *redis.Client

	backend config.RateLimitBackend
	logger  *logrus.Logger
	memory  []*ratelimit.MemoryLimiter
}

// InitializeLimiters builds the upload and view limiters. With the redis
// backend selected but Redis unreachable, it falls back to in-memory counters.
func InitializeLimiters(cfg *config.Config, logger *logrus.Logger, m *metrics.Metrics) *Limiters {
	rl := cfg.RateLimit

	if rl.Backend == config.BackendRedis {
		client, err := redis.NewClient(&cfg.Redis, logger)
		if err == nil {
			rdb := client.GetRedisClient()
			logger.Info("Rate limit counters stored in Redis")
			return &Limiters{
				Upload:  ratelimit.NewRedisLimiter(rdb, client.KeyPrefix(), "upload", rl.UploadWindow, rl.UploadMax, logger),
				View:    ratelimit.NewRedisLimiter(rdb, client.KeyPrefix(), "view", rl.ViewWindow, rl.ViewMax, logger),
				Redis:   client,
				backend: config.BackendRedis,
				logger:  logger,
			}
		}
		logger.WithError(err).Warn("Failed to connect to Redis, falling back to in-memory rate limiting")
		logger.Warn("Note: In-memory counters are not shared between replicas")
	}

	upload := ratelimit.NewMemoryLimiter("upload", rl.UploadWindow, rl.UploadMax, logger, m,
		ratelimit.WithSweepInterval(rl.SweepInterval))
	view := ratelimit.NewMemoryLimiter("view", rl.ViewWindow, rl.ViewMax, logger, m,
		ratelimit.WithSweepInterval(rl.SweepInterval))
	upload.Start()
	view.Start()

	return &Limiters{
		Upload:  upload,
		View:    view,
		backend: config.BackendMemory,
		logger:  logger,
		memory:  []*ratelimit.MemoryLimiter{upload, view},
	}
}

// Backend reports where counters are actually kept.
func (l *Limiters) Backend() config.RateLimitBackend {
	return l.backend
}

// Close stops sweepers and releases the Redis connection.
func (l *Limiters) Close() {
	for _, m := range l.memory {
		_ = m.Close()
	}
	if l.Redis != nil {
		if err := l.Redis.Close(); err != nil {
			l.logger.WithError(err).Error("Failed to close Redis connection")
		}
	}
}
