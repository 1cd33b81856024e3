// Package redis wraps the go-redis client that backs shared rate limit
// counters when several replicas of the service run behind one load balancer.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jsamuelsen11/cclog-share/internal/config"
)

// Client is a Redis client wrapper with connection pooling and structured
// logging.
//
// Thread Safety: All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	rdb    *redis.Client
	logger *logrus.Logger
	prefix string
}

// NewClient parses cfg.URL, applies pool and timeout settings and verifies
// connectivity with a PING.
func NewClient(cfg *config.RedisConfig, logger *logrus.Logger) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password // pragma: allowlist secret
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	opts.MaxRetries = cfg.MaxRetries
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConn
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := &Client{
		rdb:    redis.NewClient(opts),
		logger: logger,
		prefix: cfg.KeyPrefix,
	}

	if pingErr := client.Ping(context.Background()); pingErr != nil {
		_ = client.rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", pingErr)
	}

	logger.WithField("addr", opts.Addr).Info("Connected to Redis successfully")
	return client, nil
}

// Close shuts down the connection pool.
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		c.logger.WithError(err).Error("Failed to close Redis connection")
		return err
	}
	c.logger.Info("Redis connection closed")
	return nil
}

// Ping tests connectivity to the Redis server.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// GetRedisClient returns the underlying go-redis client.
func (c *Client) GetRedisClient() *redis.Client {
	return c.rdb
}

// KeyPrefix returns the namespace prepended to every key this service writes.
func (c *Client) KeyPrefix() string {
	return c.prefix
}
