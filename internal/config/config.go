// Package config provides configuration management for the session sharing service.
// It supports environment variable-based configuration with validation and default values
// for the server, session storage, the conversion tool, rate limiting, Redis, admin
// access and logging.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// MinPortNumber is the minimum valid port number.
	MinPortNumber = 1
	// MaxPortNumber is the maximum valid port number.
	MaxPortNumber = 65535
	// MinAdminSecretLength is the minimum length of the admin JWT secret when set.
	MinAdminSecretLength = 32
	// BytesPerMegabyte converts the configured upload limit to bytes.
	BytesPerMegabyte = 1024 * 1024
)

// RateLimitBackend selects where rate limit counters live.
type RateLimitBackend string

const (
	// BackendMemory keeps counters in process memory.
	BackendMemory RateLimitBackend = "memory"
	// BackendRedis keeps counters in Redis so replicas share them.
	BackendRedis RateLimitBackend = "redis"
)

// Config represents the complete configuration for the service,
// aggregating all component-specific configurations.
type Config struct {
	// Environment holds environment-specific settings.
	Environment EnvironmentConfig `envconfig:"ENVIRONMENT"`
	// Server contains HTTP server configuration including ports, timeouts, and TLS settings.
	Server ServerConfig `envconfig:"SERVER"`
	// Storage contains the sandbox root for session data.
	Storage StorageConfig `envconfig:"STORAGE"`
	// Upload contains limits applied to uploaded files.
	Upload UploadConfig `envconfig:"UPLOAD"`
	// Generator contains conversion tool settings.
	Generator GeneratorConfig `envconfig:"GENERATOR"`
	// RateLimit contains the two endpoint-class limiters.
	RateLimit RateLimitConfig `envconfig:"RATE_LIMIT"`
	// Redis contains Redis connection and pool configuration.
	Redis RedisConfig `envconfig:"REDIS"`
	// Admin contains admin endpoint authentication settings.
	Admin AdminConfig `envconfig:"ADMIN"`
	// Logging contains logging configuration.
	Logging LoggingConfig `envconfig:"LOGGING"`
}

type Environment string

const (
	Local   Environment = "LOCAL"
	NonProd Environment = "NONPROD"
	Prod    Environment = "PROD"
)

// EnvironmentConfig holds environment-specific settings.
type EnvironmentConfig struct {
	// Environment indicates the current running environment (LOCAL, NONPROD, PROD).
	Environment Environment `envconfig:"ENV" default:"LOCAL"`
}

// ServerConfig holds HTTP server configuration including network settings,
// timeouts, and TLS certificate paths.
type ServerConfig struct {
	// Port is the HTTP server listening port.
	Port int `envconfig:"PORT"             default:"8721"`
	// Host is the network interface to bind to.
	Host string `envconfig:"HOST"             default:"0.0.0.0"`
	// BaseURL is the public origin used to build shareable links.
	BaseURL string `envconfig:"BASE_URL"         default:"http://localhost:8721"`
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `envconfig:"READ_TIMEOUT"     default:"30s"`
	// WriteTimeout must cover a full conversion run on upload.
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT"    default:"90s"`
	// IdleTimeout is the maximum amount of time to wait for keep-alive connections.
	IdleTimeout time.Duration `envconfig:"IDLE_TIMEOUT"     default:"60s"`
	// ShutdownTimeout is the maximum time to wait for graceful server shutdown.
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	// TLSCert is the path to the TLS certificate file for HTTPS.
	TLSCert string `envconfig:"TLS_CERT"`
	// TLSKey is the path to the TLS private key file for HTTPS.
	TLSKey string `envconfig:"TLS_KEY"`
}

// StorageConfig locates session data and static assets.
type StorageConfig struct {
	// Path is the sandbox root. Every session directory lives directly below it.
	Path string `envconfig:"PATH"       default:"./storage"`
	// PublicDir holds the upload page and its assets.
	PublicDir string `envconfig:"PUBLIC_DIR" default:"./public"`
}

// UploadConfig bounds what an upload may contain.
type UploadConfig struct {
	// MaxFileSizeMB is the largest accepted file, in megabytes.
	MaxFileSizeMB int `envconfig:"MAX_FILE_SIZE_MB" default:"50"`
	// MaxLines is the largest accepted number of non-blank JSONL lines.
	MaxLines int `envconfig:"MAX_LINES"        default:"10000000"`
}

// GeneratorConfig configures the external conversion tool.
type GeneratorConfig struct {
	// BinPath is the tool executable. Empty means probe the well-known locations.
	BinPath string `envconfig:"BIN_PATH"`
	// Timeout bounds a single conversion run.
	Timeout time.Duration `envconfig:"TIMEOUT" default:"60s"`
}

// RateLimitConfig holds the window and max pairs of both endpoint classes.
type RateLimitConfig struct {
	// Backend is memory or redis.
	Backend RateLimitBackend `envconfig:"BACKEND"         default:"memory"`
	// UploadWindow is the fixed window length of the upload limiter.
	UploadWindow time.Duration `envconfig:"UPLOAD_WINDOW"   default:"15m"`
	// UploadMax is the number of uploads allowed per window.
	UploadMax int `envconfig:"UPLOAD_MAX"      default:"10"`
	// ViewWindow is the fixed window length of the view limiter.
	ViewWindow time.Duration `envconfig:"VIEW_WINDOW"     default:"1m"`
	// ViewMax is the number of views allowed per window.
	ViewMax int `envconfig:"VIEW_MAX"        default:"100"`
	// SweepInterval is how often expired in-memory entries are dropped.
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL"  default:"1m"`
	// TrustedProxies are peer addresses whose X-Forwarded-For and X-Real-IP
	// headers identify the client. Their own requests are not counted.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`
}

// RedisConfig contains Redis connection configuration including
// connection pool settings and timeouts.
type RedisConfig struct {
	// URL is the Redis connection URL.
	URL string `envconfig:"URL"           default:"redis://localhost:6379"`
	// Password is the Redis authentication password.
	Password string `envconfig:"PASSWORD"`
	// DB is the Redis database number to use.
	DB int `envconfig:"DB"            default:"0"`
	// MaxRetries is the maximum number of retry attempts for failed operations.
	MaxRetries int `envconfig:"MAX_RETRIES"   default:"3"`
	// PoolSize is the maximum number of socket connections.
	PoolSize int `envconfig:"POOL_SIZE"     default:"10"`
	// MinIdleConn is the minimum number of idle connections.
	MinIdleConn int `envconfig:"MIN_IDLE_CONN" default:"2"`
	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration `envconfig:"DIAL_TIMEOUT"  default:"5s"`
	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration `envconfig:"READ_TIMEOUT"  default:"3s"`
	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
	// KeyPrefix namespaces every key this service writes.
	KeyPrefix string `envconfig:"KEY_PREFIX"    default:"cclog:"`
}

// AdminConfig protects the administrative endpoints.
type AdminConfig struct {
	// JWTSecret signs admin bearer tokens (HS256). Empty disables admin routes.
	JWTSecret string `envconfig:"JWT_SECRET"`
	// JWTIssuer is the required iss claim.
	JWTIssuer string `envconfig:"JWT_ISSUER" default:"cclog-share"`
}

// LoggingConfig contains logging configuration including
// log level, format, and output destination.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `envconfig:"LEVEL"              default:"info"`
	// Format is the log output format (json, text).
	Format string `envconfig:"FORMAT"             default:"json"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `envconfig:"OUTPUT"             default:"stdout"`
	// ConsoleFormat is the format for console output (text, json).
	ConsoleFormat string `envconfig:"CONSOLE_FORMAT"     default:"text"`
	// FileFormat is the format for file output (text, json).
	FileFormat string `envconfig:"FILE_FORMAT"        default:"json"`
	// FilePath is the path to the log file for dual output.
	FilePath string `envconfig:"FILE_PATH"`
	// EnableDualOutput enables both console and file logging simultaneously.
	EnableDualOutput bool `envconfig:"ENABLE_DUAL_OUTPUT" default:"false"`
}

// Load reads configuration from environment variables and returns
// a validated Config instance.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks that every value is usable before any component starts.
func (c *Config) Validate() error {
	if c.Server.Port < MinPortNumber || c.Server.Port > MaxPortNumber {
		return errors.New("server port must be between 1 and 65535")
	}

	if c.Storage.Path == "" {
		return errors.New("storage path is required")
	}

	if c.Upload.MaxFileSizeMB < 1 {
		return errors.New("upload max file size must be at least 1MB")
	}

	if c.Upload.MaxLines < 1 {
		return errors.New("upload max lines must be positive")
	}

	if c.Generator.Timeout <= 0 {
		return errors.New("generator timeout must be positive")
	}

	if c.RateLimit.UploadWindow <= 0 || c.RateLimit.ViewWindow <= 0 {
		return errors.New("rate limit windows must be positive")
	}

	if c.RateLimit.UploadMax < 1 || c.RateLimit.ViewMax < 1 {
		return errors.New("rate limit max values must be positive")
	}

	if c.RateLimit.SweepInterval <= 0 {
		return errors.New("rate limit sweep interval must be positive")
	}

	switch c.RateLimit.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unsupported rate limit backend: %s", c.RateLimit.Backend)
	}

	if c.Admin.JWTSecret != "" && len(c.Admin.JWTSecret) < MinAdminSecretLength {
		return fmt.Errorf("admin JWT secret must be at least %d characters long", MinAdminSecretLength)
	}

	return nil
}

// ServerAddr returns the formatted server address string in host:port format.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsTLSEnabled returns true if both TLS certificate and key paths are configured.
func (c *Config) IsTLSEnabled() bool {
	return c.Server.TLSCert != "" && c.Server.TLSKey != ""
}

// IsAdminEnabled reports whether admin routes should be mounted.
func (c *Config) IsAdminEnabled() bool {
	return c.Admin.JWTSecret != ""
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Upload.MaxFileSizeMB) * BytesPerMegabyte
}

// IsDevelopment reports whether the service runs locally.
func (c *Config) IsDevelopment() bool {
	return c.Environment.Environment == "" || strings.EqualFold(string(c.Environment.Environment), string(Local))
}
