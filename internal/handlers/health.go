package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// HealthCheckTimeout is the default timeout for health check operations.
	HealthCheckTimeout = 5 * time.Second
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	// StatusOK indicates every component is healthy.
	StatusOK HealthStatus = "ok"
	// StatusDegraded indicates an optional component is unhealthy.
	StatusDegraded HealthStatus = "degraded"
	// StatusUnhealthy indicates a required component is unhealthy.
	StatusUnhealthy HealthStatus = "unhealthy"
)

// HealthResponse represents the overall health check response.
type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// ComponentHealth represents the health of an individual component.
type ComponentHealth struct {
	Status       HealthStatus `json:"status"`
	Message      string       `json:"message,omitempty"`
	ResponseTime string       `json:"response_time,omitempty"`
}

// Pinger is satisfied by the Redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	storageRoot string
	generations Generation
	redis       Pinger
	logger      *logrus.Logger
	startTime   time.Time
}

// NewHealthHandler creates a new health check handler. redis may be nil when
// rate limit counters are kept in memory.
func NewHealthHandler(storageRoot string, generations Generation, redis Pinger, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		storageRoot: storageRoot,
		generations: generations,
		redis:       redis,
		logger:      logger,
		startTime:   time.Now(),
	}
}

// Health reports the storage root, the generation fingerprint and, when
// configured, Redis. Storage and generation are required; Redis only degrades.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	components := map[string]ComponentHealth{
		"storage":    h.checkStorage(),
		"generation": h.checkGeneration(ctx),
	}
	status := StatusOK
	for _, c := range components {
		if c.Status != StatusOK {
			status = StatusUnhealthy
		}
	}

	if h.redis != nil {
		components["redis"] = h.checkRedis(ctx)
		if components["redis"].Status != StatusOK && status == StatusOK {
			status = StatusDegraded
		}
	}

	statusCode := http.StatusOK
	if status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, h.logger, HealthResponse{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Components: components,
	}, statusCode)
}

// Liveness returns 200 while the process is serving.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, h.logger, HealthResponse{
		Status:    StatusOK,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}, http.StatusOK)
}

func (h *HealthHandler) checkStorage() ComponentHealth {
	info, err := os.Stat(h.storageRoot)
	if err != nil {
		h.logger.WithError(err).Warn("Storage health check failed")
		return ComponentHealth{Status: StatusUnhealthy, Message: "storage root unavailable"}
	}
	if !info.IsDir() {
		return ComponentHealth{Status: StatusUnhealthy, Message: "storage root is not a directory"}
	}
	return ComponentHealth{Status: StatusOK}
}

func (h *HealthHandler) checkGeneration(ctx context.Context) ComponentHealth {
	fingerprint, err := h.generations.Current(ctx)
	if err != nil {
		h.logger.WithError(err).Warn("Generation health check failed")
		return ComponentHealth{Status: StatusUnhealthy, Message: "generation fingerprint unavailable"}
	}
	return ComponentHealth{Status: StatusOK, Message: fingerprint[:etagLength]}
}

func (h *HealthHandler) checkRedis(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := h.redis.Ping(ctx)
	duration := time.Since(start)

	if err != nil {
		h.logger.WithError(err).Warn("Redis health check failed")
		return ComponentHealth{
			Status:       StatusUnhealthy,
			Message:      "Redis connection failed",
			ResponseTime: duration.String(),
		}
	}
	return ComponentHealth{Status: StatusOK, ResponseTime: duration.String()}
}
