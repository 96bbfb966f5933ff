package handler

import (
	"context"
	"net/http"
	"time"

	"visitor-counter/pkg/logger"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Health(ctx context.Context) error
}

// HealthHandler handles the root liveness probe
type HealthHandler struct {
	store  Pinger
	cache  Pinger // nil when Redis is not configured
	logger *logger.Logger
}

// NewHealthHandler creates a new health handler. cache may be nil.
func NewHealthHandler(store, cache Pinger, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

// ProbeResponse represents the health check response
type ProbeResponse struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	Redis     string    `json:"redis"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Check handles GET /health. Redis is reported but never fails the probe,
// since rate limiting fails open without it.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	redisStatus := h.redisStatus(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Health(ctx); err != nil {
		h.logger.WithError(err).Warn("Store health check failed")
		respondJSON(w, http.StatusServiceUnavailable, &ProbeResponse{
			Service:   ServiceName,
			Status:    "unhealthy",
			Redis:     redisStatus,
			Message:   "Store is unreachable",
			Timestamp: time.Now().UTC(),
		}, h.logger)
		return
	}

	respondJSON(w, http.StatusOK, &ProbeResponse{
		Service:   ServiceName,
		Status:    "healthy",
		Redis:     redisStatus,
		Message:   "Visitor counter service is running normally",
		Timestamp: time.Now().UTC(),
	}, h.logger)
}

func (h *HealthHandler) redisStatus(parent context.Context) string {
	if h.cache == nil {
		return "disabled"
	}

	ctx, cancel := context.WithTimeout(parent, 2*time.Second)
	defer cancel()

	if err := h.cache.Health(ctx); err != nil {
		h.logger.WithError(err).Warn("Redis health check failed")
		return "unhealthy"
	}
	return "healthy"
}
