package service

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"visitor-counter/internal/domain"
	"visitor-counter/pkg/logger"
	"visitor-counter/pkg/redis"
)

// RateLimitWindow is the fixed window for track rate limiting
const RateLimitWindow = 1 * time.Hour

// rateLimiter counts track requests per hashed origin in Redis.
// Without a client, or when Redis fails, every request is allowed.
type rateLimiter struct {
	redisClient *redis.Client
	limit       int64
	logger      *logger.Logger
}

// NewRateLimiter creates a rate limiter. redisClient may be nil.
func NewRateLimiter(redisClient *redis.Client, limit int, logger *logger.Logger) RateLimiter {
	return &rateLimiter{
		redisClient: redisClient,
		limit:       int64(limit),
		logger:      logger,
	}
}

func (r *rateLimiter) Allow(ctx context.Context, origin string, now time.Time) *domain.RateLimitInfo {
	info := &domain.RateLimitInfo{
		OriginAddress: origin,
		Limit:         r.limit,
		ResetAt:       now.Add(RateLimitWindow),
		TTL:           RateLimitWindow,
		IsAllowed:     true,
	}
	if r.redisClient == nil {
		return info
	}

	key := r.redisClient.KeyBuilder.KeyTrackRateLimit(originHash(origin))

	count, err := r.redisClient.Incr(ctx, key)
	if err != nil {
		r.logger.WithError(err).Warn("Rate limit check failed, allowing request")
		return info
	}

	// Set expiry on first request
	if count == 1 {
		if err := r.redisClient.Expire(ctx, key, RateLimitWindow); err != nil {
			r.logger.WithError(err).Warn("Failed to set rate limit key expiry")
		}
	}

	ttl, err := r.redisClient.TTL(ctx, key)
	switch {
	case err != nil:
		r.logger.WithError(err).Warn("Failed to read rate limit key expiry")
		ttl = RateLimitWindow
	case ttl < 0:
		// A key without expiry would block the origin forever.
		if err := r.redisClient.Expire(ctx, key, RateLimitWindow); err != nil {
			r.logger.WithError(err).Warn("Failed to repair rate limit key expiry")
		}
		ttl = RateLimitWindow
	}

	info.RequestCount = count
	info.TTL = ttl
	info.ResetAt = now.Add(ttl)
	info.IsAllowed = count <= r.limit

	if !info.IsAllowed {
		r.logger.WithFields(map[string]interface{}{
			"origin_hash":   originHash(origin),
			"request_count": count,
			"limit":         r.limit,
		}).Warn("Rate limit exceeded")
	}

	return info
}

// originHash keeps raw addresses out of Redis keys
func originHash(origin string) string {
	hash := sha256.Sum256([]byte(origin))
	return fmt.Sprintf("%x", hash)[:16]
}
