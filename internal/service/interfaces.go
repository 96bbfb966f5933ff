package service

import (
	"context"
	"time"

	"visitor-counter/internal/domain"
)

// CounterService derives the displayed visitor count from the randomized
// base and the active sessions
type CounterService interface {
	// GetOrCreateSettings returns the settings singleton, creating it with defaults
	GetOrCreateSettings(ctx context.Context, now time.Time) (*domain.Settings, error)

	// RefreshBaseIfDue draws a new base count when the refresh interval has
	// elapsed and returns the current base count
	RefreshBaseIfDue(ctx context.Context, settings *domain.Settings, now time.Time) (int, error)

	// UpdateSettings overwrites range and interval and forces a new draw
	UpdateSettings(ctx context.Context, minBase, maxBase, intervalSeconds int, now time.Time) (*domain.Settings, error)

	// SetEnabled toggles whether the base count contributes to the display
	SetEnabled(ctx context.Context, enabled bool, now time.Time) (*domain.Settings, error)

	// ActiveVisitorCount counts active sessions seen within the active window
	ActiveVisitorCount(ctx context.Context, now time.Time) (int64, error)

	// DisplayedCount returns base plus active visitors and records today's stats
	DisplayedCount(ctx context.Context, now time.Time) (int64, error)

	// TodayTotalFirstSeen counts sessions first seen since UTC midnight
	TodayTotalFirstSeen(ctx context.Context, now time.Time) (int64, error)

	// Statistics returns the full counter snapshot
	Statistics(ctx context.Context, now time.Time) (*domain.StatsSnapshot, error)
}

// TrackerService maps a caller session key to a session record
type TrackerService interface {
	// Track creates or bumps the session for key. An empty key gets a new one.
	Track(ctx context.Context, key, origin, descriptor string, now time.Time) (*domain.VisitorSession, error)
}

// MaintenanceService soft-expires stale sessions
type MaintenanceService interface {
	// SweepStaleSessions marks sessions idle past the staleness threshold inactive
	SweepStaleSessions(ctx context.Context, now time.Time) (int64, error)
}

// RateLimiter limits track operations per origin address
type RateLimiter interface {
	// Allow records one request for origin and reports whether it is within the limit
	Allow(ctx context.Context, origin string, now time.Time) *domain.RateLimitInfo
}

// Services aggregates all service interfaces
type Services struct {
	Counter     CounterService
	Tracker     TrackerService
	Maintenance MaintenanceService
	RateLimiter RateLimiter
}
