package repository

import (
	"context"
	"errors"
	"time"

	"visitor-counter/internal/domain"
	"visitor-counter/pkg/database"
)

// ErrDuplicateSessionKey is returned by SessionRepository.Create when another
// writer already inserted the same session key.
var ErrDuplicateSessionKey = errors.New("session key already exists")

// ErrSessionNotFound is returned by SessionRepository.Touch for an unknown key
var ErrSessionNotFound = errors.New("session not found")

// ErrSettingsNotFound is returned when the settings row is missing on update
var ErrSettingsNotFound = errors.New("settings not found")

// SettingsRepository persists the singleton counter settings row
type SettingsRepository interface {
	// GetOrCreate returns the settings row, inserting defaults if absent.
	// Concurrent first calls converge on one row.
	GetOrCreate(ctx context.Context, defaults *domain.Settings) (*domain.Settings, error)

	// RefreshBase stores a new base count if last_refresh still equals
	// expected. It returns the row as stored and whether this call won.
	RefreshBase(ctx context.Context, expected *time.Time, base int, at time.Time) (*domain.Settings, bool, error)

	// UpdateRange overwrites range, interval and base count in one statement
	UpdateRange(ctx context.Context, minBase, maxBase, intervalSeconds, base int, at time.Time) (*domain.Settings, error)

	// SetEnabled flips the enabled flag
	SetEnabled(ctx context.Context, enabled bool, at time.Time) (*domain.Settings, error)
}

// SessionRepository persists visitor sessions
type SessionRepository interface {
	// GetByKey returns the session or nil when absent
	GetByKey(ctx context.Context, key string) (*domain.VisitorSession, error)

	// Create inserts a new session, returning ErrDuplicateSessionKey on conflict
	Create(ctx context.Context, session *domain.VisitorSession) error

	// Touch increments page views and advances last_seen
	Touch(ctx context.Context, key string, at time.Time) (*domain.VisitorSession, error)

	// CountActiveSince counts active sessions seen at or after since
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)

	// AggregateFirstSeen counts sessions first seen in [from, to] and sums their page views
	AggregateFirstSeen(ctx context.Context, from, to time.Time) (sessions int64, pageViews int64, err error)

	// MarkStaleInactive deactivates sessions last seen before cutoff and
	// returns how many rows matched, including already inactive ones
	MarkStaleInactive(ctx context.Context, cutoff time.Time) (int64, error)
}

// StatsRepository persists daily rollups
type StatsRepository interface {
	// Upsert writes the row for stats.Date, overwriting an existing one
	Upsert(ctx context.Context, stats *domain.DailyStats) error

	// GetByDate returns the row for the given day or nil when absent
	GetByDate(ctx context.Context, date time.Time) (*domain.DailyStats, error)

	// ListSince returns rows dated on or after from, newest first
	ListSince(ctx context.Context, from time.Time) ([]*domain.DailyStats, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Settings SettingsRepository
	Sessions SessionRepository
	Stats    StatsRepository
}

// NewPostgresRepositories wires the PostgreSQL implementations
func NewPostgresRepositories(db *database.PostgresDB) *Repositories {
	return &Repositories{
		Settings: NewSettingsRepository(db),
		Sessions: NewSessionRepository(db),
		Stats:    NewStatsRepository(db),
	}
}
