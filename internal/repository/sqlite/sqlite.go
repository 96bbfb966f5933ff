// Package sqlite implements the visitor counter repositories on SQLite.
// Timestamps are stored as unix microseconds to match PostgreSQL precision.
package sqlite

import (
	"database/sql"
	"time"

	"visitor-counter/internal/repository"
	"visitor-counter/pkg/database"
)

// NewRepositories wires the SQLite implementations
func NewRepositories(db *database.SQLiteDB) *repository.Repositories {
	return &repository.Repositories{
		Settings: NewSettingsRepository(db),
		Sessions: NewSessionRepository(db),
		Stats:    NewStatsRepository(db),
	}
}

func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func nullMicros(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMicro(), Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}
