package database

import "strings"

// Kind identifies a storage backend
type Kind string

const (
	KindPostgres Kind = "postgres"
	KindSQLite   Kind = "sqlite"
)

// ParseURL picks the backend for a DATABASE_URL value and returns the
// driver-specific DSN.
func ParseURL(url string) (Kind, string) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return KindPostgres, url
	case strings.HasPrefix(url, "sqlite://"):
		return KindSQLite, strings.TrimPrefix(url, "sqlite://")
	case strings.HasPrefix(url, "sqlite:"):
		return KindSQLite, strings.TrimPrefix(url, "sqlite:")
	default:
		return KindSQLite, url
	}
}

// PostgresSchema creates the three visitor counter tables
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS visitor_counter_settings (
		id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		min_base INTEGER NOT NULL DEFAULT 1000,
		max_base INTEGER NOT NULL DEFAULT 1500,
		current_base INTEGER NOT NULL DEFAULT 1450,
		last_refresh TIMESTAMPTZ,
		refresh_interval_seconds INTEGER NOT NULL DEFAULT 30,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS visitor_sessions (
		id BIGSERIAL PRIMARY KEY,
		session_key VARCHAR(255) NOT NULL UNIQUE,
		origin_address TEXT,
		client_descriptor TEXT,
		first_seen TIMESTAMPTZ NOT NULL,
		last_seen TIMESTAMPTZ NOT NULL,
		page_views INTEGER NOT NULL DEFAULT 1,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		CHECK (first_seen <= last_seen)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_visitor_sessions_last_seen ON visitor_sessions(last_seen)`,
	`CREATE INDEX IF NOT EXISTS idx_visitor_sessions_first_seen ON visitor_sessions(first_seen)`,
	`CREATE TABLE IF NOT EXISTS visitor_stats (
		id BIGSERIAL PRIMARY KEY,
		stat_date DATE NOT NULL UNIQUE,
		unique_visitors INTEGER NOT NULL DEFAULT 0,
		total_page_views INTEGER NOT NULL DEFAULT 0,
		displayed_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// SQLiteSchema mirrors PostgresSchema. Timestamps are unix microseconds,
// dates are YYYY-MM-DD text.
var SQLiteSchema = []string{
	`CREATE TABLE IF NOT EXISTS visitor_counter_settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		min_base INTEGER NOT NULL DEFAULT 1000,
		max_base INTEGER NOT NULL DEFAULT 1500,
		current_base INTEGER NOT NULL DEFAULT 1450,
		last_refresh INTEGER,
		refresh_interval_seconds INTEGER NOT NULL DEFAULT 30,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS visitor_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_key TEXT NOT NULL UNIQUE,
		origin_address TEXT,
		client_descriptor TEXT,
		first_seen INTEGER NOT NULL,
		last_seen INTEGER NOT NULL,
		page_views INTEGER NOT NULL DEFAULT 1,
		active INTEGER NOT NULL DEFAULT 1,
		CHECK (first_seen <= last_seen)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_visitor_sessions_last_seen ON visitor_sessions(last_seen)`,
	`CREATE INDEX IF NOT EXISTS idx_visitor_sessions_first_seen ON visitor_sessions(first_seen)`,
	`CREATE TABLE IF NOT EXISTS visitor_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		stat_date TEXT NOT NULL UNIQUE,
		unique_visitors INTEGER NOT NULL DEFAULT 0,
		total_page_views INTEGER NOT NULL DEFAULT 0,
		displayed_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
}

// DropStatements removes the tables, newest dependency first
var DropStatements = []string{
	`DROP TABLE IF EXISTS visitor_stats`,
	`DROP TABLE IF EXISTS visitor_sessions`,
	`DROP TABLE IF EXISTS visitor_counter_settings`,
}
