package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"visitor-counter/internal/domain"
	"visitor-counter/pkg/database"

	"github.com/jackc/pgx/v5"
)

const settingsColumns = `id, min_base, max_base, current_base, last_refresh,
	refresh_interval_seconds, enabled, created_at, updated_at`

// settingsRepository stores the singleton settings row in PostgreSQL
type settingsRepository struct {
	db *database.PostgresDB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *database.PostgresDB) SettingsRepository {
	return &settingsRepository{
		db: db,
	}
}

// GetOrCreate returns the settings row, inserting defaults if absent
func (r *settingsRepository) GetOrCreate(ctx context.Context, defaults *domain.Settings) (*domain.Settings, error) {
	insert := `
		INSERT INTO visitor_counter_settings (id, min_base, max_base, current_base, last_refresh,
			refresh_interval_seconds, enabled, created_at, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.Pool.Exec(ctx, insert,
		defaults.MinBase,
		defaults.MaxBase,
		defaults.CurrentBase,
		defaults.LastRefresh,
		defaults.RefreshIntervalSeconds,
		defaults.Enabled,
		defaults.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert default settings: %w", err)
	}

	// Read from the primary: a replica may not have the row yet.
	settings, err := scanSettings(r.db.Pool.QueryRow(ctx,
		`SELECT `+settingsColumns+` FROM visitor_counter_settings WHERE id = 1`))
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	return settings, nil
}

// RefreshBase stores a new base count if nobody refreshed since expected
func (r *settingsRepository) RefreshBase(ctx context.Context, expected *time.Time, base int, at time.Time) (*domain.Settings, bool, error) {
	query := `
		UPDATE visitor_counter_settings
		SET current_base = $1, last_refresh = $2, updated_at = $2
		WHERE id = 1 AND last_refresh IS NOT DISTINCT FROM $3
		RETURNING ` + settingsColumns

	settings, err := scanSettings(r.db.Pool.QueryRow(ctx, query, base, at, expected))
	if err == nil {
		return settings, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to refresh base count: %w", err)
	}

	// Another request refreshed first; return its value.
	settings, err = scanSettings(r.db.Pool.QueryRow(ctx,
		`SELECT `+settingsColumns+` FROM visitor_counter_settings WHERE id = 1`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrSettingsNotFound
		}
		return nil, false, fmt.Errorf("failed to reload settings: %w", err)
	}

	return settings, false, nil
}

// UpdateRange overwrites range, interval and base count in one statement
func (r *settingsRepository) UpdateRange(ctx context.Context, minBase, maxBase, intervalSeconds, base int, at time.Time) (*domain.Settings, error) {
	query := `
		UPDATE visitor_counter_settings
		SET min_base = $1, max_base = $2, refresh_interval_seconds = $3,
			current_base = $4, last_refresh = $5, updated_at = $5
		WHERE id = 1
		RETURNING ` + settingsColumns

	settings, err := scanSettings(r.db.Pool.QueryRow(ctx, query, minBase, maxBase, intervalSeconds, base, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}

	return settings, nil
}

// SetEnabled flips the enabled flag
func (r *settingsRepository) SetEnabled(ctx context.Context, enabled bool, at time.Time) (*domain.Settings, error) {
	query := `
		UPDATE visitor_counter_settings
		SET enabled = $1, updated_at = $2
		WHERE id = 1
		RETURNING ` + settingsColumns

	settings, err := scanSettings(r.db.Pool.QueryRow(ctx, query, enabled, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("failed to toggle counter: %w", err)
	}

	return settings, nil
}

func scanSettings(row pgx.Row) (*domain.Settings, error) {
	s := &domain.Settings{}
	err := row.Scan(
		&s.ID,
		&s.MinBase,
		&s.MaxBase,
		&s.CurrentBase,
		&s.LastRefresh,
		&s.RefreshIntervalSeconds,
		&s.Enabled,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
