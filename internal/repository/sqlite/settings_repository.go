package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"visitor-counter/internal/domain"
	"visitor-counter/internal/repository"
	"visitor-counter/pkg/database"
)

const settingsColumns = `id, min_base, max_base, current_base, last_refresh,
	refresh_interval_seconds, enabled, created_at, updated_at`

type settingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *database.SQLiteDB) repository.SettingsRepository {
	return &settingsRepository{db: db.DB}
}

func (r *settingsRepository) GetOrCreate(ctx context.Context, defaults *domain.Settings) (*domain.Settings, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO visitor_counter_settings (id, min_base, max_base, current_base, last_refresh,
			refresh_interval_seconds, enabled, created_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		defaults.MinBase,
		defaults.MaxBase,
		defaults.CurrentBase,
		nullMicros(defaults.LastRefresh),
		defaults.RefreshIntervalSeconds,
		defaults.Enabled,
		toMicros(defaults.CreatedAt),
		toMicros(defaults.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert default settings: %w", err)
	}

	settings, err := scanSettings(r.db.QueryRowContext(ctx,
		`SELECT `+settingsColumns+` FROM visitor_counter_settings WHERE id = 1`))
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return settings, nil
}

func (r *settingsRepository) RefreshBase(ctx context.Context, expected *time.Time, base int, at time.Time) (*domain.Settings, bool, error) {
	settings, err := scanSettings(r.db.QueryRowContext(ctx, `
		UPDATE visitor_counter_settings
		SET current_base = ?, last_refresh = ?, updated_at = ?
		WHERE id = 1 AND last_refresh IS ?
		RETURNING `+settingsColumns,
		base, toMicros(at), toMicros(at), nullMicros(expected)))
	if err == nil {
		return settings, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to refresh base count: %w", err)
	}

	settings, err = scanSettings(r.db.QueryRowContext(ctx,
		`SELECT `+settingsColumns+` FROM visitor_counter_settings WHERE id = 1`))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, repository.ErrSettingsNotFound
		}
		return nil, false, fmt.Errorf("failed to reload settings: %w", err)
	}
	return settings, false, nil
}

func (r *settingsRepository) UpdateRange(ctx context.Context, minBase, maxBase, intervalSeconds, base int, at time.Time) (*domain.Settings, error) {
	settings, err := scanSettings(r.db.QueryRowContext(ctx, `
		UPDATE visitor_counter_settings
		SET min_base = ?, max_base = ?, refresh_interval_seconds = ?,
			current_base = ?, last_refresh = ?, updated_at = ?
		WHERE id = 1
		RETURNING `+settingsColumns,
		minBase, maxBase, intervalSeconds, base, toMicros(at), toMicros(at)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	return settings, nil
}

func (r *settingsRepository) SetEnabled(ctx context.Context, enabled bool, at time.Time) (*domain.Settings, error) {
	settings, err := scanSettings(r.db.QueryRowContext(ctx, `
		UPDATE visitor_counter_settings
		SET enabled = ?, updated_at = ?
		WHERE id = 1
		RETURNING `+settingsColumns,
		enabled, toMicros(at)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("failed to toggle counter: %w", err)
	}
	return settings, nil
}

func scanSettings(row scanner) (*domain.Settings, error) {
	var (
		s                    domain.Settings
		lastRefresh          sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&s.ID,
		&s.MinBase,
		&s.MaxBase,
		&s.CurrentBase,
		&lastRefresh,
		&s.RefreshIntervalSeconds,
		&s.Enabled,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastRefresh.Valid {
		t := fromMicros(lastRefresh.Int64)
		s.LastRefresh = &t
	}
	s.CreatedAt = fromMicros(createdAt)
	s.UpdatedAt = fromMicros(updatedAt)
	return &s, nil
}
