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

const statsColumns = `id, stat_date, unique_visitors, total_page_views, displayed_count, created_at, updated_at`

// statsRepository stores daily rollups in PostgreSQL
type statsRepository struct {
	db *database.PostgresDB
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *database.PostgresDB) StatsRepository {
	return &statsRepository{
		db: db,
	}
}

// Upsert writes the row for stats.Date, overwriting an existing one
func (r *statsRepository) Upsert(ctx context.Context, stats *domain.DailyStats) error {
	query := `
		INSERT INTO visitor_stats (stat_date, unique_visitors, total_page_views, displayed_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (stat_date) DO UPDATE SET
			unique_visitors = EXCLUDED.unique_visitors,
			total_page_views = EXCLUDED.total_page_views,
			displayed_count = EXCLUDED.displayed_count,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		stats.DateString(),
		stats.UniqueVisitors,
		stats.TotalPageViews,
		stats.DisplayedCount,
		stats.UpdatedAt,
	).Scan(&stats.ID, &stats.CreatedAt, &stats.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert daily stats: %w", err)
	}

	return nil
}

// GetByDate returns the row for the given day or nil when absent
func (r *statsRepository) GetByDate(ctx context.Context, date time.Time) (*domain.DailyStats, error) {
	query := `SELECT ` + statsColumns + ` FROM visitor_stats WHERE stat_date = $1`

	stats, err := scanStats(r.db.GetReadPool().QueryRow(ctx, query, date.Format(domain.DateLayout)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get daily stats by date: %w", err)
	}

	return stats, nil
}

// ListSince returns rows dated on or after from, newest first
func (r *statsRepository) ListSince(ctx context.Context, from time.Time) ([]*domain.DailyStats, error) {
	query := `
		SELECT ` + statsColumns + `
		FROM visitor_stats
		WHERE stat_date >= $1
		ORDER BY stat_date DESC
	`

	rows, err := r.db.GetReadPool().Query(ctx, query, from.Format(domain.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var result []*domain.DailyStats
	for rows.Next() {
		stats, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily stats row: %w", err)
		}
		result = append(result, stats)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading daily stats rows: %w", err)
	}

	return result, nil
}

func scanStats(row pgx.Row) (*domain.DailyStats, error) {
	s := &domain.DailyStats{}
	err := row.Scan(
		&s.ID,
		&s.Date,
		&s.UniqueVisitors,
		&s.TotalPageViews,
		&s.DisplayedCount,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Date = s.Date.UTC()
	return s, nil
}
