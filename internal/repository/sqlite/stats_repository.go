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

const statsColumns = `id, stat_date, unique_visitors, total_page_views, displayed_count, created_at, updated_at`

type statsRepository struct {
	db *sql.DB
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *database.SQLiteDB) repository.StatsRepository {
	return &statsRepository{db: db.DB}
}

func (r *statsRepository) Upsert(ctx context.Context, stats *domain.DailyStats) error {
	var createdAt, updatedAt int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO visitor_stats (stat_date, unique_visitors, total_page_views, displayed_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (stat_date) DO UPDATE SET
			unique_visitors = excluded.unique_visitors,
			total_page_views = excluded.total_page_views,
			displayed_count = excluded.displayed_count,
			updated_at = excluded.updated_at
		RETURNING id, created_at, updated_at`,
		stats.DateString(),
		stats.UniqueVisitors,
		stats.TotalPageViews,
		stats.DisplayedCount,
		toMicros(stats.UpdatedAt),
		toMicros(stats.UpdatedAt),
	).Scan(&stats.ID, &createdAt, &updatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert daily stats: %w", err)
	}

	stats.CreatedAt = fromMicros(createdAt)
	stats.UpdatedAt = fromMicros(updatedAt)
	return nil
}

func (r *statsRepository) GetByDate(ctx context.Context, date time.Time) (*domain.DailyStats, error) {
	stats, err := scanStats(r.db.QueryRowContext(ctx,
		`SELECT `+statsColumns+` FROM visitor_stats WHERE stat_date = ?`,
		date.Format(domain.DateLayout)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get daily stats by date: %w", err)
	}
	return stats, nil
}

func (r *statsRepository) ListSince(ctx context.Context, from time.Time) ([]*domain.DailyStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+statsColumns+`
		FROM visitor_stats
		WHERE stat_date >= ?
		ORDER BY stat_date DESC`,
		from.Format(domain.DateLayout))
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

func scanStats(row scanner) (*domain.DailyStats, error) {
	var (
		s                    domain.DailyStats
		date                 string
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&s.ID,
		&date,
		&s.UniqueVisitors,
		&s.TotalPageViews,
		&s.DisplayedCount,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	day, err := time.ParseInLocation(domain.DateLayout, date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid stat_date %q: %w", date, err)
	}
	s.Date = day
	s.CreatedAt = fromMicros(createdAt)
	s.UpdatedAt = fromMicros(updatedAt)
	return &s, nil
}
