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

const sessionColumns = `id, session_key, COALESCE(origin_address, ''), COALESCE(client_descriptor, ''),
	first_seen, last_seen, page_views, active`

// sessionRepository stores visitor sessions in PostgreSQL
type sessionRepository struct {
	db *database.PostgresDB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *database.PostgresDB) SessionRepository {
	return &sessionRepository{
		db: db,
	}
}

// GetByKey returns the session or nil when absent
func (r *sessionRepository) GetByKey(ctx context.Context, key string) (*domain.VisitorSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM visitor_sessions WHERE session_key = $1`

	session, err := scanSession(r.db.Pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get visitor session: %w", err)
	}

	return session, nil
}

// Create inserts a new session
func (r *sessionRepository) Create(ctx context.Context, session *domain.VisitorSession) error {
	query := `
		INSERT INTO visitor_sessions (session_key, origin_address, client_descriptor,
			first_seen, last_seen, page_views, active)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7)
		ON CONFLICT (session_key) DO NOTHING
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		session.SessionKey,
		session.OriginAddress,
		session.ClientDescriptor,
		session.FirstSeen,
		session.LastSeen,
		session.PageViews,
		session.Active,
	).Scan(&session.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDuplicateSessionKey
		}
		return fmt.Errorf("failed to create visitor session: %w", err)
	}

	return nil
}

// Touch increments page views and advances last_seen
func (r *sessionRepository) Touch(ctx context.Context, key string, at time.Time) (*domain.VisitorSession, error) {
	query := `
		UPDATE visitor_sessions
		SET page_views = page_views + 1, last_seen = GREATEST(last_seen, $2)
		WHERE session_key = $1
		RETURNING ` + sessionColumns

	session, err := scanSession(r.db.Pool.QueryRow(ctx, query, key, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to update visitor session: %w", err)
	}

	return session, nil
}

// CountActiveSince counts active sessions seen at or after since
func (r *sessionRepository) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM visitor_sessions WHERE active AND last_seen >= $1`

	var count int64
	if err := r.db.GetReadPool().QueryRow(ctx, query, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active visitors: %w", err)
	}

	return count, nil
}

// AggregateFirstSeen counts sessions first seen in [from, to] and sums their page views
func (r *sessionRepository) AggregateFirstSeen(ctx context.Context, from, to time.Time) (int64, int64, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(page_views), 0)
		FROM visitor_sessions
		WHERE first_seen >= $1 AND first_seen <= $2
	`

	var sessions, pageViews int64
	if err := r.db.GetReadPool().QueryRow(ctx, query, from, to).Scan(&sessions, &pageViews); err != nil {
		return 0, 0, fmt.Errorf("failed to aggregate visitor sessions: %w", err)
	}

	return sessions, pageViews, nil
}

// MarkStaleInactive deactivates sessions last seen before cutoff
func (r *sessionRepository) MarkStaleInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `UPDATE visitor_sessions SET active = FALSE WHERE last_seen < $1`

	result, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate stale sessions: %w", err)
	}

	return result.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*domain.VisitorSession, error) {
	s := &domain.VisitorSession{}
	err := row.Scan(
		&s.ID,
		&s.SessionKey,
		&s.OriginAddress,
		&s.ClientDescriptor,
		&s.FirstSeen,
		&s.LastSeen,
		&s.PageViews,
		&s.Active,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
