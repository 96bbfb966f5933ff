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

const sessionColumns = `id, session_key, COALESCE(origin_address, ''), COALESCE(client_descriptor, ''),
	first_seen, last_seen, page_views, active`

type sessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *database.SQLiteDB) repository.SessionRepository {
	return &sessionRepository{db: db.DB}
}

func (r *sessionRepository) GetByKey(ctx context.Context, key string) (*domain.VisitorSession, error) {
	session, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM visitor_sessions WHERE session_key = ?`, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get visitor session: %w", err)
	}
	return session, nil
}

func (r *sessionRepository) Create(ctx context.Context, session *domain.VisitorSession) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO visitor_sessions (session_key, origin_address, client_descriptor,
			first_seen, last_seen, page_views, active)
		VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?)
		ON CONFLICT (session_key) DO NOTHING
		RETURNING id`,
		session.SessionKey,
		session.OriginAddress,
		session.ClientDescriptor,
		toMicros(session.FirstSeen),
		toMicros(session.LastSeen),
		session.PageViews,
		session.Active,
	).Scan(&session.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrDuplicateSessionKey
		}
		return fmt.Errorf("failed to create visitor session: %w", err)
	}
	return nil
}

func (r *sessionRepository) Touch(ctx context.Context, key string, at time.Time) (*domain.VisitorSession, error) {
	session, err := scanSession(r.db.QueryRowContext(ctx, `
		UPDATE visitor_sessions
		SET page_views = page_views + 1, last_seen = MAX(last_seen, ?)
		WHERE session_key = ?
		RETURNING `+sessionColumns,
		toMicros(at), key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to update visitor session: %w", err)
	}
	return session, nil
}

func (r *sessionRepository) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM visitor_sessions WHERE active = 1 AND last_seen >= ?`,
		toMicros(since)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active visitors: %w", err)
	}
	return count, nil
}

func (r *sessionRepository) AggregateFirstSeen(ctx context.Context, from, to time.Time) (int64, int64, error) {
	var sessions, pageViews int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(page_views), 0)
		FROM visitor_sessions
		WHERE first_seen >= ? AND first_seen <= ?`,
		toMicros(from), toMicros(to)).Scan(&sessions, &pageViews)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to aggregate visitor sessions: %w", err)
	}
	return sessions, pageViews, nil
}

func (r *sessionRepository) MarkStaleInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE visitor_sessions SET active = 0 WHERE last_seen < ?`, toMicros(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate stale sessions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

func scanSession(row scanner) (*domain.VisitorSession, error) {
	var (
		s                   domain.VisitorSession
		firstSeen, lastSeen int64
	)
	err := row.Scan(
		&s.ID,
		&s.SessionKey,
		&s.OriginAddress,
		&s.ClientDescriptor,
		&firstSeen,
		&lastSeen,
		&s.PageViews,
		&s.Active,
	)
	if err != nil {
		return nil, err
	}
	s.FirstSeen = fromMicros(firstSeen)
	s.LastSeen = fromMicros(lastSeen)
	return &s, nil
}
