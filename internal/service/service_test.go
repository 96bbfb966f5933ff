package service

import (
	"context"
	"testing"
	"time"

	"visitor-counter/internal/domain"
	"visitor-counter/internal/repository"
	"visitor-counter/internal/repository/sqlite"
	"visitor-counter/pkg/database"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestRepositories(t *testing.T) *repository.Repositories {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewSQLiteDB(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(ctx))
	return sqlite.NewRepositories(db)
}

// MockSessionRepository lets tests inject store failures
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) GetByKey(ctx context.Context, key string) (*domain.VisitorSession, error) {
	args := m.Called(ctx, key)
	session, _ := args.Get(0).(*domain.VisitorSession)
	return session, args.Error(1)
}

func (m *MockSessionRepository) Create(ctx context.Context, session *domain.VisitorSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) Touch(ctx context.Context, key string, at time.Time) (*domain.VisitorSession, error) {
	args := m.Called(ctx, key, at)
	session, _ := args.Get(0).(*domain.VisitorSession)
	return session, args.Error(1)
}

func (m *MockSessionRepository) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSessionRepository) AggregateFirstSeen(ctx context.Context, from, to time.Time) (int64, int64, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

func (m *MockSessionRepository) MarkStaleInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}
