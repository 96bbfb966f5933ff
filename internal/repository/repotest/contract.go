// Package repotest holds behaviour tests shared by every repository backend.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	"visitor-counter/internal/domain"
	"visitor-counter/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty, migrated set of repositories
type Factory func(t *testing.T) *repository.Repositories

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// Run executes the full contract against the backend produced by newRepos
func Run(t *testing.T, newRepos Factory) {
	t.Run("Settings", func(t *testing.T) { testSettings(t, newRepos) })
	t.Run("SettingsConcurrentCreate", func(t *testing.T) { testSettingsConcurrentCreate(t, newRepos) })
	t.Run("SettingsRefreshCAS", func(t *testing.T) { testSettingsRefreshCAS(t, newRepos) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newRepos) })
	t.Run("SessionsDuplicate", func(t *testing.T) { testSessionsDuplicate(t, newRepos) })
	t.Run("SessionsAggregates", func(t *testing.T) { testSessionsAggregates(t, newRepos) })
	t.Run("SessionsStaleSweep", func(t *testing.T) { testSessionsStaleSweep(t, newRepos) })
	t.Run("Stats", func(t *testing.T) { testStats(t, newRepos) })
}

func testSettings(t *testing.T, newRepos Factory) {
	repos := newRepos(t)
	ctx := context.Background()

	s, err := repos.Settings.GetOrCreate(ctx, domain.DefaultSettings(base))
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.ID)
	assert.Equal(t, 1000, s.MinBase)
	assert.Equal(t, 1500, s.MaxBase)
	assert.Equal(t, 1450, s.CurrentBase)
	assert.Equal(t, 30, s.RefreshIntervalSeconds)
	assert.True(t, s.Enabled)
	require.NotNil(t, s.LastRefresh)
	assert.True(t, base.Equal(*s.LastRefresh))

	// A second call with different defaults returns the stored row.
	other := domain.DefaultSettings(base.Add(time.Hour))
	other.MinBase = 1
	again, err := repos.Settings.GetOrCreate(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 1000, again.MinBase)

	at := base.Add(time.Minute)
	updated, err := repos.Settings.UpdateRange(ctx, 2000, 3000, 45, 2500, at)
	require.NoError(t, err)
	assert.Equal(t, 2000, updated.MinBase)
	assert.Equal(t, 3000, updated.MaxBase)
	assert.Equal(t, 45, updated.RefreshIntervalSeconds)
	assert.Equal(t, 2500, updated.CurrentBase)
	require.NotNil(t, updated.LastRefresh)
	assert.True(t, at.Equal(*updated.LastRefresh))
	assert.True(t, at.Equal(updated.UpdatedAt))

	// Inverted ranges are stored as given.
	inverted, err := repos.Settings.UpdateRange(ctx, 2000, 1000, 30, 1500, at)
	require.NoError(t, err)
	assert.Equal(t, 2000, inverted.MinBase)
	assert.Equal(t, 1000, inverted.MaxBase)

	disabled, err := repos.Settings.SetEnabled(ctx, false, at.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)
	assert.Equal(t, 1500, disabled.CurrentBase)

	enabled, err := repos.Settings.SetEnabled(ctx, true, at.Add(2*time.Second))
	require.NoError(t, err)
	assert.True(t, enabled.Enabled)
}

func testSettingsConcurrentCreate(t *testing.T, newRepos Factory) {
	repos := newRepos(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	results := make([]*domain.Settings, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defaults := domain.DefaultSettings(base)
			defaults.CurrentBase = 1000 + i
			results[i], errs[i] = repos.Settings.GetOrCreate(ctx, defaults)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].CurrentBase, results[i].CurrentBase, "every caller sees the single surviving row")
	}
}

func testSettingsRefreshCAS(t *testing.T, newRepos Factory) {
	repos := newRepos(t)
	ctx := context.Background()

	s, err := repos.Settings.GetOrCreate(ctx, domain.DefaultSettings(base))
	require.NoError(t, err)

	at := base.Add(time.Minute)
	refreshed, won, err := repos.Settings.RefreshBase(ctx, s.LastRefresh, 1234, at)
	require.NoError(t, err)
	assert.True(t, won)
	assert.Equal(t, 1234, refreshed.CurrentBase)
	assert.True(t, at.Equal(*refreshed.LastRefresh))

	// A stale expectation loses and sees the winner's value.
	lost, won, err := repos.Settings.RefreshBase(ctx, s.LastRefresh, 1400, at.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, won)
	assert.Equal(t, 1234, lost.CurrentBase)

	// A never-refreshed row matches a nil expectation.
	fresh := newRepos(t)
	defaults := domain.DefaultSettings(base)
	defaults.LastRefresh = nil
	s, err = fresh.Settings.GetOrCreate(ctx, defaults)
	require.NoError(t, err)
	assert.Nil(t, s.LastRefresh)

	refreshed, won, err = fresh.Settings.RefreshBase(ctx, nil, 1111, at)
	require.NoError(t, err)
	assert.True(t, won)
	assert.Equal(t, 1111, refreshed.CurrentBase)
}

func newSession(key string, seen time.Time) *domain.VisitorSession {
	return &domain.VisitorSession{
		SessionKey:       key,
		OriginAddress:    "203.0.113.7",
		ClientDescriptor: "Mozilla/5.0 Test",
		FirstSeen:        seen,
		LastSeen:         seen,
		PageViews:        1,
		Active:           true,
	}
}

func testSessions(t *testing.T, newRepos Factory) {
	repos := newRepos(t)
	ctx := context.Background()

	missing, err := repos.Sessions.GetByKey(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	s := newSession("key-1", base)
	require.NoError(t, repos.Sessions.Create(ctx, s))
	assert.NotZero(t, s.ID)

	got, err := repos.Sessions.GetByKey(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "203.0.113.7", got.OriginAddress)
	assert.Equal(t, "Mozilla/5.0 Test", got.ClientDescriptor)
	assert.Equal(t, 1, got.PageViews)
	assert.True(t, got.Active)
	assert.True(t, base.Equal(got.FirstSeen))

	touched, err := repos.Sessions.Touch(ctx, "key-1", base.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, touched.PageViews)
	assert.True(t, base.Equal(touched.FirstSeen))
	assert.True(t, base.Add(5*time.Minute).Equal(touched.LastSeen))

	// last_seen never moves backwards.
	touched, err = repos.Sessions.Touch(ctx, "key-1", base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, touched.PageViews)
	assert.True(t, base.Add(5*time.Minute).Equal(touched.LastSeen))

	_, err = repos.Sessions.Touch(ctx, "unknown", base)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)

	anon := newSession("key-anon", base)
	anon.OriginAddress = ""
	anon.ClientDescriptor = ""
	require.NoError(t, repos.Sessions.Create(ctx, anon))
	got, err = repos.Sessions.GetByKey(ctx, "key-anon")
	require.NoError(t, err)
	assert.Empty(t, got.OriginAddress)
	assert.Empty(t, got.ClientDescriptor)
}

func testSessionsDuplicate(t *testing.T, newRepos Factory) {
	repos := newRepos(t)
	ctx := context.Background()

	require.NoError(t, repos.Sessions.Create(ctx, newSession("dup", base)))
	err := repos.Sessions.Create(ctx, newSession("dup", base.Add(time.Second)))
	assert.ErrorIs(t, err, repository.ErrDuplicateSessionKey)

	got, err := repos.Sessions.GetByKey(ctx, "dup")
	require.NoError(t, err)
	assert.True(t, base.Equal(got.FirstSeen), "first insert wins")
}

func testSessionsAggregates(t *testing.T, newRepos Factory) {
	repos := newRepos(t)
	ctx := context.Background()
	midnight := domain.MidnightUTC(base)

	fixtures := []struct {
		key       string
		firstSeen time.Time
		lastSeen  time.Time
		views     int
		active    bool
	}{
		{"recent", base.Add(-10 * time.Minute), base.Add(-5 * time.Minute), 3, true},
		{"edge", base.Add(-30 * time.Minute), base.Add(-30 * time.Minute), 1, true},
		{"idle", base.Add(-2 * time.Hour), base.Add(-31 * time.Minute), 2, true},
		{"inactive", base.Add(-time.Minute), base.Add(-time.Minute), 4, false},
		{"yesterday", midnight.Add(-time.Hour), base.Add(-time.Minute), 7, true},
	}
	for _, f := range fixtures {
		s := newSession(f.key, f.firstSeen)
		s.LastSeen = f.lastSeen
		s.PageViews = f.views
		s.Active = f.active
		require.NoError(t, repos.Sessions.Create(ctx, s))
	}

	active, err := repos.Sessions.CountActiveSince(ctx, base.Add(-domain.ActiveWindow))
	require.NoError(t, err)
	assert.Equal(t, int64(3), active, "recent, edge and yesterday are active within the window")

	sessions, views, err := repos.Sessions.AggregateFirstSeen(ctx, midnight, base)
	require.NoError(t, err)
	assert.Equal(t, int64(4), sessions)
	assert.Equal(t, int64(3+1+2+4), views)

	sessions, views, err = repos.Sessions.AggregateFirstSeen(ctx, midnight.Add(24*time.Hour), midnight.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, sessions)
	assert.Zero(t, views)
}

func testSessionsStaleSweep(t *testing.T, newRepos Factory) {
	repos := newRepos(t)
	ctx := context.Background()

	old := newSession("old", base.Add(-25*time.Hour))
	recent := newSession("recent", base.Add(-time.Hour))
	require.NoError(t, repos.Sessions.Create(ctx, old))
	require.NoError(t, repos.Sessions.Create(ctx, recent))

	cutoff := base.Add(-domain.StaleThreshold)
	n, err := repos.Sessions.MarkStaleInactive(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repos.Sessions.GetByKey(ctx, "old")
	require.NoError(t, err)
	assert.False(t, got.Active)

	got, err = repos.Sessions.GetByKey(ctx, "recent")
	require.NoError(t, err)
	assert.True(t, got.Active)

	// Already inactive rows still count as matched.
	n, err = repos.Sessions.MarkStaleInactive(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func testStats(t *testing.T, newRepos Factory) {
	repos := newRepos(t)
	ctx := context.Background()
	today := domain.MidnightUTC(base)

	missing, err := repos.Stats.GetByDate(ctx, today)
	require.NoError(t, err)
	assert.Nil(t, missing)

	first := &domain.DailyStats{Date: today, UniqueVisitors: 2, TotalPageViews: 5, DisplayedCount: 1200, UpdatedAt: base}
	require.NoError(t, repos.Stats.Upsert(ctx, first))
	assert.NotZero(t, first.ID)

	second := &domain.DailyStats{Date: today, UniqueVisitors: 3, TotalPageViews: 9, DisplayedCount: 1300, UpdatedAt: base.Add(time.Minute)}
	require.NoError(t, repos.Stats.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID, "same day overwrites the row")
	assert.True(t, base.Equal(second.CreatedAt))

	got, err := repos.Stats.GetByDate(ctx, today)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.UniqueVisitors)
	assert.Equal(t, int64(9), got.TotalPageViews)
	assert.Equal(t, int64(1300), got.DisplayedCount)
	assert.Equal(t, today.Format(domain.DateLayout), got.DateString())

	for i := 1; i <= 9; i++ {
		day := today.AddDate(0, 0, -i)
		require.NoError(t, repos.Stats.Upsert(ctx, &domain.DailyStats{Date: day, DisplayedCount: int64(i), UpdatedAt: base}))
	}

	week, err := repos.Stats.ListSince(ctx, today.AddDate(0, 0, -(domain.WeeklyDays-1)))
	require.NoError(t, err)
	require.Len(t, week, domain.WeeklyDays)
	assert.Equal(t, today.Format(domain.DateLayout), week[0].DateString())
	for i := 1; i < len(week); i++ {
		assert.True(t, week[i-1].Date.After(week[i].Date), "newest first")
	}
}
