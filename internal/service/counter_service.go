package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"visitor-counter/internal/domain"
	"visitor-counter/internal/repository"
	"visitor-counter/pkg/logger"
)

// counterService implements the counter engine on top of the stores.
// Base refresh is lazy: it happens on the read path, never on a timer.
type counterService struct {
	settings repository.SettingsRepository
	sessions repository.SessionRepository
	stats    repository.StatsRepository
	logger   *logger.Logger
	intn     func(n int) int
}

// NewCounterService creates a new counter service
func NewCounterService(repos *repository.Repositories, logger *logger.Logger) CounterService {
	return &counterService{
		settings: repos.Settings,
		sessions: repos.Sessions,
		stats:    repos.Stats,
		logger:   logger,
		intn:     rand.IntN,
	}
}

func (s *counterService) GetOrCreateSettings(ctx context.Context, now time.Time) (*domain.Settings, error) {
	settings, err := s.settings.GetOrCreate(ctx, domain.DefaultSettings(now))
	if err != nil {
		return nil, fmt.Errorf("failed to load counter settings: %w", err)
	}
	return settings, nil
}

func (s *counterService) RefreshBaseIfDue(ctx context.Context, settings *domain.Settings, now time.Time) (int, error) {
	if !settings.ShouldRefresh(now) {
		return settings.CurrentBase, nil
	}

	base := s.draw(settings.MinBase, settings.MaxBase)
	stored, won, err := s.settings.RefreshBase(ctx, settings.LastRefresh, base, now)
	if err != nil {
		return 0, fmt.Errorf("failed to refresh base count: %w", err)
	}

	// A concurrent reader refreshed first; its draw is the one that counts.
	if !won {
		s.logger.WithField("current_base", stored.CurrentBase).Debug("Base count refreshed concurrently")
	} else {
		s.logger.WithFields(map[string]interface{}{
			"current_base": stored.CurrentBase,
			"min_base":     stored.MinBase,
			"max_base":     stored.MaxBase,
		}).Debug("Base count refreshed")
	}

	*settings = *stored
	return stored.CurrentBase, nil
}

func (s *counterService) UpdateSettings(ctx context.Context, minBase, maxBase, intervalSeconds int, now time.Time) (*domain.Settings, error) {
	// The row must exist before the single-statement update can apply.
	if _, err := s.GetOrCreateSettings(ctx, now); err != nil {
		return nil, err
	}

	base := s.draw(minBase, maxBase)
	settings, err := s.settings.UpdateRange(ctx, minBase, maxBase, intervalSeconds, base, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update counter settings: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"min_base":        settings.MinBase,
		"max_base":        settings.MaxBase,
		"update_interval": settings.RefreshIntervalSeconds,
		"current_base":    settings.CurrentBase,
	}).Debug("Counter settings updated")

	return settings, nil
}

func (s *counterService) SetEnabled(ctx context.Context, enabled bool, now time.Time) (*domain.Settings, error) {
	if _, err := s.GetOrCreateSettings(ctx, now); err != nil {
		return nil, err
	}

	settings, err := s.settings.SetEnabled(ctx, enabled, now)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle counter: %w", err)
	}

	s.logger.WithField("is_active", settings.Enabled).Debug("Counter toggled")
	return settings, nil
}

func (s *counterService) ActiveVisitorCount(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.sessions.CountActiveSince(ctx, now.Add(-domain.ActiveWindow))
	if err != nil {
		return 0, fmt.Errorf("failed to count active visitors: %w", err)
	}
	return count, nil
}

func (s *counterService) DisplayedCount(ctx context.Context, now time.Time) (int64, error) {
	settings, err := s.GetOrCreateSettings(ctx, now)
	if err != nil {
		return 0, err
	}

	var base int
	if settings.Enabled {
		base, err = s.RefreshBaseIfDue(ctx, settings, now)
		if err != nil {
			return 0, err
		}
	}

	active, err := s.ActiveVisitorCount(ctx, now)
	if err != nil {
		return 0, err
	}

	displayed := int64(base) + active
	if err := s.recordDailyStats(ctx, now, displayed); err != nil {
		return 0, err
	}

	return displayed, nil
}

func (s *counterService) TodayTotalFirstSeen(ctx context.Context, now time.Time) (int64, error) {
	sessions, _, err := s.sessions.AggregateFirstSeen(ctx, domain.MidnightUTC(now), now)
	if err != nil {
		return 0, fmt.Errorf("failed to count today's visitors: %w", err)
	}
	return sessions, nil
}

func (s *counterService) Statistics(ctx context.Context, now time.Time) (*domain.StatsSnapshot, error) {
	// Displayed count first so the settings read below sees any refresh it made.
	displayed, err := s.DisplayedCount(ctx, now)
	if err != nil {
		return nil, err
	}

	settings, err := s.GetOrCreateSettings(ctx, now)
	if err != nil {
		return nil, err
	}

	active, err := s.ActiveVisitorCount(ctx, now)
	if err != nil {
		return nil, err
	}

	today, err := s.TodayTotalFirstSeen(ctx, now)
	if err != nil {
		return nil, err
	}

	from := domain.MidnightUTC(now).AddDate(0, 0, -(domain.WeeklyDays - 1))
	weekly, err := s.stats.ListSince(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to load weekly stats: %w", err)
	}
	if weekly == nil {
		weekly = []*domain.DailyStats{}
	}

	return &domain.StatsSnapshot{
		Settings:            settings,
		CurrentDisplayCount: displayed,
		ActiveVisitors:      active,
		TodayVisitors:       today,
		BaseCount:           settings.CurrentBase,
		WeeklyStats:         weekly,
	}, nil
}

// recordDailyStats overwrites today's rollup with a fresh aggregate
func (s *counterService) recordDailyStats(ctx context.Context, now time.Time, displayed int64) error {
	today := domain.MidnightUTC(now)
	visitors, pageViews, err := s.sessions.AggregateFirstSeen(ctx, today, now)
	if err != nil {
		return fmt.Errorf("failed to aggregate today's sessions: %w", err)
	}

	stats := &domain.DailyStats{
		Date:           today,
		UniqueVisitors: visitors,
		TotalPageViews: pageViews,
		DisplayedCount: displayed,
		UpdatedAt:      now,
	}
	if err := s.stats.Upsert(ctx, stats); err != nil {
		return fmt.Errorf("failed to record daily stats: %w", err)
	}
	return nil
}

// draw picks a uniform integer in the inclusive span of minBase and maxBase.
// An inverted pair is stored as given; only the draw orders it.
func (s *counterService) draw(minBase, maxBase int) int {
	lo, hi := minBase, maxBase
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo + s.intn(hi-lo+1)
}
