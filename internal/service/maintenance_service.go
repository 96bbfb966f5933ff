package service

import (
	"context"
	"fmt"
	"time"

	"visitor-counter/internal/domain"
	"visitor-counter/internal/repository"
	"visitor-counter/pkg/logger"
)

type maintenanceService struct {
	sessions repository.SessionRepository
	logger   *logger.Logger
}

// NewMaintenanceService creates a new maintenance service
func NewMaintenanceService(sessions repository.SessionRepository, logger *logger.Logger) MaintenanceService {
	return &maintenanceService{
		sessions: sessions,
		logger:   logger,
	}
}

// SweepStaleSessions returns every session currently past the threshold,
// including ones an earlier sweep already deactivated
func (s *maintenanceService) SweepStaleSessions(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-domain.StaleThreshold)
	n, err := s.sessions.MarkStaleInactive(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale sessions: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"cutoff":  cutoff,
		"matched": n,
	}).Debug("Stale sessions swept")
	return n, nil
}
