package service

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"time"

	"visitor-counter/internal/domain"
	"visitor-counter/internal/repository"
	"visitor-counter/pkg/logger"

	"github.com/google/uuid"
)

type trackerService struct {
	sessions repository.SessionRepository
	logger   *logger.Logger
}

// NewTrackerService creates a new session tracker
func NewTrackerService(sessions repository.SessionRepository, logger *logger.Logger) TrackerService {
	return &trackerService{
		sessions: sessions,
		logger:   logger,
	}
}

func (s *trackerService) Track(ctx context.Context, key, origin, descriptor string, now time.Time) (*domain.VisitorSession, error) {
	if key == "" {
		key = GenerateSessionKey(origin, descriptor, now)
	}

	existing, err := s.sessions.GetByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if existing != nil {
		return s.touch(ctx, key, now)
	}

	session := &domain.VisitorSession{
		SessionKey:       key,
		OriginAddress:    origin,
		ClientDescriptor: descriptor,
		FirstSeen:        now,
		LastSeen:         now,
		PageViews:        1,
		Active:           true,
	}

	err = s.sessions.Create(ctx, session)
	if errors.Is(err, repository.ErrDuplicateSessionKey) {
		// Lost the insert race to a request carrying the same key.
		s.logger.Debug("Session created concurrently, updating instead")
		return s.touch(ctx, key, now)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.WithField("session_prefix", keyPrefix(key)).Debug("Session created")
	return session, nil
}

func (s *trackerService) touch(ctx context.Context, key string, now time.Time) (*domain.VisitorSession, error) {
	session, err := s.sessions.Touch(ctx, key, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return session, nil
}

// GenerateSessionKey returns a 64 character hex token derived from the
// request identity, the time and a random UUID
func GenerateSessionKey(origin, descriptor string, now time.Time) string {
	seed := origin + "|" + descriptor + "|" + strconv.FormatInt(now.UnixNano(), 10) + "|" + uuid.NewString()
	return fmt.Sprintf("%x", sha256.Sum256([]byte(seed)))
}

// SessionKeyLength is the length of keys produced by GenerateSessionKey
const SessionKeyLength = 2 * sha256.Size

// IsSessionKey reports whether key has the shape GenerateSessionKey produces
func IsSessionKey(key string) bool {
	if len(key) != SessionKeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func keyPrefix(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}
