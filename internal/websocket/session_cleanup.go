package websocket

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/satriahrh/lextale/domain/entities"
	"github.com/satriahrh/lextale/domain/repositories"
	"github.com/satriahrh/lextale/internal/metrics"
)

// ConnectionTracker reports whether a session has a live participant
type ConnectionTracker interface {
	Connected(sessionID string) bool
}

// SessionCleanupService expires sessions whose participant left without
// finishing and never came back
type SessionCleanupService struct {
	sessionRepo repositories.SessionRepository
	connections ConnectionTracker
	idleTimeout time.Duration
	interval    time.Duration
	clock       clock.Clock
	logger      *zap.Logger
}

// NewSessionCleanupService creates a new session cleanup service
func NewSessionCleanupService(
	sessionRepo repositories.SessionRepository,
	connections ConnectionTracker,
	idleTimeout, interval time.Duration,
	clk clock.Clock,
	logger *zap.Logger,
) *SessionCleanupService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if clk == nil {
		clk = clock.New()
	}
	return &SessionCleanupService{
		sessionRepo: sessionRepo,
		connections: connections,
		idleTimeout: idleTimeout,
		interval:    interval,
		clock:       clk,
		logger:      logger,
	}
}

// Run performs a cleanup every interval until ctx is cancelled
func (s *SessionCleanupService) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Session cleanup service started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Session cleanup service stopped")
			return nil
		case <-ticker.C:
			if _, err := s.RunCleanup(ctx); err != nil {
				s.logger.Error("Failed to expire sessions", zap.Error(err))
			}
		}
	}
}

// RunCleanup expires every stale active session without a connected
// participant and returns how many were expired
func (s *SessionCleanupService) RunCleanup(ctx context.Context) (int, error) {
	active, err := s.sessionRepo.ListByStatus(ctx, entities.SessionStatusActive)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	expired := 0
	for _, session := range active {
		if s.connections.Connected(session.ID) || !session.IsStale(now, s.idleTimeout) {
			continue
		}

		session.Expire()
		if err := s.sessionRepo.Update(ctx, session); err != nil {
			s.logger.Error("Failed to expire session", zap.String("sessionID", session.ID), zap.Error(err))
			continue
		}
		expired++
		metrics.SessionsExpired.Inc()
		metrics.SessionsTotal.WithLabelValues(string(entities.SessionStatusExpired)).Inc()
	}

	if expired > 0 {
		s.logger.Info("Session cleanup completed", zap.Int("expired", expired))
	}
	return expired, nil
}
