package service

import (
	"context"
	"time"

	"github.com/contractqueue/backend/internal/model"
)

// sessionRepo - DB interface
type sessionRepo interface {
	TouchSession(ctx context.Context, userID string, now time.Time) (*model.ActiveSession, error)
	EndSession(ctx context.Context, userID string) error
	ListActiveSessions(ctx context.Context, since time.Time) ([]model.ActiveSession, error)
}

// SessionService - staff presence, kept alive by heartbeats
type SessionService struct {
	db     sessionRepo
	window time.Duration
	now    func() time.Time
}

func NewSessionService(db sessionRepo, window time.Duration) *SessionService {
	if window <= 0 {
		window = 2 * time.Minute
	}
	return &SessionService{db: db, window: window, now: time.Now}
}

func (s *SessionService) Heartbeat(ctx context.Context, userID string) (*model.ActiveSession, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	return s.db.TouchSession(ctx, userID, s.now().UTC())
}

func (s *SessionService) End(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	return s.db.EndSession(ctx, userID)
}

// Active - sessions with a heartbeat inside the activity window
func (s *SessionService) Active(ctx context.Context) ([]model.ActiveSession, error) {
	return s.db.ListActiveSessions(ctx, s.now().UTC().Add(-s.window))
}
