package db

import (
	"context"
	"fmt"
	"time"

	"github.com/contractqueue/backend/internal/model"
	"github.com/google/uuid"
)

func (p *Postgres) EnsureSessionSchema(ctx context.Context) error {
	err := p.execAll(ctx, []string{
		`
		CREATE TABLE IF NOT EXISTS active_sessions (
			id          TEXT         PRIMARY KEY,
			user_id     TEXT         NOT NULL UNIQUE,
			last_active TIMESTAMPTZ  NOT NULL,
			created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS active_sessions_last_active_idx ON active_sessions(last_active)`,
	})
	if err != nil {
		return fmt.Errorf("failed to create active_sessions table: %w", err)
	}
	return nil
}

// TouchSession - create the user's presence row or bump last_active
func (p *Postgres) TouchSession(ctx context.Context, userID string, now time.Time) (*model.ActiveSession, error) {
	var s model.ActiveSession
	err := p.Pool.QueryRow(ctx, `
		INSERT INTO active_sessions (id, user_id, last_active, created_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET last_active = EXCLUDED.last_active
		RETURNING id, user_id, last_active, created_at;
	`, uuid.NewString(), userID, now).Scan(&s.ID, &s.UserID, &s.LastActive, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	return &s, nil
}

func (p *Postgres) EndSession(ctx context.Context, userID string) error {
	if _, err := p.Pool.Exec(ctx, `DELETE FROM active_sessions WHERE user_id = $1;`, userID); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

// ListActiveSessions - sessions seen at or after since, most recent first
func (p *Postgres) ListActiveSessions(ctx context.Context, since time.Time) ([]model.ActiveSession, error) {
	rows, err := p.Pool.Query(ctx, `
		SELECT id, user_id, last_active, created_at
		FROM active_sessions
		WHERE last_active >= $1
		ORDER BY last_active DESC;
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	defer rows.Close()

	sessions := []model.ActiveSession{}
	for rows.Next() {
		var s model.ActiveSession
		if err := rows.Scan(&s.ID, &s.UserID, &s.LastActive, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan active session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
