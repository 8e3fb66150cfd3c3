package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/contractqueue/backend/internal/model"
	"github.com/google/uuid"
)

func (s *SQLite) GetPipedriveSettings(ctx context.Context) (*model.PipedriveSettings, error) {
	var (
		settings  model.PipedriveSettings
		updatedAt string
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT pipeline_id, stage_id, webhook_url, body_template, updated_at, updated_by
		FROM pipedrive_settings WHERE id = 1`).
		Scan(&settings.PipelineID, &settings.StageID, &settings.WebhookURL, &settings.BodyTemplate, &updatedAt, &settings.UpdatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query pipedrive settings: %w", err)
	}
	if settings.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *SQLite) SavePipedriveSettings(ctx context.Context, settings model.PipedriveSettings) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO pipedrive_settings (id, pipeline_id, stage_id, webhook_url, body_template, updated_at, updated_by)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			pipeline_id   = excluded.pipeline_id,
			stage_id      = excluded.stage_id,
			webhook_url   = excluded.webhook_url,
			body_template = excluded.body_template,
			updated_at    = excluded.updated_at,
			updated_by    = excluded.updated_by`,
		settings.PipelineID, settings.StageID, settings.WebhookURL, settings.BodyTemplate,
		formatSQLiteTime(settings.UpdatedAt), settings.UpdatedBy)
	if err != nil {
		return fmt.Errorf("failed to save pipedrive settings: %w", err)
	}
	return nil
}

func (s *SQLite) TouchSession(ctx context.Context, userID string, now time.Time) (*model.ActiveSession, error) {
	stamp := formatSQLiteTime(now)
	var (
		session             model.ActiveSession
		lastActive, created string
	)
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO active_sessions (id, user_id, last_active, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET last_active = excluded.last_active
		RETURNING id, user_id, last_active, created_at`,
		uuid.NewString(), userID, stamp, stamp).
		Scan(&session.ID, &session.UserID, &lastActive, &created)
	if err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}
	if session.LastActive, err = parseSQLiteTime(lastActive); err != nil {
		return nil, err
	}
	if session.CreatedAt, err = parseSQLiteTime(created); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SQLite) EndSession(ctx context.Context, userID string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM active_sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

func (s *SQLite) ListActiveSessions(ctx context.Context, since time.Time) ([]model.ActiveSession, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, user_id, last_active, created_at
		FROM active_sessions
		WHERE last_active >= ?
		ORDER BY last_active DESC`, formatSQLiteTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	defer rows.Close()

	sessions := []model.ActiveSession{}
	for rows.Next() {
		var (
			session             model.ActiveSession
			lastActive, created string
		)
		if err := rows.Scan(&session.ID, &session.UserID, &lastActive, &created); err != nil {
			return nil, fmt.Errorf("failed to scan active session: %w", err)
		}
		if session.LastActive, err = parseSQLiteTime(lastActive); err != nil {
			return nil, err
		}
		if session.CreatedAt, err = parseSQLiteTime(created); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

const sqliteUserColumns = `id, login_id, display_name, password_hash, created_at, updated_at`

func (s *SQLite) CreateUser(ctx context.Context, loginID, displayName, passwordHash string) (*model.User, error) {
	now := formatSQLiteTime(time.Now())
	user, err := scanSQLiteUser(s.DB.QueryRowContext(ctx, `
		INSERT INTO users (login_id, display_name, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING `+sqliteUserColumns,
		loginID, displayName, passwordHash, now, now))
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return user, nil
}

func (s *SQLite) GetUserByLoginID(ctx context.Context, loginID string) (*model.User, error) {
	return sqliteUser(scanSQLiteUser(s.DB.QueryRowContext(ctx, `
		SELECT `+sqliteUserColumns+` FROM users WHERE login_id = ?`, loginID)))
}

func (s *SQLite) GetUserByID(ctx context.Context, userID int64) (*model.User, error) {
	return sqliteUser(scanSQLiteUser(s.DB.QueryRowContext(ctx, `
		SELECT `+sqliteUserColumns+` FROM users WHERE id = ?`, userID)))
}

func (s *SQLite) UpdateUserDisplayName(ctx context.Context, userID int64, displayName string) (*model.User, error) {
	return sqliteUser(scanSQLiteUser(s.DB.QueryRowContext(ctx, `
		UPDATE users SET display_name = ?, updated_at = ?
		WHERE id = ?
		RETURNING `+sqliteUserColumns,
		displayName, formatSQLiteTime(time.Now()), userID)))
}

func (s *SQLite) InsertRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?)`,
		userID, tokenHash, formatSQLiteTime(expiresAt), formatSQLiteTime(time.Now()))
	return err
}

func (s *SQLite) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var (
		token                model.RefreshToken
		expiresAt, createdAt string
		revokedAt            sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked_at, created_at
		FROM refresh_tokens WHERE token_hash = ?`, tokenHash).
		Scan(&token.ID, &token.UserID, &token.TokenHash, &expiresAt, &revokedAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if token.ExpiresAt, err = parseSQLiteTime(expiresAt); err != nil {
		return nil, err
	}
	if token.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		t, err := parseSQLiteTime(revokedAt.String)
		if err != nil {
			return nil, err
		}
		token.RevokedAt = &t
	}
	return &token, nil
}

func (s *SQLite) RevokeRefreshTokenByHash(ctx context.Context, tokenHash string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = ?
		WHERE token_hash = ? AND revoked_at IS NULL`,
		formatSQLiteTime(time.Now()), tokenHash)
	return err
}

func (s *SQLite) RotateRefreshToken(ctx context.Context, oldTokenID int64, userID int64, newTokenHash string, newExpiresAt time.Time) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := formatSQLiteTime(time.Now())
	if _, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = ?
		WHERE id = ? AND revoked_at IS NULL`, now, oldTokenID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?)`, userID, newTokenHash, formatSQLiteTime(newExpiresAt), now); err != nil {
		return err
	}
	return tx.Commit()
}

func scanSQLiteUser(row rowScanner) (*model.User, error) {
	var (
		user                 model.User
		createdAt, updatedAt string
	)
	if err := row.Scan(&user.ID, &user.LoginID, &user.DisplayName, &user.PasswordHash, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if user.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if user.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

func sqliteUser(user *model.User, err error) (*model.User, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}
