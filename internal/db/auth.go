package db

import (
	"context"
	"errors"
	"time"

	"github.com/contractqueue/backend/internal/model"
	"github.com/jackc/pgx/v5"
)

func (p *Postgres) EnsureAuthSchema(ctx context.Context) error {
	return p.execAll(ctx, []string{
		`
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			login_id TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS refresh_tokens (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token_hash TEXT NOT NULL UNIQUE,
			expires_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS refresh_tokens_user_id_idx ON refresh_tokens(user_id)`,
		`ALTER TABLE users ADD COLUMN IF NOT EXISTS display_name TEXT NOT NULL DEFAULT ''`,
	})
}

const pgUserColumns = `id, login_id, display_name, password_hash, created_at, updated_at`

func (p *Postgres) CreateUser(ctx context.Context, loginID, displayName, passwordHash string) (*model.User, error) {
	user, err := scanUser(p.Pool.QueryRow(ctx, `
		INSERT INTO users (login_id, display_name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING `+pgUserColumns, loginID, displayName, passwordHash))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return user, nil
}

func (p *Postgres) GetUserByLoginID(ctx context.Context, loginID string) (*model.User, error) {
	return pgUser(scanUser(p.Pool.QueryRow(ctx, `
		SELECT `+pgUserColumns+`
		FROM users
		WHERE login_id = $1
	`, loginID)))
}

func (p *Postgres) GetUserByID(ctx context.Context, userID int64) (*model.User, error) {
	return pgUser(scanUser(p.Pool.QueryRow(ctx, `
		SELECT `+pgUserColumns+`
		FROM users
		WHERE id = $1
	`, userID)))
}

func (p *Postgres) UpdateUserDisplayName(ctx context.Context, userID int64, displayName string) (*model.User, error) {
	return pgUser(scanUser(p.Pool.QueryRow(ctx, `
		UPDATE users
		SET display_name = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+pgUserColumns, userID, displayName)))
}

func (p *Postgres) InsertRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	_, err := p.Pool.Exec(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, NOW())
	`, userID, tokenHash, expiresAt)
	return err
}

func (p *Postgres) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var token model.RefreshToken
	err := p.Pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.RevokedAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &token, nil
}

func (p *Postgres) RevokeRefreshTokenByHash(ctx context.Context, tokenHash string) error {
	_, err := p.Pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL
	`, tokenHash)
	return err
}

// RotateRefreshToken - revoke the old token and store its replacement atomically
func (p *Postgres) RotateRefreshToken(ctx context.Context, oldTokenID int64, userID int64, newTokenHash string, newExpiresAt time.Time) error {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err = tx.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE id = $1 AND revoked_at IS NULL
	`, oldTokenID); err != nil {
		return err
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, NOW())
	`, userID, newTokenHash, newExpiresAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func scanUser(row rowScanner) (*model.User, error) {
	var user model.User
	if err := row.Scan(
		&user.ID,
		&user.LoginID,
		&user.DisplayName,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func pgUser(user *model.User, err error) (*model.User, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}
