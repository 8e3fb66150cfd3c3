package db

import (
	"context"
	"fmt"
	"time"

	"github.com/contractqueue/backend/internal/config"
	"github.com/contractqueue/backend/internal/model"
)

// Store - everything the services need from persistence
type Store interface {
	Ping(ctx context.Context) error
	EnsureSchema(ctx context.Context) error
	Close() error

	UpsertActiveContract(ctx context.Context, c model.ActiveContract) error
	ListActiveContracts(ctx context.Context, filter model.ActiveFilter) ([]model.ActiveContract, error)
	GetActiveContract(ctx context.Context, id int64) (*model.ActiveContract, error)
	CompleteContract(ctx context.Context, id int64, completedBy string, completedAt time.Time) (*model.CompletedContract, error)
	DeleteActiveContract(ctx context.Context, id int64) error
	ListCompletedContracts(ctx context.Context, start, end time.Time) ([]model.CompletedContract, error)
	CompletedStats(ctx context.Context, since time.Time) (model.CompletedStats, error)

	GetPipedriveSettings(ctx context.Context) (*model.PipedriveSettings, error)
	SavePipedriveSettings(ctx context.Context, s model.PipedriveSettings) error

	TouchSession(ctx context.Context, userID string, now time.Time) (*model.ActiveSession, error)
	EndSession(ctx context.Context, userID string) error
	ListActiveSessions(ctx context.Context, since time.Time) ([]model.ActiveSession, error)

	CreateUser(ctx context.Context, loginID, displayName, passwordHash string) (*model.User, error)
	GetUserByLoginID(ctx context.Context, loginID string) (*model.User, error)
	GetUserByID(ctx context.Context, userID int64) (*model.User, error)
	UpdateUserDisplayName(ctx context.Context, userID int64, displayName string) (*model.User, error)
	InsertRefreshToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	RevokeRefreshTokenByHash(ctx context.Context, tokenHash string) error
	RotateRefreshToken(ctx context.Context, oldTokenID int64, userID int64, newTokenHash string, newExpiresAt time.Time) error
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*SQLite)(nil)
	_ Store = (*Memory)(nil)
)

// Open connects the store selected by cfg.Store.Driver and applies migrations
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	var store Store
	switch cfg.Store.Driver {
	case "", "postgres":
		pool, err := NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		store = NewPostgres(pool)
	case "sqlite":
		lite, err := OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		store = lite
	case "memory":
		store = NewMemory()
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
	}

	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return store, nil
}
