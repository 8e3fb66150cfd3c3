package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteTimeLayout - fixed width UTC timestamps so TEXT columns sort and compare chronologically
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite - single-node store backed by an embedded SQLite database
type SQLite struct {
	DB *sql.DB
}

// OpenSQLite opens dsn with WAL, foreign keys and a 5s busy timeout.
// Use ":memory:" for a throwaway database.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// one connection: keeps :memory: databases alive and avoids SQLITE_BUSY between writers
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("exec %q: %w", pragma, err)
		}
	}

	return &SQLite{DB: conn}, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.DB.Close()
}

var sqliteMigrations = [][]string{
	{
		`CREATE TABLE active_contracts (
			pipedrive_id     INTEGER PRIMARY KEY,
			title            TEXT    NOT NULL DEFAULT '',
			customer_name    TEXT    NOT NULL DEFAULT '',
			salesperson_name TEXT    NOT NULL DEFAULT '',
			value            REAL    NOT NULL DEFAULT 0 CHECK (value >= 0),
			currency         TEXT    NOT NULL DEFAULT 'BRL',
			created_at       TEXT    NOT NULL,
			pipeline_id      INTEGER NOT NULL,
			stage_id         INTEGER NOT NULL,
			stage_name       TEXT    NOT NULL DEFAULT '',
			status           TEXT    NOT NULL DEFAULT 'open'
		)`,
		`CREATE INDEX active_contracts_stage_idx ON active_contracts(stage_id, created_at)`,
		`CREATE TABLE completed_contracts (
			id               INTEGER PRIMARY KEY,
			title            TEXT    NOT NULL DEFAULT '',
			customer_name    TEXT    NOT NULL DEFAULT '',
			salesperson_name TEXT    NOT NULL DEFAULT '',
			value            REAL    NOT NULL DEFAULT 0,
			currency         TEXT    NOT NULL DEFAULT 'BRL',
			created_at       TEXT    NOT NULL,
			pipeline_id      INTEGER NOT NULL DEFAULT 0,
			stage_id         INTEGER NOT NULL DEFAULT 0,
			completed_at     TEXT    NOT NULL,
			completed_by     TEXT    NOT NULL
		)`,
		`CREATE INDEX completed_contracts_completed_at_idx ON completed_contracts(completed_at)`,
	},
	{
		`CREATE TABLE pipedrive_settings (
			id            INTEGER PRIMARY KEY CHECK (id = 1),
			pipeline_id   INTEGER NOT NULL,
			stage_id      INTEGER NOT NULL,
			webhook_url   TEXT    NOT NULL DEFAULT '',
			body_template TEXT    NOT NULL DEFAULT '',
			updated_at    TEXT    NOT NULL,
			updated_by    TEXT    NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE active_sessions (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL UNIQUE,
			last_active TEXT NOT NULL,
			created_at  TEXT NOT NULL
		)`,
	},
	{
		`CREATE TABLE users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			login_id      TEXT    NOT NULL UNIQUE,
			password_hash TEXT    NOT NULL,
			created_at    TEXT    NOT NULL,
			updated_at    TEXT    NOT NULL
		)`,
		`CREATE TABLE refresh_tokens (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token_hash TEXT    NOT NULL UNIQUE,
			expires_at TEXT    NOT NULL,
			revoked_at TEXT,
			created_at TEXT    NOT NULL
		)`,
		`CREATE INDEX refresh_tokens_user_id_idx ON refresh_tokens(user_id)`,
	},
	{
		`ALTER TABLE users ADD COLUMN display_name TEXT NOT NULL DEFAULT ''`,
	},
}

// EnsureSchema runs pending migrations, each in its own transaction, tracked
// by version in schema_migrations.
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for i, stmts := range sqliteMigrations {
		version := i + 1

		var exists int
		if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", version, err)
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d: %w", version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", version, err)
		}
	}
	return nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(value string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
