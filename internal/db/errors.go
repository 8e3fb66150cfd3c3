package db

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrNotFound - requested row does not exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyCompleted - deal id is already in completed_contracts
	ErrAlreadyCompleted = errors.New("contract already completed")
	// ErrDuplicate - unique constraint violated
	ErrDuplicate = errors.New("duplicate")
)

// rowScanner - common subset of pgx.Row, pgx.Rows, *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func IsNoRows(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
