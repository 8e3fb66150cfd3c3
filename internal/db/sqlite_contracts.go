package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/contractqueue/backend/internal/model"
)

func (s *SQLite) UpsertActiveContract(ctx context.Context, c model.ActiveContract) error {
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO active_contracts (`+activeColumns+`)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM completed_contracts WHERE id = ?)
		ON CONFLICT (pipedrive_id) DO UPDATE SET
			title            = excluded.title,
			customer_name    = excluded.customer_name,
			salesperson_name = excluded.salesperson_name,
			value            = excluded.value,
			currency         = excluded.currency,
			pipeline_id      = excluded.pipeline_id,
			stage_id         = excluded.stage_id,
			stage_name       = excluded.stage_name`,
		c.ID, c.Title, c.CustomerName, c.SalespersonName, c.Value, c.Currency,
		formatSQLiteTime(c.CreatedAt), c.PipelineID, c.StageID, c.StageName, c.Status, c.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert active contract: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to upsert active contract: %w", err)
	}
	if n == 0 {
		return ErrAlreadyCompleted
	}
	return nil
}

func (s *SQLite) ListActiveContracts(ctx context.Context, filter model.ActiveFilter) ([]model.ActiveContract, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+activeColumns+`
		FROM active_contracts
		WHERE stage_id = ? AND (? IS NULL OR pipeline_id = ?)
		ORDER BY created_at DESC`,
		filter.StageID, filter.PipelineID, filter.PipelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active contracts: %w", err)
	}
	defer rows.Close()

	list := []model.ActiveContract{}
	for rows.Next() {
		c, err := scanSQLiteActive(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan active contract: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (s *SQLite) GetActiveContract(ctx context.Context, id int64) (*model.ActiveContract, error) {
	c, err := scanSQLiteActive(s.DB.QueryRowContext(ctx,
		`SELECT `+activeColumns+` FROM active_contracts WHERE pipedrive_id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active contract: %w", err)
	}
	return &c, nil
}

// CompleteContract - same contract as the Postgres store: an id already in
// completed_contracts keeps its stored record and yields ErrAlreadyCompleted
func (s *SQLite) CompleteContract(ctx context.Context, id int64, completedBy string, completedAt time.Time) (*model.CompletedContract, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	active, err := scanSQLiteActive(tx.QueryRowContext(ctx,
		`SELECT `+activeColumns+` FROM active_contracts WHERE pipedrive_id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read active contract: %w", err)
	}

	completed := active.Complete(completedBy, completedAt)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO completed_contracts (`+completedColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		completed.ID, completed.Title, completed.CustomerName, completed.SalespersonName, completed.Value,
		completed.Currency, formatSQLiteTime(completed.CreatedAt), completed.PipelineID, completed.StageID,
		formatSQLiteTime(completed.CompletedAt), completed.CompletedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to insert completed contract: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to insert completed contract: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM active_contracts WHERE pipedrive_id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to delete active contract: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit completion: %w", err)
	}
	if inserted == 0 {
		return nil, ErrAlreadyCompleted
	}
	return &completed, nil
}

func (s *SQLite) DeleteActiveContract(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM active_contracts WHERE pipedrive_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete active contract: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete active contract: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) ListCompletedContracts(ctx context.Context, start, end time.Time) ([]model.CompletedContract, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+completedColumns+`
		FROM completed_contracts
		WHERE completed_at >= ? AND completed_at <= ?
		ORDER BY completed_at DESC`,
		formatSQLiteTime(start), formatSQLiteTime(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query completed contracts: %w", err)
	}
	defer rows.Close()

	list := []model.CompletedContract{}
	for rows.Next() {
		c, err := scanSQLiteCompleted(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completed contract: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (s *SQLite) CompletedStats(ctx context.Context, since time.Time) (model.CompletedStats, error) {
	var stats model.CompletedStats
	cutoff := formatSQLiteTime(since)
	err := s.DB.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(value), 0.0),
			COALESCE(SUM(CASE WHEN completed_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN completed_at >= ? THEN value ELSE 0.0 END), 0.0)
		FROM completed_contracts`, cutoff, cutoff).
		Scan(&stats.Total, &stats.TotalValue, &stats.LastWeekCount, &stats.LastWeekValue)
	if err != nil {
		return model.CompletedStats{}, fmt.Errorf("failed to aggregate completed contracts: %w", err)
	}
	return stats, nil
}

func scanSQLiteActive(row rowScanner) (model.ActiveContract, error) {
	var (
		c         model.ActiveContract
		createdAt string
	)
	if err := row.Scan(
		&c.ID,
		&c.Title,
		&c.CustomerName,
		&c.SalespersonName,
		&c.Value,
		&c.Currency,
		&createdAt,
		&c.PipelineID,
		&c.StageID,
		&c.StageName,
		&c.Status,
	); err != nil {
		return model.ActiveContract{}, err
	}
	var err error
	c.CreatedAt, err = parseSQLiteTime(createdAt)
	return c, err
}

func scanSQLiteCompleted(row rowScanner) (model.CompletedContract, error) {
	var (
		c                      model.CompletedContract
		createdAt, completedAt string
	)
	if err := row.Scan(
		&c.ID,
		&c.Title,
		&c.CustomerName,
		&c.SalespersonName,
		&c.Value,
		&c.Currency,
		&createdAt,
		&c.PipelineID,
		&c.StageID,
		&completedAt,
		&c.CompletedBy,
	); err != nil {
		return model.CompletedContract{}, err
	}
	var err error
	if c.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return c, err
	}
	c.CompletedAt, err = parseSQLiteTime(completedAt)
	return c, err
}
