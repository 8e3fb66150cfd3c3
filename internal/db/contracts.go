package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/contractqueue/backend/internal/model"
	"github.com/jackc/pgx/v5"
)

const activeColumns = `pipedrive_id, title, customer_name, salesperson_name, value, currency,
	created_at, pipeline_id, stage_id, stage_name, status`

const completedColumns = `id, title, customer_name, salesperson_name, value, currency,
	created_at, pipeline_id, stage_id, completed_at, completed_by`

// EnsureContractSchema - active_contracts / completed_contracts
func (p *Postgres) EnsureContractSchema(ctx context.Context) error {
	err := p.execAll(ctx, []string{
		`
		CREATE TABLE IF NOT EXISTS active_contracts (
			pipedrive_id     BIGINT           PRIMARY KEY,
			title            TEXT             NOT NULL DEFAULT '',
			customer_name    TEXT             NOT NULL DEFAULT '',
			salesperson_name TEXT             NOT NULL DEFAULT '',
			value            DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (value >= 0),
			currency         TEXT             NOT NULL DEFAULT 'BRL',
			created_at       TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
			pipeline_id      BIGINT           NOT NULL,
			stage_id         BIGINT           NOT NULL,
			stage_name       TEXT             NOT NULL DEFAULT '',
			status           TEXT             NOT NULL DEFAULT 'open'
		)
		`,
		`CREATE INDEX IF NOT EXISTS active_contracts_stage_idx ON active_contracts(stage_id, created_at DESC)`,
		`
		CREATE TABLE IF NOT EXISTS completed_contracts (
			id               BIGINT           PRIMARY KEY,
			title            TEXT             NOT NULL DEFAULT '',
			customer_name    TEXT             NOT NULL DEFAULT '',
			salesperson_name TEXT             NOT NULL DEFAULT '',
			value            DOUBLE PRECISION NOT NULL DEFAULT 0,
			currency         TEXT             NOT NULL DEFAULT 'BRL',
			created_at       TIMESTAMPTZ      NOT NULL,
			pipeline_id      BIGINT           NOT NULL DEFAULT 0,
			stage_id         BIGINT           NOT NULL DEFAULT 0,
			completed_at     TIMESTAMPTZ      NOT NULL,
			completed_by     TEXT             NOT NULL
		)
		`,
		`CREATE INDEX IF NOT EXISTS completed_contracts_completed_at_idx ON completed_contracts(completed_at DESC)`,
	})
	if err != nil {
		return fmt.Errorf("failed to create contract tables: %w", err)
	}
	return nil
}

// UpsertActiveContract - insert or refresh a queued deal. created_at and status
// of an existing row are kept; ids already completed are refused.
func (p *Postgres) UpsertActiveContract(ctx context.Context, c model.ActiveContract) error {
	tag, err := p.Pool.Exec(ctx, `
		INSERT INTO active_contracts (`+activeColumns+`)
		SELECT $1::BIGINT, $2::TEXT, $3::TEXT, $4::TEXT, $5::DOUBLE PRECISION, $6::TEXT,
			$7::TIMESTAMPTZ, $8::BIGINT, $9::BIGINT, $10::TEXT, $11::TEXT
		WHERE NOT EXISTS (SELECT 1 FROM completed_contracts WHERE id = $1::BIGINT)
		ON CONFLICT (pipedrive_id) DO UPDATE SET
			title            = EXCLUDED.title,
			customer_name    = EXCLUDED.customer_name,
			salesperson_name = EXCLUDED.salesperson_name,
			value            = EXCLUDED.value,
			currency         = EXCLUDED.currency,
			pipeline_id      = EXCLUDED.pipeline_id,
			stage_id         = EXCLUDED.stage_id,
			stage_name       = EXCLUDED.stage_name;
	`, c.ID, c.Title, c.CustomerName, c.SalespersonName, c.Value, c.Currency,
		c.CreatedAt, c.PipelineID, c.StageID, c.StageName, c.Status)
	if err != nil {
		return fmt.Errorf("failed to upsert active contract: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyCompleted
	}
	return nil
}

// ListActiveContracts - queued deals of a stage (and optionally pipeline), newest first
func (p *Postgres) ListActiveContracts(ctx context.Context, filter model.ActiveFilter) ([]model.ActiveContract, error) {
	rows, err := p.Pool.Query(ctx, `
		SELECT `+activeColumns+`
		FROM active_contracts
		WHERE stage_id = $1 AND ($2::BIGINT IS NULL OR pipeline_id = $2)
		ORDER BY created_at DESC;
	`, filter.StageID, filter.PipelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active contracts: %w", err)
	}
	defer rows.Close()

	list := []model.ActiveContract{}
	for rows.Next() {
		c, err := scanActive(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan active contract: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (p *Postgres) GetActiveContract(ctx context.Context, id int64) (*model.ActiveContract, error) {
	c, err := scanActive(p.Pool.QueryRow(ctx, `
		SELECT `+activeColumns+` FROM active_contracts WHERE pipedrive_id = $1;
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active contract: %w", err)
	}
	return &c, nil
}

// CompleteContract - move a deal from active to completed in one transaction.
// When the id is already completed the stored record is kept, the stale
// active row is dropped and ErrAlreadyCompleted is returned.
func (p *Postgres) CompleteContract(ctx context.Context, id int64, completedBy string, completedAt time.Time) (*model.CompletedContract, error) {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	active, err := scanActive(tx.QueryRow(ctx, `
		SELECT `+activeColumns+` FROM active_contracts WHERE pipedrive_id = $1 FOR UPDATE;
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock active contract: %w", err)
	}

	completed := active.Complete(completedBy, completedAt)
	tag, err := tx.Exec(ctx, `
		INSERT INTO completed_contracts (`+completedColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING;
	`, completed.ID, completed.Title, completed.CustomerName, completed.SalespersonName, completed.Value,
		completed.Currency, completed.CreatedAt, completed.PipelineID, completed.StageID,
		completed.CompletedAt, completed.CompletedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to insert completed contract: %w", err)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM active_contracts WHERE pipedrive_id = $1;`, id); err != nil {
		return nil, fmt.Errorf("failed to delete active contract: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit completion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrAlreadyCompleted
	}
	return &completed, nil
}

func (p *Postgres) DeleteActiveContract(ctx context.Context, id int64) error {
	tag, err := p.Pool.Exec(ctx, `DELETE FROM active_contracts WHERE pipedrive_id = $1;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete active contract: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCompletedContracts - completed_at within [start, end], newest first
func (p *Postgres) ListCompletedContracts(ctx context.Context, start, end time.Time) ([]model.CompletedContract, error) {
	rows, err := p.Pool.Query(ctx, `
		SELECT `+completedColumns+`
		FROM completed_contracts
		WHERE completed_at >= $1 AND completed_at <= $2
		ORDER BY completed_at DESC;
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed contracts: %w", err)
	}
	defer rows.Close()

	list := []model.CompletedContract{}
	for rows.Next() {
		c, err := scanCompleted(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completed contract: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// CompletedStats - overall totals plus totals completed at or after since
func (p *Postgres) CompletedStats(ctx context.Context, since time.Time) (model.CompletedStats, error) {
	var stats model.CompletedStats
	err := p.Pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(value), 0),
			COUNT(*) FILTER (WHERE completed_at >= $1),
			COALESCE(SUM(value) FILTER (WHERE completed_at >= $1), 0)
		FROM completed_contracts;
	`, since).Scan(&stats.Total, &stats.TotalValue, &stats.LastWeekCount, &stats.LastWeekValue)
	if err != nil {
		return model.CompletedStats{}, fmt.Errorf("failed to aggregate completed contracts: %w", err)
	}
	return stats, nil
}

func scanActive(row rowScanner) (model.ActiveContract, error) {
	var c model.ActiveContract
	err := row.Scan(
		&c.ID,
		&c.Title,
		&c.CustomerName,
		&c.SalespersonName,
		&c.Value,
		&c.Currency,
		&c.CreatedAt,
		&c.PipelineID,
		&c.StageID,
		&c.StageName,
		&c.Status,
	)
	return c, err
}

func scanCompleted(row rowScanner) (model.CompletedContract, error) {
	var c model.CompletedContract
	err := row.Scan(
		&c.ID,
		&c.Title,
		&c.CustomerName,
		&c.SalespersonName,
		&c.Value,
		&c.Currency,
		&c.CreatedAt,
		&c.PipelineID,
		&c.StageID,
		&c.CompletedAt,
		&c.CompletedBy,
	)
	return c, err
}
