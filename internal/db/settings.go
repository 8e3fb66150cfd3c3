package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/contractqueue/backend/internal/model"
	"github.com/jackc/pgx/v5"
)

// EnsureSettingsSchema - pipedrive_settings holds a single row (id = 1)
func (p *Postgres) EnsureSettingsSchema(ctx context.Context) error {
	_, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pipedrive_settings (
			id            SMALLINT     PRIMARY KEY CHECK (id = 1),
			pipeline_id   BIGINT       NOT NULL,
			stage_id      BIGINT       NOT NULL,
			webhook_url   TEXT         NOT NULL DEFAULT '',
			body_template TEXT         NOT NULL DEFAULT '',
			updated_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_by    TEXT         NOT NULL DEFAULT ''
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create pipedrive_settings table: %w", err)
	}
	return nil
}

// GetPipedriveSettings - ErrNotFound until settings are saved once
func (p *Postgres) GetPipedriveSettings(ctx context.Context) (*model.PipedriveSettings, error) {
	var s model.PipedriveSettings
	err := p.Pool.QueryRow(ctx, `
		SELECT pipeline_id, stage_id, webhook_url, body_template, updated_at, updated_by
		FROM pipedrive_settings
		WHERE id = 1;
	`).Scan(&s.PipelineID, &s.StageID, &s.WebhookURL, &s.BodyTemplate, &s.UpdatedAt, &s.UpdatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query pipedrive settings: %w", err)
	}
	return &s, nil
}

func (p *Postgres) SavePipedriveSettings(ctx context.Context, s model.PipedriveSettings) error {
	_, err := p.Pool.Exec(ctx, `
		INSERT INTO pipedrive_settings (id, pipeline_id, stage_id, webhook_url, body_template, updated_at, updated_by)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			pipeline_id   = EXCLUDED.pipeline_id,
			stage_id      = EXCLUDED.stage_id,
			webhook_url   = EXCLUDED.webhook_url,
			body_template = EXCLUDED.body_template,
			updated_at    = EXCLUDED.updated_at,
			updated_by    = EXCLUDED.updated_by;
	`, s.PipelineID, s.StageID, s.WebhookURL, s.BodyTemplate, s.UpdatedAt, s.UpdatedBy)
	if err != nil {
		return fmt.Errorf("failed to save pipedrive settings: %w", err)
	}
	return nil
}
