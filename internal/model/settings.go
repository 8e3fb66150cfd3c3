package model

import "time"

// PipedriveSettings - runtime pipeline filter and outbound notification target
type PipedriveSettings struct {
	PipelineID   int64     `json:"pipeline_id"`
	StageID      int64     `json:"stage_id"`
	WebhookURL   string    `json:"webhook_url"`
	BodyTemplate string    `json:"body_template"`
	UpdatedAt    time.Time `json:"updated_at"`
	UpdatedBy    string    `json:"updated_by"`
}

// PipedriveSettingsRequest - PUT /api/v1/settings/pipedrive
type PipedriveSettingsRequest struct {
	PipelineID   int64  `json:"pipeline_id"`
	StageID      int64  `json:"stage_id"`
	WebhookURL   string `json:"webhook_url"`
	BodyTemplate string `json:"body_template"`
}

type PipedriveSettingsResponse struct {
	Status string            `json:"status"`
	Data   PipedriveSettings `json:"data"`
}
