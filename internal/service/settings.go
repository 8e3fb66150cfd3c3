package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/contractqueue/backend/internal/config"
	"github.com/contractqueue/backend/internal/db"
	"github.com/contractqueue/backend/internal/model"
)

// settingsRepo - DB interface
type settingsRepo interface {
	GetPipedriveSettings(ctx context.Context) (*model.PipedriveSettings, error)
	SavePipedriveSettings(ctx context.Context, s model.PipedriveSettings) error
}

// SettingsService - pipeline filter and notification target, seeded from env
type SettingsService struct {
	db       settingsRepo
	defaults config.PipedriveConfig
	now      func() time.Time
}

func NewSettingsService(db settingsRepo, defaults config.PipedriveConfig) *SettingsService {
	return &SettingsService{db: db, defaults: defaults, now: time.Now}
}

// Current - stored settings, or the env defaults when none were saved yet
func (s *SettingsService) Current(ctx context.Context) (model.PipedriveSettings, error) {
	stored, err := s.db.GetPipedriveSettings(ctx)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return model.PipedriveSettings{
				PipelineID: s.defaults.PipelineID,
				StageID:    s.defaults.StageID,
				WebhookURL: s.defaults.WebhookURL,
			}, nil
		}
		return model.PipedriveSettings{}, err
	}
	return *stored, nil
}

func (s *SettingsService) Update(ctx context.Context, req model.PipedriveSettingsRequest, updatedBy string) (model.PipedriveSettings, error) {
	if req.PipelineID <= 0 {
		return model.PipedriveSettings{}, invalidf("pipeline_id must be a positive integer")
	}
	if req.StageID <= 0 {
		return model.PipedriveSettings{}, invalidf("stage_id must be a positive integer")
	}
	webhookURL := strings.TrimSpace(req.WebhookURL)
	if webhookURL != "" && !isHTTPURL(webhookURL) {
		return model.PipedriveSettings{}, invalidf("webhook_url must be an absolute http(s) URL")
	}

	settings := model.PipedriveSettings{
		PipelineID:   req.PipelineID,
		StageID:      req.StageID,
		WebhookURL:   webhookURL,
		BodyTemplate: req.BodyTemplate,
		UpdatedAt:    s.now().UTC(),
		UpdatedBy:    updatedBy,
	}
	if err := s.db.SavePipedriveSettings(ctx, settings); err != nil {
		return model.PipedriveSettings{}, err
	}
	return settings, nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
