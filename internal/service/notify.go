package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/contractqueue/backend/internal/model"
	tmpl "github.com/contractqueue/backend/internal/template"
)

// NotificationService - POSTs completed contracts to the configured webhook URL
type NotificationService struct {
	settings   settingsReader
	httpClient *http.Client
	wg         sync.WaitGroup
}

func NewNotificationService(settings settingsReader) *NotificationService {
	return &NotificationService{
		settings: settings,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NotifyCompleted - fire-and-forget delivery; failures are only logged
func (s *NotificationService) NotifyCompleted(ctx context.Context, c model.CompletedContract) {
	ctx = context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		settings, err := s.settings.Current(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to load notification settings", "error", err)
			return
		}
		if settings.WebhookURL == "" {
			return
		}
		if err := s.Deliver(ctx, settings, c); err != nil {
			slog.WarnContext(ctx, "completion notification failed",
				"deal_id", c.ID,
				"url", settings.WebhookURL,
				"error", err,
			)
			return
		}
		slog.InfoContext(ctx, "completion notification delivered", "deal_id", c.ID, "url", settings.WebhookURL)
	}()
}

// Wait blocks until in-flight notifications finish
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

// Deliver sends one notification synchronously. The response body is ignored;
// a non-2xx status is reported as an error.
func (s *NotificationService) Deliver(ctx context.Context, settings model.PipedriveSettings, c model.CompletedContract) error {
	body, err := notificationBody(settings.BodyTemplate, c)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, settings.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func notificationBody(bodyTemplate string, c model.CompletedContract) ([]byte, error) {
	if bodyTemplate != "" {
		deal := tmpl.DealDataFromCompleted(c)
		event := tmpl.EventData{
			Name:      model.EventDealCompleted,
			Timestamp: c.CompletedAt,
			User:      c.CompletedBy,
		}
		return []byte(tmpl.RenderBody(bodyTemplate, &deal, &event)), nil
	}

	return json.Marshal(model.OutboundEvent{
		Event: model.EventDealCompleted,
		Data: model.OutboundDealData{
			ID:         c.ID,
			Title:      c.Title,
			Value:      c.Value,
			StageID:    c.StageID,
			PipelineID: c.PipelineID,
		},
		Timestamp: c.CompletedAt,
		User:      c.CompletedBy,
	})
}
