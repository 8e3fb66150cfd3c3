package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/contractqueue/backend/internal/broadcast"
	"github.com/contractqueue/backend/internal/config"
	"github.com/contractqueue/backend/internal/db"
	"github.com/contractqueue/backend/internal/model"
)

// activeWriter - DB interface (ingest only)
type activeWriter interface {
	UpsertActiveContract(ctx context.Context, c model.ActiveContract) error
}

// settingsReader - current pipeline filter
type settingsReader interface {
	Current(ctx context.Context) (model.PipedriveSettings, error)
}

// IngestService - turns CRM webhooks into queued contracts
type IngestService struct {
	db        activeWriter
	settings  settingsReader
	publisher broadcast.Publisher
	defaults  config.PipedriveConfig
	now       func() time.Time
}

func NewIngestService(db activeWriter, settings settingsReader, publisher broadcast.Publisher, defaults config.PipedriveConfig) *IngestService {
	return &IngestService{
		db:        db,
		settings:  settings,
		publisher: publisher,
		defaults:  defaults,
		now:       time.Now,
	}
}

// ParseWebhook decodes a raw webhook body. A body that is itself a JSON
// string literal is decoded a second time.
func ParseWebhook(raw []byte) (model.PipedriveWebhook, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return model.PipedriveWebhook{}, invalidf("request body must be a valid JSON object")
		}
		raw = bytes.TrimSpace([]byte(inner))
	}

	var body map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil || body == nil {
		return model.PipedriveWebhook{}, invalidf("request body must be a valid JSON object")
	}

	hook := model.PipedriveWebhook{
		Event:     stringField(body, "event"),
		Timestamp: stringField(body, "timestamp"),
		User:      stringField(body, "user"),
	}
	if data, ok := body["data"].(map[string]any); ok {
		hook.Data = data
	}
	if meta, ok := body["meta"].(map[string]any); ok {
		hook.Meta = &model.WebhookMeta{
			Action: stringField(meta, "action"),
			ID:     stringField(meta, "id"),
			Object: stringField(meta, "object"),
		}
	}
	return hook, nil
}

// Ingest filters hook by the configured pipeline and stage and queues matches.
// Validation failures are InputErrors; any other error comes from the store.
func (s *IngestService) Ingest(ctx context.Context, hook model.PipedriveWebhook) (model.WebhookResponse, error) {
	if hook.Data == nil {
		return model.WebhookResponse{}, invalidf("missing field: data")
	}
	pipelineID, err := requiredID(hook.Data, "pipeline_id")
	if err != nil {
		return model.WebhookResponse{}, err
	}
	stageID, err := requiredID(hook.Data, "stage_id")
	if err != nil {
		return model.WebhookResponse{}, err
	}

	settings, err := s.settings.Current(ctx)
	if err != nil {
		return model.WebhookResponse{}, fmt.Errorf("failed to load pipeline settings: %w", err)
	}
	if pipelineID != settings.PipelineID || stageID != settings.StageID {
		slog.InfoContext(ctx, "ignoring deal outside the watched stage",
			"deal_id", stringField(hook.Data, "id"),
			"pipeline_id", pipelineID,
			"stage_id", stageID,
		)
		return model.WebhookResponse{
			Status:  model.WebhookStatusIgnored,
			Message: fmt.Sprintf("deal is not in stage %d of pipeline %d", settings.StageID, settings.PipelineID),
		}, nil
	}

	dealID, err := requiredID(hook.Data, "id")
	if err != nil {
		return model.WebhookResponse{}, err
	}

	contract, err := s.buildContract(hook.Data, dealID, pipelineID, stageID)
	if err != nil {
		return model.WebhookResponse{}, err
	}

	if err := s.db.UpsertActiveContract(ctx, contract); err != nil {
		if errors.Is(err, db.ErrAlreadyCompleted) {
			return model.WebhookResponse{
				Status:  model.WebhookStatusIgnored,
				Message: fmt.Sprintf("deal %d is already completed", dealID),
			}, nil
		}
		return model.WebhookResponse{}, err
	}

	s.publisher.Publish(ctx, model.NewQueueEvent(model.QueueReasonCreated, dealID))
	slog.InfoContext(ctx, "contract queued", "deal_id", dealID, "value", contract.Value)

	return model.WebhookResponse{
		Status:  model.WebhookStatusSuccess,
		Message: "contract received and queued",
		Data: &model.WebhookDealData{
			ID:       contract.ID,
			Title:    contract.Title,
			Value:    contract.Value,
			Currency: contract.Currency,
		},
	}, nil
}

// Simulate runs a synthetic webhook for the current pipeline and stage through Ingest
func (s *IngestService) Simulate(ctx context.Context, user string) (model.WebhookResponse, error) {
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return model.WebhookResponse{}, fmt.Errorf("failed to load pipeline settings: %w", err)
	}

	id := rand.Int64N(900_000_000) + 100_000_000
	hook := model.PipedriveWebhook{
		Event: "updated.deal",
		Meta:  &model.WebhookMeta{Action: "updated", Object: "deal", ID: strconv.FormatInt(id, 10)},
		Data: map[string]any{
			"id":          id,
			"title":       fmt.Sprintf("Simulated deal %d", id),
			"value":       float64(rand.IntN(100_000)),
			"currency":    s.defaults.DefaultCurrency,
			"pipeline_id": settings.PipelineID,
			"stage_id":    settings.StageID,
		},
		Timestamp: s.now().UTC().Format(time.RFC3339),
		User:      user,
	}
	return s.Ingest(ctx, hook)
}

func (s *IngestService) buildContract(data map[string]any, dealID, pipelineID, stageID int64) (model.ActiveContract, error) {
	value, present, err := numberField(data, "value")
	if err != nil || !isFinite(value) {
		return model.ActiveContract{}, invalidf("invalid field: data.value")
	}
	if present && value < 0 {
		return model.ActiveContract{}, invalidf("invalid field: data.value must not be negative")
	}

	title := strings.TrimSpace(stringField(data, "title"))
	if title == "" {
		title = fmt.Sprintf("Deal #%d", dealID)
	}

	currency := strings.ToUpper(strings.TrimSpace(stringField(data, "currency")))
	if len(currency) != 3 {
		currency = s.defaults.DefaultCurrency
	}

	return model.ActiveContract{
		ID:              dealID,
		Title:           title,
		CustomerName:    firstNonEmpty(stringField(data, "person_name"), stringField(data, "org_name"), s.defaults.DefaultCustomerName),
		SalespersonName: firstNonEmpty(stringField(data, "owner_name"), s.defaults.DefaultSalesperson),
		Value:           value,
		Currency:        currency,
		CreatedAt:       s.now().UTC(),
		PipelineID:      pipelineID,
		StageID:         stageID,
		StageName:       firstNonEmpty(stringField(data, "stage_name"), s.defaults.DefaultStageName),
		Status:          model.ContractStatusOpen,
	}, nil
}

// requiredID reads a positive int64 identifier. Integral floats such as 20.0 are accepted;
// fractions, values out of int64 range and ids <= 0 are not.
func requiredID(data map[string]any, key string) (int64, error) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return 0, invalidf("missing field: data.%s", key)
	}

	id, ok := parseID(raw)
	if !ok {
		return 0, invalidf("invalid field: data.%s must be a positive integer", key)
	}
	return id, nil
}

func parseID(raw any) (int64, bool) {
	var text string
	switch v := raw.(type) {
	case int64:
		return v, v > 0
	case int:
		return int64(v), v > 0
	case float64:
		return floatID(v)
	case json.Number:
		text = v.String()
	case string:
		text = strings.TrimSpace(v)
	default:
		return 0, false
	}

	if id, err := strconv.ParseInt(text, 10, 64); err == nil {
		return id, id > 0
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return floatID(f)
}

// floatID accepts whole floats strictly inside the int64 range
func floatID(f float64) (int64, bool) {
	if !isFinite(f) || f != math.Trunc(f) || f < 1 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// numberField accepts JSON numbers and numeric strings. A null value counts as absent.
func numberField(data map[string]any, key string) (float64, bool, error) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, true, err
	case float64:
		return v, true, nil
	case int64:
		return float64(v), true, nil
	case int:
		return float64(v), true, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, true, err
	default:
		return 0, true, fmt.Errorf("%s: unsupported type %T", key, raw)
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil, map[string]any, []any:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
