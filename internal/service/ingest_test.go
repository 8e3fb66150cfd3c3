package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/contractqueue/backend/internal/db"
	"github.com/contractqueue/backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIngest(store *db.Memory) (*IngestService, *recordingPublisher) {
	pub := &recordingPublisher{}
	settings := NewSettingsService(store, testPipedriveConfig())
	svc := NewIngestService(store, settings, pub, testPipedriveConfig())
	svc.now = fixedClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return svc, pub
}

func TestParseWebhook(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, hook model.PipedriveWebhook)
	}{
		{
			name: "object",
			raw:  `{"event":"updated.deal","meta":{"action":"updated","id":501},"data":{"id":501,"stage_id":20}}`,
			check: func(t *testing.T, hook model.PipedriveWebhook) {
				assert.Equal(t, "updated.deal", hook.Event)
				require.NotNil(t, hook.Meta)
				assert.Equal(t, "501", hook.Meta.ID)
				assert.NotNil(t, hook.Data)
			},
		},
		{
			name: "string-encoded-object",
			raw:  `"{\"data\":{\"id\":7,\"stage_id\":20,\"pipeline_id\":4}}"`,
			check: func(t *testing.T, hook model.PipedriveWebhook) {
				assert.Contains(t, hook.Data, "pipeline_id")
			},
		},
		{
			name: "missing-data-is-not-a-parse-error",
			raw:  `{"event":"x"}`,
			check: func(t *testing.T, hook model.PipedriveWebhook) {
				assert.Nil(t, hook.Data)
			},
		},
		{name: "array", raw: `[1,2]`, wantErr: true},
		{name: "garbage", raw: `not json`, wantErr: true},
		{name: "bad-inner-string", raw: `"{oops"`, wantErr: true},
		{name: "null", raw: `null`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook, err := ParseWebhook([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			tt.check(t, hook)
		})
	}
}

func TestIngestMatchingDealIsQueued(t *testing.T) {
	store := db.NewMemory()
	svc, pub := newTestIngest(store)

	hook, err := ParseWebhook([]byte(`{"event":"updated.deal","data":{"id":501,"title":"Acme Deal","value":10000,"stage_id":20,"pipeline_id":4}}`))
	require.NoError(t, err)

	resp, err := svc.Ingest(context.Background(), hook)
	require.NoError(t, err)
	assert.Equal(t, model.WebhookStatusSuccess, resp.Status)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "BRL", resp.Data.Currency)

	got, err := store.GetActiveContract(context.Background(), 501)
	require.NoError(t, err)
	assert.Equal(t, "Acme Deal", got.Title)
	assert.Equal(t, 10000.0, got.Value)
	assert.Equal(t, model.ContractStatusOpen, got.Status)
	assert.Equal(t, "Cliente via Webhook", got.CustomerName)
	assert.Equal(t, "Integração", got.SalespersonName)
	assert.Equal(t, "Elaborar Contrato", got.StageName)

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.QueueReasonCreated, events[0].Reason)
	assert.Equal(t, int64(501), events[0].DealID)
}

func TestIngestOtherStageIsIgnored(t *testing.T) {
	store := db.NewMemory()
	svc, pub := newTestIngest(store)

	resp, err := svc.Ingest(context.Background(), model.PipedriveWebhook{
		Data: map[string]any{"id": 501, "title": "Acme Deal", "value": 10000, "stage_id": 99, "pipeline_id": 4},
	})
	require.NoError(t, err)
	assert.Equal(t, model.WebhookStatusIgnored, resp.Status)
	assert.Equal(t, "deal is not in stage 20 of pipeline 4", resp.Message)

	_, err = store.GetActiveContract(context.Background(), 501)
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.Empty(t, pub.Events())
}

func TestIngestUsesSavedSettings(t *testing.T) {
	store := db.NewMemory()
	require.NoError(t, store.SavePipedriveSettings(context.Background(), model.PipedriveSettings{PipelineID: 4, StageID: 21}))
	svc, _ := newTestIngest(store)

	resp, err := svc.Ingest(context.Background(), model.PipedriveWebhook{
		Data: map[string]any{"id": "77", "stage_id": "21", "pipeline_id": "4", "currency": "usd", "person_name": "Maria"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.WebhookStatusSuccess, resp.Status)

	got, err := store.GetActiveContract(context.Background(), 77)
	require.NoError(t, err)
	assert.Equal(t, "USD", got.Currency)
	assert.Equal(t, "Maria", got.CustomerName)
	assert.Equal(t, "Deal #77", got.Title)
}

func TestIngestValidation(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]any
		message string
	}{
		{name: "no-data", data: nil, message: "missing field: data"},
		{name: "no-pipeline", data: map[string]any{"id": 1, "stage_id": 20}, message: "missing field: data.pipeline_id"},
		{name: "no-stage", data: map[string]any{"id": 1, "pipeline_id": 4}, message: "missing field: data.stage_id"},
		{name: "no-id", data: map[string]any{"stage_id": 20, "pipeline_id": 4}, message: "missing field: data.id"},
		{name: "text-stage", data: map[string]any{"id": 1, "stage_id": "twenty", "pipeline_id": 4}, message: "invalid field: data.stage_id must be a positive integer"},
		{name: "negative-id", data: map[string]any{"id": json.Number("-7"), "stage_id": 20, "pipeline_id": 4}, message: "invalid field: data.id must be a positive integer"},
		{name: "zero-id", data: map[string]any{"id": 0, "stage_id": 20, "pipeline_id": 4}, message: "invalid field: data.id must be a positive integer"},
		{name: "id-beyond-int64", data: map[string]any{"id": json.Number("1e19"), "stage_id": 20, "pipeline_id": 4}, message: "invalid field: data.id must be a positive integer"},
		{name: "id-digits-beyond-int64", data: map[string]any{"id": json.Number("9223372036854775808"), "stage_id": 20, "pipeline_id": 4}, message: "invalid field: data.id must be a positive integer"},
		{name: "fractional-id", data: map[string]any{"id": json.Number("1.5"), "stage_id": 20, "pipeline_id": 4}, message: "invalid field: data.id must be a positive integer"},
		{name: "negative-pipeline", data: map[string]any{"id": 1, "stage_id": 20, "pipeline_id": "-4"}, message: "invalid field: data.pipeline_id must be a positive integer"},
		{name: "zero-stage", data: map[string]any{"id": 1, "stage_id": 0.0, "pipeline_id": 4}, message: "invalid field: data.stage_id must be a positive integer"},
		{name: "negative-value", data: map[string]any{"id": 1, "stage_id": 20, "pipeline_id": 4, "value": -5}, message: "invalid field: data.value must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := db.NewMemory()
			svc, pub := newTestIngest(store)

			_, err := svc.Ingest(context.Background(), model.PipedriveWebhook{Data: tt.data})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, tt.message, err.Error())
			assert.Empty(t, pub.Events())
		})
	}
}

func TestIngestAcceptsLargeAndIntegralIDs(t *testing.T) {
	store := db.NewMemory()
	svc, _ := newTestIngest(store)

	resp, err := svc.Ingest(context.Background(), model.PipedriveWebhook{
		Data: map[string]any{"id": json.Number("9223372036854775807"), "stage_id": json.Number("20.0"), "pipeline_id": 4},
	})
	require.NoError(t, err)
	assert.Equal(t, model.WebhookStatusSuccess, resp.Status)

	_, err = store.GetActiveContract(context.Background(), 9223372036854775807)
	assert.NoError(t, err)
}

func TestIngestOtherStageWithoutIDIsIgnored(t *testing.T) {
	store := db.NewMemory()
	svc, pub := newTestIngest(store)

	resp, err := svc.Ingest(context.Background(), model.PipedriveWebhook{
		Data: map[string]any{"stage_id": 99, "pipeline_id": 4},
	})
	require.NoError(t, err)
	assert.Equal(t, model.WebhookStatusIgnored, resp.Status)
	assert.Empty(t, pub.Events())
}

func TestIngestCompletedDealIsNotRequeued(t *testing.T) {
	store := db.NewMemory()
	svc, pub := newTestIngest(store)
	ctx := context.Background()
	data := map[string]any{"id": 501, "title": "Acme Deal", "stage_id": 20, "pipeline_id": 4}

	_, err := svc.Ingest(ctx, model.PipedriveWebhook{Data: data})
	require.NoError(t, err)
	_, err = store.CompleteContract(ctx, 501, "Alice", time.Now())
	require.NoError(t, err)

	resp, err := svc.Ingest(ctx, model.PipedriveWebhook{Data: data})
	require.NoError(t, err)
	assert.Equal(t, model.WebhookStatusIgnored, resp.Status)
	assert.Len(t, pub.Events(), 1)

	_, err = store.GetActiveContract(ctx, 501)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestIngestStoreFailure(t *testing.T) {
	store := db.NewMemory()
	svc, pub := newTestIngest(store)
	store.FailWith = errors.New("connection refused")

	_, err := svc.Ingest(context.Background(), model.PipedriveWebhook{
		Data: map[string]any{"id": 1, "stage_id": 20, "pipeline_id": 4},
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidInput))
	assert.Empty(t, pub.Events())
}

func TestSimulateQueuesSyntheticDeal(t *testing.T) {
	store := db.NewMemory()
	svc, pub := newTestIngest(store)

	resp, err := svc.Simulate(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, model.WebhookStatusSuccess, resp.Status)
	require.NotNil(t, resp.Data)

	list, err := store.ListActiveContracts(context.Background(), model.ActiveFilter{StageID: 20})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, resp.Data.ID, list[0].ID)
	assert.Len(t, pub.Events(), 1)
}
