package service

import (
	"context"
	"testing"
	"time"

	"github.com/contractqueue/backend/internal/db"
	"github.com/contractqueue/backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsCurrentFallsBackToDefaults(t *testing.T) {
	svc := NewSettingsService(db.NewMemory(), testPipedriveConfig())

	got, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.PipelineID)
	assert.Equal(t, int64(20), got.StageID)
}

func TestSettingsCurrentPropagatesStoreErrors(t *testing.T) {
	store := db.NewMemory()
	store.FailWith = assert.AnError
	svc := NewSettingsService(store, testPipedriveConfig())

	_, err := svc.Current(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSettingsUpdate(t *testing.T) {
	store := db.NewMemory()
	svc := NewSettingsService(store, testPipedriveConfig())
	svc.now = fixedClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))

	saved, err := svc.Update(context.Background(), model.PipedriveSettingsRequest{
		PipelineID: 4,
		StageID:    21,
		WebhookURL: " https://hooks.example.com/deal ",
	}, "admin")
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/deal", saved.WebhookURL)
	assert.Equal(t, "admin", saved.UpdatedBy)

	got, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(21), got.StageID)
}

func TestSettingsUpdateValidation(t *testing.T) {
	tests := []struct {
		name string
		req  model.PipedriveSettingsRequest
	}{
		{name: "zero-pipeline", req: model.PipedriveSettingsRequest{StageID: 20}},
		{name: "negative-stage", req: model.PipedriveSettingsRequest{PipelineID: 4, StageID: -1}},
		{name: "relative-url", req: model.PipedriveSettingsRequest{PipelineID: 4, StageID: 20, WebhookURL: "/hooks"}},
		{name: "ftp-url", req: model.PipedriveSettingsRequest{PipelineID: 4, StageID: 20, WebhookURL: "ftp://example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := db.NewMemory()
			svc := NewSettingsService(store, testPipedriveConfig())

			_, err := svc.Update(context.Background(), tt.req, "admin")
			assert.ErrorIs(t, err, ErrInvalidInput)

			_, err = store.GetPipedriveSettings(context.Background())
			assert.ErrorIs(t, err, db.ErrNotFound)
		})
	}
}
