package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/contractqueue/backend/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingIngest struct {
	err error
}

func (f failingIngest) Ingest(ctx context.Context, hook model.PipedriveWebhook) (model.WebhookResponse, error) {
	return model.WebhookResponse{}, f.err
}

func TestWebhookErrorExposure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	storeErr := errors.New("failed to upsert active contract 501: connection refused")

	tests := []struct {
		name        string
		expose      bool
		wantMessage string
	}{
		{name: "sanitized-by-default", expose: false, wantMessage: "internal server error"},
		{name: "raw-when-exposed", expose: true, wantMessage: storeErr.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPipedriveWebhookHandler(failingIngest{err: storeErr}, tt.expose)
			router := gin.New()
			router.POST("/api/webhook", h.Receive)

			req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(acmeWebhook))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, model.StatusMessageResponse{Status: "error", Message: tt.wantMessage}, decode[model.StatusMessageResponse](t, w))
		})
	}
}

func TestWebhookBodyTooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewPipedriveWebhookHandler(failingIngest{}, false)
	router := gin.New()
	router.POST("/api/webhook", h.Receive)

	body := `{"data":{"title":"` + strings.Repeat("x", maxWebhookBody) + `"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
