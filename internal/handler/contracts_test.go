package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/contractqueue/backend/internal/broadcast"
	"github.com/contractqueue/backend/internal/model"
	"github.com/contractqueue/backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingContracts - contractService that keeps the last completed-list query and completing user
type recordingContracts struct {
	query       service.CompletedQuery
	completedBy string
	completeErr error
}

func (r *recordingContracts) ListActive(context.Context, *int64, *int64) ([]model.ActiveContract, error) {
	return nil, nil
}

func (r *recordingContracts) Complete(_ context.Context, id int64, completedBy string) (*model.CompletedContract, error) {
	r.completedBy = completedBy
	if r.completeErr != nil {
		return nil, r.completeErr
	}
	return &model.CompletedContract{ID: id, CompletedBy: completedBy}, nil
}

func (r *recordingContracts) Remove(context.Context, int64) error {
	return nil
}

func (r *recordingContracts) ListCompleted(_ context.Context, q service.CompletedQuery) ([]model.CompletedContract, error) {
	r.query = q
	return []model.CompletedContract{}, nil
}

func (r *recordingContracts) Stats(context.Context) (model.CompletedStats, error) {
	return model.CompletedStats{}, nil
}

func TestListCompletedReadsDatesInReportTimezone(t *testing.T) {
	gin.SetMode(gin.TestMode)
	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	tests := []struct {
		name      string
		loc       *time.Location
		query     string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "bare dates are calendar days in the report zone",
			loc:       saoPaulo,
			query:     "?start=2024-06-01&end=2024-06-01",
			wantStart: time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 6, 2, 2, 59, 59, 999999999, time.UTC),
		},
		{
			name:      "rfc3339 keeps its own offset",
			loc:       saoPaulo,
			query:     "?start=2024-06-01T00:00:00Z&end=2024-06-01T12:00:00%2B02:00",
			wantStart: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name:      "nil location means UTC",
			loc:       nil,
			query:     "?start=2024-06-01&end=2024-06-01",
			wantStart: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 6, 1, 23, 59, 59, 999999999, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &recordingContracts{}
			h := NewContractHandler(svc, broadcast.NewHub(), tt.loc)
			router := gin.New()
			router.GET("/completed", h.ListCompleted)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/completed"+tt.query, nil))
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			assert.True(t, tt.wantStart.Equal(svc.query.Start), "start = %s", svc.query.Start)
			assert.True(t, tt.wantEnd.Equal(svc.query.End), "end = %s", svc.query.End)
		})
	}
}

func TestListCompletedRejectsBadDates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewContractHandler(&recordingContracts{}, broadcast.NewHub(), time.UTC)
	router := gin.New()
	router.GET("/completed", h.ListCompleted)

	for _, q := range []string{"?start=06/01/2024", "?end=2024-13-01"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/completed"+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestCompleteErrorStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"completed", nil, http.StatusOK},
		{"not in queue", fmt.Errorf("%w: contract 501 is not in the queue", service.ErrNotFound), http.StatusNotFound},
		{"completed earlier", fmt.Errorf("%w: contract 501 was already completed", service.ErrConflict), http.StatusConflict},
		{"store down", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &recordingContracts{completeErr: tt.err}
			h := NewContractHandler(svc, broadcast.NewHub(), time.UTC)
			router := gin.New()
			router.Use(func(c *gin.Context) {
				c.Set(authUserKey, &model.AuthUser{ID: 1, LoginID: "alice", DisplayName: "Alice Smith"})
			})
			router.POST("/active/:id/complete", h.Complete)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/active/501/complete", nil))
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, "Alice Smith", svc.completedBy)
		})
	}
}
