package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/contractqueue/backend/internal/broadcast"
	"github.com/contractqueue/backend/internal/config"
	"github.com/contractqueue/backend/internal/db"
	"github.com/contractqueue/backend/internal/model"
	"github.com/contractqueue/backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	router *gin.Engine
	store  *db.Memory
	hub    *broadcast.Hub
	token  string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := db.NewMemory()
	hub := broadcast.NewHub()
	pipedrive := config.PipedriveConfig{
		PipelineID:          4,
		StageID:             20,
		DefaultCurrency:     "BRL",
		DefaultCustomerName: "Cliente via Webhook",
		DefaultSalesperson:  "Integração",
		DefaultStageName:    "Elaborar Contrato",
	}

	authSvc, err := service.NewAuthService(store, config.AuthConfig{
		JWTSecret:     "test-secret",
		JWTAccessTTL:  "15m",
		JWTRefreshTTL: "1h",
		CookieSecure:  "false",
	})
	require.NoError(t, err)
	require.NoError(t, authSvc.EnsureAdmin(context.Background(), "Alice", "password123", ""))
	pair, err := authSvc.Login(context.Background(), "Alice", "password123")
	require.NoError(t, err)

	settingsSvc := service.NewSettingsService(store, pipedrive)
	ingestSvc := service.NewIngestService(store, settingsSvc, hub, pipedrive)
	notifier := service.NewNotificationService(settingsSvc)
	contractSvc := service.NewContractService(store, settingsSvc, hub, notifier)
	reportSvc := service.NewReportService(store, time.UTC)
	sessionSvc := service.NewSessionService(store, 2*time.Minute)

	router := NewRouter(RouterOptions{AllowedOrigins: []string{"http://localhost:5173"}, AllowCredentials: true}, Handlers{
		Auth:      NewAuthHandler(authSvc, sessionSvc),
		AuthSvc:   authSvc,
		Webhook:   NewPipedriveWebhookHandler(ingestSvc, false),
		Contracts: NewContractHandler(contractSvc, hub, time.UTC),
		Reports:   NewReportHandler(reportSvc),
		Settings:  NewSettingsHandler(settingsSvc, ingestSvc),
		Sessions:  NewSessionHandler(sessionSvc),
		Health:    NewHealthHandler(store),
	})

	return &testApp{router: router, store: store, hub: hub, token: pair.AccessToken}
}

func (a *testApp) do(t *testing.T, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

const acmeWebhook = `{"event":"updated.deal","data":{"id":501,"title":"Acme Deal","value":10000,"stage_id":20,"pipeline_id":4}}`

func TestWebhookQueuesMatchingDeal(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/webhook", acmeWebhook, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[model.WebhookResponse](t, w)
	assert.Equal(t, "success", resp.Status)
	require.NotNil(t, resp.Data)
	assert.Equal(t, int64(501), resp.Data.ID)
	assert.Equal(t, "BRL", resp.Data.Currency)

	got, err := app.store.GetActiveContract(context.Background(), 501)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, got.Value)
	assert.Equal(t, "open", got.Status)
}

func TestWebhookResponses(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
		wantBody   model.StatusMessageResponse
	}{
		{
			name:       "other-stage-ignored",
			method:     http.MethodPost,
			body:       `{"data":{"id":501,"title":"Acme Deal","value":10000,"stage_id":99,"pipeline_id":4}}`,
			wantStatus: http.StatusOK,
			wantBody:   model.StatusMessageResponse{Status: "ignored", Message: "deal is not in stage 20 of pipeline 4"},
		},
		{
			name:       "negative-id",
			method:     http.MethodPost,
			body:       `{"data":{"id":-7,"title":"Acme Deal","value":10000,"stage_id":20,"pipeline_id":4}}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   model.StatusMessageResponse{Status: "error", Message: "invalid field: data.id must be a positive integer"},
		},
		{
			name:       "id-beyond-int64",
			method:     http.MethodPost,
			body:       `{"data":{"id":1e19,"title":"Acme Deal","value":10000,"stage_id":20,"pipeline_id":4}}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   model.StatusMessageResponse{Status: "error", Message: "invalid field: data.id must be a positive integer"},
		},
		{
			name:       "missing-data",
			method:     http.MethodPost,
			body:       `{"event":"updated.deal"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   model.StatusMessageResponse{Status: "error", Message: "missing field: data"},
		},
		{
			name:       "not-an-object",
			method:     http.MethodPost,
			body:       `[1,2,3]`,
			wantStatus: http.StatusBadRequest,
			wantBody:   model.StatusMessageResponse{Status: "error", Message: "request body must be a valid JSON object"},
		},
		{
			name:       "wrong-method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
			wantBody:   model.StatusMessageResponse{Status: "error", Message: "Method not allowed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			w := app.do(t, tt.method, "/api/webhook", tt.body, false)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantBody, decode[model.StatusMessageResponse](t, w))

			list, err := app.store.ListActiveContracts(context.Background(), model.ActiveFilter{StageID: 20})
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestWebhookRejectsEveryOtherMethod(t *testing.T) {
	app := newTestApp(t)

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodTrace, http.MethodConnect, "PROPFIND"} {
		for _, path := range []string{"/api/webhook", "/api/test-webhook"} {
			w := app.do(t, method, path, "", false)
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code, "%s %s", method, path)
			assert.Equal(t, http.MethodPost, w.Header().Get("Allow"), "%s %s", method, path)
		}
	}

	w := app.do(t, "PROPFIND", "/api/webhook", "", false)
	assert.Equal(t, model.StatusMessageResponse{Status: "error", Message: "Method not allowed"}, decode[model.StatusMessageResponse](t, w))

	req := httptest.NewRequest(http.MethodOptions, "/api/webhook", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebhookStoreFailureIsSanitized(t *testing.T) {
	app := newTestApp(t)
	app.store.FailWith = assert.AnError

	w := app.do(t, http.MethodPost, "/api/webhook", acmeWebhook, false)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decode[model.StatusMessageResponse](t, w).Message)
}

func TestTestWebhookEchoesBody(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/test-webhook", `{"hello":"world"}`, false)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[model.TestWebhookResponse](t, w)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, map[string]any{"hello": "world"}, resp.ReceivedData["body"])

	w = app.do(t, http.MethodPut, "/api/test-webhook", "", false)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestContractRoutesRequireAuth(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/api/v1/contracts/active", "/api/v1/reports/signed", "/api/v1/settings/pipedrive", "/api/v1/sessions"} {
		w := app.do(t, http.MethodGet, path, "", false)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestCompleteFlow(t *testing.T) {
	app := newTestApp(t)
	events, cancel := app.hub.Subscribe()
	defer cancel()

	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/api/webhook", acmeWebhook, false).Code)

	w := app.do(t, http.MethodGet, "/api/v1/contracts/active", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	active := decode[model.ActiveContractListResponse](t, w)
	require.Len(t, active.Data, 1)
	assert.Equal(t, "Acme Deal", active.Data[0].Title)

	w = app.do(t, http.MethodPost, "/api/v1/contracts/active/501/complete", "", true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	done := decode[model.CompletedContractResponse](t, w)
	require.NotNil(t, done.Data)
	assert.Equal(t, "Alice", done.Data.CompletedBy)

	w = app.do(t, http.MethodGet, "/api/v1/contracts/active", "", true)
	assert.Empty(t, decode[model.ActiveContractListResponse](t, w).Data)

	w = app.do(t, http.MethodGet, "/api/v1/contracts/completed", "", true)
	completed := decode[model.CompletedContractListResponse](t, w)
	require.Len(t, completed.Data, 1)
	assert.Equal(t, int64(501), completed.Data[0].ID)

	w = app.do(t, http.MethodPost, "/api/v1/contracts/active/501/complete", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = app.do(t, http.MethodPost, "/api/v1/contracts/active/abc/complete", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	reasons := []string{}
	for len(reasons) < 2 {
		select {
		case evt := <-events:
			reasons = append(reasons, evt.Reason)
		case <-time.After(time.Second):
			t.Fatalf("got events %v", reasons)
		}
	}
	assert.Equal(t, []string{model.QueueReasonCreated, model.QueueReasonCompleted}, reasons)

	w = app.do(t, http.MethodGet, "/api/v1/contracts/completed/stats", "", true)
	stats := decode[model.CompletedStatsResponse](t, w)
	assert.Equal(t, 1, stats.Data.Total)
	assert.Equal(t, 10000.0, stats.Data.LastWeekValue)
}

func TestCompletedByUsesDisplayName(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/api/v1/auth/me", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[model.AuthMeResponse](t, w)
	assert.Equal(t, "Alice", me.LoginID)
	assert.Empty(t, me.DisplayName)

	w = app.do(t, http.MethodPatch, "/api/v1/auth/me", `{"displayName":"Alice Smith"}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	renamed := decode[model.AuthResponse](t, w)
	assert.Equal(t, "Alice Smith", renamed.User.DisplayName)
	assert.Empty(t, w.Result().Cookies(), "rename does not rotate the refresh cookie")
	app.token = renamed.AccessToken

	w = app.do(t, http.MethodGet, "/api/v1/auth/me", "", true)
	assert.Equal(t, "Alice Smith", decode[model.AuthMeResponse](t, w).DisplayName)

	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/api/webhook", acmeWebhook, false).Code)
	w = app.do(t, http.MethodPost, "/api/v1/contracts/active/501/complete", "", true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Alice Smith", decode[model.CompletedContractResponse](t, w).Data.CompletedBy)

	w = app.do(t, http.MethodPut, "/api/v1/settings/pipedrive", `{"pipeline_id":4,"stage_id":20}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Alice Smith", decode[model.PipedriveSettingsResponse](t, w).Data.UpdatedBy)

	// presence stays keyed by login id
	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/api/v1/sessions/heartbeat", "", true).Code)
	sessions, err := app.store.ListActiveSessions(context.Background(), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Alice", sessions[0].UserID)
}

func TestUpdateDisplayNameRejectsBadInput(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPatch, "/api/v1/auth/me", `{"displayName":"`+strings.Repeat("x", 81)+`"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "display name must be at most 80 characters", decode[map[string]string](t, w)["error"])

	w = app.do(t, http.MethodPatch, "/api/v1/auth/me", `{`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodPatch, "/api/v1/auth/me", `{"displayName":"Mallory"}`, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRemoveFromQueue(t *testing.T) {
	app := newTestApp(t)
	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/api/webhook", acmeWebhook, false).Code)

	w := app.do(t, http.MethodDelete, "/api/v1/contracts/active/501", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(501), decode[model.ContractMutationResponse](t, w).ID)

	w = app.do(t, http.MethodDelete, "/api/v1/contracts/active/501", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSignedReportAndCSV(t *testing.T) {
	app := newTestApp(t)
	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/api/webhook", acmeWebhook, false).Code)
	require.Equal(t, http.StatusOK, app.do(t, http.MethodPost, "/api/v1/contracts/active/501/complete", "", true).Code)

	today := time.Now().UTC().Format("2006-01-02")
	w := app.do(t, http.MethodGet, "/api/v1/reports/signed?start="+today+"&end="+today, "", true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[model.SignedReportResponse](t, w)
	require.NotNil(t, report.Data)
	assert.Equal(t, 1, report.Data.Count)
	assert.Equal(t, 10000.0, report.Data.Total)
	require.Len(t, report.Data.Days, 1)
	assert.Equal(t, today, report.Data.Days[0].Date)

	w = app.do(t, http.MethodGet, "/api/v1/reports/signed.csv?start="+today+"&end="+today, "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "contratos_assinados_")
	lines := strings.Split(w.Body.String(), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Título,Cliente,Vendedor,Data,Valor", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], `"Acme Deal","Cliente via Webhook","Integração",`), lines[1])

	w = app.do(t, http.MethodGet, "/api/v1/reports/signed?start=2024-06-10&end=2024-06-01", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettingsRoutes(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/api/v1/settings/pipedrive", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(20), decode[model.PipedriveSettingsResponse](t, w).Data.StageID)

	w = app.do(t, http.MethodPut, "/api/v1/settings/pipedrive", `{"pipeline_id":4,"stage_id":0}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodPut, "/api/v1/settings/pipedrive", `{"pipeline_id":4,"stage_id":21}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Alice", decode[model.PipedriveSettingsResponse](t, w).Data.UpdatedBy)

	w = app.do(t, http.MethodPost, "/api/webhook", acmeWebhook, false)
	assert.Equal(t, "ignored", decode[model.WebhookResponse](t, w).Status)

	w = app.do(t, http.MethodPost, "/api/v1/settings/pipedrive/simulate", "", true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "success", decode[model.WebhookResponse](t, w).Status)

	list, err := app.store.ListActiveContracts(context.Background(), model.ActiveFilter{StageID: 21})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSessionRoutes(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/v1/sessions/heartbeat", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, http.MethodGet, "/api/v1/sessions", "", true)
	sessions := decode[model.ActiveSessionListResponse](t, w)
	require.Len(t, sessions.Data, 1)
	assert.Equal(t, "Alice", sessions.Data[0].UserID)

	w = app.do(t, http.MethodPost, "/api/v1/auth/logout", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, http.MethodGet, "/api/v1/sessions", "", true)
	assert.Empty(t, decode[model.ActiveSessionListResponse](t, w).Data)
}

func TestHealthRoutes(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/ping", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())

	w = app.do(t, http.MethodGet, "/healthz", "", false)
	assert.Equal(t, http.StatusOK, w.Code)

	app.store.FailWith = assert.AnError
	w = app.do(t, http.MethodGet, "/healthz", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = app.do(t, http.MethodGet, "/openapi.json", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/webhook")
}

func TestRequestIDHeader(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/ping", "", false)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestEventsStream(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/contracts/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+app.token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	require.Eventually(t, func() bool { return app.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	app.hub.Publish(context.Background(), model.NewQueueEvent(model.QueueReasonRemoved, 9))

	scanner := bufio.NewScanner(resp.Body)
	var eventLine, dataLine string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			eventLine = line
		}
		if strings.HasPrefix(line, "data:") {
			dataLine = line
			break
		}
	}
	assert.Equal(t, "event:queue", eventLine)

	var evt model.QueueEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(dataLine, "data:")), &evt))
	assert.Equal(t, int64(9), evt.DealID)
	assert.Equal(t, model.QueueReasonRemoved, evt.Reason)
}
