package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/contractqueue/backend/internal/model"
	"github.com/contractqueue/backend/internal/service"
	"github.com/gin-gonic/gin"
)

// maxWebhookBody - largest accepted webhook payload
const maxWebhookBody = 1 << 20

// ingestService - service interface
type ingestService interface {
	Ingest(ctx context.Context, hook model.PipedriveWebhook) (model.WebhookResponse, error)
}

// PipedriveWebhookHandler - inbound CRM webhooks
type PipedriveWebhookHandler struct {
	svc          ingestService
	exposeErrors bool
}

func NewPipedriveWebhookHandler(svc ingestService, exposeErrors bool) *PipedriveWebhookHandler {
	return &PipedriveWebhookHandler{svc: svc, exposeErrors: exposeErrors}
}

// Receive godoc
// @Summary Pipedrive deal webhook
// @Description Queues deals that reached the configured pipeline stage. Other deals are acknowledged as ignored.
// @Tags webhook
// @Accept json
// @Produce json
// @Param request body model.PipedriveWebhook true "Pipedrive webhook"
// @Success 200 {object} model.WebhookResponse
// @Failure 400 {object} model.StatusMessageResponse
// @Failure 405 {object} model.StatusMessageResponse
// @Failure 500 {object} model.StatusMessageResponse
// @Router /api/webhook [post]
func (h *PipedriveWebhookHandler) Receive(c *gin.Context) {
	ctx := c.Request.Context()

	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeStatusError(c, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeStatusError(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	hook, err := service.ParseWebhook(raw)
	if err != nil {
		slog.WarnContext(ctx, "rejected webhook body", "error", err)
		writeStatusError(c, http.StatusBadRequest, err.Error())
		return
	}
	slog.InfoContext(ctx, "pipedrive webhook received", "event", hook.Event)

	resp, err := h.svc.Ingest(ctx, hook)
	if err != nil {
		var inputErr *service.InputError
		if errors.As(err, &inputErr) {
			writeStatusError(c, http.StatusBadRequest, inputErr.Message)
			return
		}
		slog.ErrorContext(ctx, "failed to ingest webhook", "error", err)
		message := "internal server error"
		if h.exposeErrors {
			message = err.Error()
		}
		writeStatusError(c, http.StatusInternalServerError, message)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// TestWebhook godoc
// @Summary Echo a webhook request
// @Description Returns the received headers and body for integration debugging.
// @Tags webhook
// @Accept json
// @Produce json
// @Success 200 {object} model.TestWebhookResponse
// @Failure 405 {object} model.StatusMessageResponse
// @Router /api/test-webhook [post]
func (h *PipedriveWebhookHandler) TestWebhook(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		writeStatusError(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	var body any = string(raw)
	var decoded any
	if json.Unmarshal(raw, &decoded) == nil {
		body = decoded
	}

	headers := make(map[string]any, len(c.Request.Header))
	for key, values := range c.Request.Header {
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = values
		}
	}

	c.JSON(http.StatusOK, model.TestWebhookResponse{
		Status:  model.WebhookStatusSuccess,
		Message: "data received",
		ReceivedData: map[string]any{
			"headers": headers,
			"body":    body,
		},
	})
}

// MethodNotAllowed - 405 body for known paths hit with an unrouted verb. gin sets Allow.
func MethodNotAllowed(c *gin.Context) {
	writeStatusError(c, http.StatusMethodNotAllowed, "Method not allowed")
}

func writeStatusError(c *gin.Context, status int, message string) {
	c.JSON(status, model.StatusMessageResponse{Status: model.WebhookStatusError, Message: message})
}
