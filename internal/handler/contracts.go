package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/contractqueue/backend/internal/model"
	"github.com/contractqueue/backend/internal/service"
	"github.com/gin-gonic/gin"
)

// contractService - service interface
type contractService interface {
	ListActive(ctx context.Context, stageID, pipelineID *int64) ([]model.ActiveContract, error)
	Complete(ctx context.Context, id int64, completedBy string) (*model.CompletedContract, error)
	Remove(ctx context.Context, id int64) error
	ListCompleted(ctx context.Context, q service.CompletedQuery) ([]model.CompletedContract, error)
	Stats(ctx context.Context) (model.CompletedStats, error)
}

// queueSubscriber - source of queue-changed signals
type queueSubscriber interface {
	Subscribe() (<-chan model.QueueEvent, func())
}

type ContractHandler struct {
	svc          contractService
	events       queueSubscriber
	loc          *time.Location
	pingInterval time.Duration
}

// NewContractHandler - loc is the report timezone that bare YYYY-MM-DD filters are read in (UTC when nil)
func NewContractHandler(svc contractService, events queueSubscriber, loc *time.Location) *ContractHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ContractHandler{svc: svc, events: events, loc: loc, pingInterval: 25 * time.Second}
}

// ListActive godoc
// @Summary List queued contracts
// @Description Newest first. stage_id defaults to the configured stage.
// @Tags contracts
// @Produce json
// @Security BearerAuth
// @Param stage_id query int false "Stage ID"
// @Param pipeline_id query int false "Pipeline ID"
// @Success 200 {object} model.ActiveContractListResponse
// @Failure 400,500 {object} model.StatusMessageResponse
// @Router /api/v1/contracts/active [get]
func (h *ContractHandler) ListActive(c *gin.Context) {
	stageID, err := optionalInt64Query(c, "stage_id")
	if err != nil {
		writeStatusError(c, http.StatusBadRequest, "invalid stage_id")
		return
	}
	pipelineID, err := optionalInt64Query(c, "pipeline_id")
	if err != nil {
		writeStatusError(c, http.StatusBadRequest, "invalid pipeline_id")
		return
	}

	list, err := h.svc.ListActive(c.Request.Context(), stageID, pipelineID)
	if err != nil {
		writeContractError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.ActiveContractListResponse{Status: "success", Data: list})
}

// Complete godoc
// @Summary Complete a queued contract
// @Description Moves the contract to the completed set, stamped with the caller and the current time.
// @Tags contracts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Pipedrive deal ID"
// @Success 200 {object} model.CompletedContractResponse
// @Failure 400,401,404,409,500 {object} model.StatusMessageResponse
// @Router /api/v1/contracts/active/{id}/complete [post]
func (h *ContractHandler) Complete(c *gin.Context) {
	id, ok := contractID(c)
	if !ok {
		return
	}
	user := GetAuthUser(c)
	if user == nil {
		writeStatusError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	completed, err := h.svc.Complete(c.Request.Context(), id, user.Actor())
	if err != nil {
		writeContractError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.CompletedContractResponse{
		Status:  "success",
		Message: "contract completed",
		Data:    completed,
	})
}

// Remove godoc
// @Summary Drop a contract from the queue
// @Tags contracts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Pipedrive deal ID"
// @Success 200 {object} model.ContractMutationResponse
// @Failure 400,404,500 {object} model.StatusMessageResponse
// @Router /api/v1/contracts/active/{id} [delete]
func (h *ContractHandler) Remove(c *gin.Context) {
	id, ok := contractID(c)
	if !ok {
		return
	}
	if err := h.svc.Remove(c.Request.Context(), id); err != nil {
		writeContractError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.ContractMutationResponse{
		Status:  "success",
		Message: "contract removed from queue",
		ID:      id,
	})
}

// ListCompleted godoc
// @Summary List completed contracts
// @Description Defaults to the last 30 days, newest first.
// @Tags contracts
// @Produce json
// @Security BearerAuth
// @Param start query string false "RFC3339 or YYYY-MM-DD (report timezone)"
// @Param end query string false "RFC3339 or YYYY-MM-DD (report timezone)"
// @Param sort query string false "date or value"
// @Param order query string false "asc or desc"
// @Success 200 {object} model.CompletedContractListResponse
// @Failure 400,500 {object} model.StatusMessageResponse
// @Router /api/v1/contracts/completed [get]
func (h *ContractHandler) ListCompleted(c *gin.Context) {
	start, err := parseTimeQuery(c.Query("start"), h.loc, false)
	if err != nil {
		writeStatusError(c, http.StatusBadRequest, "invalid start")
		return
	}
	end, err := parseTimeQuery(c.Query("end"), h.loc, true)
	if err != nil {
		writeStatusError(c, http.StatusBadRequest, "invalid end")
		return
	}

	list, err := h.svc.ListCompleted(c.Request.Context(), service.CompletedQuery{
		Start: start,
		End:   end,
		Sort:  c.Query("sort"),
		Order: c.Query("order"),
	})
	if err != nil {
		writeContractError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.CompletedContractListResponse{Status: "success", Data: list})
}

// Stats godoc
// @Summary Completed contract totals
// @Tags contracts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.CompletedStatsResponse
// @Failure 500 {object} model.StatusMessageResponse
// @Router /api/v1/contracts/completed/stats [get]
func (h *ContractHandler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		writeContractError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.CompletedStatsResponse{Status: "success", Data: stats})
}

// Events godoc
// @Summary Queue change stream
// @Description Server-Sent Events. Each "queue" event means the active list changed and should be fetched again.
// @Tags contracts
// @Produce text/event-stream
// @Security BearerAuth
// @Success 200 {object} model.QueueEvent
// @Router /api/v1/contracts/events [get]
func (h *ContractHandler) Events(c *gin.Context) {
	events, cancel := h.events.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	slog.DebugContext(ctx, "queue event stream opened")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case evt, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("queue", evt)
			return true
		case <-ticker.C:
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		}
	})
	slog.DebugContext(ctx, "queue event stream closed")
}

func writeContractError(c *gin.Context, err error) {
	var inputErr *service.InputError
	switch {
	case errors.As(err, &inputErr):
		writeStatusError(c, http.StatusBadRequest, inputErr.Message)
	case errors.Is(err, service.ErrInvalidInput):
		writeStatusError(c, http.StatusBadRequest, "invalid input")
	case errors.Is(err, service.ErrUnauthorized):
		writeStatusError(c, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, service.ErrNotFound):
		writeStatusError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		writeStatusError(c, http.StatusConflict, err.Error())
	default:
		slog.ErrorContext(c.Request.Context(), "contract request failed", "error", err)
		writeStatusError(c, http.StatusInternalServerError, "internal server error")
	}
}

func contractID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeStatusError(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func optionalInt64Query(c *gin.Context, key string) (*int64, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// parseTimeQuery accepts RFC3339 or YYYY-MM-DD. A bare date is a calendar day in loc;
// as an end date it covers the whole day.
func parseTimeQuery(raw string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}
