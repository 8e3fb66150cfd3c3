package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/contractqueue/backend/internal/model"
	"github.com/gin-gonic/gin"
)

// settingsService - service interface
type settingsService interface {
	Current(ctx context.Context) (model.PipedriveSettings, error)
	Update(ctx context.Context, req model.PipedriveSettingsRequest, updatedBy string) (model.PipedriveSettings, error)
}

// simulator - synthetic webhook runner
type simulator interface {
	Simulate(ctx context.Context, user string) (model.WebhookResponse, error)
}

type SettingsHandler struct {
	svc       settingsService
	simulator simulator
}

func NewSettingsHandler(svc settingsService, simulator simulator) *SettingsHandler {
	return &SettingsHandler{svc: svc, simulator: simulator}
}

// GetPipedrive godoc
// @Summary Get Pipedrive settings
// @Tags settings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.PipedriveSettingsResponse
// @Failure 500 {object} model.StatusMessageResponse
// @Router /api/v1/settings/pipedrive [get]
func (h *SettingsHandler) GetPipedrive(c *gin.Context) {
	settings, err := h.svc.Current(c.Request.Context())
	if err != nil {
		writeContractError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.PipedriveSettingsResponse{Status: "success", Data: settings})
}

// UpdatePipedrive godoc
// @Summary Update Pipedrive settings
// @Tags settings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.PipedriveSettingsRequest true "Pipeline filter and notification target"
// @Success 200 {object} model.PipedriveSettingsResponse
// @Failure 400,500 {object} model.StatusMessageResponse
// @Router /api/v1/settings/pipedrive [put]
func (h *SettingsHandler) UpdatePipedrive(c *gin.Context) {
	var req model.PipedriveSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeStatusError(c, http.StatusBadRequest, "invalid request")
		return
	}

	updatedBy := ""
	if user := GetAuthUser(c); user != nil {
		updatedBy = user.Actor()
	}

	settings, err := h.svc.Update(c.Request.Context(), req, updatedBy)
	if err != nil {
		writeContractError(c, err)
		return
	}
	slog.InfoContext(c.Request.Context(), "pipedrive settings updated",
		"pipeline_id", settings.PipelineID,
		"stage_id", settings.StageID,
	)
	c.JSON(http.StatusOK, model.PipedriveSettingsResponse{Status: "success", Data: settings})
}

// Simulate godoc
// @Summary Simulate a Pipedrive webhook
// @Description Sends a synthetic deal for the configured pipeline and stage through the webhook path.
// @Tags settings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.WebhookResponse
// @Failure 500 {object} model.StatusMessageResponse
// @Router /api/v1/settings/pipedrive/simulate [post]
func (h *SettingsHandler) Simulate(c *gin.Context) {
	user := ""
	if u := GetAuthUser(c); u != nil {
		user = u.Actor()
	}

	resp, err := h.simulator.Simulate(c.Request.Context(), user)
	if err != nil {
		writeContractError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
