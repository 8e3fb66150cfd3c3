package handler

import (
	"context"
	"net/http"

	"github.com/contractqueue/backend/internal/model"
	"github.com/gin-gonic/gin"
)

// sessionService - service interface
type sessionService interface {
	Heartbeat(ctx context.Context, userID string) (*model.ActiveSession, error)
	End(ctx context.Context, userID string) error
	Active(ctx context.Context) ([]model.ActiveSession, error)
}

type SessionHandler struct {
	svc sessionService
}

func NewSessionHandler(svc sessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// Heartbeat godoc
// @Summary Mark the caller as active
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.ActiveSessionResponse
// @Failure 401,500 {object} model.StatusMessageResponse
// @Router /api/v1/sessions/heartbeat [post]
func (h *SessionHandler) Heartbeat(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		writeStatusError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	session, err := h.svc.Heartbeat(c.Request.Context(), user.LoginID)
	if err != nil {
		writeContractError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.ActiveSessionResponse{Status: "success", Data: session})
}

// End godoc
// @Summary End the caller's session
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.StatusResponse
// @Failure 401,500 {object} model.StatusMessageResponse
// @Router /api/v1/sessions [delete]
func (h *SessionHandler) End(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		writeStatusError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.End(c.Request.Context(), user.LoginID); err != nil {
		writeContractError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.StatusResponse{Status: "success"})
}

// List godoc
// @Summary List active sessions
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.ActiveSessionListResponse
// @Failure 500 {object} model.StatusMessageResponse
// @Router /api/v1/sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.svc.Active(c.Request.Context())
	if err != nil {
		writeContractError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.ActiveSessionListResponse{Status: "success", Data: sessions})
}
