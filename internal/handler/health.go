package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/contractqueue/backend/internal/model"
	"github.com/gin-gonic/gin"
)

// Ping - liveness check
// @Summary Ping
// @Tags health
// @Produce json
// @Success 200 {object} model.PingResponse
// @Router /ping [get]
func Ping(c *gin.Context) {
	c.JSON(http.StatusOK, model.PingResponse{Message: "pong"})
}

// Root - service banner
// @Summary Root
// @Tags health
// @Produce json
// @Success 200 {object} model.RootResponse
// @Router / [get]
func Root(c *gin.Context) {
	c.JSON(http.StatusOK, model.RootResponse{
		Status:  "ok",
		Message: "Contract queue API is running",
	})
}

// pinger - store reachability
type pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store pinger
}

func NewHealthHandler(store pinger) *HealthHandler {
	return &HealthHandler{store: store}
}

// Healthz godoc
// @Summary Readiness check
// @Description Pings the contract store.
// @Tags health
// @Produce json
// @Success 200 {object} model.HealthResponse
// @Failure 503 {object} model.HealthResponse
// @Router /healthz [get]
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		slog.WarnContext(ctx, "store ping failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, model.HealthResponse{Status: "unavailable", Store: "down"})
		return
	}
	c.JSON(http.StatusOK, model.HealthResponse{Status: "ok", Store: "up"})
}
