package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/contractqueue/backend/internal/model"
	"github.com/contractqueue/backend/internal/service"
	"github.com/gin-gonic/gin"
)

// reportService - service interface
type reportService interface {
	ParseRange(startRaw, endRaw string) (time.Time, time.Time, error)
	Signed(ctx context.Context, start, end time.Time) (*model.SignedReport, error)
	WriteSignedCSV(w io.Writer, report *model.SignedReport) error
	SignedCSVFilename(start, end time.Time) string
}

type ReportHandler struct {
	svc reportService
}

func NewReportHandler(svc reportService) *ReportHandler {
	return &ReportHandler{svc: svc}
}

// Signed godoc
// @Summary Signed contracts report
// @Description Completed contracts grouped by local day (newest first) with per-day and period totals. Defaults to the last 30 days.
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param start query string false "YYYY-MM-DD"
// @Param end query string false "YYYY-MM-DD"
// @Success 200 {object} model.SignedReportResponse
// @Failure 400,500 {object} model.StatusMessageResponse
// @Router /api/v1/reports/signed [get]
func (h *ReportHandler) Signed(c *gin.Context) {
	report, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, model.SignedReportResponse{Status: "success", Data: report})
}

// SignedCSV godoc
// @Summary Signed contracts report as CSV
// @Tags reports
// @Produce text/csv
// @Security BearerAuth
// @Param start query string false "YYYY-MM-DD"
// @Param end query string false "YYYY-MM-DD"
// @Success 200 {string} string "CSV file"
// @Failure 400,500 {object} model.StatusMessageResponse
// @Router /api/v1/reports/signed.csv [get]
func (h *ReportHandler) SignedCSV(c *gin.Context) {
	report, ok := h.load(c)
	if !ok {
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", h.svc.SignedCSVFilename(report.Start, report.End)))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := h.svc.WriteSignedCSV(c.Writer, report); err != nil {
		slog.ErrorContext(c.Request.Context(), "failed to write signed contracts csv", "error", err)
	}
}

func (h *ReportHandler) load(c *gin.Context) (*model.SignedReport, bool) {
	start, end, err := h.svc.ParseRange(c.Query("start"), c.Query("end"))
	if err != nil {
		var inputErr *service.InputError
		if errors.As(err, &inputErr) {
			writeStatusError(c, http.StatusBadRequest, inputErr.Message)
		} else {
			writeStatusError(c, http.StatusBadRequest, "invalid date range")
		}
		return nil, false
	}

	report, err := h.svc.Signed(c.Request.Context(), start, end)
	if err != nil {
		writeContractError(c, err)
		return nil, false
	}
	return report, true
}
