package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldservice-api/internal/middleware"
	"github.com/noah-isme/fieldservice-api/internal/models"
	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
	"github.com/noah-isme/fieldservice-api/pkg/export"
	"github.com/noah-isme/fieldservice-api/pkg/response"
)

type reportService interface {
	EmployeeSummary(ctx context.Context, employeeID string, from, to time.Time) (*models.EmployeeSummary, bool, error)
	Export(ctx context.Context, employeeID string, from, to time.Time, format export.Format) (*models.ExportFile, error)
	Overtime(ctx context.Context, employeeID string, from, to time.Time) (*models.OvertimeReport, error)
	OvertimeExport(ctx context.Context, employeeID string, from, to time.Time, format export.Format) (*models.ExportFile, error)
	MonthlyStats(ctx context.Context, employeeID string, year, month int) (*models.MonthlyStats, error)
	Dashboard(ctx context.Context, employeeID string) (*models.EmployeeDashboard, error)
}

// ReportHandler serves employee summaries, overtime reports and the employee dashboard.
type ReportHandler struct {
	service reportService
}

// NewReportHandler constructs the handler.
func NewReportHandler(svc reportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// Summary godoc
// @Summary Employee summary
// @Description Attendance, overtime and scoring totals for a date range
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param employeeId path string true "Employee ID"
// @Param start_date query string true "YYYY-MM-DD"
// @Param end_date query string true "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/reports/employees/{employeeId}/summary [get]
func (h *ReportHandler) Summary(c *gin.Context) {
	from, to, ok := requiredRange(c)
	if !ok {
		return
	}
	summary, hit, err := h.service.EmployeeSummary(c.Request.Context(), c.Param("employeeId"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export employee attendance
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param employeeId path string true "Employee ID"
// @Param start_date query string true "YYYY-MM-DD"
// @Param end_date query string true "YYYY-MM-DD"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /admin/reports/employees/{employeeId}/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	from, to, ok := requiredRange(c)
	if !ok {
		return
	}
	format := export.Format(strings.ToLower(c.DefaultQuery("format", string(export.FormatCSV))))
	file, err := h.service.Export(c.Request.Context(), c.Param("employeeId"), from, to, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}

// Overtime godoc
// @Summary Overtime report
// @Description Morning, evening and total overtime per employee day
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param start_date query string true "YYYY-MM-DD"
// @Param end_date query string true "YYYY-MM-DD"
// @Param employee_id query string false "Restrict to one employee"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/reports/overtime [get]
func (h *ReportHandler) Overtime(c *gin.Context) {
	from, to, ok := requiredRange(c)
	if !ok {
		return
	}
	report, err := h.service.Overtime(c.Request.Context(), c.Query("employee_id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil, middleware.ExtractMeta(c))
}

// OvertimeExport godoc
// @Summary Export overtime report
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param start_date query string true "YYYY-MM-DD"
// @Param end_date query string true "YYYY-MM-DD"
// @Param employee_id query string false "Restrict to one employee"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /admin/reports/overtime/export [get]
func (h *ReportHandler) OvertimeExport(c *gin.Context) {
	from, to, ok := requiredRange(c)
	if !ok {
		return
	}
	format := export.Format(strings.ToLower(c.DefaultQuery("format", string(export.FormatCSV))))
	file, err := h.service.OvertimeExport(c.Request.Context(), c.Query("employee_id"), from, to, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}

// Dashboard godoc
// @Summary Employee dashboard
// @Description Job card counts, average score and the current month for the caller
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /employee/dashboard/summary [get]
func (h *ReportHandler) Dashboard(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	dashboard, err := h.service.Dashboard(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dashboard, nil, middleware.ExtractMeta(c))
}

// MonthlyStats godoc
// @Summary Employee monthly stats
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Param year query int true "Year"
// @Param month query int true "Month, 1-12"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /employee/dashboard/monthly-stats [get]
func (h *ReportHandler) MonthlyStats(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	year, errYear := strconv.Atoi(c.Query("year"))
	month, errMonth := strconv.Atoi(c.Query("month"))
	if errYear != nil || errMonth != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year and month must be numbers"))
		return
	}
	stats, err := h.service.MonthlyStats(c.Request.Context(), actor.UserID, year, month)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

func requiredRange(c *gin.Context) (time.Time, time.Time, bool) {
	from, to, ok := dateRangeFromQuery(c, "start_date", "end_date")
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	if from == nil || to == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "start_date and end_date are required"))
		return time.Time{}, time.Time{}, false
	}
	return *from, *to, true
}
