package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldservice-api/internal/middleware"
	"github.com/noah-isme/fieldservice-api/internal/models"
	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
	"github.com/noah-isme/fieldservice-api/pkg/export"
)

type reportServiceMock struct {
	summary     *models.EmployeeSummary
	hit         bool
	err         error
	file        *models.ExportFile
	overtime    *models.OvertimeReport
	stats       *models.MonthlyStats
	dashboard   *models.EmployeeDashboard
	from, to    time.Time
	format      export.Format
	employeID   string
	year, month int
}

func (m *reportServiceMock) EmployeeSummary(ctx context.Context, employeeID string, from, to time.Time) (*models.EmployeeSummary, bool, error) {
	m.employeID, m.from, m.to = employeeID, from, to
	return m.summary, m.hit, m.err
}

func (m *reportServiceMock) Export(ctx context.Context, employeeID string, from, to time.Time, format export.Format) (*models.ExportFile, error) {
	m.employeID, m.format = employeeID, format
	return m.file, m.err
}

func (m *reportServiceMock) Overtime(ctx context.Context, employeeID string, from, to time.Time) (*models.OvertimeReport, error) {
	m.employeID, m.from, m.to = employeeID, from, to
	return m.overtime, m.err
}

func (m *reportServiceMock) OvertimeExport(ctx context.Context, employeeID string, from, to time.Time, format export.Format) (*models.ExportFile, error) {
	m.employeID, m.format = employeeID, format
	return m.file, m.err
}

func (m *reportServiceMock) MonthlyStats(ctx context.Context, employeeID string, year, month int) (*models.MonthlyStats, error) {
	m.employeID, m.year, m.month = employeeID, year, month
	return m.stats, m.err
}

func (m *reportServiceMock) Dashboard(ctx context.Context, employeeID string) (*models.EmployeeDashboard, error) {
	m.employeID = employeeID
	return m.dashboard, m.err
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func withClaims(c *gin.Context, userID string, role models.UserRole) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: userID, Role: role})
}

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestReportHandlerSummaryMarksCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{summary: &models.EmployeeSummary{EmployeeID: "emp-1"}, hit: true}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/admin/reports/employees/emp-1/summary?start_date=2024-03-01&end_date=2024-03-07", nil)
	c.Params = gin.Params{{Key: "employeeId", Value: "emp-1"}}
	withClaims(c, "admin-1", models.RoleAdmin)

	handler.Summary(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "emp-1", mockSvc.employeID)
	assert.Equal(t, "2024-03-07", mockSvc.to.Format(dateLayout))
	env := decodeEnvelope(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])
}

func TestReportHandlerSummaryRequiresRange(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportServiceMock{})

	c, w := newGinContext(http.MethodGet, "/admin/reports/employees/emp-1/summary?start_date=2024-03-01", nil)
	handler.Summary(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, w).Error.Code)

	c, w = newGinContext(http.MethodGet, "/admin/reports/employees/emp-1/summary?start_date=01-03-2024&end_date=2024-03-07", nil)
	handler.Summary(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportHandlerExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{file: &models.ExportFile{
		Filename:    "attendance_emp-1_20240301_20240307.pdf",
		ContentType: "application/pdf",
		Payload:     []byte("%PDF-1.3"),
	}}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/admin/reports/employees/emp-1/export?start_date=2024-03-01&end_date=2024-03-07&format=PDF", nil)
	c.Params = gin.Params{{Key: "employeeId", Value: "emp-1"}}

	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.FormatPDF, mockSvc.format)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attendance_emp-1_20240301_20240307.pdf")
	assert.Equal(t, "%PDF-1.3", w.Body.String())
}

func TestReportHandlerExportPropagatesErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportServiceMock{err: appErrors.Clone(appErrors.ErrValidation, "unsupported export format")})

	c, w := newGinContext(http.MethodGet, "/export?start_date=2024-03-01&end_date=2024-03-07&format=xls", nil)
	handler.Export(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportHandlerOvertimeOptionalEmployee(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{overtime: &models.OvertimeReport{TotalOtMinutes: 90, Rows: []models.OvertimeRow{}}}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/admin/reports/overtime?start_date=2024-03-01&end_date=2024-03-31", nil)
	handler.Overtime(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, mockSvc.employeID)
	assert.Equal(t, "2024-03-31", mockSvc.to.Format(dateLayout))
	var report models.OvertimeReport
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &report))
	assert.Equal(t, 90, report.TotalOtMinutes)

	c, w = newGinContext(http.MethodGet, "/admin/reports/overtime?start_date=2024-03-01&end_date=2024-03-31&employee_id=emp-2", nil)
	handler.Overtime(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "emp-2", mockSvc.employeID)

	c, w = newGinContext(http.MethodGet, "/admin/reports/overtime?start_date=2024-03-01", nil)
	handler.Overtime(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportHandlerOvertimeExport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{file: &models.ExportFile{
		Filename:    "overtime_all_20240301_20240331.csv",
		ContentType: "text/csv",
		Payload:     []byte("employee_name,date\n"),
	}}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/admin/reports/overtime/export?start_date=2024-03-01&end_date=2024-03-31", nil)
	handler.OvertimeExport(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.FormatCSV, mockSvc.format)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "overtime_all_20240301_20240331.csv")
}

func TestReportHandlerDashboardUsesCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{dashboard: &models.EmployeeDashboard{EmployeeID: "emp-1", JobCards: models.JobCardCounts{Total: 4}}}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/employee/dashboard/summary", nil)
	handler.Dashboard(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodGet, "/employee/dashboard/summary", nil)
	withClaims(c, "emp-1", models.RoleEmployee)
	handler.Dashboard(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "emp-1", mockSvc.employeID)
	var dashboard models.EmployeeDashboard
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &dashboard))
	assert.Equal(t, 4, dashboard.JobCards.Total)
}

func TestReportHandlerMonthlyStats(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{stats: &models.MonthlyStats{Year: 2024, Month: 2}}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/employee/dashboard/monthly-stats?year=2024&month=2", nil)
	withClaims(c, "emp-1", models.RoleEmployee)
	handler.MonthlyStats(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2024, mockSvc.year)
	assert.Equal(t, 2, mockSvc.month)

	c, w = newGinContext(http.MethodGet, "/employee/dashboard/monthly-stats?year=2024&month=feb", nil)
	withClaims(c, "emp-1", models.RoleEmployee)
	handler.MonthlyStats(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, w).Error.Code)
}
