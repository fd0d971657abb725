package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fieldservice-api/internal/models"
	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
	"github.com/noah-isme/fieldservice-api/pkg/export"
)

const maxReportRangeDays = 366

type attendanceReportSource interface {
	Totals(ctx context.Context, employeeID string, from, to time.Time) (*models.AttendanceTotals, error)
	Range(ctx context.Context, employeeID string, from, to time.Time) ([]models.DayAttendance, error)
	Overtime(ctx context.Context, employeeID string, from, to time.Time) ([]models.OvertimeRow, error)
}

type jobCardCounter interface {
	Counts(ctx context.Context, employeeID string, from, to *time.Time) (*models.JobCardCounts, error)
}

type scoreTotalsSource interface {
	Totals(ctx context.Context, filter models.ScoreFilter) (*models.ScoreTotals, error)
}

type employeeLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ReportServiceParams groups the dependencies of ReportService.
type ReportServiceParams struct {
	Attendance attendanceReportSource
	Scores     scoreTotalsSource
	Employees  employeeLookup
	JobCards   jobCardCounter
	Cache      *CacheService
	Logger     *zap.Logger
	Location   *time.Location
}

// ReportService aggregates attendance and scores per employee. It never writes.
type ReportService struct {
	attendance attendanceReportSource
	scores     scoreTotalsSource
	employees  employeeLookup
	jobCards   jobCardCounter
	cache      *CacheService
	logger     *zap.Logger
	loc        *time.Location
	now        func() time.Time
}

// NewReportService constructs the report service.
func NewReportService(params ReportServiceParams) *ReportService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &ReportService{
		attendance: params.Attendance,
		scores:     params.Scores,
		employees:  params.Employees,
		jobCards:   params.JobCards,
		cache:      params.Cache,
		logger:     logger,
		loc:        loc,
		now:        time.Now,
	}
}

// EmployeeSummary returns the employee's totals for [from, to]. The second
// return value reports whether the summary was served from cache.
func (s *ReportService) EmployeeSummary(ctx context.Context, employeeID string, from, to time.Time) (*models.EmployeeSummary, bool, error) {
	from, to, err := s.normaliseRange(from, to)
	if err != nil {
		return nil, false, err
	}

	var summary models.EmployeeSummary
	hit, err := s.cache.Remember(ctx, summaryKey(employeeID, from, to), &summary, func(ctx context.Context) error {
		built, err := s.buildSummary(ctx, employeeID, from, to)
		if err != nil {
			return err
		}
		summary = *built
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &summary, hit, nil
}

func (s *ReportService) buildSummary(ctx context.Context, employeeID string, from, to time.Time) (*models.EmployeeSummary, error) {
	employee, err := s.employees.FindByID(ctx, employeeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "employee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee")
	}

	days, err := s.attendance.Totals(ctx, employeeID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum attendance")
	}
	scores, err := s.scores.Totals(ctx, models.ScoreFilter{EmployeeID: employeeID, DateFrom: &from, DateTo: &to})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum scores")
	}

	summary := &models.EmployeeSummary{
		EmployeeID:       employeeID,
		EmployeeName:     employee.FullName,
		StartDate:        from,
		EndDate:          to,
		DaysWorked:       days.DaysWorked,
		TotalWorkMinutes: days.TotalWorkMinutes,
		StandardMinutes:  days.StandardMinutes,
		MorningOtMinutes: days.MorningOtMinutes,
		EveningOtMinutes: days.EveningOtMinutes,
		TotalOtMinutes:   days.MorningOtMinutes + days.EveningOtMinutes,
		ScoredJobs:       scores.ScoredJobs,
		TotalWeight:      scores.TotalWeight,
		GeneratedAt:      s.now().UTC(),
	}
	if days.DaysWorked > 0 {
		summary.AverageMinutesPerDay = round2(float64(days.TotalWorkMinutes) / float64(days.DaysWorked))
	}
	if scores.ScoredJobs > 0 {
		summary.AverageScore = round2(float64(scores.TotalWeight) / float64(scores.ScoredJobs))
	}
	return summary, nil
}

// Export renders the employee's daily attendance rows with a closing totals row.
func (s *ReportService) Export(ctx context.Context, employeeID string, from, to time.Time, format export.Format) (*models.ExportFile, error) {
	if format != export.FormatCSV && format != export.FormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	summary, _, err := s.EmployeeSummary(ctx, employeeID, from, to)
	if err != nil {
		return nil, err
	}
	records, err := s.attendance.Range(ctx, employeeID, summary.StartDate, summary.EndDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}

	dataset := export.Dataset{
		Title:   fmt.Sprintf("Attendance %s (%s to %s)", summary.EmployeeName, summary.StartDate.Format("2006-01-02"), summary.EndDate.Format("2006-01-02")),
		Headers: []string{"date", "status", "day_start", "day_end", "work_minutes", "standard_minutes", "morning_ot_minutes", "evening_ot_minutes"},
	}
	for i := range records {
		record := &records[i]
		dataset.Rows = append(dataset.Rows, map[string]string{
			"date":               record.Date.Format("2006-01-02"),
			"status":             string(record.Status),
			"day_start":          s.clock(record.DayStartTime),
			"day_end":            s.clock(record.DayEndTime),
			"work_minutes":       strconv.Itoa(record.TotalWorkMinutes),
			"standard_minutes":   strconv.Itoa(record.StandardMinutes),
			"morning_ot_minutes": strconv.Itoa(record.MorningOtMinutes),
			"evening_ot_minutes": strconv.Itoa(record.EveningOtMinutes),
		})
	}
	dataset.Rows = append(dataset.Rows, map[string]string{
		"date":               "TOTAL",
		"status":             fmt.Sprintf("%d days", summary.DaysWorked),
		"work_minutes":       strconv.Itoa(summary.TotalWorkMinutes),
		"standard_minutes":   strconv.Itoa(summary.StandardMinutes),
		"morning_ot_minutes": strconv.Itoa(summary.MorningOtMinutes),
		"evening_ot_minutes": strconv.Itoa(summary.EveningOtMinutes),
	})

	payload, err := export.Render(format, dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	s.logger.Info("report exported",
		zap.String("employee_id", employeeID),
		zap.String("format", string(format)),
		zap.Int("rows", len(records)))
	return &models.ExportFile{
		Filename:    fmt.Sprintf("attendance_%s_%s_%s.%s", employeeID, summary.StartDate.Format("20060102"), summary.EndDate.Format("20060102"), format),
		ContentType: format.ContentType(),
		Payload:     payload,
	}, nil
}

// Overtime lists the overtime days in [from, to]. An empty employeeID covers
// every employee.
func (s *ReportService) Overtime(ctx context.Context, employeeID string, from, to time.Time) (*models.OvertimeReport, error) {
	from, to, err := s.normaliseRange(from, to)
	if err != nil {
		return nil, err
	}
	if employeeID != "" {
		if _, err := s.employees.FindByID(ctx, employeeID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "employee not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee")
		}
	}

	rows, err := s.attendance.Overtime(ctx, employeeID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load overtime")
	}
	report := &models.OvertimeReport{EmployeeID: employeeID, StartDate: from, EndDate: to, Rows: rows}
	if report.Rows == nil {
		report.Rows = []models.OvertimeRow{}
	}
	for _, row := range report.Rows {
		report.MorningOtMinutes += row.MorningOtMinutes
		report.EveningOtMinutes += row.EveningOtMinutes
	}
	report.TotalOtMinutes = report.MorningOtMinutes + report.EveningOtMinutes
	return report, nil
}

// OvertimeExport renders the overtime report with a closing totals row.
func (s *ReportService) OvertimeExport(ctx context.Context, employeeID string, from, to time.Time, format export.Format) (*models.ExportFile, error) {
	if format != export.FormatCSV && format != export.FormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	report, err := s.Overtime(ctx, employeeID, from, to)
	if err != nil {
		return nil, err
	}

	scope := employeeID
	if scope == "" {
		scope = "all"
	}
	dataset := export.Dataset{
		Title:   fmt.Sprintf("Overtime %s (%s to %s)", scope, report.StartDate.Format("2006-01-02"), report.EndDate.Format("2006-01-02")),
		Headers: []string{"employee_name", "date", "morning_ot_minutes", "evening_ot_minutes", "total_ot_minutes"},
	}
	for _, row := range report.Rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"employee_name":      row.EmployeeName,
			"date":               row.Date.Format("2006-01-02"),
			"morning_ot_minutes": strconv.Itoa(row.MorningOtMinutes),
			"evening_ot_minutes": strconv.Itoa(row.EveningOtMinutes),
			"total_ot_minutes":   strconv.Itoa(row.TotalOtMinutes),
		})
	}
	dataset.Rows = append(dataset.Rows, map[string]string{
		"employee_name":      "TOTAL",
		"morning_ot_minutes": strconv.Itoa(report.MorningOtMinutes),
		"evening_ot_minutes": strconv.Itoa(report.EveningOtMinutes),
		"total_ot_minutes":   strconv.Itoa(report.TotalOtMinutes),
	})

	payload, err := export.Render(format, dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	s.logger.Info("overtime exported",
		zap.String("scope", scope),
		zap.String("format", string(format)),
		zap.Int("rows", len(report.Rows)))
	return &models.ExportFile{
		Filename:    fmt.Sprintf("overtime_%s_%s_%s.%s", scope, report.StartDate.Format("20060102"), report.EndDate.Format("20060102"), format),
		ContentType: format.ContentType(),
		Payload:     payload,
	}, nil
}

// MonthlyStats returns the employee's attendance, job cards and scores for one
// calendar month in the shift location.
func (s *ReportService) MonthlyStats(ctx context.Context, employeeID string, year, month int) (*models.MonthlyStats, error) {
	if month < 1 || month > 12 || year < 2000 || year > 9999 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "year and month are invalid").
			WithDetails(map[string]interface{}{"year": year, "month": month})
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, s.loc)
	next := from.AddDate(0, 1, 0)
	to := next.AddDate(0, 0, -1)

	days, err := s.attendance.Totals(ctx, employeeID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum attendance")
	}
	cards, err := s.jobCards.Counts(ctx, employeeID, &from, &next)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count job cards")
	}
	scores, err := s.scores.Totals(ctx, models.ScoreFilter{EmployeeID: employeeID, DateFrom: &from, DateTo: &to})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum scores")
	}

	stats := &models.MonthlyStats{
		Year:             year,
		Month:            month,
		StartDate:        from,
		EndDate:          to,
		DaysWorked:       days.DaysWorked,
		TotalWorkMinutes: days.TotalWorkMinutes,
		MorningOtMinutes: days.MorningOtMinutes,
		EveningOtMinutes: days.EveningOtMinutes,
		TotalOtMinutes:   days.MorningOtMinutes + days.EveningOtMinutes,
		JobCards:         *cards,
		ScoredJobs:       scores.ScoredJobs,
	}
	if scores.ScoredJobs > 0 {
		stats.AverageScore = round2(float64(scores.TotalWeight) / float64(scores.ScoredJobs))
	}
	return stats, nil
}

// Dashboard returns the employee's lifetime card counts and score next to the
// current month's stats.
func (s *ReportService) Dashboard(ctx context.Context, employeeID string) (*models.EmployeeDashboard, error) {
	now := s.now().In(s.loc)
	month, err := s.MonthlyStats(ctx, employeeID, now.Year(), int(now.Month()))
	if err != nil {
		return nil, err
	}
	cards, err := s.jobCards.Counts(ctx, employeeID, nil, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count job cards")
	}
	scores, err := s.scores.Totals(ctx, models.ScoreFilter{EmployeeID: employeeID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum scores")
	}

	dashboard := &models.EmployeeDashboard{
		EmployeeID:  employeeID,
		JobCards:    *cards,
		ScoredJobs:  scores.ScoredJobs,
		ThisMonth:   *month,
		GeneratedAt: now.UTC(),
	}
	if scores.ScoredJobs > 0 {
		dashboard.AverageScore = round2(float64(scores.TotalWeight) / float64(scores.ScoredJobs))
	}
	return dashboard, nil
}

// InvalidateEmployee drops every cached summary of the employee.
func (s *ReportService) InvalidateEmployee(ctx context.Context, employeeID string) {
	s.cache.Invalidate(ctx, "report:"+employeeID+":*")
}

func (s *ReportService) normaliseRange(from, to time.Time) (time.Time, time.Time, error) {
	if from.IsZero() || to.IsZero() {
		return from, to, appErrors.Clone(appErrors.ErrValidation, "start_date and end_date are required")
	}
	from, to = dateOf(from, s.loc), dateOf(to, s.loc)
	if to.Before(from) {
		return from, to, appErrors.Clone(appErrors.ErrValidation, "end date must not be before start date")
	}
	if to.Sub(from) > maxReportRangeDays*24*time.Hour {
		return from, to, appErrors.Clone(appErrors.ErrValidation, "date range is too large").
			WithDetails(map[string]interface{}{"max_days": maxReportRangeDays})
	}
	return from, to, nil
}

func (s *ReportService) clock(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(s.loc).Format("15:04")
}

func summaryKey(employeeID string, from, to time.Time) string {
	return fmt.Sprintf("report:%s:%s:%s", employeeID, from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// dateOf keeps the calendar date as given and pins it to midnight in loc.
// Query dates arrive as UTC midnights, so converting first would shift them
// a day back west of UTC.
func dateOf(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
