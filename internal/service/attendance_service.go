package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fieldservice-api/internal/models"
	"github.com/noah-isme/fieldservice-api/internal/shift"
	"github.com/noah-isme/fieldservice-api/pkg/database"
	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
	"github.com/noah-isme/fieldservice-api/pkg/lock"
	"github.com/noah-isme/fieldservice-api/pkg/logger"
)

type attendanceRepository interface {
	FindActive(ctx context.Context, employeeID string) (*models.DayAttendance, error)
	FindByDate(ctx context.Context, employeeID string, date time.Time) (*models.DayAttendance, error)
	Create(ctx context.Context, record *models.DayAttendance) error
	Close(ctx context.Context, record *models.DayAttendance) error
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.DayAttendance, int, error)
	Range(ctx context.Context, employeeID string, from, to time.Time) ([]models.DayAttendance, error)
}

type workSource interface {
	WorkIntervals(ctx context.Context, employeeID string, from, to time.Time) ([]models.WorkInterval, error)
	OpenScheduledOn(ctx context.Context, employeeID string, date time.Time) ([]models.OpenJobCard, error)
}

// AttendanceServiceParams groups the dependencies of AttendanceService.
type AttendanceServiceParams struct {
	Repo          attendanceRepository
	Work          workSource
	Window        shift.Window
	Reports       reportInvalidator
	Locker        lock.Locker
	Activity      activityRecorder
	Metrics       *MetricsService
	Logger        *zap.Logger
	BlockOpenJobs bool
}

// AttendanceService tracks each employee's working day and its overtime split.
type AttendanceService struct {
	repo          attendanceRepository
	work          workSource
	window        shift.Window
	reports       reportInvalidator
	lock          recordLock
	activity      activityRecorder
	metrics       *MetricsService
	logger        *zap.Logger
	blockOpenJobs bool
	now           func() time.Time
}

// NewAttendanceService constructs the service.
func NewAttendanceService(params AttendanceServiceParams) *AttendanceService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	activity := params.Activity
	if activity == nil {
		activity = noopRecorder{}
	}
	return &AttendanceService{
		repo:          params.Repo,
		work:          params.Work,
		window:        params.Window,
		reports:       params.Reports,
		lock:          newRecordLock(params.Locker, 0, params.Metrics),
		activity:      activity,
		metrics:       params.Metrics,
		logger:        logger,
		blockOpenJobs: params.BlockOpenJobs,
		now:           time.Now,
	}
}

// StartDay opens today's record for the employee.
func (s *AttendanceService) StartDay(ctx context.Context, employeeID string) (*models.DayAttendance, error) {
	record, err := s.startDay(ctx, employeeID)
	s.metrics.RecordAttendance("start", outcomeOf(err))
	return record, err
}

func (s *AttendanceService) startDay(ctx context.Context, employeeID string) (*models.DayAttendance, error) {
	release, err := s.lock.acquire(ctx, "attendance", lock.AttendanceKey(employeeID))
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.now()
	today := s.window.Date(now)

	active, err := s.repo.FindActive(ctx, employeeID)
	switch {
	case err == nil:
		return nil, dayAlreadyActive(employeeID, active.Date)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active day")
	}

	existing, err := s.repo.FindByDate(ctx, employeeID, today)
	switch {
	case err == nil && existing.Status == models.AttendanceEnded:
		return nil, appErrors.Clone(appErrors.ErrDayAlreadyEnded, "").
			WithDetails(map[string]interface{}{"employee_id": employeeID, "date": today.Format("2006-01-02")})
	case err == nil:
		return nil, dayAlreadyActive(employeeID, existing.Date)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load today's attendance")
	}

	start := now.UTC()
	record := &models.DayAttendance{
		EmployeeID:   employeeID,
		Date:         today,
		Status:       models.AttendanceActive,
		DayStartTime: &start,
		CreatedAt:    start,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		// Another instance without a shared lock may have won the race.
		if database.IsUniqueViolation(err, "") {
			return nil, dayAlreadyActive(employeeID, today)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start day")
	}

	logger.WithContext(ctx, s.logger).Info("day started", zap.String("employee_id", employeeID), zap.Time("at", start))
	s.activity.Record(ctx, employeeID, models.ActivityDayStart, "attendance", record.ID, map[string]interface{}{
		"date": today.Format("2006-01-02"),
	})
	return record, nil
}

// EndDay closes the employee's active day and derives its work and overtime minutes.
func (s *AttendanceService) EndDay(ctx context.Context, employeeID string) (*models.DayAttendance, error) {
	record, err := s.endDay(ctx, employeeID)
	s.metrics.RecordAttendance("end", outcomeOf(err))
	return record, err
}

func (s *AttendanceService) endDay(ctx context.Context, employeeID string) (*models.DayAttendance, error) {
	release, err := s.lock.acquire(ctx, "attendance", lock.AttendanceKey(employeeID))
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := s.repo.FindActive(ctx, employeeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNoActiveDay, "").
				WithDetails(map[string]interface{}{"employee_id": employeeID})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active day")
	}
	if record.DayStartTime == nil {
		return nil, appErrors.Wrap(errors.New("active day without start time"), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "attendance record is inconsistent")
	}

	if s.blockOpenJobs {
		open, err := s.work.OpenScheduledOn(ctx, employeeID, record.Date)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open job cards")
		}
		if len(open) > 0 {
			numbers := make([]string, 0, len(open))
			for _, card := range open {
				numbers = append(numbers, card.TicketNumber)
			}
			return nil, appErrors.Clone(appErrors.ErrDayClosureBlocked, "").
				WithDetails(map[string]interface{}{"employee_id": employeeID, "open_tickets": numbers})
		}
	}

	end := s.now().UTC()
	if end.Before(*record.DayStartTime) {
		end = *record.DayStartTime
	}
	intervals, err := s.work.WorkIntervals(ctx, employeeID, *record.DayStartTime, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job card work")
	}
	split := s.window.Aggregate(intervals, *record.DayStartTime, end)

	record.DayEndTime = &end
	record.TotalWorkMinutes = split.Total
	record.StandardMinutes = split.Standard
	record.MorningOtMinutes = split.MorningOt
	record.EveningOtMinutes = split.EveningOt
	record.UpdatedAt = end
	if err := s.repo.Close(ctx, record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNoActiveDay, "day was closed concurrently").
				WithDetails(map[string]interface{}{"employee_id": employeeID})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end day")
	}

	logger.WithContext(ctx, s.logger).Info("day ended",
		zap.String("employee_id", employeeID),
		zap.Int("job_cards", len(intervals)),
		zap.Int("total_minutes", split.Total),
		zap.Int("morning_ot", split.MorningOt),
		zap.Int("evening_ot", split.EveningOt))
	s.activity.Record(ctx, employeeID, models.ActivityDayEnd, "attendance", record.ID, map[string]interface{}{
		"date":               record.Date.Format("2006-01-02"),
		"total_work_minutes": split.Total,
		"total_ot_minutes":   record.TotalOtMinutes(),
	})
	if s.reports != nil {
		s.reports.InvalidateEmployee(ctx, employeeID)
	}
	return record, nil
}

// Today reports the state of the employee's current day. An active day carried
// over from an earlier date is reported as the current one.
func (s *AttendanceService) Today(ctx context.Context, employeeID string) (*models.TodayStatus, error) {
	today := s.window.Date(s.now())

	active, err := s.repo.FindActive(ctx, employeeID)
	if err == nil {
		return &models.TodayStatus{Date: active.Date, Status: models.AttendanceActive, Record: active}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active day")
	}

	record, err := s.repo.FindByDate(ctx, employeeID, today)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.TodayStatus{Date: today, Status: models.AttendanceNotStarted}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load today's attendance")
	}
	return &models.TodayStatus{Date: today, Status: record.Status, Record: record}, nil
}

// History returns the employee's records newest first.
func (s *AttendanceService) History(ctx context.Context, filter models.AttendanceFilter) ([]models.DayAttendance, *models.Pagination, error) {
	if filter.EmployeeID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "employee is required")
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "end date must not be before start date")
	}
	page := models.PageRequest{Page: filter.Page, PageSize: filter.PageSize}.Normalize()
	filter.Page, filter.PageSize = page.Page, page.PageSize

	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, &models.Pagination{Page: page.Page, PageSize: page.PageSize, TotalCount: total}, nil
}

// Range returns every record of the employee between from and to inclusive.
func (s *AttendanceService) Range(ctx context.Context, employeeID string, from, to time.Time) ([]models.DayAttendance, error) {
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must not be before start date")
	}
	records, err := s.repo.Range(ctx, employeeID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance range")
	}
	return records, nil
}

func dayAlreadyActive(employeeID string, date time.Time) error {
	return appErrors.Clone(appErrors.ErrDayAlreadyActive, "").
		WithDetails(map[string]interface{}{"employee_id": employeeID, "date": date.Format("2006-01-02")})
}
