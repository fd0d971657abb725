package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fieldservice-api/internal/models"
)

const attendanceColumns = `id, employee_id, date, status, day_start_time, day_end_time, total_work_minutes,
standard_minutes, morning_ot_minutes, evening_ot_minutes, created_at, updated_at`

// AttendanceRepository handles persistence for day attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// FindActive returns the employee's open day, whatever its date.
func (r *AttendanceRepository) FindActive(ctx context.Context, employeeID string) (*models.DayAttendance, error) {
	query := `SELECT ` + attendanceColumns + ` FROM day_attendance WHERE employee_id = $1 AND status = 'ACTIVE' LIMIT 1`
	return r.get(ctx, "find active day", query, employeeID)
}

// FindByDate returns the employee's record for date.
func (r *AttendanceRepository) FindByDate(ctx context.Context, employeeID string, date time.Time) (*models.DayAttendance, error) {
	query := `SELECT ` + attendanceColumns + ` FROM day_attendance WHERE employee_id = $1 AND date = $2 LIMIT 1`
	return r.get(ctx, "find day by date", query, employeeID, date.Format("2006-01-02"))
}

func (r *AttendanceRepository) get(ctx context.Context, op, query string, args ...interface{}) (*models.DayAttendance, error) {
	var record models.DayAttendance
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &record, nil
}

// Create inserts an open day. The wrapped *pq.Error is kept so callers can detect
// a duplicate day with database.IsUniqueViolation.
func (r *AttendanceRepository) Create(ctx context.Context, record *models.DayAttendance) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.UpdatedAt = record.CreatedAt
	const query = `INSERT INTO day_attendance (id, employee_id, date, status, day_start_time, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query, record.ID, record.EmployeeID, record.Date.Format("2006-01-02"), record.Status,
		record.DayStartTime, record.CreatedAt, record.UpdatedAt); err != nil {
		return fmt.Errorf("create day attendance: %w", err)
	}
	return nil
}

// Close ends an active day and stores its minutes. Ended rows never match.
func (r *AttendanceRepository) Close(ctx context.Context, record *models.DayAttendance) error {
	const query = `UPDATE day_attendance SET status = 'ENDED', day_end_time = $2, total_work_minutes = $3,
standard_minutes = $4, morning_ot_minutes = $5, evening_ot_minutes = $6, updated_at = $7
WHERE id = $1 AND status = 'ACTIVE'`
	res, err := r.db.ExecContext(ctx, query, record.ID, record.DayEndTime, record.TotalWorkMinutes, record.StandardMinutes,
		record.MorningOtMinutes, record.EveningOtMinutes, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("close day attendance: %w", err)
	}
	if err := requireOneRow(res); err != nil {
		return err
	}
	record.Status = models.AttendanceEnded
	return nil
}

// List returns an employee's records newest first with the total count.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.DayAttendance, int, error) {
	whereClause, args := attendanceWhere(filter)
	page := models.PageRequest{Page: filter.Page, PageSize: filter.PageSize}.Normalize()
	query := fmt.Sprintf(`SELECT %s FROM day_attendance WHERE %s ORDER BY date DESC LIMIT %d OFFSET %d`,
		attendanceColumns, whereClause, page.PageSize, page.Offset())
	var rows []models.DayAttendance
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list day attendance: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM day_attendance WHERE "+whereClause, args...); err != nil {
		return nil, 0, fmt.Errorf("count day attendance: %w", err)
	}
	return rows, total, nil
}

// Range returns every record in [from, to] oldest first.
func (r *AttendanceRepository) Range(ctx context.Context, employeeID string, from, to time.Time) ([]models.DayAttendance, error) {
	whereClause, args := attendanceWhere(models.AttendanceFilter{EmployeeID: employeeID, DateFrom: &from, DateTo: &to})
	query := fmt.Sprintf(`SELECT %s FROM day_attendance WHERE %s ORDER BY date ASC`, attendanceColumns, whereClause)
	var rows []models.DayAttendance
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("range day attendance: %w", err)
	}
	return rows, nil
}

// Totals sums the ended days in [from, to].
func (r *AttendanceRepository) Totals(ctx context.Context, employeeID string, from, to time.Time) (*models.AttendanceTotals, error) {
	whereClause, args := attendanceWhere(models.AttendanceFilter{EmployeeID: employeeID, DateFrom: &from, DateTo: &to})
	query := `SELECT COUNT(*) AS days_worked,
COALESCE(SUM(total_work_minutes), 0) AS total_work_minutes,
COALESCE(SUM(standard_minutes), 0) AS standard_minutes,
COALESCE(SUM(morning_ot_minutes), 0) AS morning_ot_minutes,
COALESCE(SUM(evening_ot_minutes), 0) AS evening_ot_minutes
FROM day_attendance WHERE ` + whereClause + ` AND status = 'ENDED'`
	var totals models.AttendanceTotals
	if err := r.db.GetContext(ctx, &totals, query, args...); err != nil {
		return nil, fmt.Errorf("sum day attendance: %w", err)
	}
	return &totals, nil
}

// Overtime lists the ended days in [from, to] that carry overtime, joined with
// the employee name. An empty employeeID covers every employee.
func (r *AttendanceRepository) Overtime(ctx context.Context, employeeID string, from, to time.Time) ([]models.OvertimeRow, error) {
	where := []string{"d.status = 'ENDED'", "d.date >= $1", "d.date <= $2", "(d.morning_ot_minutes + d.evening_ot_minutes) > 0"}
	args := []interface{}{from.Format("2006-01-02"), to.Format("2006-01-02")}
	if employeeID != "" {
		where = append(where, fmt.Sprintf("d.employee_id = $%d", len(args)+1))
		args = append(args, employeeID)
	}
	query := `SELECT d.employee_id, u.full_name AS employee_name, d.date,
d.morning_ot_minutes, d.evening_ot_minutes,
d.morning_ot_minutes + d.evening_ot_minutes AS total_ot_minutes
FROM day_attendance d JOIN users u ON u.id = d.employee_id
WHERE ` + strings.Join(where, " AND ") + `
ORDER BY d.date ASC, u.full_name ASC`
	var rows []models.OvertimeRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list overtime: %w", err)
	}
	return rows, nil
}

func attendanceWhere(filter models.AttendanceFilter) (string, []interface{}) {
	where := []string{"employee_id = $1"}
	args := []interface{}{filter.EmployeeID}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, filter.DateFrom.Format("2006-01-02"))
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, filter.DateTo.Format("2006-01-02"))
	}
	return strings.Join(where, " AND "), args
}
