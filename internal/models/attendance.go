package models

import "time"

// AttendanceStatus is the lifecycle state of one employee's working day.
type AttendanceStatus string

const (
	AttendanceNotStarted AttendanceStatus = "NOT_STARTED"
	AttendanceActive     AttendanceStatus = "ACTIVE"
	AttendanceEnded      AttendanceStatus = "ENDED"
)

// DayAttendance is one employee's record for one calendar date.
// StandardMinutes + MorningOtMinutes + EveningOtMinutes == TotalWorkMinutes once ended.
type DayAttendance struct {
	ID               string           `db:"id" json:"id"`
	EmployeeID       string           `db:"employee_id" json:"employee_id"`
	Date             time.Time        `db:"date" json:"date"`
	Status           AttendanceStatus `db:"status" json:"status"`
	DayStartTime     *time.Time       `db:"day_start_time" json:"day_start_time,omitempty"`
	DayEndTime       *time.Time       `db:"day_end_time" json:"day_end_time,omitempty"`
	TotalWorkMinutes int              `db:"total_work_minutes" json:"total_work_minutes"`
	StandardMinutes  int              `db:"standard_minutes" json:"standard_minutes"`
	MorningOtMinutes int              `db:"morning_ot_minutes" json:"morning_ot_minutes"`
	EveningOtMinutes int              `db:"evening_ot_minutes" json:"evening_ot_minutes"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// TotalOtMinutes returns morning plus evening overtime.
func (d *DayAttendance) TotalOtMinutes() int {
	return d.MorningOtMinutes + d.EveningOtMinutes
}

// ElapsedMinutes returns the clocked span, or zero while the day is open.
func (d *DayAttendance) ElapsedMinutes() int {
	if d.DayStartTime == nil || d.DayEndTime == nil {
		return 0
	}
	return int(d.DayEndTime.Sub(*d.DayStartTime) / time.Minute)
}

// TodayStatus is the employee-facing view of the current day.
type TodayStatus struct {
	Date   time.Time        `json:"date"`
	Status AttendanceStatus `json:"status"`
	Record *DayAttendance   `json:"record,omitempty"`
}

// AttendanceFilter scopes attendance history queries.
type AttendanceFilter struct {
	EmployeeID string
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
	PageSize   int
}

// WorkInterval is the active span of one job card used for day aggregation.
type WorkInterval struct {
	JobCardID   string    `db:"id"`
	StartTime   time.Time `db:"start_time"`
	EndTime     time.Time `db:"end_time"`
	WorkMinutes int       `db:"work_minutes"`
}

// OpenJobCard is a scheduled card that still blocks day closure.
type OpenJobCard struct {
	JobCardID    string    `db:"id" json:"job_card_id"`
	TicketNumber string    `db:"ticket_number" json:"ticket_number"`
	Status       JobStatus `db:"status" json:"status"`
}
