package models

import "time"

// EmployeeSummary combines attendance and scoring totals for a date range.
type EmployeeSummary struct {
	EmployeeID           string    `json:"employee_id"`
	EmployeeName         string    `json:"employee_name"`
	StartDate            time.Time `json:"start_date"`
	EndDate              time.Time `json:"end_date"`
	DaysWorked           int       `json:"days_worked"`
	TotalWorkMinutes     int       `json:"total_work_minutes"`
	StandardMinutes      int       `json:"standard_minutes"`
	MorningOtMinutes     int       `json:"morning_ot_minutes"`
	EveningOtMinutes     int       `json:"evening_ot_minutes"`
	TotalOtMinutes       int       `json:"total_ot_minutes"`
	AverageMinutesPerDay float64   `json:"average_minutes_per_day"`
	ScoredJobs           int       `json:"scored_jobs"`
	TotalWeight          int       `json:"total_weight"`
	AverageScore         float64   `json:"average_score"`
	GeneratedAt          time.Time `json:"generated_at"`
}

// AttendanceTotals aggregates ended days in a range.
type AttendanceTotals struct {
	DaysWorked       int `db:"days_worked"`
	TotalWorkMinutes int `db:"total_work_minutes"`
	StandardMinutes  int `db:"standard_minutes"`
	MorningOtMinutes int `db:"morning_ot_minutes"`
	EveningOtMinutes int `db:"evening_ot_minutes"`
}

// ExportFile is a rendered report ready for download.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// OvertimeRow is one employee day in the overtime report.
type OvertimeRow struct {
	EmployeeID       string    `db:"employee_id" json:"employee_id"`
	EmployeeName     string    `db:"employee_name" json:"employee_name"`
	Date             time.Time `db:"date" json:"date"`
	MorningOtMinutes int       `db:"morning_ot_minutes" json:"morning_ot_minutes"`
	EveningOtMinutes int       `db:"evening_ot_minutes" json:"evening_ot_minutes"`
	TotalOtMinutes   int       `db:"total_ot_minutes" json:"total_ot_minutes"`
}

// OvertimeReport lists overtime rows for a range, optionally for one employee.
type OvertimeReport struct {
	EmployeeID       string        `json:"employee_id,omitempty"`
	StartDate        time.Time     `json:"start_date"`
	EndDate          time.Time     `json:"end_date"`
	Rows             []OvertimeRow `json:"rows"`
	MorningOtMinutes int           `json:"morning_ot_minutes"`
	EveningOtMinutes int           `json:"evening_ot_minutes"`
	TotalOtMinutes   int           `json:"total_ot_minutes"`
}

// JobCardCounts counts an employee's cards per lifecycle bucket.
type JobCardCounts struct {
	Pending     int `db:"pending" json:"pending"`
	InProgress  int `db:"in_progress" json:"in_progress"`
	Completed   int `db:"completed" json:"completed"`
	Cancelled   int `db:"cancelled" json:"cancelled"`
	Total       int `db:"total" json:"total"`
	WorkMinutes int `db:"work_minutes" json:"work_minutes"`
}

// MonthlyStats is an employee's activity for one calendar month.
type MonthlyStats struct {
	Year             int           `json:"year"`
	Month            int           `json:"month"`
	StartDate        time.Time     `json:"start_date"`
	EndDate          time.Time     `json:"end_date"`
	DaysWorked       int           `json:"days_worked"`
	TotalWorkMinutes int           `json:"total_work_minutes"`
	MorningOtMinutes int           `json:"morning_ot_minutes"`
	EveningOtMinutes int           `json:"evening_ot_minutes"`
	TotalOtMinutes   int           `json:"total_ot_minutes"`
	JobCards         JobCardCounts `json:"job_cards"`
	ScoredJobs       int           `json:"scored_jobs"`
	AverageScore     float64       `json:"average_score"`
}

// EmployeeDashboard is the employee's landing summary: lifetime card counts
// plus the current month.
type EmployeeDashboard struct {
	EmployeeID   string        `json:"employee_id"`
	JobCards     JobCardCounts `json:"job_cards"`
	AverageScore float64       `json:"average_score"`
	ScoredJobs   int           `json:"scored_jobs"`
	ThisMonth    MonthlyStats  `json:"this_month"`
	GeneratedAt  time.Time     `json:"generated_at"`
}
