package models

import "time"

// EmployeeScore is the single weighted score of an approved job card.
type EmployeeScore struct {
	ID         string    `db:"id" json:"id"`
	JobCardID  string    `db:"job_card_id" json:"job_card_id"`
	EmployeeID string    `db:"employee_id" json:"employee_id"`
	TicketID   string    `db:"ticket_id" json:"ticket_id"`
	Weight     int       `db:"weight" json:"weight"`
	WorkDate   time.Time `db:"work_date" json:"work_date"`
	AssignedBy *string   `db:"assigned_by" json:"assigned_by,omitempty"`
	AssignedAt time.Time `db:"assigned_at" json:"assigned_at"`
}

// ScoreFilter scopes score listings.
type ScoreFilter struct {
	EmployeeID string
	DateFrom   *time.Time
	DateTo     *time.Time
}

// ScoreTotals aggregates scores for a period.
type ScoreTotals struct {
	ScoredJobs  int `db:"scored_jobs" json:"scored_jobs"`
	TotalWeight int `db:"total_weight" json:"total_weight"`
}
