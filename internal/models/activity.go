package models

import (
	"encoding/json"
	"time"
)

// ActivityAction names an employee or admin action recorded in the activity log.
type ActivityAction string

const (
	ActivityLogin         ActivityAction = "LOGIN"
	ActivityLogout        ActivityAction = "LOGOUT"
	ActivityDayStart      ActivityAction = "DAY_START"
	ActivityDayEnd        ActivityAction = "DAY_END"
	ActivityStatusUpdate  ActivityAction = "STATUS_UPDATE"
	ActivityJobApproval   ActivityAction = "JOB_APPROVAL"
	ActivityJobRejection  ActivityAction = "JOB_REJECTION"
	ActivityScoreAssigned ActivityAction = "SCORE_ASSIGNED"
	ActivityImageAttached ActivityAction = "IMAGE_ATTACHED"
	ActivityTokenReuse    ActivityAction = "TOKEN_REUSE"
)

// ActivityLog is an append-only audit record.
type ActivityLog struct {
	ID         string          `db:"id" json:"id"`
	UserID     *string         `db:"user_id" json:"user_id,omitempty"`
	Action     ActivityAction  `db:"action" json:"action"`
	Resource   string          `db:"resource" json:"resource"`
	ResourceID *string         `db:"resource_id" json:"resource_id,omitempty"`
	Details    json.RawMessage `db:"details" json:"details,omitempty"`
	IPAddress  string          `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent  string          `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// ActivityFilter scopes activity log listings.
type ActivityFilter struct {
	UserID   string
	Action   *ActivityAction
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}
