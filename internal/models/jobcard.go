package models

import "time"

// JobStatus is the lifecycle state of a job card.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusTraveling JobStatus = "TRAVELING"
	JobStatusStarted   JobStatus = "STARTED"
	JobStatusOnHold    JobStatus = "ON_HOLD"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusCancel    JobStatus = "CANCEL"
)

// jobTransitions is the complete set of legal moves. Pairs not listed,
// including self transitions, are rejected.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:   {JobStatusTraveling, JobStatusCancel},
	JobStatusTraveling: {JobStatusStarted, JobStatusCancel},
	JobStatusStarted:   {JobStatusCompleted, JobStatusOnHold, JobStatusCancel},
	JobStatusOnHold:    {JobStatusStarted},
	JobStatusCompleted: {},
	JobStatusCancel:    {},
}

// JobStatuses lists every known status in workflow order.
func JobStatuses() []JobStatus {
	return []JobStatus{JobStatusPending, JobStatusTraveling, JobStatusStarted, JobStatusOnHold, JobStatusCompleted, JobStatusCancel}
}

// Valid returns true when the status is a supported value.
func (s JobStatus) Valid() bool {
	_, ok := jobTransitions[s]
	return ok
}

// AllowedTargets returns the statuses reachable in one step from s.
func (s JobStatus) AllowedTargets() []JobStatus {
	targets := jobTransitions[s]
	out := make([]JobStatus, len(targets))
	copy(out, targets)
	return out
}

// CanTransitionTo reports whether s -> target is a legal edge.
func (s JobStatus) CanTransitionTo(target JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancel
}

// IsInProgress reports whether the employee is currently working on the card.
func (s JobStatus) IsInProgress() bool {
	return s == JobStatusTraveling || s == JobStatusStarted || s == JobStatusOnHold
}

// JobCard is one employee's execution record for a ticket.
type JobCard struct {
	ID            string     `db:"id" json:"id"`
	TicketID      string     `db:"ticket_id" json:"ticket_id"`
	EmployeeID    string     `db:"employee_id" json:"employee_id"`
	Status        JobStatus  `db:"status" json:"status"`
	StartTime     *time.Time `db:"start_time" json:"start_time,omitempty"`
	EndTime       *time.Time `db:"end_time" json:"end_time,omitempty"`
	HoldStartedAt *time.Time `db:"hold_started_at" json:"-"`
	HeldSeconds   int64      `db:"held_seconds" json:"-"`
	WorkMinutes   int        `db:"work_minutes" json:"work_minutes"`
	Approved      bool       `db:"approved" json:"approved"`
	ApprovalNote  *string    `db:"approval_note" json:"approval_note,omitempty"`
	ApprovedBy    *string    `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt    *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	ImageURL      *string    `db:"image_url" json:"image_url,omitempty"`
	Score         *int       `db:"score" json:"score,omitempty"`
	Version       int        `db:"version" json:"version"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Scored reports whether a score has been assigned.
func (c *JobCard) Scored() bool {
	return c.Score != nil
}

// ApplyTransition moves the card to target at now and updates time bookkeeping.
// Legality is checked by the caller.
func (c *JobCard) ApplyTransition(target JobStatus, now time.Time) {
	if c.HoldStartedAt != nil {
		if held := now.Sub(*c.HoldStartedAt); held > 0 {
			c.HeldSeconds += int64(held / time.Second)
		}
		c.HoldStartedAt = nil
	}

	switch target {
	case JobStatusStarted:
		if c.StartTime == nil {
			start := now
			c.StartTime = &start
		}
	case JobStatusOnHold:
		holdStart := now
		c.HoldStartedAt = &holdStart
	}

	c.accrue(now)
	c.Status = target

	if target.IsTerminal() {
		end := now
		c.EndTime = &end
	}
}

// accrue recomputes WorkMinutes as elapsed active time minus held time.
// The value never decreases.
func (c *JobCard) accrue(now time.Time) {
	if c.StartTime == nil || c.Status.IsTerminal() {
		return
	}
	active := now.Sub(*c.StartTime) - time.Duration(c.HeldSeconds)*time.Second
	if c.HoldStartedAt != nil {
		active -= now.Sub(*c.HoldStartedAt)
	}
	if minutes := int(active / time.Minute); minutes > c.WorkMinutes {
		c.WorkMinutes = minutes
	}
}

// JobCardDetail is a job card joined with its ticket and employee.
type JobCardDetail struct {
	JobCard
	TicketNumber  string    `db:"ticket_number" json:"ticket_number"`
	TicketTitle   string    `db:"ticket_title" json:"ticket_title"`
	TicketType    string    `db:"ticket_type" json:"ticket_type"`
	TicketWeight  int       `db:"ticket_weight" json:"ticket_weight"`
	GeneratorName *string   `db:"generator_name" json:"generator_name,omitempty"`
	ScheduledDate time.Time `db:"scheduled_date" json:"scheduled_date"`
	EmployeeName  string    `db:"employee_name" json:"employee_name"`
	EmployeeEmail string    `db:"employee_email" json:"employee_email"`
}

// JobCardFilter scopes job-card listings.
type JobCardFilter struct {
	EmployeeID string
	Status     *JobStatus
	Date       *time.Time
	Page       int
	PageSize   int
}

// Location is a single coordinate reading.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// StatusLogEntry records one transition. Entries are never updated.
type StatusLogEntry struct {
	ID             string     `db:"id" json:"id"`
	JobCardID      string     `db:"job_card_id" json:"job_card_id"`
	ActorID        string     `db:"actor_id" json:"actor_id"`
	PreviousStatus *JobStatus `db:"previous_status" json:"previous_status,omitempty"`
	NewStatus      JobStatus  `db:"new_status" json:"new_status"`
	Latitude       *float64   `db:"latitude" json:"latitude,omitempty"`
	Longitude      *float64   `db:"longitude" json:"longitude,omitempty"`
	LoggedAt       time.Time  `db:"logged_at" json:"logged_at"`
}

// SetLocation attaches coordinates to the entry.
func (e *StatusLogEntry) SetLocation(loc *Location) {
	if loc == nil {
		return
	}
	lat, lng := loc.Latitude, loc.Longitude
	e.Latitude = &lat
	e.Longitude = &lng
}

// ApprovalStats summarises the approval queue.
type ApprovalStats struct {
	Pending        int `db:"pending" json:"pending"`
	Approved       int `db:"approved" json:"approved"`
	Rejected       int `db:"rejected" json:"rejected"`
	TotalCompleted int `db:"total_completed" json:"total_completed"`
}

// TransitionResult is returned after a successful status change.
type TransitionResult struct {
	JobCard          *JobCardDetail  `json:"job_card"`
	Log              *StatusLogEntry `json:"log"`
	LocationCaptured bool            `json:"location_captured"`
}

// BulkApprovalResult reports the outcome for one id of a bulk approval.
type BulkApprovalResult struct {
	JobCardID string `json:"job_card_id"`
	Approved  bool   `json:"approved"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}
