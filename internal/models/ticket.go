package models

import "time"

// TicketStatus is the rolled-up status shown for a ticket.
type TicketStatus string

const (
	TicketStatusPending   TicketStatus = "PENDING"
	TicketStatusStarted   TicketStatus = "STARTED"
	TicketStatusCompleted TicketStatus = "COMPLETED"
	TicketStatusCancel    TicketStatus = "CANCEL"
)

// Ticket is scheduled work against a generator. Tickets are maintained
// elsewhere; this service only reads them and refreshes their status.
type Ticket struct {
	ID            string       `db:"id" json:"id"`
	Number        string       `db:"ticket_number" json:"ticket_number"`
	Title         string       `db:"title" json:"title"`
	Type          string       `db:"type" json:"type"`
	Weight        int          `db:"weight" json:"weight"`
	GeneratorID   *string      `db:"generator_id" json:"generator_id,omitempty"`
	GeneratorName *string      `db:"generator_name" json:"generator_name,omitempty"`
	ScheduledDate time.Time    `db:"scheduled_date" json:"scheduled_date"`
	ScheduledTime *string      `db:"scheduled_time" json:"scheduled_time,omitempty"`
	Status        TicketStatus `db:"status" json:"status"`
}

// RollUpTicketStatus derives a ticket's status from its job cards.
func RollUpTicketStatus(current TicketStatus, cards []JobStatus) TicketStatus {
	if len(cards) == 0 {
		return current
	}
	allTerminal, anyCompleted := true, false
	for _, status := range cards {
		if status.IsInProgress() {
			return TicketStatusStarted
		}
		if !status.IsTerminal() {
			allTerminal = false
		}
		if status == JobStatusCompleted {
			anyCompleted = true
		}
	}
	switch {
	case allTerminal && anyCompleted:
		return TicketStatusCompleted
	case allTerminal:
		return TicketStatusCancel
	default:
		return current
	}
}
