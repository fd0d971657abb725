package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fieldservice-api/internal/models"
)

// TicketRepository reads tickets and refreshes their rolled-up status.
type TicketRepository struct {
	db *sqlx.DB
}

// NewTicketRepository constructs the repository.
func NewTicketRepository(db *sqlx.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// FindByID returns a ticket with its generator name.
func (r *TicketRepository) FindByID(ctx context.Context, id string) (*models.Ticket, error) {
	const query = `SELECT t.id, t.ticket_number, t.title, t.type, t.weight, t.generator_id, g.name AS generator_name,
t.scheduled_date, t.scheduled_time, t.status
FROM tickets t LEFT JOIN generators g ON g.id = t.generator_id
WHERE t.id = $1`
	var ticket models.Ticket
	if err := r.db.GetContext(ctx, &ticket, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find ticket: %w", err)
	}
	return &ticket, nil
}

// CardStatuses returns the status of every job card on the ticket.
func (r *TicketRepository) CardStatuses(ctx context.Context, ticketID string) ([]models.JobStatus, error) {
	const query = `SELECT status FROM job_cards WHERE ticket_id = $1`
	var statuses []models.JobStatus
	if err := r.db.SelectContext(ctx, &statuses, query, ticketID); err != nil {
		return nil, fmt.Errorf("list ticket card statuses: %w", err)
	}
	return statuses, nil
}

// UpdateStatus writes status only when it differs from the stored value.
// It reports whether a row changed.
func (r *TicketRepository) UpdateStatus(ctx context.Context, ticketID string, status models.TicketStatus, at time.Time) (bool, error) {
	const query = `UPDATE tickets SET status = $2, updated_at = $3 WHERE id = $1 AND status <> $2`
	res, err := r.db.ExecContext(ctx, query, ticketID, status, at)
	if err != nil {
		return false, fmt.Errorf("update ticket status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check ticket rows: %w", err)
	}
	return affected > 0, nil
}
