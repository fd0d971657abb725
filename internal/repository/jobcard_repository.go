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
	"github.com/noah-isme/fieldservice-api/pkg/database"
)

const jobCardDetailSelect = `SELECT jc.id, jc.ticket_id, jc.employee_id, jc.status, jc.start_time, jc.end_time,
jc.hold_started_at, jc.held_seconds, jc.work_minutes, jc.approved, jc.approval_note, jc.approved_by,
jc.approved_at, jc.image_url, jc.score, jc.version, jc.created_at, jc.updated_at,
t.ticket_number, t.title AS ticket_title, t.type AS ticket_type, t.weight AS ticket_weight,
g.name AS generator_name, t.scheduled_date, u.full_name AS employee_name, u.email AS employee_email
FROM job_cards jc
JOIN tickets t ON t.id = jc.ticket_id
JOIN users u ON u.id = jc.employee_id
LEFT JOIN generators g ON g.id = t.generator_id`

// JobCardRepository persists job cards and their status log.
type JobCardRepository struct {
	db *sqlx.DB
}

// NewJobCardRepository constructs the repository.
func NewJobCardRepository(db *sqlx.DB) *JobCardRepository {
	return &JobCardRepository{db: db}
}

// FindByID returns a job card joined with its ticket and employee.
func (r *JobCardRepository) FindByID(ctx context.Context, id string) (*models.JobCardDetail, error) {
	query := jobCardDetailSelect + ` WHERE jc.id = $1`
	var card models.JobCardDetail
	if err := r.db.GetContext(ctx, &card, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find job card: %w", err)
	}
	return &card, nil
}

// ListByEmployee returns an employee's cards ordered by schedule, newest first.
func (r *JobCardRepository) ListByEmployee(ctx context.Context, filter models.JobCardFilter) ([]models.JobCardDetail, int, error) {
	where := []string{"jc.employee_id = $1"}
	args := []interface{}{filter.EmployeeID}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("jc.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Date != nil {
		where = append(where, fmt.Sprintf("t.scheduled_date = $%d", len(args)+1))
		args = append(args, filter.Date.Format("2006-01-02"))
	}
	return r.list(ctx, strings.Join(where, " AND "), args, "t.scheduled_date DESC, jc.created_at DESC", filter.Page, filter.PageSize)
}

// ListPendingApproval returns completed cards that are not approved, most recently finished first.
// Rejected cards stay in the queue since they may be approved later.
func (r *JobCardRepository) ListPendingApproval(ctx context.Context, page models.PageRequest) ([]models.JobCardDetail, int, error) {
	return r.list(ctx, "jc.status = 'COMPLETED' AND NOT jc.approved", nil, "jc.end_time DESC", page.Page, page.PageSize)
}

func (r *JobCardRepository) list(ctx context.Context, whereClause string, args []interface{}, order string, pageNum, size int) ([]models.JobCardDetail, int, error) {
	page := models.PageRequest{Page: pageNum, PageSize: size}.Normalize()
	query := fmt.Sprintf(`%s WHERE %s ORDER BY %s LIMIT %d OFFSET %d`, jobCardDetailSelect, whereClause, order, page.PageSize, page.Offset())
	var rows []models.JobCardDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list job cards: %w", err)
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM job_cards jc JOIN tickets t ON t.id = jc.ticket_id WHERE %s`, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count job cards: %w", err)
	}
	return rows, total, nil
}

// UpdateAfterTransition stores the card's new state and appends the log entry in
// one transaction. The update is guarded by the version the card was read at;
// sql.ErrNoRows means another writer got there first.
func (r *JobCardRepository) UpdateAfterTransition(ctx context.Context, card *models.JobCard, entry *models.StatusLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const update = `UPDATE job_cards SET status = $2, start_time = $3, end_time = $4, hold_started_at = $5,
held_seconds = $6, work_minutes = $7, version = version + 1, updated_at = $8
WHERE id = $1 AND version = $9`
		res, err := tx.ExecContext(ctx, update, card.ID, card.Status, card.StartTime, card.EndTime, card.HoldStartedAt,
			card.HeldSeconds, card.WorkMinutes, card.UpdatedAt, card.Version)
		if err != nil {
			return fmt.Errorf("update job card status: %w", err)
		}
		if err := requireOneRow(res); err != nil {
			return err
		}

		const insert = `INSERT INTO job_status_logs (id, job_card_id, actor_id, previous_status, new_status, latitude, longitude, logged_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		if _, err := tx.ExecContext(ctx, insert, entry.ID, entry.JobCardID, entry.ActorID, entry.PreviousStatus,
			entry.NewStatus, entry.Latitude, entry.Longitude, entry.LoggedAt); err != nil {
			return fmt.Errorf("insert status log: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	card.Version++
	return nil
}

// ListLogs returns the card's status log in chronological order.
func (r *JobCardRepository) ListLogs(ctx context.Context, jobCardID string) ([]models.StatusLogEntry, error) {
	const query = `SELECT id, job_card_id, actor_id, previous_status, new_status, latitude, longitude, logged_at
FROM job_status_logs WHERE job_card_id = $1 ORDER BY logged_at ASC, id ASC`
	var entries []models.StatusLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, jobCardID); err != nil {
		return nil, fmt.Errorf("list status logs: %w", err)
	}
	return entries, nil
}

// UpdateApproval stores an approval decision. Only completed cards at the
// expected version are touched.
func (r *JobCardRepository) UpdateApproval(ctx context.Context, card *models.JobCard) error {
	const query = `UPDATE job_cards SET approved = $2, approval_note = $3, approved_by = $4, approved_at = $5,
version = version + 1, updated_at = $6
WHERE id = $1 AND version = $7 AND status = 'COMPLETED'`
	res, err := r.db.ExecContext(ctx, query, card.ID, card.Approved, card.ApprovalNote, card.ApprovedBy, card.ApprovedAt,
		card.UpdatedAt, card.Version)
	if err != nil {
		return fmt.Errorf("update job card approval: %w", err)
	}
	if err := requireOneRow(res); err != nil {
		return err
	}
	card.Version++
	return nil
}

// UpdateImage sets the evidence URL.
func (r *JobCardRepository) UpdateImage(ctx context.Context, id, url string, at time.Time) error {
	const query = `UPDATE job_cards SET image_url = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, url, at)
	if err != nil {
		return fmt.Errorf("update job card image: %w", err)
	}
	return requireOneRow(res)
}

// ApprovalStats counts completed cards by approval outcome. Pending matches
// ListPendingApproval, so rejected cards are counted in both pending and rejected.
func (r *JobCardRepository) ApprovalStats(ctx context.Context) (*models.ApprovalStats, error) {
	const query = `SELECT
COUNT(*) FILTER (WHERE NOT approved) AS pending,
COUNT(*) FILTER (WHERE approved) AS approved,
COUNT(*) FILTER (WHERE NOT approved AND approval_note IS NOT NULL) AS rejected,
COUNT(*) AS total_completed
FROM job_cards WHERE status = 'COMPLETED'`
	var stats models.ApprovalStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("approval stats: %w", err)
	}
	return &stats, nil
}

// Counts buckets an employee's cards by status. When from and to are set only
// cards created in [from, to) are counted.
func (r *JobCardRepository) Counts(ctx context.Context, employeeID string, from, to *time.Time) (*models.JobCardCounts, error) {
	where := []string{"employee_id = $1"}
	args := []interface{}{employeeID}
	if from != nil && to != nil {
		where = append(where, "created_at >= $2", "created_at < $3")
		args = append(args, *from, *to)
	}
	query := `SELECT
COUNT(*) FILTER (WHERE status = 'PENDING') AS pending,
COUNT(*) FILTER (WHERE status IN ('TRAVELING', 'STARTED', 'ON_HOLD')) AS in_progress,
COUNT(*) FILTER (WHERE status = 'COMPLETED') AS completed,
COUNT(*) FILTER (WHERE status = 'CANCEL') AS cancelled,
COUNT(*) AS total,
COALESCE(SUM(work_minutes), 0) AS work_minutes
FROM job_cards WHERE ` + strings.Join(where, " AND ")
	var counts models.JobCardCounts
	if err := r.db.GetContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("count job cards: %w", err)
	}
	return &counts, nil
}

// WorkIntervals returns the finished cards of an employee whose active span lies
// entirely inside [from, to].
func (r *JobCardRepository) WorkIntervals(ctx context.Context, employeeID string, from, to time.Time) ([]models.WorkInterval, error) {
	const query = `SELECT id, start_time, end_time, work_minutes FROM job_cards
WHERE employee_id = $1 AND status IN ('COMPLETED', 'CANCEL')
AND start_time IS NOT NULL AND end_time IS NOT NULL
AND start_time >= $2 AND end_time <= $3
ORDER BY start_time ASC`
	var intervals []models.WorkInterval
	if err := r.db.SelectContext(ctx, &intervals, query, employeeID, from, to); err != nil {
		return nil, fmt.Errorf("list work intervals: %w", err)
	}
	return intervals, nil
}

// CountInProgress counts an employee's cards in TRAVELING, STARTED or ON_HOLD,
// ignoring excludeID.
func (r *JobCardRepository) CountInProgress(ctx context.Context, employeeID, excludeID string) (int, error) {
	const query = `SELECT COUNT(*) FROM job_cards
WHERE employee_id = $1 AND id <> $2 AND status IN ('TRAVELING', 'STARTED', 'ON_HOLD')`
	var count int
	if err := r.db.GetContext(ctx, &count, query, employeeID, excludeID); err != nil {
		return 0, fmt.Errorf("count in-progress job cards: %w", err)
	}
	return count, nil
}

// OpenScheduledOn lists an employee's non-terminal cards whose ticket is scheduled on date.
func (r *JobCardRepository) OpenScheduledOn(ctx context.Context, employeeID string, date time.Time) ([]models.OpenJobCard, error) {
	const query = `SELECT jc.id, t.ticket_number, jc.status FROM job_cards jc
JOIN tickets t ON t.id = jc.ticket_id
WHERE jc.employee_id = $1 AND t.scheduled_date = $2 AND jc.status NOT IN ('COMPLETED', 'CANCEL')
ORDER BY t.ticket_number`
	var cards []models.OpenJobCard
	if err := r.db.SelectContext(ctx, &cards, query, employeeID, date.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("list open scheduled job cards: %w", err)
	}
	return cards, nil
}

// ListScorable returns ids of approved, completed cards without a score.
func (r *JobCardRepository) ListScorable(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}
	const query = `SELECT id FROM job_cards WHERE status = 'COMPLETED' AND approved AND score IS NULL
ORDER BY end_time ASC LIMIT $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, limit); err != nil {
		return nil, fmt.Errorf("list scorable job cards: %w", err)
	}
	return ids, nil
}

func requireOneRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
