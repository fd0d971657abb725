package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fieldservice-api/internal/models"
	"github.com/noah-isme/fieldservice-api/pkg/database"
)

// ScoreRepository persists employee scores.
type ScoreRepository struct {
	db *sqlx.DB
}

// NewScoreRepository constructs the repository.
func NewScoreRepository(db *sqlx.DB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

// Assign writes the score onto the job card and inserts the score row in one
// transaction. The card update only matches an approved, unscored card, so
// sql.ErrNoRows means the card is no longer eligible.
func (r *ScoreRepository) Assign(ctx context.Context, score *models.EmployeeScore) error {
	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const update = `UPDATE job_cards SET score = $2, version = version + 1, updated_at = $3
WHERE id = $1 AND approved AND score IS NULL`
		res, err := tx.ExecContext(ctx, update, score.JobCardID, score.Weight, score.AssignedAt)
		if err != nil {
			return fmt.Errorf("set job card score: %w", err)
		}
		if err := requireOneRow(res); err != nil {
			return err
		}

		const insert = `INSERT INTO employee_scores (id, job_card_id, employee_id, ticket_id, weight, work_date, assigned_by, assigned_at)
VALUES (:id, :job_card_id, :employee_id, :ticket_id, :weight, :work_date, :assigned_by, :assigned_at)`
		if _, err := tx.NamedExecContext(ctx, insert, score); err != nil {
			return fmt.Errorf("insert employee score: %w", err)
		}
		return nil
	})
}

// ListByEmployee returns an employee's scores ordered by work date.
func (r *ScoreRepository) ListByEmployee(ctx context.Context, filter models.ScoreFilter) ([]models.EmployeeScore, error) {
	whereClause, args := scoreWhere(filter)
	query := `SELECT id, job_card_id, employee_id, ticket_id, weight, work_date, assigned_by, assigned_at
FROM employee_scores WHERE ` + whereClause + ` ORDER BY work_date ASC, assigned_at ASC`
	var scores []models.EmployeeScore
	if err := r.db.SelectContext(ctx, &scores, query, args...); err != nil {
		return nil, fmt.Errorf("list employee scores: %w", err)
	}
	return scores, nil
}

// Totals sums an employee's scores over the filter range.
func (r *ScoreRepository) Totals(ctx context.Context, filter models.ScoreFilter) (*models.ScoreTotals, error) {
	whereClause, args := scoreWhere(filter)
	query := `SELECT COUNT(*) AS scored_jobs, COALESCE(SUM(weight), 0) AS total_weight
FROM employee_scores WHERE ` + whereClause
	var totals models.ScoreTotals
	if err := r.db.GetContext(ctx, &totals, query, args...); err != nil {
		return nil, fmt.Errorf("sum employee scores: %w", err)
	}
	return &totals, nil
}

func scoreWhere(filter models.ScoreFilter) (string, []interface{}) {
	where := []string{"employee_id = $1"}
	args := []interface{}{filter.EmployeeID}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("work_date >= $%d", len(args)+1))
		args = append(args, filter.DateFrom.Format("2006-01-02"))
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("work_date <= $%d", len(args)+1))
		args = append(args, filter.DateTo.Format("2006-01-02"))
	}
	return strings.Join(where, " AND "), args
}
