package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fieldservice-api/internal/models"
)

// ActivityRepository persists the append-only activity log.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create appends an entry.
func (r *ActivityRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if len(entry.Details) == 0 {
		entry.Details = json.RawMessage(`{}`)
	}
	const query = `INSERT INTO activity_logs (id, user_id, action, resource, resource_id, details, ip_address, user_agent, created_at)
VALUES (:id, :user_id, :action, :resource, :resource_id, :details, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create activity log: %w", err)
	}
	return nil
}

// List returns entries newest first together with the total count.
func (r *ActivityRepository) List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityLog, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.UserID != "" {
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.Action != nil {
		where = append(where, fmt.Sprintf("action = $%d", len(args)+1))
		args = append(args, *filter.Action)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)+1))
		args = append(args, filter.DateTo.AddDate(0, 0, 1))
	}
	whereClause := strings.Join(where, " AND ")
	page := models.PageRequest{Page: filter.Page, PageSize: filter.PageSize}.Normalize()

	query := fmt.Sprintf(`SELECT id, user_id, action, resource, resource_id, details, ip_address, user_agent, created_at
FROM activity_logs WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, whereClause, page.PageSize, page.Offset())
	var rows []models.ActivityLog
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list activity logs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM activity_logs WHERE "+whereClause, args...); err != nil {
		return nil, 0, fmt.Errorf("count activity logs: %w", err)
	}
	return rows, total, nil
}
