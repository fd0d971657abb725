package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldservice-api/internal/models"
)

func TestScoreAssign(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScoreRepository(db)

	now := time.Now().UTC()
	score := &models.EmployeeScore{JobCardID: "jc-1", EmployeeID: "emp-1", TicketID: "t-1", Weight: 4, WorkDate: now, AssignedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND approved AND score IS NULL")).
		WithArgs("jc-1", 4, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO employee_scores").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Assign(context.Background(), score))
	assert.NotEmpty(t, score.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreAssignIneligibleRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScoreRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND approved AND score IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Assign(context.Background(), &models.EmployeeScore{JobCardID: "jc-1", Weight: 2})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreTotalsRange(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScoreRepository(db)

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE employee_id = $1 AND work_date >= $2 AND work_date <= $3")).
		WithArgs("emp-1", "2024-05-01", "2024-05-31").
		WillReturnRows(sqlmock.NewRows([]string{"scored_jobs", "total_weight"}).AddRow(4, 13))

	totals, err := repo.Totals(context.Background(), models.ScoreFilter{EmployeeID: "emp-1", DateFrom: &from, DateTo: &to})
	require.NoError(t, err)
	assert.Equal(t, 4, totals.ScoredJobs)
	assert.Equal(t, 13, totals.TotalWeight)
}
