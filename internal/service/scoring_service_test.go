package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldservice-api/internal/models"
	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
	"github.com/noah-isme/fieldservice-api/pkg/jobs"
)

type scoreStoreStub struct {
	mu     sync.Mutex
	cards  *jobCardStore
	scores []models.EmployeeScore
	err    error
}

func (s *scoreStoreStub) Assign(ctx context.Context, score *models.EmployeeScore) error {
	if s.err != nil {
		return s.err
	}
	s.cards.mu.Lock()
	card := s.cards.cards[score.JobCardID]
	if !card.Approved || card.Score != nil {
		s.cards.mu.Unlock()
		return sql.ErrNoRows
	}
	weight := score.Weight
	card.Score = &weight
	s.cards.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = append(s.scores, *score)
	return nil
}

func (s *scoreStoreStub) ListByEmployee(ctx context.Context, filter models.ScoreFilter) ([]models.EmployeeScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EmployeeScore
	for _, score := range s.scores {
		if score.EmployeeID == filter.EmployeeID {
			out = append(out, score)
		}
	}
	return out, nil
}

func (s *scoreStoreStub) Totals(ctx context.Context, filter models.ScoreFilter) (*models.ScoreTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := &models.ScoreTotals{}
	for _, score := range s.scores {
		if score.EmployeeID == filter.EmployeeID {
			totals.ScoredJobs++
			totals.TotalWeight += score.Weight
		}
	}
	return totals, nil
}

type invalidatorStub struct {
	mu        sync.Mutex
	employees []string
}

func (i *invalidatorStub) InvalidateEmployee(ctx context.Context, employeeID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.employees = append(i.employees, employeeID)
}

func approvedCard(id string) models.JobCardDetail {
	card := completedCard(id)
	card.Approved = true
	return card
}

func newScoringServiceForTest(store *jobCardStore, weight int) (*ScoringService, *scoreStoreStub, *ticketStub, *invalidatorStub) {
	scores := &scoreStoreStub{cards: store}
	tickets := &ticketStub{tickets: map[string]*models.Ticket{"t-1": {ID: "t-1", Weight: weight}}}
	reports := &invalidatorStub{}
	jakarta := time.FixedZone("WIB", 7*60*60)
	svc := NewScoringService(ScoringServiceParams{
		JobCards: store,
		Scores:   scores,
		Tickets:  tickets,
		Reports:  reports,
		Metrics:  NewMetricsService(),
		Logger:   zap.NewNop(),
		Location: jakarta,
	})
	return svc, scores, tickets, reports
}

func TestScoringServiceAssignOnce(t *testing.T) {
	store := newJobCardStore(approvedCard("jc-1"))
	svc, scores, _, reports := newScoringServiceForTest(store, 4)

	score, err := svc.AssignScore(context.Background(), "admin-1", "jc-1")
	require.NoError(t, err)
	assert.Equal(t, 4, score.Weight)
	assert.Equal(t, "emp-1", score.EmployeeID)
	assert.Equal(t, "admin-1", *score.AssignedBy)
	assert.Equal(t, "2024-03-04", score.WorkDate.Format("2006-01-02"))
	assert.Equal(t, []string{"emp-1"}, reports.employees)

	_, err = svc.AssignScore(context.Background(), "admin-1", "jc-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyScored.Code, appErrors.FromError(err).Code)
	assert.Len(t, scores.scores, 1)
}

func TestScoringServiceUsesWeightAtCallTime(t *testing.T) {
	store := newJobCardStore(approvedCard("jc-1"))
	svc, _, tickets, _ := newScoringServiceForTest(store, 2)
	tickets.tickets["t-1"].Weight = 5

	score, err := svc.AssignScore(context.Background(), "", "jc-1")
	require.NoError(t, err)
	assert.Equal(t, 5, score.Weight)
	assert.Nil(t, score.AssignedBy)
}

func TestScoringServiceRequiresApproval(t *testing.T) {
	store := newJobCardStore(completedCard("jc-1"))
	svc, scores, _, _ := newScoringServiceForTest(store, 3)

	_, err := svc.AssignScore(context.Background(), "admin-1", "jc-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotApproved.Code, appErrors.FromError(err).Code)
	assert.Empty(t, scores.scores)
}

func TestScoringServiceRejectsInvalidWeight(t *testing.T) {
	store := newJobCardStore(approvedCard("jc-1"))
	svc, _, _, _ := newScoringServiceForTest(store, 9)

	_, err := svc.AssignScore(context.Background(), "admin-1", "jc-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestScoringServiceConcurrentAssignScoresOnce(t *testing.T) {
	store := newJobCardStore(approvedCard("jc-1"))
	svc, scores, _, _ := newScoringServiceForTest(store, 3)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.AssignScore(context.Background(), "admin-1", "jc-1")
		}()
	}
	wg.Wait()
	assert.Len(t, scores.scores, 1)
}

func TestScoringServiceBackfill(t *testing.T) {
	store := newJobCardStore(approvedCard("jc-1"), approvedCard("jc-2"), completedCard("jc-3"))
	svc, scores, _, _ := newScoringServiceForTest(store, 3)

	scored, err := svc.Backfill(context.Background(), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 2, scored)
	assert.Len(t, scores.scores, 2)

	scored, err = svc.Backfill(context.Background(), "admin-1")
	require.NoError(t, err)
	assert.Zero(t, scored)
}

func TestScoringServiceHandleJob(t *testing.T) {
	store := newJobCardStore(approvedCard("jc-1"))
	svc, scores, _, _ := newScoringServiceForTest(store, 3)
	job := jobs.Job{ID: "job-1", Type: JobTypeAssignScore, Payload: "jc-1"}

	require.NoError(t, svc.HandleJob(context.Background(), job))
	require.NoError(t, svc.HandleJob(context.Background(), job))
	assert.Len(t, scores.scores, 1)

	require.NoError(t, svc.HandleJob(context.Background(), jobs.Job{Type: JobTypeAssignScore, Payload: 42}))

	scores.err = errors.New("db down")
	store.cards["jc-1"].Score = nil
	assert.Error(t, svc.HandleJob(context.Background(), job))
}

func TestScoringServiceListByEmployee(t *testing.T) {
	store := newJobCardStore(approvedCard("jc-1"))
	svc, _, _, _ := newScoringServiceForTest(store, 3)
	_, err := svc.AssignScore(context.Background(), "admin-1", "jc-1")
	require.NoError(t, err)

	list, totals, err := svc.ListByEmployee(context.Background(), models.ScoreFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, totals.ScoredJobs)
	assert.Equal(t, 3, totals.TotalWeight)

	_, _, err = svc.ListByEmployee(context.Background(), models.ScoreFilter{})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
