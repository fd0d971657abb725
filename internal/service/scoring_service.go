package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fieldservice-api/internal/models"
	"github.com/noah-isme/fieldservice-api/pkg/database"
	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
	"github.com/noah-isme/fieldservice-api/pkg/jobs"
	"github.com/noah-isme/fieldservice-api/pkg/lock"
)

const backfillBatch = 500

type scoringJobCardRepository interface {
	FindByID(ctx context.Context, id string) (*models.JobCardDetail, error)
	ListScorable(ctx context.Context, limit int) ([]string, error)
}

type scoreRepository interface {
	Assign(ctx context.Context, score *models.EmployeeScore) error
	ListByEmployee(ctx context.Context, filter models.ScoreFilter) ([]models.EmployeeScore, error)
	Totals(ctx context.Context, filter models.ScoreFilter) (*models.ScoreTotals, error)
}

type ticketLookup interface {
	FindByID(ctx context.Context, id string) (*models.Ticket, error)
}

type reportInvalidator interface {
	InvalidateEmployee(ctx context.Context, employeeID string)
}

// ScoringServiceParams groups the dependencies of ScoringService.
type ScoringServiceParams struct {
	JobCards scoringJobCardRepository
	Scores   scoreRepository
	Tickets  ticketLookup
	Reports  reportInvalidator
	Locker   lock.Locker
	Activity activityRecorder
	Metrics  *MetricsService
	Logger   *zap.Logger
	Location *time.Location
}

// ScoringService assigns exactly one weighted score to each approved job card.
type ScoringService struct {
	jobCards scoringJobCardRepository
	scores   scoreRepository
	tickets  ticketLookup
	reports  reportInvalidator
	lock     recordLock
	activity activityRecorder
	metrics  *MetricsService
	logger   *zap.Logger
	loc      *time.Location
	now      func() time.Time
}

// NewScoringService constructs the service.
func NewScoringService(params ScoringServiceParams) *ScoringService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	activity := params.Activity
	if activity == nil {
		activity = noopRecorder{}
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &ScoringService{
		jobCards: params.JobCards,
		scores:   params.Scores,
		tickets:  params.Tickets,
		reports:  params.Reports,
		lock:     newRecordLock(params.Locker, 0, params.Metrics),
		activity: activity,
		metrics:  params.Metrics,
		logger:   logger,
		loc:      loc,
		now:      time.Now,
	}
}

// AssignScore scores an approved card with its ticket's current weight.
// assignedBy is empty when the score is assigned by the background queue.
func (s *ScoringService) AssignScore(ctx context.Context, assignedBy, id string) (*models.EmployeeScore, error) {
	score, err := s.assign(ctx, assignedBy, id)
	s.metrics.RecordScore(outcomeOf(err))
	return score, err
}

func (s *ScoringService) assign(ctx context.Context, assignedBy, id string) (*models.EmployeeScore, error) {
	release, err := s.lock.acquire(ctx, "jobcard", lock.JobCardKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	card, err := s.jobCards.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job card not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job card")
	}
	if !card.Approved {
		return nil, appErrors.Clone(appErrors.ErrNotApproved, "").
			WithDetails(map[string]interface{}{"job_card_id": id, "current_status": card.Status})
	}
	if card.Scored() {
		return nil, alreadyScored(id)
	}

	ticket, err := s.tickets.FindByID(ctx, card.TicketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "ticket not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ticket")
	}
	if ticket.Weight < 1 || ticket.Weight > 5 {
		return nil, appErrors.Wrap(fmt.Errorf("ticket %s has weight %d", ticket.ID, ticket.Weight),
			appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "ticket weight out of range")
	}

	now := s.now().UTC()
	worked := now
	if card.EndTime != nil {
		worked = *card.EndTime
	}
	local := worked.In(s.loc)
	score := &models.EmployeeScore{
		JobCardID:  card.ID,
		EmployeeID: card.EmployeeID,
		TicketID:   ticket.ID,
		Weight:     ticket.Weight,
		WorkDate:   time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc),
		AssignedAt: now,
	}
	if assignedBy != "" {
		score.AssignedBy = &assignedBy
	}

	if err := s.scores.Assign(ctx, score); err != nil {
		if errors.Is(err, sql.ErrNoRows) || database.IsUniqueViolation(err, "") {
			return nil, alreadyScored(id)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign score")
	}

	s.logger.Info("score assigned",
		zap.String("job_card_id", id),
		zap.String("employee_id", card.EmployeeID),
		zap.Int("weight", score.Weight))
	s.activity.Record(ctx, assignedBy, models.ActivityScoreAssigned, "job_card", id, map[string]interface{}{
		"employee_id": card.EmployeeID,
		"weight":      score.Weight,
	})
	if s.reports != nil {
		s.reports.InvalidateEmployee(ctx, card.EmployeeID)
	}
	return score, nil
}

// Backfill scores every approved, completed card still missing a score and
// returns how many were scored.
func (s *ScoringService) Backfill(ctx context.Context, assignedBy string) (int, error) {
	ids, err := s.jobCards.ListScorable(ctx, backfillBatch)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scorable job cards")
	}
	scored := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return scored, err
		}
		if _, err := s.AssignScore(ctx, assignedBy, id); err != nil {
			if skippable(err) {
				continue
			}
			s.logger.Warn("backfill could not score job card", zap.String("job_card_id", id), zap.Error(err))
			continue
		}
		scored++
	}
	s.logger.Info("score backfill finished", zap.Int("candidates", len(ids)), zap.Int("scored", scored))
	return scored, nil
}

// ListByEmployee returns an employee's scores and their totals for an optional range.
func (s *ScoringService) ListByEmployee(ctx context.Context, filter models.ScoreFilter) ([]models.EmployeeScore, *models.ScoreTotals, error) {
	if filter.EmployeeID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "employee is required")
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "end date must not be before start date")
	}
	scores, err := s.scores.ListByEmployee(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scores")
	}
	totals, err := s.scores.Totals(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum scores")
	}
	return scores, totals, nil
}

// HandleJob is the queue handler for JobTypeAssignScore. Cards that are already
// scored or no longer approved are treated as done.
func (s *ScoringService) HandleJob(ctx context.Context, job jobs.Job) error {
	if job.Type != JobTypeAssignScore {
		return nil
	}
	id, ok := job.Payload.(string)
	if !ok || id == "" {
		s.logger.Error("invalid scoring job payload", zap.String("job_id", job.ID))
		return nil
	}
	if _, err := s.AssignScore(ctx, "", id); err != nil && !skippable(err) {
		return err
	}
	return nil
}

func skippable(err error) bool {
	return errors.Is(err, appErrors.ErrAlreadyScored) || errors.Is(err, appErrors.ErrNotApproved) || errors.Is(err, appErrors.ErrNotFound)
}

func alreadyScored(id string) error {
	return appErrors.Clone(appErrors.ErrAlreadyScored, "").WithDetails(map[string]interface{}{"job_card_id": id})
}
