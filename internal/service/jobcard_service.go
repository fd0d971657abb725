package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fieldservice-api/internal/geo"
	"github.com/noah-isme/fieldservice-api/internal/models"
	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
	"github.com/noah-isme/fieldservice-api/pkg/lock"
	"github.com/noah-isme/fieldservice-api/pkg/logger"
)

type jobCardRepository interface {
	FindByID(ctx context.Context, id string) (*models.JobCardDetail, error)
	ListByEmployee(ctx context.Context, filter models.JobCardFilter) ([]models.JobCardDetail, int, error)
	UpdateAfterTransition(ctx context.Context, card *models.JobCard, entry *models.StatusLogEntry) error
	ListLogs(ctx context.Context, jobCardID string) ([]models.StatusLogEntry, error)
	UpdateImage(ctx context.Context, id, url string, at time.Time) error
	CountInProgress(ctx context.Context, employeeID, excludeID string) (int, error)
}

type ticketStatusRepository interface {
	FindByID(ctx context.Context, id string) (*models.Ticket, error)
	CardStatuses(ctx context.Context, ticketID string) ([]models.JobStatus, error)
	UpdateStatus(ctx context.Context, ticketID string, status models.TicketStatus, at time.Time) (bool, error)
}

type activeDayFinder interface {
	FindActive(ctx context.Context, employeeID string) (*models.DayAttendance, error)
}

// JobCardPolicy toggles optional workflow rules.
type JobCardPolicy struct {
	GeoTimeout       time.Duration
	RequireActiveDay bool
	SingleActive     bool
}

// JobCardServiceParams groups the dependencies of JobCardService.
type JobCardServiceParams struct {
	Repo     jobCardRepository
	Tickets  ticketStatusRepository
	Days     activeDayFinder
	Locker   lock.Locker
	Activity activityRecorder
	Metrics  *MetricsService
	Logger   *zap.Logger
	Policy   JobCardPolicy
}

// JobCardService is the single entry point for job-card status changes.
type JobCardService struct {
	repo     jobCardRepository
	tickets  ticketStatusRepository
	days     activeDayFinder
	lock     recordLock
	activity activityRecorder
	metrics  *MetricsService
	logger   *zap.Logger
	policy   JobCardPolicy
	now      func() time.Time
}

// NewJobCardService constructs the service.
func NewJobCardService(params JobCardServiceParams) *JobCardService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	activity := params.Activity
	if activity == nil {
		activity = noopRecorder{}
	}
	return &JobCardService{
		repo:     params.Repo,
		tickets:  params.Tickets,
		days:     params.Days,
		lock:     newRecordLock(params.Locker, 0, params.Metrics),
		activity: activity,
		metrics:  params.Metrics,
		logger:   logger,
		policy:   params.Policy,
		now:      time.Now,
	}
}

// Transition moves a job card to target. Location is best effort: when the
// provider fails the change is still applied and logged without coordinates.
func (s *JobCardService) Transition(ctx context.Context, actor Actor, id string, target models.JobStatus, provider geo.Provider) (*models.TransitionResult, error) {
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown status").
			WithDetails(map[string]interface{}{"target_status": target})
	}

	loc, locErr := geo.Acquire(ctx, provider, s.policy.GeoTimeout)
	if locErr != nil {
		s.metrics.RecordLocationFailure()
		logger.WithContext(ctx, s.logger).Warn("transition without location",
			zap.String("job_card_id", id),
			zap.String("target_status", string(target)),
			zap.Error(locErr))
		loc = nil
	}

	release, err := s.lock.acquire(ctx, "jobcard", lock.JobCardKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	detail, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	current := detail.Status
	if !current.CanTransitionTo(target) {
		s.metrics.RecordTransition(current, target, outcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "cannot move job card from "+string(current)+" to "+string(target)).
			WithDetails(map[string]interface{}{
				"job_card_id":     id,
				"current_status":  current,
				"target_status":   target,
				"allowed_targets": current.AllowedTargets(),
			})
	}

	if err := s.checkPolicies(ctx, actor, detail, target); err != nil {
		s.metrics.RecordTransition(current, target, outcomeRejected)
		return nil, err
	}

	now := s.now().UTC()
	card := detail.JobCard
	card.ApplyTransition(target, now)
	card.UpdatedAt = now

	entry := &models.StatusLogEntry{
		JobCardID:      id,
		ActorID:        actor.UserID,
		PreviousStatus: &current,
		NewStatus:      target,
		LoggedAt:       now,
	}
	entry.SetLocation(loc)

	if err := s.repo.UpdateAfterTransition(ctx, &card, entry); err != nil {
		s.metrics.RecordTransition(current, target, outcomeError)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "job card was modified concurrently").
				WithDetails(map[string]interface{}{"job_card_id": id})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update job card")
	}
	detail.JobCard = card
	s.metrics.RecordTransition(current, target, outcomeOK)

	logger.WithContext(ctx, s.logger).Info("job card transitioned",
		zap.String("job_card_id", id),
		zap.String("from", string(current)),
		zap.String("to", string(target)),
		zap.Int("work_minutes", card.WorkMinutes),
		zap.Bool("location", loc != nil))

	details := map[string]interface{}{"from": current, "to": target, "ticket_number": detail.TicketNumber}
	if loc != nil {
		details["latitude"], details["longitude"] = loc.Latitude, loc.Longitude
	}
	s.activity.Record(ctx, actor.UserID, models.ActivityStatusUpdate, "job_card", id, details)

	s.refreshTicket(ctx, detail.TicketID, now)

	return &models.TransitionResult{JobCard: detail, Log: entry, LocationCaptured: loc != nil}, nil
}

func (s *JobCardService) checkPolicies(ctx context.Context, actor Actor, card *models.JobCardDetail, target models.JobStatus) error {
	if s.policy.RequireActiveDay && !actor.IsAdmin() && s.days != nil {
		if _, err := s.days.FindActive(ctx, card.EmployeeID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrDayNotActive, "").
					WithDetails(map[string]interface{}{"employee_id": card.EmployeeID})
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active day")
		}
	}

	if s.policy.SingleActive && target.IsInProgress() && !card.Status.IsInProgress() {
		count, err := s.repo.CountInProgress(ctx, card.EmployeeID, card.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active job cards")
		}
		if count > 0 {
			return appErrors.Clone(appErrors.ErrActiveJobExists, "").
				WithDetails(map[string]interface{}{"employee_id": card.EmployeeID, "in_progress": count})
		}
	}
	return nil
}

// refreshTicket recomputes the parent ticket's roll-up status. Failures are
// logged only; the transition has already been committed.
func (s *JobCardService) refreshTicket(ctx context.Context, ticketID string, now time.Time) {
	if s.tickets == nil {
		return
	}
	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		s.logger.Warn("failed to load ticket for roll-up", zap.String("ticket_id", ticketID), zap.Error(err))
		return
	}
	statuses, err := s.tickets.CardStatuses(ctx, ticketID)
	if err != nil {
		s.logger.Warn("failed to load ticket card statuses", zap.String("ticket_id", ticketID), zap.Error(err))
		return
	}
	next := models.RollUpTicketStatus(ticket.Status, statuses)
	if next == ticket.Status {
		return
	}
	if _, err := s.tickets.UpdateStatus(ctx, ticketID, next, now); err != nil {
		s.logger.Warn("failed to update ticket status", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

// Get returns a job card visible to actor.
func (s *JobCardService) Get(ctx context.Context, actor Actor, id string) (*models.JobCardDetail, error) {
	return s.load(ctx, actor, id)
}

// StatusLog returns the card's transitions in chronological order.
func (s *JobCardService) StatusLog(ctx context.Context, actor Actor, id string) ([]models.StatusLogEntry, error) {
	if _, err := s.load(ctx, actor, id); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListLogs(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status log")
	}
	return entries, nil
}

// ListForEmployee returns the employee's own job cards.
func (s *JobCardService) ListForEmployee(ctx context.Context, filter models.JobCardFilter) ([]models.JobCardDetail, *models.Pagination, error) {
	if filter.EmployeeID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "employee is required")
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
	}
	page := models.PageRequest{Page: filter.Page, PageSize: filter.PageSize}.Normalize()
	filter.Page, filter.PageSize = page.Page, page.PageSize

	cards, total, err := s.repo.ListByEmployee(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list job cards")
	}
	return cards, &models.Pagination{Page: page.Page, PageSize: page.PageSize, TotalCount: total}, nil
}

// AttachImage stores an opaque evidence URL on the card.
func (s *JobCardService) AttachImage(ctx context.Context, actor Actor, id, url string) (*models.JobCardDetail, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "image url is required")
	}
	detail, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.repo.UpdateImage(ctx, id, url, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job card not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach image")
	}
	detail.ImageURL = &url
	detail.UpdatedAt = now
	s.activity.Record(ctx, actor.UserID, models.ActivityImageAttached, "job_card", id, nil)
	return detail, nil
}

// load fetches a card and enforces that employees only see their own.
func (s *JobCardService) load(ctx context.Context, actor Actor, id string) (*models.JobCardDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job card not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job card")
	}
	if !actor.IsAdmin() && detail.EmployeeID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "job card belongs to another employee")
	}
	return detail, nil
}
