package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fieldservice-api/internal/models"
	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
	"github.com/noah-isme/fieldservice-api/pkg/jobs"
	"github.com/noah-isme/fieldservice-api/pkg/lock"
	"github.com/noah-isme/fieldservice-api/pkg/logger"
)

// JobTypeAssignScore is the queue job type used for automatic scoring.
const JobTypeAssignScore = "score.assign"

const maxBulkApproval = 100

type approvalRepository interface {
	FindByID(ctx context.Context, id string) (*models.JobCardDetail, error)
	UpdateApproval(ctx context.Context, card *models.JobCard) error
	ListPendingApproval(ctx context.Context, page models.PageRequest) ([]models.JobCardDetail, int, error)
	ApprovalStats(ctx context.Context) (*models.ApprovalStats, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// ApprovalServiceParams groups the dependencies of ApprovalService.
type ApprovalServiceParams struct {
	Repo       approvalRepository
	Locker     lock.Locker
	Activity   activityRecorder
	Metrics    *MetricsService
	Logger     *zap.Logger
	ScoreQueue jobEnqueuer
	AutoScore  bool
}

// ApprovalService records admin decisions on completed job cards.
type ApprovalService struct {
	repo      approvalRepository
	lock      recordLock
	activity  activityRecorder
	metrics   *MetricsService
	logger    *zap.Logger
	queue     jobEnqueuer
	autoScore bool
	now       func() time.Time
}

// NewApprovalService constructs the service.
func NewApprovalService(params ApprovalServiceParams) *ApprovalService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	activity := params.Activity
	if activity == nil {
		activity = noopRecorder{}
	}
	return &ApprovalService{
		repo:      params.Repo,
		lock:      newRecordLock(params.Locker, 0, params.Metrics),
		activity:  activity,
		metrics:   params.Metrics,
		logger:    logger,
		queue:     params.ScoreQueue,
		autoScore: params.AutoScore,
		now:       time.Now,
	}
}

// Approve accepts a completed card and clears any earlier rejection note.
func (s *ApprovalService) Approve(ctx context.Context, actor Actor, id string) (*models.JobCardDetail, error) {
	card, err := s.approve(ctx, actor, id)
	s.metrics.RecordApproval("approve", outcomeOf(err))
	if err != nil {
		return nil, err
	}
	s.enqueueScore(id)
	return card, nil
}

func (s *ApprovalService) approve(ctx context.Context, actor Actor, id string) (*models.JobCardDetail, error) {
	release, err := s.lock.acquire(ctx, "jobcard", lock.JobCardKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	detail, err := s.loadCompleted(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.Approved {
		return nil, appErrors.Clone(appErrors.ErrAlreadyApproved, "").
			WithDetails(map[string]interface{}{"job_card_id": id})
	}

	now := s.now().UTC()
	card := detail.JobCard
	card.Approved = true
	card.ApprovalNote = nil
	card.ApprovedBy = &actor.UserID
	card.ApprovedAt = &now
	card.UpdatedAt = now
	if err := s.save(ctx, &card); err != nil {
		return nil, err
	}
	detail.JobCard = card

	s.activity.Record(ctx, actor.UserID, models.ActivityJobApproval, "job_card", id, map[string]interface{}{
		"employee_id":   detail.EmployeeID,
		"ticket_number": detail.TicketNumber,
	})
	return detail, nil
}

// Reject records a rejection note. The card stays COMPLETED and may be approved later.
func (s *ApprovalService) Reject(ctx context.Context, actor Actor, id, note string) (*models.JobCardDetail, error) {
	card, err := s.reject(ctx, actor, id, note)
	s.metrics.RecordApproval("reject", outcomeOf(err))
	return card, err
}

func (s *ApprovalService) reject(ctx context.Context, actor Actor, id, note string) (*models.JobCardDetail, error) {
	release, err := s.lock.acquire(ctx, "jobcard", lock.JobCardKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	detail, err := s.loadCompleted(ctx, id)
	if err != nil {
		return nil, err
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, appErrors.Clone(appErrors.ErrEmptyNote, "").
			WithDetails(map[string]interface{}{"job_card_id": id})
	}
	if detail.Scored() {
		return nil, appErrors.Clone(appErrors.ErrAlreadyScored, "a scored job card cannot be rejected").
			WithDetails(map[string]interface{}{"job_card_id": id})
	}

	now := s.now().UTC()
	card := detail.JobCard
	card.Approved = false
	card.ApprovalNote = &note
	card.ApprovedBy = &actor.UserID
	card.ApprovedAt = &now
	card.UpdatedAt = now
	if err := s.save(ctx, &card); err != nil {
		return nil, err
	}
	detail.JobCard = card

	s.activity.Record(ctx, actor.UserID, models.ActivityJobRejection, "job_card", id, map[string]interface{}{
		"employee_id": detail.EmployeeID,
		"note":        note,
	})
	return detail, nil
}

// BulkApprove approves each id in order. Failures are reported per id and never
// undo the approvals that succeeded.
func (s *ApprovalService) BulkApprove(ctx context.Context, actor Actor, ids []string) ([]models.BulkApprovalResult, error) {
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one job card id is required")
	}
	if len(ids) > maxBulkApproval {
		return nil, appErrors.Clone(appErrors.ErrValidation, "too many job cards in one request").
			WithDetails(map[string]interface{}{"max": maxBulkApproval})
	}

	results := make([]models.BulkApprovalResult, 0, len(ids))
	approved := 0
	for _, id := range ids {
		result := models.BulkApprovalResult{JobCardID: id}
		if _, err := s.Approve(ctx, actor, id); err != nil {
			appErr := appErrors.FromError(err)
			result.Code, result.Message = appErr.Code, appErr.Message
		} else {
			result.Approved = true
			approved++
		}
		results = append(results, result)
	}

	logger.WithContext(ctx, s.logger).Info("bulk approval processed",
		zap.String("admin_id", actor.UserID),
		zap.Int("requested", len(ids)),
		zap.Int("approved", approved))
	return results, nil
}

// ListPending returns completed cards awaiting a decision, including rejected ones.
func (s *ApprovalService) ListPending(ctx context.Context, page models.PageRequest) ([]models.JobCardDetail, *models.Pagination, error) {
	page = page.Normalize()
	cards, total, err := s.repo.ListPendingApproval(ctx, page)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending approvals")
	}
	return cards, &models.Pagination{Page: page.Page, PageSize: page.PageSize, TotalCount: total}, nil
}

// Statistics summarises the approval queue.
func (s *ApprovalService) Statistics(ctx context.Context) (*models.ApprovalStats, error) {
	stats, err := s.repo.ApprovalStats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval statistics")
	}
	return stats, nil
}

func (s *ApprovalService) loadCompleted(ctx context.Context, id string) (*models.JobCardDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job card not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job card")
	}
	if detail.Status != models.JobStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrNotCompleted, "").
			WithDetails(map[string]interface{}{"job_card_id": id, "current_status": detail.Status})
	}
	return detail, nil
}

func (s *ApprovalService) save(ctx context.Context, card *models.JobCard) error {
	if err := s.repo.UpdateApproval(ctx, card); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrConflict, "job card was modified concurrently").
				WithDetails(map[string]interface{}{"job_card_id": card.ID})
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save approval decision")
	}
	return nil
}

func (s *ApprovalService) enqueueScore(id string) {
	if !s.autoScore || s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(jobs.Job{Type: JobTypeAssignScore, Key: "score:" + id, Payload: id}); err != nil {
		s.logger.Warn("failed to enqueue scoring", zap.String("job_card_id", id), zap.Error(err))
	}
}
