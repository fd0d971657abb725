package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fieldservice-api/internal/models"
	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
	"github.com/noah-isme/fieldservice-api/pkg/logger"
)

type activityRepository interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityLog, int, error)
}

// activityRecorder is the write side used by the workflow services.
type activityRecorder interface {
	Record(ctx context.Context, userID string, action models.ActivityAction, resource, resourceID string, details map[string]interface{})
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, string, models.ActivityAction, string, string, map[string]interface{}) {
}

// ActivityService writes and lists the activity log.
type ActivityService struct {
	repo   activityRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewActivityService constructs the service.
func NewActivityService(repo activityRepository, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{repo: repo, logger: logger, now: time.Now}
}

// Record appends an entry. Failures are logged and never returned.
func (s *ActivityService) Record(ctx context.Context, userID string, action models.ActivityAction, resource, resourceID string, details map[string]interface{}) {
	entry := &models.ActivityLog{
		Action:    action,
		Resource:  resource,
		CreatedAt: s.now().UTC(),
	}
	if userID != "" {
		entry.UserID = &userID
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if len(details) > 0 {
		payload, err := json.Marshal(details)
		if err != nil {
			s.logger.Warn("failed to encode activity details", zap.String("action", string(action)), zap.Error(err))
		} else {
			entry.Details = payload
		}
	}
	meta := RequestMetaFrom(ctx)
	entry.IPAddress = meta.IP
	entry.UserAgent = meta.UserAgent

	// The request may already be cancelled once the response is written.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.repo.Create(writeCtx, entry); err != nil {
		logger.WithContext(ctx, s.logger).Warn("failed to record activity",
			zap.String("action", string(action)),
			zap.String("resource_id", resourceID),
			zap.Error(err))
	}
}

// List returns activity entries newest first.
func (s *ActivityService) List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityLog, *models.Pagination, error) {
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "date_to must not be before date_from")
	}
	page := models.PageRequest{Page: filter.Page, PageSize: filter.PageSize}.Normalize()
	filter.Page, filter.PageSize = page.Page, page.PageSize

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activity")
	}
	return entries, &models.Pagination{Page: page.Page, PageSize: page.PageSize, TotalCount: total}, nil
}
