package service

import (
	"context"
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

type enqueuerStub struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *enqueuerStub) Enqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func completedCard(id string) models.JobCardDetail {
	card := pendingCard(id)
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	card.Status = models.JobStatusCompleted
	card.StartTime, card.EndTime = &start, &end
	card.WorkMinutes = 120
	return card
}

func newApprovalServiceForTest(store *jobCardStore, queue *enqueuerStub) (*ApprovalService, *recorderStub) {
	activity := &recorderStub{}
	svc := NewApprovalService(ApprovalServiceParams{
		Repo:       store,
		Activity:   activity,
		Metrics:    NewMetricsService(),
		Logger:     zap.NewNop(),
		ScoreQueue: queue,
		AutoScore:  queue != nil,
	})
	svc.now = func() time.Time { return time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC) }
	return svc, activity
}

func TestApprovalServiceApprove(t *testing.T) {
	store := newJobCardStore(completedCard("jc-1"))
	queue := &enqueuerStub{}
	svc, activity := newApprovalServiceForTest(store, queue)

	detail, err := svc.Approve(context.Background(), adminActor, "jc-1")
	require.NoError(t, err)
	assert.True(t, detail.Approved)
	assert.Equal(t, "admin-1", *detail.ApprovedBy)
	assert.Nil(t, detail.ApprovalNote)
	assert.Equal(t, 2, store.get("jc-1").Version)

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobTypeAssignScore, queue.jobs[0].Type)
	assert.Equal(t, "jc-1", queue.jobs[0].Payload)
	assert.Equal(t, []models.ActivityAction{models.ActivityJobApproval}, activity.actions())

	_, err = svc.Approve(context.Background(), adminActor, "jc-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyApproved.Code, appErrors.FromError(err).Code)
	assert.Len(t, queue.jobs, 1)
}

func TestApprovalServiceApproveRequiresCompleted(t *testing.T) {
	card := pendingCard("jc-1")
	card.Status = models.JobStatusStarted
	svc, _ := newApprovalServiceForTest(newJobCardStore(card), nil)

	_, err := svc.Approve(context.Background(), adminActor, "jc-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotCompleted.Code, appErr.Code)
	assert.Equal(t, models.JobStatusStarted, appErr.Details["current_status"])
}

func TestApprovalServiceEnqueueFailureDoesNotFailApproval(t *testing.T) {
	store := newJobCardStore(completedCard("jc-1"))
	svc, _ := newApprovalServiceForTest(store, &enqueuerStub{err: errors.New("queue full")})

	_, err := svc.Approve(context.Background(), adminActor, "jc-1")
	require.NoError(t, err)
	assert.True(t, store.get("jc-1").Approved)
}

func TestApprovalServiceReject(t *testing.T) {
	store := newJobCardStore(completedCard("jc-1"))
	svc, activity := newApprovalServiceForTest(store, nil)

	_, err := svc.Reject(context.Background(), adminActor, "jc-1", "  ")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrEmptyNote.Code, appErrors.FromError(err).Code)

	detail, err := svc.Reject(context.Background(), adminActor, "jc-1", " photos missing ")
	require.NoError(t, err)
	assert.False(t, detail.Approved)
	assert.Equal(t, "photos missing", *detail.ApprovalNote)
	assert.Equal(t, models.JobStatusCompleted, detail.Status)
	assert.Equal(t, []models.ActivityAction{models.ActivityJobRejection}, activity.actions())

	approved, err := svc.Approve(context.Background(), adminActor, "jc-1")
	require.NoError(t, err)
	assert.True(t, approved.Approved)
	assert.Nil(t, approved.ApprovalNote)
}

func TestApprovalServiceRejectChecksStatusBeforeNote(t *testing.T) {
	svc, _ := newApprovalServiceForTest(newJobCardStore(pendingCard("jc-1")), nil)

	_, err := svc.Reject(context.Background(), adminActor, "jc-1", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotCompleted.Code, appErrors.FromError(err).Code)
}

func TestApprovalServiceRejectScoredCard(t *testing.T) {
	card := completedCard("jc-1")
	card.Approved = true
	weight := 3
	card.Score = &weight
	svc, _ := newApprovalServiceForTest(newJobCardStore(card), nil)

	_, err := svc.Reject(context.Background(), adminActor, "jc-1", "late")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyScored.Code, appErrors.FromError(err).Code)
}

func TestApprovalServiceBulkApprovePartialFailure(t *testing.T) {
	approved := completedCard("jc-b")
	approved.Approved = true
	store := newJobCardStore(completedCard("jc-a"), approved, completedCard("jc-c"))
	queue := &enqueuerStub{}
	svc, _ := newApprovalServiceForTest(store, queue)

	results, err := svc.BulkApprove(context.Background(), adminActor, []string{"jc-a", "jc-b", "jc-c", "jc-missing"})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.True(t, results[0].Approved)
	assert.False(t, results[1].Approved)
	assert.Equal(t, appErrors.ErrAlreadyApproved.Code, results[1].Code)
	assert.True(t, results[2].Approved)
	assert.Equal(t, appErrors.ErrNotFound.Code, results[3].Code)

	assert.True(t, store.get("jc-a").Approved)
	assert.True(t, store.get("jc-c").Approved)
	assert.Len(t, queue.jobs, 2)
}

func TestApprovalServiceBulkApproveValidatesSize(t *testing.T) {
	svc, _ := newApprovalServiceForTest(newJobCardStore(), nil)

	_, err := svc.BulkApprove(context.Background(), adminActor, nil)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	ids := make([]string, maxBulkApproval+1)
	for i := range ids {
		ids[i] = "jc"
	}
	_, err = svc.BulkApprove(context.Background(), adminActor, ids)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestApprovalServiceListPendingIncludesRejected(t *testing.T) {
	rejected := completedCard("jc-r")
	note := "redo"
	rejected.ApprovalNote = &note
	approved := completedCard("jc-a")
	approved.Approved = true
	svc, _ := newApprovalServiceForTest(newJobCardStore(completedCard("jc-p"), rejected, approved), nil)

	cards, pagination, err := svc.ListPending(context.Background(), models.PageRequest{})
	require.NoError(t, err)
	assert.Len(t, cards, 2)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, 1, pagination.Page)
}
