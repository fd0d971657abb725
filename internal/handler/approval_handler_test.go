package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldservice-api/internal/dto"
	"github.com/noah-isme/fieldservice-api/internal/models"
	"github.com/noah-isme/fieldservice-api/internal/service"
	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
)

type approvalServiceMock struct {
	note    string
	ids     []string
	results []models.BulkApprovalResult
	err     error
}

func (m *approvalServiceMock) Approve(ctx context.Context, actor service.Actor, id string) (*models.JobCardDetail, error) {
	return &models.JobCardDetail{JobCard: models.JobCard{ID: id, Approved: true, ApprovedBy: &actor.UserID}}, m.err
}

func (m *approvalServiceMock) Reject(ctx context.Context, actor service.Actor, id, note string) (*models.JobCardDetail, error) {
	m.note = note
	return &models.JobCardDetail{}, m.err
}

func (m *approvalServiceMock) BulkApprove(ctx context.Context, actor service.Actor, ids []string) ([]models.BulkApprovalResult, error) {
	m.ids = ids
	return m.results, m.err
}

func (m *approvalServiceMock) ListPending(ctx context.Context, page models.PageRequest) ([]models.JobCardDetail, *models.Pagination, error) {
	return nil, &models.Pagination{Page: page.Page, PageSize: page.PageSize}, m.err
}

func (m *approvalServiceMock) Statistics(ctx context.Context) (*models.ApprovalStats, error) {
	return &models.ApprovalStats{Pending: 2, Rejected: 1}, m.err
}

func TestApprovalHandlerBulkCountsOutcomes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &approvalServiceMock{results: []models.BulkApprovalResult{
		{JobCardID: "jc-1", Approved: true},
		{JobCardID: "jc-2", Code: appErrors.ErrAlreadyApproved.Code},
		{JobCardID: "jc-3", Approved: true},
	}}
	handler := NewApprovalHandler(mockSvc, nil)

	c, w := newGinContext(http.MethodPost, "/admin/approvals/bulk", []byte(`{"job_card_ids":["jc-1","jc-2","jc-3"]}`))
	withClaims(c, "admin-1", models.RoleAdmin)

	handler.Bulk(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"jc-1", "jc-2", "jc-3"}, mockSvc.ids)

	var out dto.BulkApproveResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &out))
	assert.Equal(t, 3, out.Requested)
	assert.Equal(t, 2, out.Approved)
	assert.Equal(t, 1, out.Failed)
}

func TestApprovalHandlerApproveReturnsCard(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApprovalHandler(&approvalServiceMock{}, nil)

	c, w := newGinContext(http.MethodPost, "/admin/approvals/jc-9/approve", nil)
	c.Params = gin.Params{{Key: "id", Value: "jc-9"}}
	withClaims(c, "admin-1", models.RoleAdmin)

	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)
	var card models.JobCardDetail
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &card))
	assert.Equal(t, "jc-9", card.ID)
	assert.True(t, card.Approved)
	require.NotNil(t, card.ApprovedBy)
	assert.Equal(t, "admin-1", *card.ApprovedBy)
}

func TestApprovalHandlerBulkRejectsEmptyList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &approvalServiceMock{}
	handler := NewApprovalHandler(mockSvc, nil)

	c, w := newGinContext(http.MethodPost, "/admin/approvals/bulk", []byte(`{"job_card_ids":[]}`))
	withClaims(c, "admin-1", models.RoleAdmin)

	handler.Bulk(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, mockSvc.ids)
}

func TestApprovalHandlerRejectPassesNoteThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &approvalServiceMock{err: appErrors.ErrEmptyNote}
	handler := NewApprovalHandler(mockSvc, nil)

	c, w := newGinContext(http.MethodPost, "/admin/approvals/jc-1/reject", []byte(`{"note":""}`))
	c.Params = gin.Params{{Key: "id", Value: "jc-1"}}
	withClaims(c, "admin-1", models.RoleAdmin)

	handler.Reject(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrEmptyNote.Code, decodeEnvelope(t, w).Error.Code)
}

func TestApprovalHandlerStats(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewApprovalHandler(&approvalServiceMock{}, nil)

	c, w := newGinContext(http.MethodGet, "/admin/approvals/stats", nil)
	handler.Stats(c)
	require.Equal(t, http.StatusOK, w.Code)

	var stats models.ApprovalStats
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &stats))
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 1, stats.Rejected)
}
