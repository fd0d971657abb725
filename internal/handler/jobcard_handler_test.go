package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldservice-api/internal/geo"
	"github.com/noah-isme/fieldservice-api/internal/models"
	"github.com/noah-isme/fieldservice-api/internal/service"
	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
)

type jobCardServiceMock struct {
	actor    service.Actor
	target   models.JobStatus
	provider geo.Provider
	filter   models.JobCardFilter
	result   *models.TransitionResult
	err      error
}

func (m *jobCardServiceMock) Transition(ctx context.Context, actor service.Actor, id string, target models.JobStatus, provider geo.Provider) (*models.TransitionResult, error) {
	m.actor, m.target, m.provider = actor, target, provider
	return m.result, m.err
}

func (m *jobCardServiceMock) Get(ctx context.Context, actor service.Actor, id string) (*models.JobCardDetail, error) {
	return &models.JobCardDetail{}, m.err
}

func (m *jobCardServiceMock) StatusLog(ctx context.Context, actor service.Actor, id string) ([]models.StatusLogEntry, error) {
	return nil, m.err
}

func (m *jobCardServiceMock) ListForEmployee(ctx context.Context, filter models.JobCardFilter) ([]models.JobCardDetail, *models.Pagination, error) {
	m.filter = filter
	return []models.JobCardDetail{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, m.err
}

func (m *jobCardServiceMock) AttachImage(ctx context.Context, actor service.Actor, id, url string) (*models.JobCardDetail, error) {
	return &models.JobCardDetail{}, m.err
}

func TestJobCardHandlerUpdateStatusWithCoordinates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &jobCardServiceMock{result: &models.TransitionResult{LocationCaptured: true}}
	handler := NewJobCardHandler(mockSvc, nil)

	c, w := newGinContext(http.MethodPost, "/job-cards/jc-1/status", []byte(`{"status":"STARTED","latitude":-6.2,"longitude":106.8}`))
	c.Params = gin.Params{{Key: "id", Value: "jc-1"}}
	withClaims(c, "emp-1", models.RoleEmployee)

	handler.UpdateStatus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.JobStatusStarted, mockSvc.target)
	assert.Equal(t, "emp-1", mockSvc.actor.UserID)
	require.NotNil(t, mockSvc.provider)
	loc, err := mockSvc.provider.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -6.2, loc.Latitude)
	assert.Nil(t, decodeEnvelope(t, w).Meta)
}

func TestJobCardHandlerUpdateStatusWarnsWithoutLocation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &jobCardServiceMock{result: &models.TransitionResult{LocationCaptured: false}}
	handler := NewJobCardHandler(mockSvc, nil)

	c, w := newGinContext(http.MethodPost, "/job-cards/jc-1/status", []byte(`{"status":"COMPLETED"}`))
	withClaims(c, "emp-1", models.RoleEmployee)

	handler.UpdateStatus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, mockSvc.provider)
	assert.Equal(t, appErrors.ErrLocationUnavailable.Code, decodeEnvelope(t, w).Meta["warning"])
}

func TestJobCardHandlerUpdateStatusValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewJobCardHandler(&jobCardServiceMock{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing status", body: `{}`},
		{name: "unknown status", body: `{"status":"PAUSED"}`},
		{name: "malformed json", body: `{"status":`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, w := newGinContext(http.MethodPost, "/job-cards/jc-1/status", []byte(tc.body))
			withClaims(c, "emp-1", models.RoleEmployee)
			handler.UpdateStatus(c)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestJobCardHandlerUpdateStatusMapsConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &jobCardServiceMock{err: appErrors.Clone(appErrors.ErrInvalidTransition, "cannot move from PENDING to COMPLETED")}
	handler := NewJobCardHandler(mockSvc, nil)

	c, w := newGinContext(http.MethodPost, "/job-cards/jc-1/status", []byte(`{"status":"COMPLETED"}`))
	withClaims(c, "emp-1", models.RoleEmployee)

	handler.UpdateStatus(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, decodeEnvelope(t, w).Error.Code)
}

func TestJobCardHandlerRequiresClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewJobCardHandler(&jobCardServiceMock{}, nil)

	c, w := newGinContext(http.MethodGet, "/job-cards/jc-1", nil)
	handler.Get(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJobCardHandlerListMineScopesToCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &jobCardServiceMock{}
	handler := NewJobCardHandler(mockSvc, nil)

	c, w := newGinContext(http.MethodGet, "/employee/job-cards?status=STARTED&date=2024-03-04&page=2&page_size=5", nil)
	withClaims(c, "emp-7", models.RoleEmployee)

	handler.ListMine(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "emp-7", mockSvc.filter.EmployeeID)
	require.NotNil(t, mockSvc.filter.Status)
	assert.Equal(t, models.JobStatusStarted, *mockSvc.filter.Status)
	assert.Equal(t, "2024-03-04", mockSvc.filter.Date.Format(dateLayout))
	assert.Equal(t, 2, mockSvc.filter.Page)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, 5, env.Pagination.PageSize)
}

func TestJobCardHandlerAttachImageValidatesURL(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewJobCardHandler(&jobCardServiceMock{}, nil)

	c, w := newGinContext(http.MethodPut, "/job-cards/jc-1/image", []byte(`{"image_url":"not a url"}`))
	withClaims(c, "emp-1", models.RoleEmployee)
	handler.AttachImage(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodPut, "/job-cards/jc-1/image", []byte(`{"image_url":"https://cdn.example.com/a.jpg"}`))
	withClaims(c, "emp-1", models.RoleEmployee)
	handler.AttachImage(c)
	assert.Equal(t, http.StatusOK, w.Code)
}
