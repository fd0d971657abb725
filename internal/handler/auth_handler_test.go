package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldservice-api/internal/models"
	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
)

type authServiceMock struct {
	login   models.LoginRequest
	refresh models.RefreshTokenRequest
	logout  struct{ token, userID string }
	session *models.Session
	err     error
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.Session, error) {
	m.login = req
	return m.session, m.err
}

func (m *authServiceMock) RefreshToken(ctx context.Context, req models.RefreshTokenRequest) (*models.Session, error) {
	m.refresh = req
	return m.session, m.err
}

func (m *authServiceMock) Logout(ctx context.Context, refreshToken, userID string) error {
	m.logout.token, m.logout.userID = refreshToken, userID
	return m.err
}

func testSession() *models.Session {
	return &models.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresIn:    900,
		IssuedAt:     time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC),
		User:         models.UserInfo{ID: "emp-1", Role: models.RoleEmployee},
	}
}

func TestAuthHandlerLoginStampsClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{session: testSession()}
	h := NewAuthHandler(mockSvc, validator.New())

	c, w := newGinContext(http.MethodPost, "/auth/login", []byte(`{"email":"tech@example.com","password":"pw"}`))
	c.Request.Header.Set("User-Agent", "field-app/2.1")
	h.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tech@example.com", mockSvc.login.Email)
	assert.Equal(t, "field-app/2.1", mockSvc.login.UserAgent)

	env := decodeEnvelope(t, w)
	var session models.Session
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.Equal(t, "refresh", session.RefreshToken)
	assert.Equal(t, "2024-03-04T08:15:00Z", env.Meta["access_expires_at"])
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestAuthHandlerRefreshErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "malformed body", body: `{`, status: http.StatusBadRequest},
		{name: "replayed token", body: `{"refresh_token":"used"}`, err: appErrors.ErrUnauthorized, status: http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewAuthHandler(&authServiceMock{err: tc.err}, validator.New())
			c, w := newGinContext(http.MethodPost, "/auth/refresh", []byte(tc.body))
			h.Refresh(c)
			assert.Equal(t, tc.status, w.Code)
			assert.NotNil(t, decodeEnvelope(t, w).Error)
		})
	}
}

func TestAuthHandlerLogout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{}
	h := NewAuthHandler(mockSvc, validator.New())

	c, w := newGinContext(http.MethodPost, "/auth/logout", []byte(`{"refresh_token":"refresh"}`))
	h.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodPost, "/auth/logout", []byte(`{}`))
	withClaims(c, "emp-1", models.RoleEmployee)
	h.Logout(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodPost, "/auth/logout", []byte(`{"refresh_token":"refresh"}`))
	withClaims(c, "emp-1", models.RoleEmployee)
	h.Logout(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "refresh", mockSvc.logout.token)
	assert.Equal(t, "emp-1", mockSvc.logout.userID)
}
