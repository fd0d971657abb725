package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldservice-api/internal/geo"
	"github.com/noah-isme/fieldservice-api/internal/models"
	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
)

type jobCardStore struct {
	mu         sync.Mutex
	cards      map[string]*models.JobCardDetail
	logs       []models.StatusLogEntry
	inProgress int
	updateErr  error
}

func newJobCardStore(cards ...models.JobCardDetail) *jobCardStore {
	s := &jobCardStore{cards: make(map[string]*models.JobCardDetail)}
	for i := range cards {
		card := cards[i]
		s.cards[card.ID] = &card
	}
	return s
}

func (s *jobCardStore) FindByID(ctx context.Context, id string) (*models.JobCardDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.cards[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *card
	return &copied, nil
}

func (s *jobCardStore) ListByEmployee(ctx context.Context, filter models.JobCardFilter) ([]models.JobCardDetail, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.JobCardDetail
	for _, card := range s.cards {
		if card.EmployeeID == filter.EmployeeID {
			out = append(out, *card)
		}
	}
	return out, len(out), nil
}

func (s *jobCardStore) UpdateAfterTransition(ctx context.Context, card *models.JobCard, entry *models.StatusLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	stored := s.cards[card.ID]
	if stored.Version != card.Version {
		return sql.ErrNoRows
	}
	card.Version++
	stored.JobCard = *card
	s.logs = append(s.logs, *entry)
	return nil
}

func (s *jobCardStore) ListLogs(ctx context.Context, jobCardID string) ([]models.StatusLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StatusLogEntry
	for _, entry := range s.logs {
		if entry.JobCardID == jobCardID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *jobCardStore) UpdateImage(ctx context.Context, id, url string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.cards[id]
	if !ok {
		return sql.ErrNoRows
	}
	card.ImageURL = &url
	return nil
}

func (s *jobCardStore) CountInProgress(ctx context.Context, employeeID, excludeID string) (int, error) {
	return s.inProgress, nil
}

func (s *jobCardStore) UpdateApproval(ctx context.Context, card *models.JobCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	stored, ok := s.cards[card.ID]
	if !ok || stored.Version != card.Version || stored.Status != models.JobStatusCompleted {
		return sql.ErrNoRows
	}
	card.Version++
	stored.JobCard = *card
	return nil
}

func (s *jobCardStore) ListPendingApproval(ctx context.Context, page models.PageRequest) ([]models.JobCardDetail, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.JobCardDetail
	for _, card := range s.cards {
		if card.Status == models.JobStatusCompleted && !card.Approved {
			out = append(out, *card)
		}
	}
	return out, len(out), nil
}

func (s *jobCardStore) ApprovalStats(ctx context.Context) (*models.ApprovalStats, error) {
	return &models.ApprovalStats{}, nil
}

func (s *jobCardStore) ListScorable(ctx context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, card := range s.cards {
		if card.Approved && card.Score == nil {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *jobCardStore) get(id string) models.JobCardDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.cards[id]
}

type ticketStub struct {
	mu      sync.Mutex
	tickets map[string]*models.Ticket
	cards   map[string][]models.JobStatus
	store   *jobCardStore
}

func (t *ticketStub) FindByID(ctx context.Context, id string) (*models.Ticket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ticket, ok := t.tickets[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (t *ticketStub) CardStatuses(ctx context.Context, ticketID string) ([]models.JobStatus, error) {
	if t.store == nil {
		return t.cards[ticketID], nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	var out []models.JobStatus
	for _, card := range t.store.cards {
		if card.TicketID == ticketID {
			out = append(out, card.Status)
		}
	}
	return out, nil
}

func (t *ticketStub) UpdateStatus(ctx context.Context, ticketID string, status models.TicketStatus, at time.Time) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tickets[ticketID].Status = status
	return true, nil
}

type activeDayStub struct {
	active bool
}

func (d activeDayStub) FindActive(ctx context.Context, employeeID string) (*models.DayAttendance, error) {
	if !d.active {
		return nil, sql.ErrNoRows
	}
	return &models.DayAttendance{EmployeeID: employeeID, Status: models.AttendanceActive}, nil
}

var (
	employeeActor = Actor{UserID: "emp-1", Role: models.RoleEmployee}
	adminActor    = Actor{UserID: "admin-1", Role: models.RoleAdmin}
)

func pendingCard(id string) models.JobCardDetail {
	return models.JobCardDetail{
		JobCard:      models.JobCard{ID: id, TicketID: "t-1", EmployeeID: "emp-1", Status: models.JobStatusPending, Version: 1},
		TicketNumber: "TCK-001",
		TicketWeight: 3,
	}
}

func location(lat, lng float64) geo.Provider {
	return geo.FromRequest(&lat, &lng)
}

func newJobCardServiceForTest(store *jobCardStore, policy JobCardPolicy) (*JobCardService, *ticketStub, *recorderStub, *MetricsService, *time.Time) {
	tickets := &ticketStub{tickets: map[string]*models.Ticket{"t-1": {ID: "t-1", Weight: 3, Status: models.TicketStatusPending}}, store: store}
	activity := &recorderStub{}
	metrics := NewMetricsService()
	svc := NewJobCardService(JobCardServiceParams{
		Repo:     store,
		Tickets:  tickets,
		Days:     activeDayStub{active: true},
		Activity: activity,
		Metrics:  metrics,
		Logger:   zap.NewNop(),
		Policy:   policy,
	})
	clock := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	return svc, tickets, activity, metrics, &clock
}

func TestJobCardServiceFullWorkflowWithHold(t *testing.T) {
	store := newJobCardStore(pendingCard("jc-1"))
	svc, tickets, activity, _, clock := newJobCardServiceForTest(store, JobCardPolicy{})
	ctx := context.Background()

	steps := []struct {
		at     time.Time
		target models.JobStatus
	}{
		{time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC), models.JobStatusTraveling},
		{time.Date(2024, 3, 4, 8, 30, 0, 0, time.UTC), models.JobStatusStarted},
		{time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC), models.JobStatusOnHold},
		{time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), models.JobStatusStarted},
		{time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC), models.JobStatusCompleted},
	}
	for _, step := range steps {
		*clock = step.at
		res, err := svc.Transition(ctx, employeeActor, "jc-1", step.target, location(-6.2, 106.8))
		require.NoError(t, err, step.target)
		assert.True(t, res.LocationCaptured)
		assert.Equal(t, step.target, res.JobCard.Status)
	}

	card := store.get("jc-1")
	assert.Equal(t, models.JobStatusCompleted, card.Status)
	assert.Equal(t, 120, card.WorkMinutes)
	require.NotNil(t, card.StartTime)
	assert.Equal(t, steps[1].at, *card.StartTime)
	require.NotNil(t, card.EndTime)
	assert.Equal(t, steps[4].at, *card.EndTime)
	assert.Equal(t, 6, card.Version)

	logs, err := svc.StatusLog(ctx, employeeActor, "jc-1")
	require.NoError(t, err)
	require.Len(t, logs, 5)
	assert.Equal(t, models.JobStatusPending, *logs[0].PreviousStatus)
	for i := 1; i < len(logs); i++ {
		assert.Equal(t, logs[i-1].NewStatus, *logs[i].PreviousStatus)
		assert.NotNil(t, logs[i].Latitude)
	}

	assert.Equal(t, models.TicketStatusCompleted, tickets.tickets["t-1"].Status)
	assert.Len(t, activity.actions(), 5)
}

func TestJobCardServiceRejectsIllegalEdges(t *testing.T) {
	cases := []struct {
		name    string
		current models.JobStatus
		target  models.JobStatus
	}{
		{"skip traveling", models.JobStatusPending, models.JobStatusStarted},
		{"self transition", models.JobStatusStarted, models.JobStatusStarted},
		{"leave completed", models.JobStatusCompleted, models.JobStatusStarted},
		{"leave cancel", models.JobStatusCancel, models.JobStatusPending},
		{"cancel from hold", models.JobStatusOnHold, models.JobStatusCancel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			card := pendingCard("jc-1")
			card.Status = tc.current
			store := newJobCardStore(card)
			svc, _, _, metrics, _ := newJobCardServiceForTest(store, JobCardPolicy{})

			_, err := svc.Transition(context.Background(), employeeActor, "jc-1", tc.target, nil)
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
			assert.Equal(t, tc.current, appErr.Details["current_status"])
			assert.Equal(t, tc.target, appErr.Details["target_status"])
			assert.Empty(t, store.logs)
			assert.Equal(t, 1, store.get("jc-1").Version)
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transitions.WithLabelValues(string(tc.current), string(tc.target), outcomeRejected)))
		})
	}
}

func TestJobCardServiceLocationFailureIsNotFatal(t *testing.T) {
	store := newJobCardStore(pendingCard("jc-1"))
	svc, _, _, metrics, _ := newJobCardServiceForTest(store, JobCardPolicy{GeoTimeout: 20 * time.Millisecond})

	failing := geo.ProviderFunc(func(ctx context.Context) (models.Location, error) {
		return models.Location{}, errors.New("gps off")
	})
	res, err := svc.Transition(context.Background(), employeeActor, "jc-1", models.JobStatusTraveling, failing)
	require.NoError(t, err)
	assert.False(t, res.LocationCaptured)
	assert.Nil(t, res.Log.Latitude)
	assert.Nil(t, res.Log.Longitude)
	require.Len(t, store.logs, 1)

	slow := geo.ProviderFunc(func(ctx context.Context) (models.Location, error) {
		<-ctx.Done()
		return models.Location{}, ctx.Err()
	})
	res, err = svc.Transition(context.Background(), employeeActor, "jc-1", models.JobStatusStarted, slow)
	require.NoError(t, err)
	assert.False(t, res.LocationCaptured)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.locationFailed))
}

func TestJobCardServiceForbidsOtherEmployees(t *testing.T) {
	store := newJobCardStore(pendingCard("jc-1"))
	svc, _, _, _, _ := newJobCardServiceForTest(store, JobCardPolicy{})

	_, err := svc.Transition(context.Background(), Actor{UserID: "emp-2", Role: models.RoleEmployee}, "jc-1", models.JobStatusTraveling, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Transition(context.Background(), adminActor, "jc-1", models.JobStatusTraveling, nil)
	require.NoError(t, err)
}

func TestJobCardServiceNotFoundAndUnknownStatus(t *testing.T) {
	svc, _, _, _, _ := newJobCardServiceForTest(newJobCardStore(), JobCardPolicy{})

	_, err := svc.Transition(context.Background(), adminActor, "missing", models.JobStatusTraveling, nil)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Transition(context.Background(), adminActor, "missing", models.JobStatus("DONE"), nil)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestJobCardServicePolicies(t *testing.T) {
	t.Run("require active day", func(t *testing.T) {
		store := newJobCardStore(pendingCard("jc-1"))
		svc, _, _, _, _ := newJobCardServiceForTest(store, JobCardPolicy{RequireActiveDay: true})
		svc.days = activeDayStub{active: false}

		_, err := svc.Transition(context.Background(), employeeActor, "jc-1", models.JobStatusTraveling, nil)
		assert.Equal(t, appErrors.ErrDayNotActive.Code, appErrors.FromError(err).Code)

		_, err = svc.Transition(context.Background(), adminActor, "jc-1", models.JobStatusTraveling, nil)
		assert.NoError(t, err)
	})

	t.Run("single active job", func(t *testing.T) {
		store := newJobCardStore(pendingCard("jc-1"))
		store.inProgress = 1
		svc, _, _, _, _ := newJobCardServiceForTest(store, JobCardPolicy{SingleActive: true})

		_, err := svc.Transition(context.Background(), employeeActor, "jc-1", models.JobStatusTraveling, nil)
		assert.Equal(t, appErrors.ErrActiveJobExists.Code, appErrors.FromError(err).Code)

		_, err = svc.Transition(context.Background(), employeeActor, "jc-1", models.JobStatusCancel, nil)
		assert.NoError(t, err)
	})
}

func TestJobCardServiceVersionConflict(t *testing.T) {
	store := newJobCardStore(pendingCard("jc-1"))
	store.updateErr = sql.ErrNoRows
	svc, _, _, _, _ := newJobCardServiceForTest(store, JobCardPolicy{})

	_, err := svc.Transition(context.Background(), employeeActor, "jc-1", models.JobStatusTraveling, nil)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestJobCardServiceConcurrentTransitionsSerialise(t *testing.T) {
	card := pendingCard("jc-1")
	card.Status = models.JobStatusTraveling
	store := newJobCardStore(card)
	svc, _, _, _, _ := newJobCardServiceForTest(store, JobCardPolicy{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Transition(context.Background(), employeeActor, "jc-1", models.JobStatusStarted, nil)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, store.logs, 1)
}

func TestJobCardServiceAttachImage(t *testing.T) {
	store := newJobCardStore(pendingCard("jc-1"))
	svc, _, activity, _, _ := newJobCardServiceForTest(store, JobCardPolicy{})

	_, err := svc.AttachImage(context.Background(), employeeActor, "jc-1", "   ")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	detail, err := svc.AttachImage(context.Background(), employeeActor, "jc-1", " https://cdn.example.com/a.jpg ")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.jpg", *detail.ImageURL)
	assert.Equal(t, []models.ActivityAction{models.ActivityImageAttached}, activity.actions())
}

func TestJobCardServiceListForEmployee(t *testing.T) {
	store := newJobCardStore(pendingCard("jc-1"), pendingCard("jc-2"))
	svc, _, _, _, _ := newJobCardServiceForTest(store, JobCardPolicy{})

	_, _, err := svc.ListForEmployee(context.Background(), models.JobCardFilter{})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	cards, pagination, err := svc.ListForEmployee(context.Background(), models.JobCardFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Len(t, cards, 2)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, 20, pagination.PageSize)
}
