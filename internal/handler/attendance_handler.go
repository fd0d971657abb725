package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldservice-api/internal/models"
	"github.com/noah-isme/fieldservice-api/pkg/response"
)

type attendanceService interface {
	StartDay(ctx context.Context, employeeID string) (*models.DayAttendance, error)
	EndDay(ctx context.Context, employeeID string) (*models.DayAttendance, error)
	Today(ctx context.Context, employeeID string) (*models.TodayStatus, error)
	History(ctx context.Context, filter models.AttendanceFilter) ([]models.DayAttendance, *models.Pagination, error)
}

// AttendanceHandler exposes the employee's working-day endpoints.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// Start godoc
// @Summary Start my working day
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/start [post]
func (h *AttendanceHandler) Start(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	record, err := h.service.StartDay(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// End godoc
// @Summary End my working day
// @Description Closes the active day and computes work and overtime minutes
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/end [post]
func (h *AttendanceHandler) End(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	record, err := h.service.EndDay(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Today godoc
// @Summary Today's attendance state
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /attendance/today [get]
func (h *AttendanceHandler) Today(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	status, err := h.service.Today(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// History godoc
// @Summary My attendance history
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance/history [get]
func (h *AttendanceHandler) History(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	from, to, ok := dateRangeFromQuery(c, "date_from", "date_to")
	if !ok {
		return
	}
	page := pageFromQuery(c)
	records, pagination, err := h.service.History(c.Request.Context(), models.AttendanceFilter{
		EmployeeID: actor.UserID,
		DateFrom:   from,
		DateTo:     to,
		Page:       page.Page,
		PageSize:   page.PageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}
