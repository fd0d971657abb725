package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldservice-api/internal/models"
	"github.com/noah-isme/fieldservice-api/pkg/response"
)

type activityService interface {
	List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityLog, *models.Pagination, error)
}

// ActivityHandler lists the activity log for admins.
type ActivityHandler struct {
	service activityService
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(svc activityService) *ActivityHandler {
	return &ActivityHandler{service: svc}
}

// List godoc
// @Summary Activity log
// @Tags Activity
// @Produce json
// @Security BearerAuth
// @Param user_id query string false "User ID"
// @Param action query string false "Action"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/activity-logs [get]
func (h *ActivityHandler) List(c *gin.Context) {
	from, to, ok := dateRangeFromQuery(c, "date_from", "date_to")
	if !ok {
		return
	}
	page := pageFromQuery(c)
	filter := models.ActivityFilter{
		UserID:   c.Query("user_id"),
		DateFrom: from,
		DateTo:   to,
		Page:     page.Page,
		PageSize: page.PageSize,
	}
	if raw := c.Query("action"); raw != "" {
		action := models.ActivityAction(raw)
		filter.Action = &action
	}

	entries, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}
