package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/fieldservice-api/internal/dto"
	"github.com/noah-isme/fieldservice-api/internal/geo"
	"github.com/noah-isme/fieldservice-api/internal/middleware"
	"github.com/noah-isme/fieldservice-api/internal/models"
	"github.com/noah-isme/fieldservice-api/internal/service"
	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
	"github.com/noah-isme/fieldservice-api/pkg/response"
)

type jobCardService interface {
	Transition(ctx context.Context, actor service.Actor, id string, target models.JobStatus, provider geo.Provider) (*models.TransitionResult, error)
	Get(ctx context.Context, actor service.Actor, id string) (*models.JobCardDetail, error)
	StatusLog(ctx context.Context, actor service.Actor, id string) ([]models.StatusLogEntry, error)
	ListForEmployee(ctx context.Context, filter models.JobCardFilter) ([]models.JobCardDetail, *models.Pagination, error)
	AttachImage(ctx context.Context, actor service.Actor, id, url string) (*models.JobCardDetail, error)
}

// JobCardHandler exposes job-card reads and the status workflow.
type JobCardHandler struct {
	service   jobCardService
	validator *validator.Validate
}

// NewJobCardHandler constructs the handler and registers the job_status tag on validate.
func NewJobCardHandler(svc jobCardService, validate *validator.Validate) *JobCardHandler {
	if validate == nil {
		validate = validator.New()
	}
	_ = dto.RegisterValidations(validate)
	return &JobCardHandler{service: svc, validator: validate}
}

// ListMine godoc
// @Summary List my job cards
// @Tags JobCards
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status filter"
// @Param date query string false "Scheduled date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /employee/job-cards [get]
func (h *JobCardHandler) ListMine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	filter := models.JobCardFilter{EmployeeID: actor.UserID}
	if raw := c.Query("status"); raw != "" {
		status := models.JobStatus(raw)
		filter.Status = &status
	}
	date, err := parseDateParam(c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.Date = date
	page := pageFromQuery(c)
	filter.Page, filter.PageSize = page.Page, page.PageSize

	cards, pagination, err := h.service.ListForEmployee(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cards, pagination)
}

// Get godoc
// @Summary Get job card
// @Tags JobCards
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job card ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /job-cards/{id} [get]
func (h *JobCardHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	card, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// Logs godoc
// @Summary Job card status log
// @Description Transitions in chronological order
// @Tags JobCards
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job card ID"
// @Success 200 {object} response.Envelope
// @Router /job-cards/{id}/logs [get]
func (h *JobCardHandler) Logs(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	entries, err := h.service.StatusLog(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// UpdateStatus godoc
// @Summary Change job card status
// @Description Applies one transition. Coordinates are optional and never block the change.
// @Tags JobCards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job card ID"
// @Param payload body dto.TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /job-cards/{id}/status [post]
func (h *JobCardHandler) UpdateStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.TransitionRequest
	if !bindJSON(c, h.validator, &req, "invalid status payload") {
		return
	}

	res, err := h.service.Transition(c.Request.Context(), actor, c.Param("id"), req.Status, geo.FromRequest(req.Latitude, req.Longitude))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !res.LocationCaptured {
		middleware.SetMeta(c, "warning", appErrors.ErrLocationUnavailable.Code)
	}
	response.JSON(c, http.StatusOK, res, nil, middleware.ExtractMeta(c))
}

// AttachImage godoc
// @Summary Attach evidence image
// @Tags JobCards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job card ID"
// @Param payload body dto.ImageRequest true "Image URL"
// @Success 200 {object} response.Envelope
// @Router /job-cards/{id}/image [put]
func (h *JobCardHandler) AttachImage(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ImageRequest
	if !bindJSON(c, h.validator, &req, "invalid image payload") {
		return
	}
	card, err := h.service.AttachImage(c.Request.Context(), actor, c.Param("id"), req.URL)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}
