package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldservice-api/internal/dto"
	"github.com/noah-isme/fieldservice-api/internal/models"
	"github.com/noah-isme/fieldservice-api/pkg/response"
)

type scoringService interface {
	AssignScore(ctx context.Context, assignedBy, id string) (*models.EmployeeScore, error)
	Backfill(ctx context.Context, assignedBy string) (int, error)
	ListByEmployee(ctx context.Context, filter models.ScoreFilter) ([]models.EmployeeScore, *models.ScoreTotals, error)
}

// ScoreHandler exposes manual scoring for admins.
type ScoreHandler struct {
	service scoringService
}

// NewScoreHandler constructs the handler.
func NewScoreHandler(svc scoringService) *ScoreHandler {
	return &ScoreHandler{service: svc}
}

// Assign godoc
// @Summary Score an approved job card
// @Tags Scores
// @Produce json
// @Security BearerAuth
// @Param jobCardId path string true "Job card ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/scores/{jobCardId} [post]
func (h *ScoreHandler) Assign(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	score, err := h.service.AssignScore(c.Request.Context(), actor.UserID, c.Param("jobCardId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, score)
}

// Backfill godoc
// @Summary Score every approved card still missing a score
// @Tags Scores
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/scores/backfill [post]
func (h *ScoreHandler) Backfill(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	scored, err := h.service.Backfill(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.BackfillResponse{Scored: scored}, nil)
}

// ListByEmployee godoc
// @Summary Scores of one employee
// @Tags Scores
// @Produce json
// @Security BearerAuth
// @Param employeeId path string true "Employee ID"
// @Param start_date query string false "YYYY-MM-DD"
// @Param end_date query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /admin/scores/employees/{employeeId} [get]
func (h *ScoreHandler) ListByEmployee(c *gin.Context) {
	from, to, ok := dateRangeFromQuery(c, "start_date", "end_date")
	if !ok {
		return
	}
	scores, totals, err := h.service.ListByEmployee(c.Request.Context(), models.ScoreFilter{
		EmployeeID: c.Param("employeeId"),
		DateFrom:   from,
		DateTo:     to,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ScoreListResponse{Scores: scores, Totals: totals}, nil)
}
