package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/fieldservice-api/internal/dto"
	"github.com/noah-isme/fieldservice-api/internal/models"
	"github.com/noah-isme/fieldservice-api/internal/service"
	"github.com/noah-isme/fieldservice-api/pkg/response"
)

type approvalService interface {
	Approve(ctx context.Context, actor service.Actor, id string) (*models.JobCardDetail, error)
	Reject(ctx context.Context, actor service.Actor, id, note string) (*models.JobCardDetail, error)
	BulkApprove(ctx context.Context, actor service.Actor, ids []string) ([]models.BulkApprovalResult, error)
	ListPending(ctx context.Context, page models.PageRequest) ([]models.JobCardDetail, *models.Pagination, error)
	Statistics(ctx context.Context) (*models.ApprovalStats, error)
}

// ApprovalHandler exposes the admin approval gate.
type ApprovalHandler struct {
	service   approvalService
	validator *validator.Validate
}

// NewApprovalHandler constructs the handler.
func NewApprovalHandler(svc approvalService, validate *validator.Validate) *ApprovalHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &ApprovalHandler{service: svc, validator: validate}
}

// Pending godoc
// @Summary Completed job cards awaiting a decision
// @Tags Approvals
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/approvals [get]
func (h *ApprovalHandler) Pending(c *gin.Context) {
	cards, pagination, err := h.service.ListPending(c.Request.Context(), pageFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cards, pagination)
}

// Stats godoc
// @Summary Approval statistics
// @Tags Approvals
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/approvals/stats [get]
func (h *ApprovalHandler) Stats(c *gin.Context) {
	stats, err := h.service.Statistics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Approve godoc
// @Summary Approve a completed job card
// @Tags Approvals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job card ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/approvals/{id}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	card, err := h.service.Approve(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// Reject godoc
// @Summary Reject a completed job card
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job card ID"
// @Param payload body dto.RejectRequest true "Rejection note"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/approvals/{id}/reject [post]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.RejectRequest
	// The note is checked by the service so a missing note on a non-completed
	// card still reports NOT_COMPLETED.
	if !bindJSON(c, nil, &req, "invalid rejection payload") {
		return
	}
	card, err := h.service.Reject(c.Request.Context(), actor, c.Param("id"), req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// Bulk godoc
// @Summary Approve several job cards
// @Description Each id is processed independently; failures are reported per id.
// @Tags Approvals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.BulkApproveRequest true "Job card ids"
// @Success 200 {object} response.Envelope
// @Router /admin/approvals/bulk [post]
func (h *ApprovalHandler) Bulk(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.BulkApproveRequest
	if !bindJSON(c, h.validator, &req, "invalid bulk approval payload") {
		return
	}
	results, err := h.service.BulkApprove(c.Request.Context(), actor, req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := dto.BulkApproveResponse{Requested: len(req.IDs), Results: results}
	for _, r := range results {
		if r.Approved {
			out.Approved++
		} else {
			out.Failed++
		}
	}
	response.JSON(c, http.StatusOK, out, nil)
}
