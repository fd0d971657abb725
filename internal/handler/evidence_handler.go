package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldservice-api/internal/models"
	"github.com/noah-isme/fieldservice-api/internal/service"
	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
	"github.com/noah-isme/fieldservice-api/pkg/response"
)

type evidenceService interface {
	Upload(ctx context.Context, actor service.Actor, id string, upload models.ImageUpload) (*models.JobCardDetail, error)
	Link(ctx context.Context, actor service.Actor, id string) (*models.ImageLink, error)
	Open(ctx context.Context, token string) (*models.StoredFile, error)
	MaxBytes() int64
}

// EvidenceHandler handles job card photo uploads and signed downloads.
type EvidenceHandler struct {
	service evidenceService
}

// NewEvidenceHandler constructs the handler.
func NewEvidenceHandler(svc evidenceService) *EvidenceHandler {
	return &EvidenceHandler{service: svc}
}

// Upload godoc
// @Summary Upload evidence image
// @Description Stores the photo and replaces any previously uploaded one
// @Tags JobCards
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job card ID"
// @Param file formData file true "Image (jpeg, png, gif or webp)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /job-cards/{id}/image/upload [post]
func (h *EvidenceHandler) Upload(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "cannot read file"))
		return
	}
	defer file.Close()

	// One extra byte lets the service see the upload is over the limit.
	data, err := io.ReadAll(io.LimitReader(file, h.service.MaxBytes()+1))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "cannot read file"))
		return
	}

	card, err := h.service.Upload(c.Request.Context(), actor, c.Param("id"), models.ImageUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// Link godoc
// @Summary Evidence image link
// @Tags JobCards
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job card ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /job-cards/{id}/image [get]
func (h *EvidenceHandler) Link(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	link, err := h.service.Link(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Serve streams a stored image addressed by a signed token.
func (h *EvidenceHandler) Serve(c *gin.Context) {
	file, err := h.service.Open(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Content.Close()

	c.Header("Cache-Control", "private, max-age=300")
	c.Header("Content-Disposition", `inline; filename="`+file.Name+`"`)
	c.DataFromReader(http.StatusOK, file.Size, file.ContentType, file.Content, nil)
}
