package dto

import (
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/fieldservice-api/internal/models"
)

// TransitionRequest captures POST /job-cards/:id/status. Coordinates are optional;
// a change without them is still applied.
type TransitionRequest struct {
	Status    models.JobStatus `json:"status" validate:"required,job_status"`
	Latitude  *float64         `json:"latitude,omitempty"`
	Longitude *float64         `json:"longitude,omitempty"`
}

// ImageRequest captures PUT /job-cards/:id/image.
type ImageRequest struct {
	URL string `json:"image_url" validate:"required,url,max=2048"`
}

// RejectRequest captures POST /admin/approvals/:id/reject.
type RejectRequest struct {
	Note string `json:"note"`
}

// BulkApproveRequest captures POST /admin/approvals/bulk.
type BulkApproveRequest struct {
	IDs []string `json:"job_card_ids" validate:"required,min=1,max=100,dive,required"`
}

// BulkApproveResponse reports every id of a bulk approval.
type BulkApproveResponse struct {
	Requested int                         `json:"requested"`
	Approved  int                         `json:"approved"`
	Failed    int                         `json:"failed"`
	Results   []models.BulkApprovalResult `json:"results"`
}

// LogoutRequest captures POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// BackfillResponse reports a score backfill run.
type BackfillResponse struct {
	Scored int `json:"scored"`
}

// ScoreListResponse bundles an employee's scores with their totals.
type ScoreListResponse struct {
	Scores []models.EmployeeScore `json:"scores"`
	Totals *models.ScoreTotals    `json:"totals"`
}

// RegisterValidations adds the custom tags used by the request types.
func RegisterValidations(v *validator.Validate) error {
	return v.RegisterValidation("job_status", func(fl validator.FieldLevel) bool {
		return models.JobStatus(fl.Field().String()).Valid()
	})
}
