package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/fieldservice-api/internal/middleware"
	"github.com/noah-isme/fieldservice-api/internal/models"
	"github.com/noah-isme/fieldservice-api/internal/service"
	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
	"github.com/noah-isme/fieldservice-api/pkg/response"
)

const dateLayout = "2006-01-02"

// actorFromContext returns the caller, writing 401 when the request is anonymous.
func actorFromContext(c *gin.Context) (service.Actor, bool) {
	claims := middleware.Claims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return service.Actor{}, false
	}
	return service.ActorFromClaims(claims), true
}

// bindJSON decodes and validates the body, writing 400 on failure.
func bindJSON(c *gin.Context, v *validator.Validate, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	if v == nil {
		return true
	}
	if err := v.Struct(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

func pageFromQuery(c *gin.Context) models.PageRequest {
	page := models.PageRequest{}
	if v, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		page.Page = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		page.PageSize = v
	}
	return page.Normalize()
}

func parseDateParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "dates must use YYYY-MM-DD")
	}
	return &parsed, nil
}

// dateRangeFromQuery reads optional from/to query parameters.
func dateRangeFromQuery(c *gin.Context, fromKey, toKey string) (*time.Time, *time.Time, bool) {
	from, err := parseDateParam(c.Query(fromKey))
	if err != nil {
		response.Error(c, err)
		return nil, nil, false
	}
	to, err := parseDateParam(c.Query(toKey))
	if err != nil {
		response.Error(c, err)
		return nil, nil, false
	}
	return from, to, true
}
