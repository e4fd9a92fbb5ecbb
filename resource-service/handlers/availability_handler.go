package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reservation-platform/shared/middleware"
	"reservation-platform/shared/models"
)

type AvailabilityAPI interface {
	ComputeAvailability(ctx context.Context, tenantID, resourceID uuid.UUID, date string) (*models.Availability, error)
}

type AvailabilityHandler struct {
	availability AvailabilityAPI
	now          func() time.Time
}

func NewAvailabilityHandler(availability AvailabilityAPI) *AvailabilityHandler {
	return &AvailabilityHandler{availability: availability, now: time.Now}
}

// GetAvailability serves GET /resources/:id/availability?date=YYYY-MM-DD.
// Without a date, today in UTC is used.
func (h *AvailabilityHandler) GetAvailability(c *gin.Context) {
	resourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		middleware.BadRequest(c, "Invalid resource ID")
		return
	}

	date := c.Query("date")
	if date == "" {
		date = h.now().UTC().Format("2006-01-02")
	}

	availability, err := h.availability.ComputeAvailability(c.Request.Context(), middleware.TenantID(c), resourceID, date)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, availability)
}
