package handlers

import (
	"github.com/gin-gonic/gin"

	"reservation-platform/shared/middleware"
)

func SetupRoutes(r *gin.Engine, h *AvailabilityHandler) {
	resources := r.Group("/resources")
	resources.Use(middleware.AuthRequired())
	{
		resources.GET("/:id/availability", h.GetAvailability)
	}
}
