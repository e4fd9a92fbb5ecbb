package handlers

import (
	"github.com/gin-gonic/gin"

	"reservation-platform/shared/middleware"
)

func SetupRoutes(r *gin.Engine, h *BookingHandler) {
	bookings := r.Group("/bookings")
	bookings.Use(middleware.AuthRequired())
	{
		bookings.POST("/", h.CreateBooking)
		bookings.GET("/", h.ListBookings)
		bookings.POST("/series", h.CreateSeries)
		bookings.POST("/series/preview", h.PreviewSeries)
		bookings.GET("/:id", h.GetBooking)
		bookings.PUT("/:id", h.UpdateBooking)
		bookings.PATCH("/:id/cancel", h.CancelBooking)
		bookings.PATCH("/:id/status", h.UpdateStatus)
	}
}
