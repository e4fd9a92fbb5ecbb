package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reservation-platform/booking-service/services"
	"reservation-platform/booking-service/store"
	"reservation-platform/shared/middleware"
	"reservation-platform/shared/models"
)

const (
	defaultLimit = 100
	maxLimit     = 500
)

// BookingAPI is the scheduling surface exposed over HTTP.
type BookingAPI interface {
	CreateBooking(ctx context.Context, req services.CreateBookingRequest) (*models.Booking, error)
	GetBooking(ctx context.Context, tenantID, id uuid.UUID) (*models.Booking, error)
	UpdateBooking(ctx context.Context, tenantID, id uuid.UUID, req services.UpdateBookingRequest) (*models.Booking, error)
	CancelBooking(ctx context.Context, tenantID, id, cancelledBy uuid.UUID, reason string) (*models.Booking, error)
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status models.BookingStatus) (*models.Booking, error)
	ListBookings(ctx context.Context, f store.ListFilter) ([]services.BookingView, error)
	CreateSeries(ctx context.Context, req services.CreateBookingRequest) (*services.SeriesResult, error)
	PreviewSeries(ctx context.Context, req services.CreateBookingRequest) ([]services.SeriesOccurrence, error)
}

type BookingHandler struct {
	bookings BookingAPI
}

func NewBookingHandler(bookings BookingAPI) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type UpdateStatusRequest struct {
	Status models.BookingStatus `json:"status" binding:"required"`
}

func (h *BookingHandler) bindCreate(c *gin.Context) (services.CreateBookingRequest, bool) {
	var req services.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.BadRequest(c, err.Error())
		return req, false
	}
	req.TenantID = middleware.TenantID(c)
	if req.UserID == uuid.Nil {
		req.UserID = middleware.UserID(c)
	}
	return req, true
}

func (h *BookingHandler) CreateBooking(c *gin.Context) {
	req, ok := h.bindCreate(c)
	if !ok {
		return
	}

	booking, err := h.bookings.CreateBooking(c.Request.Context(), req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

func (h *BookingHandler) GetBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), middleware.TenantID(c), id)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

func (h *BookingHandler) UpdateBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var req services.UpdateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.BadRequest(c, err.Error())
		return
	}

	booking, err := h.bookings.UpdateBooking(c.Request.Context(), middleware.TenantID(c), id, req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

func (h *BookingHandler) CancelBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var req CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.BadRequest(c, err.Error())
			return
		}
	}

	booking, err := h.bookings.CancelBooking(c.Request.Context(), middleware.TenantID(c), id, middleware.UserID(c), req.Reason)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.BadRequest(c, err.Error())
		return
	}

	booking, err := h.bookings.UpdateStatus(c.Request.Context(), middleware.TenantID(c), id, req.Status)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ListBookings also serves the availability lookup of resource-service:
// start_date and end_date select bookings overlapping that range.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	f := store.ListFilter{TenantID: middleware.TenantID(c)}

	if v := c.Query("resource_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			middleware.BadRequest(c, "invalid resource_id")
			return
		}
		f.ResourceID = &id
	}
	if v := c.Query("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			middleware.BadRequest(c, "invalid user_id")
			return
		}
		f.UserID = &id
	}
	if v := c.Query("status"); v != "" {
		for _, s := range strings.Split(v, ",") {
			status := models.BookingStatus(strings.TrimSpace(s))
			if !status.Valid() {
				middleware.BadRequest(c, "invalid status "+string(status))
				return
			}
			f.Statuses = append(f.Statuses, status)
		}
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"start_date", &f.From}, {"end_date", &f.To}} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			middleware.BadRequest(c, "invalid "+p.name+", expected RFC 3339")
			return
		}
		*p.dst = &t
	}

	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if f.Limit <= 0 || f.Limit > maxLimit {
		f.Limit = defaultLimit
	}
	f.Offset, _ = strconv.Atoi(c.Query("offset"))
	if f.Offset < 0 {
		f.Offset = 0
	}

	bookings, err := h.bookings.ListBookings(c.Request.Context(), f)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

func (h *BookingHandler) CreateSeries(c *gin.Context) {
	req, ok := h.bindCreate(c)
	if !ok {
		return
	}

	result, err := h.bookings.CreateSeries(c.Request.Context(), req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	status := http.StatusCreated
	if len(result.Created) == 0 {
		status = http.StatusConflict
	}
	c.JSON(status, result)
}

func (h *BookingHandler) PreviewSeries(c *gin.Context) {
	req, ok := h.bindCreate(c)
	if !ok {
		return
	}

	occurrences, err := h.bookings.PreviewSeries(c.Request.Context(), req)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"occurrences": occurrences})
}

func bookingID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		middleware.BadRequest(c, "invalid booking id")
		return uuid.Nil, false
	}
	return id, true
}
