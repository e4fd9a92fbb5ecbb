package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"reservation-platform/booking-service/store"
	"reservation-platform/shared/apperror"
	"reservation-platform/shared/events"
	"reservation-platform/shared/logging"
	"reservation-platform/shared/models"
	"reservation-platform/shared/policy"
	"reservation-platform/shared/recurrence"
	"reservation-platform/shared/scheduling"
)

// Repository is the booking persistence used by BookingService.
// Create and Update must re-check conflicts atomically with the write.
type Repository interface {
	FindConflicts(ctx context.Context, tenantID, resourceID uuid.UUID, start, end time.Time, excludeID uuid.UUID) ([]models.Booking, error)
	Create(ctx context.Context, b *models.Booking) error
	Update(ctx context.Context, b *models.Booking) error
	Cancel(ctx context.Context, b *models.Booking) error
	UpdateStatus(ctx context.Context, b *models.Booking, from models.BookingStatus) error
	Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Booking, error)
	List(ctx context.Context, f store.ListFilter) ([]models.Booking, error)
}

type EventPublisher interface {
	Publish(eventType events.EventType, payload interface{}, metadata map[string]string)
}

type BookingService struct {
	repo      Repository
	policies  policy.Resolver
	publisher EventPublisher
	now       func() time.Time
}

func NewBookingService(repo Repository, policies policy.Resolver, publisher EventPublisher) *BookingService {
	return &BookingService{
		repo:      repo,
		policies:  policies,
		publisher: publisher,
		now:       time.Now,
	}
}

// WithClock replaces the wall clock used for policy checks.
func (s *BookingService) WithClock(now func() time.Time) *BookingService {
	s.now = now
	return s
}

type CreateBookingRequest struct {
	TenantID         uuid.UUID                `json:"-"`
	ResourceID       uuid.UUID                `json:"resource_id" binding:"required"`
	UserID           uuid.UUID                `json:"user_id"`
	ClientID         *uuid.UUID               `json:"client_id"`
	StartTime        time.Time                `json:"start_time" binding:"required"`
	EndTime          time.Time                `json:"end_time" binding:"required"`
	Status           models.BookingStatus     `json:"status"`
	Notes            *string                  `json:"notes"`
	RecurringPattern *models.RecurringPattern `json:"recurring_pattern"`
}

type UpdateBookingRequest struct {
	ResourceID *uuid.UUID `json:"resource_id"`
	ClientID   *uuid.UUID `json:"client_id"`
	StartTime  *time.Time `json:"start_time"`
	EndTime    *time.Time `json:"end_time"`
	Notes      *string    `json:"notes"`
}

// BookingView is a booking as listed to a caller.
type BookingView struct {
	models.Booking
	CanCancel bool `json:"can_cancel"`
}

// CreateBooking validates the requested window against the tenant's
// policy, rejects it if any active booking overlaps, then stores it.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	if req.TenantID == uuid.Nil || req.ResourceID == uuid.Nil || req.UserID == uuid.Nil {
		return nil, fmt.Errorf("tenant, resource and user are required: %w", apperror.ErrInvalidArgument)
	}

	status := req.Status
	if status == "" {
		status = models.BookingConfirmed
	}
	if !status.IsActive() {
		return nil, fmt.Errorf("bookings are created pending or confirmed, not %q: %w", status, apperror.ErrInvalidArgument)
	}
	if req.RecurringPattern != nil {
		if err := recurrence.ValidatePattern(*req.RecurringPattern); err != nil {
			return nil, fmt.Errorf("%v: %w", err, apperror.ErrInvalidArgument)
		}
	}

	settings := s.policies.Resolve(ctx, req.TenantID)
	if err := s.checkAvailable(ctx, req.TenantID, req.ResourceID, req.StartTime, req.EndTime, uuid.Nil, settings); err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ID:               uuid.New(),
		TenantID:         req.TenantID,
		ResourceID:       req.ResourceID,
		UserID:           req.UserID,
		ClientID:         req.ClientID,
		StartTime:        req.StartTime.UTC(),
		EndTime:          req.EndTime.UTC(),
		Status:           status,
		Notes:            req.Notes,
		RecurringEnabled: req.RecurringPattern != nil,
		RecurringPattern: req.RecurringPattern,
	}
	if err := s.repo.Create(ctx, booking); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"tenant_id":   booking.TenantID,
		"resource_id": booking.ResourceID,
	}).Info("Booking created")

	s.publish(events.BookingCreated, booking, nil)
	return booking, nil
}

// checkAvailable runs the window checks and the conflict query, in that
// order, for a candidate interval.
func (s *BookingService) checkAvailable(ctx context.Context, tenantID, resourceID uuid.UUID, start, end time.Time, excludeID uuid.UUID, settings policy.Settings) error {
	if err := policy.ValidateBookingWindowAt(start, end, settings, s.now()); err != nil {
		return err
	}

	conflicts, err := s.repo.FindConflicts(ctx, tenantID, resourceID, start, end, excludeID)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return scheduling.NewConflictError(conflicts)
	}
	return nil
}

func (s *BookingService) GetBooking(ctx context.Context, tenantID, id uuid.UUID) (*models.Booking, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// UpdateBooking moves or edits an active booking. A booking never
// conflicts with itself.
func (s *BookingService) UpdateBooking(ctx context.Context, tenantID, id uuid.UUID, req UpdateBookingRequest) (*models.Booking, error) {
	booking, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !booking.Status.IsActive() {
		return nil, fmt.Errorf("booking is %s: %w", booking.Status, apperror.ErrInvalidTransition)
	}

	previousResource, previousStart := booking.ResourceID, booking.StartTime
	var changes []string
	rescheduled := false

	if req.ResourceID != nil && *req.ResourceID != booking.ResourceID {
		booking.ResourceID = *req.ResourceID
		changes = append(changes, "resource_id")
		rescheduled = true
	}
	if req.StartTime != nil && !req.StartTime.Equal(booking.StartTime) {
		booking.StartTime = req.StartTime.UTC()
		changes = append(changes, "start_time")
		rescheduled = true
	}
	if req.EndTime != nil && !req.EndTime.Equal(booking.EndTime) {
		booking.EndTime = req.EndTime.UTC()
		changes = append(changes, "end_time")
		rescheduled = true
	}
	if req.ClientID != nil {
		booking.ClientID = req.ClientID
		changes = append(changes, "client_id")
	}
	if req.Notes != nil {
		booking.Notes = req.Notes
		changes = append(changes, "notes")
	}
	if len(changes) == 0 {
		return booking, nil
	}

	if rescheduled {
		settings := s.policies.Resolve(ctx, tenantID)
		if err := s.checkAvailable(ctx, tenantID, booking.ResourceID, booking.StartTime, booking.EndTime, booking.ID, settings); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, booking); err != nil {
		return nil, err
	}

	payload := newPayload(booking)
	payload.Changes = changes
	if rescheduled {
		payload.PreviousResourceID = &previousResource
		payload.PreviousStartTime = &previousStart
	}
	s.publishPayload(events.BookingUpdated, payload)
	return booking, nil
}

// CancelBooking cancels an active booking if the tenant's cancellation
// lead time still allows it.
func (s *BookingService) CancelBooking(ctx context.Context, tenantID, id, cancelledBy uuid.UUID, reason string) (*models.Booking, error) {
	booking, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !booking.Status.IsActive() {
		return nil, fmt.Errorf("booking is already %s: %w", booking.Status, apperror.ErrInvalidTransition)
	}

	now := s.now()
	settings := s.policies.Resolve(ctx, tenantID)
	if err := policy.ValidateCancellationWindowAt(booking.StartTime, settings, now); err != nil {
		return nil, err
	}

	cancelledAt := now.UTC()
	booking.CancelledAt = &cancelledAt
	if reason != "" {
		booking.CancellationReason = &reason
	}
	if cancelledBy != uuid.Nil {
		booking.CancelledBy = &cancelledBy
	}
	if err := s.repo.Cancel(ctx, booking); err != nil {
		return nil, err
	}
	booking.Status = models.BookingCancelled

	logging.FromContext(ctx).WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"tenant_id":  tenantID,
	}).Info("Booking cancelled")

	s.publish(events.BookingCancelled, booking, nil)
	return booking, nil
}

// transitions lists the operator-driven status changes. Cancellation has
// its own path because it carries metadata and a lead-time rule.
var transitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingPending:   {models.BookingConfirmed, models.BookingCompleted, models.BookingNoShow},
	models.BookingConfirmed: {models.BookingCompleted, models.BookingNoShow},
}

func (s *BookingService) UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status models.BookingStatus) (*models.Booking, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, apperror.ErrInvalidArgument)
	}
	if status == models.BookingCancelled {
		return nil, fmt.Errorf("use cancel to cancel a booking: %w", apperror.ErrInvalidArgument)
	}

	booking, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == status {
		return booking, nil
	}

	from := booking.Status
	allowed := false
	for _, next := range transitions[from] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("cannot move booking from %s to %s: %w", from, status, apperror.ErrInvalidTransition)
	}

	booking.Status = status
	if err := s.repo.UpdateStatus(ctx, booking, from); err != nil {
		return nil, err
	}

	s.publish(events.BookingStatusChanged, booking, []string{"status"})
	return booking, nil
}

// ListBookings returns the matching bookings, each marked with whether it
// can still be cancelled under the tenant's policy.
func (s *BookingService) ListBookings(ctx context.Context, f store.ListFilter) ([]BookingView, error) {
	bookings, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}

	now := s.now()
	settings := s.policies.Resolve(ctx, f.TenantID)
	views := make([]BookingView, 0, len(bookings))
	for _, b := range bookings {
		views = append(views, BookingView{
			Booking:   b,
			CanCancel: b.Status.IsActive() && policy.CanCancelAt(b.StartTime, settings, now),
		})
	}
	return views, nil
}

func newPayload(b *models.Booking) events.BookingPayload {
	return events.BookingPayload{
		BookingID:   b.ID,
		TenantID:    b.TenantID,
		ResourceID:  b.ResourceID,
		UserID:      b.UserID,
		Status:      string(b.Status),
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		CancelledBy: b.CancelledBy,
		Reason:      b.CancellationReason,
	}
}

func (s *BookingService) publish(eventType events.EventType, b *models.Booking, changes []string) {
	payload := newPayload(b)
	payload.Changes = changes
	s.publishPayload(eventType, payload)
}

func (s *BookingService) publishPayload(eventType events.EventType, payload events.BookingPayload) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(eventType, payload, map[string]string{"tenant_id": payload.TenantID.String()})
}

// rejection reports whether err is a per-occurrence scheduling rejection
// rather than a failure of the request as a whole.
func rejection(err error) bool {
	var (
		violation *apperror.PolicyViolation
		conflict  *apperror.ConflictError
	)
	return errors.As(err, &violation) || errors.As(err, &conflict)
}
