package consumers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"reservation-platform/shared/events"
	"reservation-platform/shared/models"
)

// CascadeStore is the part of the booking store the cascade handlers use.
// Every method must be safe to repeat.
type CascadeStore interface {
	CancelActiveByResource(ctx context.Context, resourceID uuid.UUID, reason string) ([]models.Booking, error)
	CancelActiveByUser(ctx context.Context, userID uuid.UUID, reason string) ([]models.Booking, error)
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

type Publisher interface {
	Publish(eventType events.EventType, payload interface{}, metadata map[string]string)
}

// DeletionHandlers applies deletions made in other services to bookings.
type DeletionHandlers struct {
	store     CascadeStore
	publisher Publisher
}

func NewDeletionHandlers(store CascadeStore, publisher Publisher) *DeletionHandlers {
	return &DeletionHandlers{store: store, publisher: publisher}
}

func (h *DeletionHandlers) Register(r *events.Registry) {
	r.MustRegister(events.ResourceDeleted, h.HandleResourceDeleted)
	r.MustRegister(events.UserDeleted, h.HandleUserDeleted)
	r.MustRegister(events.TenantDeleted, h.HandleTenantDeleted)
}

func (h *DeletionHandlers) HandleResourceDeleted(ctx context.Context, evt events.Event) error {
	var payload events.DeletionPayload
	if err := evt.Decode(&payload); err != nil || payload.ResourceID == uuid.Nil {
		logrus.WithField("message_id", evt.ID).Warn("resource.deleted without resource_id, skipping")
		return nil
	}

	reason := fmt.Sprintf("resource deleted (resource_id=%s, event=%s)", payload.ResourceID, evt.ID)
	cancelled, err := h.store.CancelActiveByResource(ctx, payload.ResourceID, reason)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"resource_id": payload.ResourceID,
		"cancelled":   len(cancelled),
	}).Info("Cancelled bookings of deleted resource")
	h.publishCancelled(cancelled)
	return nil
}

func (h *DeletionHandlers) HandleUserDeleted(ctx context.Context, evt events.Event) error {
	var payload events.DeletionPayload
	if err := evt.Decode(&payload); err != nil || payload.UserID == uuid.Nil {
		logrus.WithField("message_id", evt.ID).Warn("user.deleted without user_id, skipping")
		return nil
	}

	reason := fmt.Sprintf("user deleted (user_id=%s, event=%s)", payload.UserID, evt.ID)
	cancelled, err := h.store.CancelActiveByUser(ctx, payload.UserID, reason)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":   payload.UserID,
		"cancelled": len(cancelled),
	}).Info("Cancelled bookings of deleted user")
	h.publishCancelled(cancelled)
	return nil
}

// HandleTenantDeleted removes the tenant's bookings outright.
func (h *DeletionHandlers) HandleTenantDeleted(ctx context.Context, evt events.Event) error {
	var payload events.DeletionPayload
	if err := evt.Decode(&payload); err != nil || payload.TenantID == uuid.Nil {
		logrus.WithField("message_id", evt.ID).Warn("tenant.deleted without tenant_id, skipping")
		return nil
	}

	deleted, err := h.store.DeleteByTenant(ctx, payload.TenantID)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id": payload.TenantID,
		"deleted":   deleted,
	}).Info("Deleted bookings of deleted tenant")
	return nil
}

// publishCancelled announces cascade cancellations so availability caches
// and webhook subscribers see them like any other cancellation.
func (h *DeletionHandlers) publishCancelled(bookings []models.Booking) {
	if h.publisher == nil {
		return
	}
	for _, b := range bookings {
		h.publisher.Publish(events.BookingCancelled, events.BookingPayload{
			BookingID:  b.ID,
			TenantID:   b.TenantID,
			ResourceID: b.ResourceID,
			UserID:     b.UserID,
			Status:     string(models.BookingCancelled),
			StartTime:  b.StartTime,
			EndTime:    b.EndTime,
			Reason:     b.CancellationReason,
		}, map[string]string{"tenant_id": b.TenantID.String()})
	}
}
