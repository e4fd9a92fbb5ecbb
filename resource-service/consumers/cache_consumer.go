package consumers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"reservation-platform/shared/cache"
	"reservation-platform/shared/events"
	"reservation-platform/shared/policy"
)

const dateLayout = "2006-01-02"

type AvailabilityInvalidator interface {
	InvalidateAvailability(ctx context.Context, resourceID uuid.UUID, dates ...string) error
	Delete(ctx context.Context, keys ...string) error
}

// ResourceStore is the part of the resource store the tenant cascade uses.
type ResourceStore interface {
	ResourceIDsByTenant(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error)
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error)
}

// CacheHandlers keeps cached availability in step with booking changes
// and removes a deleted tenant's resources.
type CacheHandlers struct {
	cache    AvailabilityInvalidator
	store    ResourceStore
	policies policy.Resolver
}

func NewCacheHandlers(c AvailabilityInvalidator, store ResourceStore, policies policy.Resolver) *CacheHandlers {
	return &CacheHandlers{cache: c, store: store, policies: policies}
}

// RegisterBookingEvents wires the handlers for the booking stream.
func (h *CacheHandlers) RegisterBookingEvents(r *events.Registry) {
	for _, t := range events.BookingTypes {
		r.MustRegister(t, h.HandleBookingChanged)
	}
}

// RegisterDeletionEvents wires the handlers for the deletion stream.
func (h *CacheHandlers) RegisterDeletionEvents(r *events.Registry) {
	r.MustRegister(events.TenantDeleted, h.HandleTenantDeleted)
}

func (h *CacheHandlers) HandleBookingChanged(ctx context.Context, evt events.Event) error {
	var payload events.BookingPayload
	if err := evt.Decode(&payload); err != nil || payload.ResourceID == uuid.Nil {
		logrus.WithFields(logrus.Fields{
			"message_id": evt.ID,
			"event_type": evt.Type,
		}).Warn("Booking event without resource_id, skipping")
		return nil
	}

	loc := h.policies.Resolve(ctx, payload.TenantID).Location()
	targets := map[uuid.UUID][]string{
		payload.ResourceID: localDates(loc, payload.StartTime, payload.EndTime),
	}
	if payload.PreviousStartTime != nil {
		previous := payload.ResourceID
		if payload.PreviousResourceID != nil {
			previous = *payload.PreviousResourceID
		}
		targets[previous] = append(targets[previous], localDates(loc, *payload.PreviousStartTime, time.Time{})...)
	} else if payload.PreviousResourceID != nil {
		// Moved without a known previous time: drop every cached date.
		targets[*payload.PreviousResourceID] = nil
	}

	for resourceID, dates := range targets {
		if err := h.cache.InvalidateAvailability(ctx, resourceID, dates...); err != nil {
			return err
		}
	}

	logrus.WithFields(logrus.Fields{
		"event_type":  evt.Type,
		"booking_id":  payload.BookingID,
		"resource_id": payload.ResourceID,
	}).Debug("Invalidated cached availability")
	return nil
}

// HandleTenantDeleted deletes the tenant's resources and categories and
// drops the caches keyed by them. Caches are dropped before the rows so a
// redelivery after a failed invalidation still finds the resource ids.
func (h *CacheHandlers) HandleTenantDeleted(ctx context.Context, evt events.Event) error {
	var payload events.DeletionPayload
	if err := evt.Decode(&payload); err != nil || payload.TenantID == uuid.Nil {
		logrus.WithField("message_id", evt.ID).Warn("tenant.deleted without tenant_id, skipping")
		return nil
	}

	existing, err := h.store.ResourceIDsByTenant(ctx, payload.TenantID)
	if err != nil {
		return err
	}
	invalidated := make(map[uuid.UUID]bool, len(existing))
	for _, id := range existing {
		if err := h.cache.InvalidateAvailability(ctx, id); err != nil {
			return err
		}
		invalidated[id] = true
	}

	deleted, err := h.store.DeleteByTenant(ctx, payload.TenantID)
	if err != nil {
		return err
	}
	// Resources created since the listing.
	for _, id := range deleted {
		if invalidated[id] {
			continue
		}
		if err := h.cache.InvalidateAvailability(ctx, id); err != nil {
			return err
		}
	}
	if err := h.cache.Delete(ctx, cache.SettingsKey(payload.TenantID)); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id": payload.TenantID,
		"deleted":   len(deleted),
	}).Info("Deleted resources of deleted tenant")
	return nil
}

// localDates lists the tenant-local dates touched by [start,end). A zero
// end yields the date of start only.
func localDates(loc *time.Location, start, end time.Time) []string {
	if start.IsZero() {
		return nil
	}
	first := start.In(loc).Format(dateLayout)
	if end.IsZero() || !end.After(start) {
		return []string{first}
	}
	last := end.Add(-time.Nanosecond).In(loc).Format(dateLayout)
	if last == first {
		return []string{first}
	}
	return []string{first, last}
}
