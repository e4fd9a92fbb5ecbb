package workers

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"reservation-platform/shared/events"
	"reservation-platform/shared/models"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, tenantID uuid.UUID, event string, data interface{}) ([]models.WebhookDelivery, error)
}

type TenantCleaner interface {
	DeleteByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// WebhookWorker turns booking events into webhook deliveries and removes
// the subscriptions of deleted tenants.
type WebhookWorker struct {
	dispatcher Dispatcher
	webhooks   TenantCleaner
}

func NewWebhookWorker(dispatcher Dispatcher, webhooks TenantCleaner) *WebhookWorker {
	return &WebhookWorker{dispatcher: dispatcher, webhooks: webhooks}
}

func (w *WebhookWorker) RegisterBookingEvents(r *events.Registry) {
	for _, t := range events.BookingTypes {
		r.MustRegister(t, w.HandleBookingEvent)
	}
}

func (w *WebhookWorker) RegisterDeletionEvents(r *events.Registry) {
	r.MustRegister(events.TenantDeleted, w.HandleTenantDeleted)
}

// HandleBookingEvent forwards the event payload unchanged as the webhook
// data.
func (w *WebhookWorker) HandleBookingEvent(ctx context.Context, evt events.Event) error {
	log := logrus.WithFields(logrus.Fields{
		"message_id": evt.ID,
		"event_type": evt.Type,
	})

	tenantID := bookingTenant(evt)
	if tenantID == uuid.Nil {
		log.Warn("Booking event without tenant_id, skipping")
		return nil
	}

	var data interface{} = json.RawMessage(evt.Payload)
	if len(evt.Payload) == 0 {
		data = struct{}{}
	}

	results, err := w.dispatcher.Dispatch(ctx, tenantID, string(evt.Type), data)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	if len(results) > 0 {
		log.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"delivered": len(results) - failed,
			"failed":    failed,
		}).Info("Dispatched webhooks")
	}
	return nil
}

func (w *WebhookWorker) HandleTenantDeleted(ctx context.Context, evt events.Event) error {
	var payload events.DeletionPayload
	if err := evt.Decode(&payload); err != nil || payload.TenantID == uuid.Nil {
		logrus.WithField("message_id", evt.ID).Warn("tenant.deleted without tenant_id, skipping")
		return nil
	}

	deleted, err := w.webhooks.DeleteByTenant(ctx, payload.TenantID)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"tenant_id": payload.TenantID,
		"deleted":   deleted,
	}).Info("Deleted webhooks of deleted tenant")
	return nil
}

// bookingTenant reads the tenant from the payload, then from the
// metadata set by the publisher.
func bookingTenant(evt events.Event) uuid.UUID {
	var payload events.BookingPayload
	if err := evt.Decode(&payload); err == nil && payload.TenantID != uuid.Nil {
		return payload.TenantID
	}
	id, err := uuid.Parse(evt.Metadata["tenant_id"])
	if err != nil {
		return uuid.Nil
	}
	return id
}
