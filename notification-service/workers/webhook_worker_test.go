package workers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservation-platform/shared/events"
	"reservation-platform/shared/models"
)

type dispatchCall struct {
	tenantID uuid.UUID
	event    string
	data     interface{}
}

type fakeDispatcher struct {
	calls []dispatchCall
	err   error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, tenantID uuid.UUID, event string, data interface{}) ([]models.WebhookDelivery, error) {
	d.calls = append(d.calls, dispatchCall{tenantID, event, data})
	if d.err != nil {
		return nil, d.err
	}
	return []models.WebhookDelivery{{Success: true}, {Success: false}}, nil
}

type fakeCleaner struct {
	deleted []uuid.UUID
}

func (c *fakeCleaner) DeleteByTenant(_ context.Context, tenantID uuid.UUID) (int64, error) {
	c.deleted = append(c.deleted, tenantID)
	return 1, nil
}

func bookingEvent(t *testing.T, eventType events.EventType, payload events.BookingPayload) events.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return events.Event{ID: "1-0", Type: eventType, Payload: raw}
}

func TestHandleBookingEventDispatchesPayload(t *testing.T) {
	d := &fakeDispatcher{}
	w := NewWebhookWorker(d, &fakeCleaner{})
	tenantID := uuid.New()

	evt := bookingEvent(t, events.BookingCreated, events.BookingPayload{
		BookingID:  uuid.New(),
		TenantID:   tenantID,
		ResourceID: uuid.New(),
		Status:     "confirmed",
		StartTime:  time.Date(2025, 1, 27, 10, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2025, 1, 27, 11, 0, 0, 0, time.UTC),
	})
	require.NoError(t, w.HandleBookingEvent(context.Background(), evt))

	require.Len(t, d.calls, 1)
	assert.Equal(t, tenantID, d.calls[0].tenantID)
	assert.Equal(t, "booking.created", d.calls[0].event)

	data, err := json.Marshal(d.calls[0].data)
	require.NoError(t, err)
	assert.JSONEq(t, string(evt.Payload), string(data))
}

func TestHandleBookingEventTenantFromMetadata(t *testing.T) {
	d := &fakeDispatcher{}
	w := NewWebhookWorker(d, &fakeCleaner{})
	tenantID := uuid.New()

	evt := events.Event{
		ID:       "2-0",
		Type:     events.BookingCancelled,
		Payload:  json.RawMessage(`{"booking_id":"` + uuid.NewString() + `"}`),
		Metadata: map[string]string{"tenant_id": tenantID.String()},
	}
	require.NoError(t, w.HandleBookingEvent(context.Background(), evt))
	require.Len(t, d.calls, 1)
	assert.Equal(t, tenantID, d.calls[0].tenantID)
}

func TestHandleBookingEventWithoutTenantIsSkipped(t *testing.T) {
	d := &fakeDispatcher{}
	w := NewWebhookWorker(d, &fakeCleaner{})

	require.NoError(t, w.HandleBookingEvent(context.Background(), events.Event{ID: "3-0", Type: events.BookingUpdated}))
	assert.Empty(t, d.calls)
}

func TestHandleBookingEventListFailureIsRetried(t *testing.T) {
	w := NewWebhookWorker(&fakeDispatcher{err: errors.New("db down")}, &fakeCleaner{})

	err := w.HandleBookingEvent(context.Background(), bookingEvent(t, events.BookingUpdated, events.BookingPayload{TenantID: uuid.New()}))
	assert.Error(t, err)
}

func TestHandleTenantDeleted(t *testing.T) {
	cleaner := &fakeCleaner{}
	w := NewWebhookWorker(&fakeDispatcher{}, cleaner)
	tenantID := uuid.New()

	raw, _ := json.Marshal(events.DeletionPayload{TenantID: tenantID})
	require.NoError(t, w.HandleTenantDeleted(context.Background(), events.Event{ID: "4-0", Type: events.TenantDeleted, Payload: raw}))
	assert.Equal(t, []uuid.UUID{tenantID}, cleaner.deleted)

	require.NoError(t, w.HandleTenantDeleted(context.Background(), events.Event{ID: "5-0", Type: events.TenantDeleted}))
	assert.Len(t, cleaner.deleted, 1)
}

func TestRegister(t *testing.T) {
	w := NewWebhookWorker(&fakeDispatcher{}, &fakeCleaner{})

	bookings := events.NewRegistry()
	w.RegisterBookingEvents(bookings)
	assert.ElementsMatch(t, events.BookingTypes, bookings.Types())

	deletions := events.NewRegistry()
	w.RegisterDeletionEvents(deletions)
	assert.Equal(t, []events.EventType{events.TenantDeleted}, deletions.Types())
}
