package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservation-platform/shared/events"
	"reservation-platform/shared/models"
)

type fakeStore struct {
	mu        sync.Mutex
	bookings  []models.Booking
	deleted   []uuid.UUID
	cancelErr error
}

func (s *fakeStore) cancel(match func(models.Booking) bool, reason string) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	var out []models.Booking
	for i, b := range s.bookings {
		if match(b) && b.Status.IsActive() {
			s.bookings[i].Status = models.BookingCancelled
			s.bookings[i].CancellationReason = &reason
			out = append(out, s.bookings[i])
		}
	}
	return out, nil
}

func (s *fakeStore) CancelActiveByResource(_ context.Context, resourceID uuid.UUID, reason string) ([]models.Booking, error) {
	return s.cancel(func(b models.Booking) bool { return b.ResourceID == resourceID }, reason)
}

func (s *fakeStore) CancelActiveByUser(_ context.Context, userID uuid.UUID, reason string) ([]models.Booking, error) {
	return s.cancel(func(b models.Booking) bool { return b.UserID == userID }, reason)
}

func (s *fakeStore) DeleteByTenant(_ context.Context, tenantID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []models.Booking
	var n int64
	for _, b := range s.bookings {
		if b.TenantID == tenantID {
			n++
			continue
		}
		kept = append(kept, b)
	}
	s.bookings = kept
	s.deleted = append(s.deleted, tenantID)
	return n, nil
}

type countingPublisher struct {
	mu    sync.Mutex
	count map[events.EventType]int
}

func (p *countingPublisher) Publish(t events.EventType, _ interface{}, _ map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count == nil {
		p.count = make(map[events.EventType]int)
	}
	p.count[t]++
}

func event(t *testing.T, id string, eventType events.EventType, payload interface{}) events.Event {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return events.Event{ID: id, Stream: "deletion-events", Type: eventType, Payload: body}
}

func booking(tenantID, resourceID, userID uuid.UUID, status models.BookingStatus) models.Booking {
	start := time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)
	return models.Booking{
		ID: uuid.New(), TenantID: tenantID, ResourceID: resourceID, UserID: userID,
		StartTime: start, EndTime: start.Add(time.Hour), Status: status,
	}
}

func TestResourceDeletedCascadeIsIdempotent(t *testing.T) {
	tenantID, resourceID, other := uuid.New(), uuid.New(), uuid.New()
	store := &fakeStore{bookings: []models.Booking{
		booking(tenantID, resourceID, uuid.New(), models.BookingConfirmed),
		booking(tenantID, resourceID, uuid.New(), models.BookingPending),
		booking(tenantID, resourceID, uuid.New(), models.BookingCompleted),
		booking(tenantID, other, uuid.New(), models.BookingConfirmed),
	}}
	pub := &countingPublisher{}
	h := NewDeletionHandlers(store, pub)
	evt := event(t, "1700000000000-0", events.ResourceDeleted, map[string]string{
		"tenant_id": tenantID.String(), "resource_id": resourceID.String(),
	})

	require.NoError(t, h.HandleResourceDeleted(context.Background(), evt))
	snapshot := append([]models.Booking(nil), store.bookings...)
	require.NoError(t, h.HandleResourceDeleted(context.Background(), evt))

	assert.Equal(t, snapshot, store.bookings, "replay must not change anything")
	assert.Equal(t, 2, pub.count[events.BookingCancelled])

	assert.Equal(t, models.BookingCancelled, store.bookings[0].Status)
	assert.Equal(t, models.BookingCancelled, store.bookings[1].Status)
	assert.Equal(t, models.BookingCompleted, store.bookings[2].Status)
	assert.Equal(t, models.BookingConfirmed, store.bookings[3].Status)
	require.NotNil(t, store.bookings[0].CancellationReason)
	assert.Contains(t, *store.bookings[0].CancellationReason, resourceID.String())
	assert.Contains(t, *store.bookings[0].CancellationReason, "1700000000000-0")
}

func TestUserDeletedCancelsUsersBookings(t *testing.T) {
	tenantID, userID := uuid.New(), uuid.New()
	store := &fakeStore{bookings: []models.Booking{
		booking(tenantID, uuid.New(), userID, models.BookingConfirmed),
		booking(tenantID, uuid.New(), uuid.New(), models.BookingConfirmed),
	}}
	h := NewDeletionHandlers(store, nil)

	err := h.HandleUserDeleted(context.Background(), event(t, "1-0", events.UserDeleted, map[string]string{"user_id": userID.String()}))
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, store.bookings[0].Status)
	assert.Equal(t, models.BookingConfirmed, store.bookings[1].Status)
}

func TestTenantDeletedRemovesBookings(t *testing.T) {
	tenantID := uuid.New()
	store := &fakeStore{bookings: []models.Booking{
		booking(tenantID, uuid.New(), uuid.New(), models.BookingConfirmed),
		booking(uuid.New(), uuid.New(), uuid.New(), models.BookingConfirmed),
	}}
	h := NewDeletionHandlers(store, nil)
	evt := event(t, "1-0", events.TenantDeleted, map[string]string{"tenant_id": tenantID.String()})

	require.NoError(t, h.HandleTenantDeleted(context.Background(), evt))
	require.NoError(t, h.HandleTenantDeleted(context.Background(), evt))
	assert.Len(t, store.bookings, 1)
	assert.Equal(t, []uuid.UUID{tenantID, tenantID}, store.deleted)
}

func TestMissingIDsAreSkipped(t *testing.T) {
	store := &fakeStore{cancelErr: errors.New("must not be called")}
	h := NewDeletionHandlers(store, nil)
	ctx := context.Background()

	assert.NoError(t, h.HandleResourceDeleted(ctx, event(t, "1-0", events.ResourceDeleted, map[string]string{})))
	assert.NoError(t, h.HandleUserDeleted(ctx, event(t, "1-1", events.UserDeleted, map[string]string{"user_id": "nope"})))
	assert.NoError(t, h.HandleTenantDeleted(ctx, events.Event{ID: "1-2", Type: events.TenantDeleted}))
	assert.Empty(t, store.deleted)
}

func TestStoreFailureLeavesMessagePending(t *testing.T) {
	store := &fakeStore{cancelErr: errors.New("connection reset")}
	h := NewDeletionHandlers(store, nil)

	err := h.HandleResourceDeleted(context.Background(),
		event(t, "1-0", events.ResourceDeleted, map[string]string{"resource_id": uuid.NewString()}))
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	r := events.NewRegistry()
	NewDeletionHandlers(&fakeStore{}, nil).Register(r)
	assert.ElementsMatch(t, []events.EventType{events.ResourceDeleted, events.UserDeleted, events.TenantDeleted}, r.Types())
}
