package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

type EventType string

const (
	BookingCreated       EventType = "booking.created"
	BookingUpdated       EventType = "booking.updated"
	BookingCancelled     EventType = "booking.cancelled"
	BookingStatusChanged EventType = "booking.status_changed"

	ResourceDeleted EventType = "resource.deleted"
	UserDeleted     EventType = "user.deleted"
	TenantDeleted   EventType = "tenant.deleted"
)

var knownTypes = map[EventType]bool{
	BookingCreated:       true,
	BookingUpdated:       true,
	BookingCancelled:     true,
	BookingStatusChanged: true,
	ResourceDeleted:      true,
	UserDeleted:          true,
	TenantDeleted:        true,
}

// BookingTypes lists every event emitted for a booking mutation.
var BookingTypes = []EventType{BookingCreated, BookingUpdated, BookingCancelled, BookingStatusChanged}

func (t EventType) Known() bool {
	return knownTypes[t]
}

// Stream message field names.
const (
	fieldEventType = "event_type"
	fieldPayload   = "payload"
	fieldMetadata  = "metadata"
)

// Event is one delivered stream message.
type Event struct {
	ID       string
	Stream   string
	Type     EventType
	Payload  json.RawMessage
	Metadata map[string]string
}

func (e Event) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.ID)
	}
	return json.Unmarshal(e.Payload, v)
}

func decodeMessage(stream string, msg redis.XMessage) (Event, error) {
	evt := Event{ID: msg.ID, Stream: stream}

	eventType, ok := msg.Values[fieldEventType].(string)
	if !ok || eventType == "" {
		return evt, fmt.Errorf("message %s has no %s", msg.ID, fieldEventType)
	}
	evt.Type = EventType(eventType)

	if raw, ok := msg.Values[fieldPayload].(string); ok && raw != "" {
		if !json.Valid([]byte(raw)) {
			return evt, fmt.Errorf("message %s has malformed payload", msg.ID)
		}
		evt.Payload = json.RawMessage(raw)
	}

	if raw, ok := msg.Values[fieldMetadata].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &evt.Metadata); err != nil {
			return evt, fmt.Errorf("message %s has malformed metadata: %w", msg.ID, err)
		}
	}
	return evt, nil
}

// BookingPayload is carried by every booking.* event.
type BookingPayload struct {
	BookingID   uuid.UUID  `json:"booking_id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	ResourceID  uuid.UUID  `json:"resource_id"`
	UserID      uuid.UUID  `json:"user_id"`
	Status      string     `json:"status"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
	Changes     []string   `json:"changes,omitempty"`
	CancelledBy *uuid.UUID `json:"cancelled_by,omitempty"`
	Reason      *string    `json:"reason,omitempty"`

	// Set on booking.updated when the booking moved.
	PreviousResourceID *uuid.UUID `json:"previous_resource_id,omitempty"`
	PreviousStartTime  *time.Time `json:"previous_start_time,omitempty"`
}

// DeletionPayload is carried by *.deleted events; only the id matching the
// event type is set.
type DeletionPayload struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	ResourceID uuid.UUID `json:"resource_id"`
	UserID     uuid.UUID `json:"user_id"`
}
