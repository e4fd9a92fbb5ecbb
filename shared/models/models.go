package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
	BookingNoShow    BookingStatus = "no_show"
)

// ActiveStatuses are the statuses that hold a resource's time.
var ActiveStatuses = []BookingStatus{BookingPending, BookingConfirmed}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted, BookingNoShow:
		return true
	}
	return false
}

func (s BookingStatus) IsActive() bool {
	return s == BookingPending || s == BookingConfirmed
}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingCancelled || s == BookingCompleted || s == BookingNoShow
}

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// RecurringPattern describes how a booking repeats. DaysOfWeek uses
// Monday=0 and only applies to weekly patterns.
type RecurringPattern struct {
	Frequency  Frequency  `json:"frequency"`
	Interval   int        `json:"interval"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	DaysOfWeek []int      `json:"days_of_week,omitempty"`
}

func (p RecurringPattern) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *RecurringPattern) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return errors.New("recurring_pattern: unsupported column type")
	}
}

type Booking struct {
	ID                 uuid.UUID         `json:"id" db:"id"`
	TenantID           uuid.UUID         `json:"tenant_id" db:"tenant_id"`
	ResourceID         uuid.UUID         `json:"resource_id" db:"resource_id"`
	UserID             uuid.UUID         `json:"user_id" db:"user_id"`
	ClientID           *uuid.UUID        `json:"client_id,omitempty" db:"client_id"`
	StartTime          time.Time         `json:"start_time" db:"start_time"`
	EndTime            time.Time         `json:"end_time" db:"end_time"`
	Status             BookingStatus     `json:"status" db:"status"`
	Notes              *string           `json:"notes,omitempty" db:"notes"`
	RecurringEnabled   bool              `json:"recurring_enabled" db:"recurring_enabled"`
	RecurringPattern   *RecurringPattern `json:"recurring_pattern,omitempty" db:"recurring_pattern"`
	CancellationReason *string           `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancelledAt        *time.Time        `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelledBy        *uuid.UUID        `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CreatedAt          time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at" db:"updated_at"`
}

// BookingEvent is the audit row written alongside every booking mutation.
type BookingEvent struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	BookingID uuid.UUID      `json:"booking_id" db:"booking_id"`
	TenantID  uuid.UUID      `json:"tenant_id" db:"tenant_id"`
	EventType string         `json:"event_type" db:"event_type"`
	Payload   types.JSONText `json:"payload" db:"payload"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

type ResourceStatus string

const (
	ResourceAvailable   ResourceStatus = "available"
	ResourceMaintenance ResourceStatus = "maintenance"
	ResourceInactive    ResourceStatus = "inactive"

	// ResourceAvailableLegacy is the value older records were written with.
	ResourceAvailableLegacy ResourceStatus = "disponivel"
)

func (s ResourceStatus) Bookable() bool {
	return s == ResourceAvailable || s == ResourceAvailableLegacy
}

type Resource struct {
	ID                   uuid.UUID      `json:"id" db:"id"`
	TenantID             uuid.UUID      `json:"tenant_id" db:"tenant_id"`
	CategoryID           uuid.UUID      `json:"category_id" db:"category_id"`
	Name                 string         `json:"name" db:"name"`
	Status               ResourceStatus `json:"status" db:"status"`
	AvailabilitySchedule types.JSONText `json:"availability_schedule" db:"availability_schedule"`
	CreatedAt            time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at" db:"updated_at"`
}

type AvailabilitySlot struct {
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
}

type Availability struct {
	ResourceID uuid.UUID          `json:"resource_id"`
	TenantID   uuid.UUID          `json:"tenant_id"`
	Date       string             `json:"date"`
	Timezone   string             `json:"timezone"`
	Slots      []AvailabilitySlot `json:"slots"`
}

type Webhook struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	TenantID  uuid.UUID      `json:"tenant_id" db:"tenant_id"`
	URL       string         `json:"url" db:"url"`
	Events    pq.StringArray `json:"events" db:"events"`
	Secret    *string        `json:"-" db:"secret"`
	IsActive  bool           `json:"is_active" db:"is_active"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// Subscribes reports whether w should receive eventType.
func (w Webhook) Subscribes(eventType string) bool {
	if !w.IsActive {
		return false
	}
	for _, e := range w.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

type WebhookDelivery struct {
	ID          uuid.UUID `json:"id" db:"id"`
	WebhookID   uuid.UUID `json:"webhook_id" db:"webhook_id"`
	TenantID    uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Event       string    `json:"event" db:"event"`
	StatusCode  int       `json:"status_code" db:"status_code"`
	Success     bool      `json:"success" db:"success"`
	Error       *string   `json:"error,omitempty" db:"error"`
	DeliveredAt time.Time `json:"delivered_at" db:"delivered_at"`
}
