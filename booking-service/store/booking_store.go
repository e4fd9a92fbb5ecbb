package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"reservation-platform/shared/apperror"
	"reservation-platform/shared/database"
	"reservation-platform/shared/events"
	"reservation-platform/shared/models"
	"reservation-platform/shared/scheduling"
)

// exclusion_violation, raised by the bookings_no_overlap constraint.
const exclusionViolation = "23P01"

const bookingColumns = `id, tenant_id, resource_id, user_id, client_id, start_time, end_time, status,
	notes, recurring_enabled, recurring_pattern, cancellation_reason, cancelled_at, cancelled_by,
	created_at, updated_at`

const conflictQuery = `SELECT ` + bookingColumns + ` FROM bookings
	WHERE tenant_id = $1 AND resource_id = $2
	AND status IN ('pending', 'confirmed')
	AND end_time > $3 AND start_time < $4
	AND ($5::uuid IS NULL OR id <> $5::uuid)
	ORDER BY start_time`

type BookingStore struct {
	db *sqlx.DB
}

func NewBookingStore(db *sqlx.DB) *BookingStore {
	return &BookingStore{db: db}
}

// ListFilter selects bookings of one tenant. From and To select bookings
// overlapping [From,To).
type ListFilter struct {
	TenantID   uuid.UUID
	ResourceID *uuid.UUID
	UserID     *uuid.UUID
	Statuses   []models.BookingStatus
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// FindConflicts returns the active bookings of the resource overlapping
// [start,end), oldest first. excludeID may be uuid.Nil.
func (s *BookingStore) FindConflicts(ctx context.Context, tenantID, resourceID uuid.UUID, start, end time.Time, excludeID uuid.UUID) ([]models.Booking, error) {
	return findConflicts(ctx, s.db, tenantID, resourceID, start, end, excludeID)
}

func findConflicts(ctx context.Context, q sqlx.QueryerContext, tenantID, resourceID uuid.UUID, start, end time.Time, excludeID uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	err := sqlx.SelectContext(ctx, q, &bookings, conflictQuery,
		tenantID, resourceID, start.UTC(), end.UTC(), nullableID(excludeID))
	if err != nil {
		return nil, fmt.Errorf("failed to query conflicting bookings: %w", err)
	}
	return bookings, nil
}

// Create inserts b after re-checking for conflicts while holding the
// resource's advisory lock.
func (s *BookingStore) Create(ctx context.Context, b *models.Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.StartTime, b.EndTime = b.StartTime.UTC(), b.EndTime.UTC()

	err := database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := lockResource(ctx, tx, b.ResourceID); err != nil {
			return err
		}

		conflicts, err := findConflicts(ctx, tx, b.TenantID, b.ResourceID, b.StartTime, b.EndTime, uuid.Nil)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return scheduling.NewConflictError(conflicts)
		}

		err = tx.QueryRowxContext(ctx, `
			INSERT INTO bookings (
				id, tenant_id, resource_id, user_id, client_id, start_time, end_time,
				status, notes, recurring_enabled, recurring_pattern
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING created_at, updated_at`,
			b.ID, b.TenantID, b.ResourceID, b.UserID, b.ClientID, b.StartTime, b.EndTime,
			b.Status, b.Notes, b.RecurringEnabled, b.RecurringPattern,
		).Scan(&b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}

		return insertAudit(ctx, tx, b, events.BookingCreated)
	})
	return s.mapExclusion(ctx, b, err)
}

// Update writes the schedulable fields of b, rejecting the change if it
// would overlap another active booking.
func (s *BookingStore) Update(ctx context.Context, b *models.Booking) error {
	b.StartTime, b.EndTime = b.StartTime.UTC(), b.EndTime.UTC()

	err := database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := lockResource(ctx, tx, b.ResourceID); err != nil {
			return err
		}

		conflicts, err := findConflicts(ctx, tx, b.TenantID, b.ResourceID, b.StartTime, b.EndTime, b.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return scheduling.NewConflictError(conflicts)
		}

		err = tx.QueryRowxContext(ctx, `
			UPDATE bookings
			SET resource_id = $3, start_time = $4, end_time = $5, client_id = $6, notes = $7,
				updated_at = NOW()
			WHERE id = $1 AND tenant_id = $2 AND status IN ('pending', 'confirmed')
			RETURNING updated_at`,
			b.ID, b.TenantID, b.ResourceID, b.StartTime, b.EndTime, b.ClientID, b.Notes,
		).Scan(&b.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("booking %s is no longer active: %w", b.ID, apperror.ErrInvalidTransition)
		}
		if err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}

		return insertAudit(ctx, tx, b, events.BookingUpdated)
	})
	return s.mapExclusion(ctx, b, err)
}

// Cancel stores the cancellation metadata already set on b. Only an active
// booking can be cancelled.
func (s *BookingStore) Cancel(ctx context.Context, b *models.Booking) error {
	return database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, `
			UPDATE bookings
			SET status = 'cancelled', cancellation_reason = $3, cancelled_at = $4, cancelled_by = $5,
				updated_at = NOW()
			WHERE id = $1 AND tenant_id = $2 AND status IN ('pending', 'confirmed')
			RETURNING updated_at`,
			b.ID, b.TenantID, b.CancellationReason, b.CancelledAt, b.CancelledBy,
		).Scan(&b.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("booking %s is not active: %w", b.ID, apperror.ErrInvalidTransition)
		}
		if err != nil {
			return fmt.Errorf("failed to cancel booking: %w", err)
		}
		b.Status = models.BookingCancelled

		return insertAudit(ctx, tx, b, events.BookingCancelled)
	})
}

// UpdateStatus moves b from status from to b.Status. It fails with
// ErrInvalidTransition if the stored status is no longer from.
func (s *BookingStore) UpdateStatus(ctx context.Context, b *models.Booking, from models.BookingStatus) error {
	return database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, `
			UPDATE bookings SET status = $3, updated_at = NOW()
			WHERE id = $1 AND tenant_id = $2 AND status = $4
			RETURNING updated_at`,
			b.ID, b.TenantID, b.Status, from,
		).Scan(&b.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("booking %s changed concurrently: %w", b.ID, apperror.ErrInvalidTransition)
		}
		if err != nil {
			return fmt.Errorf("failed to update booking status: %w", err)
		}

		return insertAudit(ctx, tx, b, events.BookingStatusChanged)
	})
}

func (s *BookingStore) Get(ctx context.Context, tenantID, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	err := s.db.GetContext(ctx, &b,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, apperror.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

func (s *BookingStore) List(ctx context.Context, f ListFilter) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE tenant_id = $1`
	args := []interface{}{f.TenantID}
	argIndex := 2

	if f.ResourceID != nil {
		query += fmt.Sprintf(" AND resource_id = $%d", argIndex)
		args = append(args, *f.ResourceID)
		argIndex++
	}
	if f.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argIndex)
		args = append(args, *f.UserID)
		argIndex++
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argIndex)
		args = append(args, pq.Array(statuses))
		argIndex++
	}
	if f.From != nil {
		query += fmt.Sprintf(" AND end_time > $%d", argIndex)
		args = append(args, f.From.UTC())
		argIndex++
	}
	if f.To != nil {
		query += fmt.Sprintf(" AND start_time < $%d", argIndex)
		args = append(args, f.To.UTC())
		argIndex++
	}

	query += " ORDER BY start_time"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
		args = append(args, f.Limit, f.Offset)
	}

	var bookings []models.Booking
	if err := s.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// CancelActiveByResource cancels every active booking of the resource and
// returns the bookings it changed. Already cancelled bookings are left
// alone, so replaying the same deletion changes nothing.
func (s *BookingStore) CancelActiveByResource(ctx context.Context, resourceID uuid.UUID, reason string) ([]models.Booking, error) {
	return s.cancelActive(ctx, "resource_id", resourceID, reason)
}

func (s *BookingStore) CancelActiveByUser(ctx context.Context, userID uuid.UUID, reason string) ([]models.Booking, error) {
	return s.cancelActive(ctx, "user_id", userID, reason)
}

// cancelActive is shared by the cascade cancels; column is never user input.
func (s *BookingStore) cancelActive(ctx context.Context, column string, id uuid.UUID, reason string) ([]models.Booking, error) {
	var cancelled []models.Booking
	err := database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		err := sqlx.SelectContext(ctx, tx, &cancelled, `
			UPDATE bookings
			SET status = 'cancelled', cancellation_reason = $2, cancelled_at = NOW(), updated_at = NOW()
			WHERE `+column+` = $1 AND status IN ('pending', 'confirmed')
			RETURNING `+bookingColumns,
			id, reason,
		)
		if err != nil {
			return fmt.Errorf("failed to cancel bookings by %s: %w", column, err)
		}

		for i := range cancelled {
			if err := insertAudit(ctx, tx, &cancelled[i], events.BookingCancelled); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// DeleteByTenant removes the tenant's audit rows and then its bookings.
func (s *BookingStore) DeleteByTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var deleted int64
	err := database.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM booking_events WHERE tenant_id = $1", tenantID); err != nil {
			return fmt.Errorf("failed to delete booking events: %w", err)
		}

		res, err := tx.ExecContext(ctx, "DELETE FROM bookings WHERE tenant_id = $1", tenantID)
		if err != nil {
			return fmt.Errorf("failed to delete bookings: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

// Events returns the audit trail of one booking, oldest first.
func (s *BookingStore) Events(ctx context.Context, tenantID, bookingID uuid.UUID) ([]models.BookingEvent, error) {
	var out []models.BookingEvent
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, booking_id, tenant_id, event_type, payload, created_at
		FROM booking_events WHERE booking_id = $1 AND tenant_id = $2
		ORDER BY created_at`, bookingID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list booking events: %w", err)
	}
	return out, nil
}

// mapExclusion turns a constraint violation that slipped past the locked
// re-check into the same ConflictError the re-check would have returned.
func (s *BookingStore) mapExclusion(ctx context.Context, b *models.Booking, err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != exclusionViolation {
		return err
	}

	conflicts, qerr := s.FindConflicts(ctx, b.TenantID, b.ResourceID, b.StartTime, b.EndTime, b.ID)
	if qerr != nil {
		conflicts = nil
	}
	return scheduling.NewConflictError(conflicts)
}

func lockResource(ctx context.Context, tx *sqlx.Tx, resourceID uuid.UUID) error {
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", resourceID.String()); err != nil {
		return fmt.Errorf("failed to lock resource %s: %w", resourceID, err)
	}
	return nil
}

func insertAudit(ctx context.Context, tx *sqlx.Tx, b *models.Booking, eventType events.EventType) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode booking event: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO booking_events (id, booking_id, tenant_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), b.ID, b.TenantID, string(eventType), types.JSONText(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to record booking event: %w", err)
	}
	return nil
}

func nullableID(id uuid.UUID) interface{} {
	if id == uuid.Nil {
		return nil
	}
	return id
}
