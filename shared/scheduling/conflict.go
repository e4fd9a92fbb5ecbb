package scheduling

import (
	"time"

	"github.com/google/uuid"

	"reservation-platform/shared/apperror"
	"reservation-platform/shared/models"
)

// Overlaps reports whether [aStart,aEnd) and [bStart,bEnd) intersect.
// Touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aEnd.After(bStart) && aStart.Before(bEnd)
}

// Conflicting returns the active bookings in existing that overlap
// [start,end), skipping excludeID. Callers pass bookings of a single
// tenant and resource.
func Conflicting(existing []models.Booking, start, end time.Time, excludeID uuid.UUID) []models.Booking {
	var out []models.Booking
	for _, b := range existing {
		if excludeID != uuid.Nil && b.ID == excludeID {
			continue
		}
		if !b.Status.IsActive() {
			continue
		}
		if Overlaps(b.StartTime, b.EndTime, start, end) {
			out = append(out, b)
		}
	}
	return out
}

// NewConflictError reports every booking in conflicts back to the caller.
func NewConflictError(conflicts []models.Booking) *apperror.ConflictError {
	err := &apperror.ConflictError{Conflicts: make([]apperror.Interval, 0, len(conflicts))}
	for _, b := range conflicts {
		err.Conflicts = append(err.Conflicts, apperror.Interval{
			BookingID: b.ID.String(),
			StartTime: b.StartTime,
			EndTime:   b.EndTime,
			Status:    string(b.Status),
		})
	}
	return err
}
