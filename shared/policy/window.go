package policy

import (
	"strconv"
	"time"

	"reservation-platform/shared/apperror"
	"reservation-platform/shared/scheduling"
)

// Sentinels for errors.Is against the result of the validators.
var (
	ErrInvalidWindow        = &apperror.PolicyViolation{Rule: apperror.RuleInvalidWindow}
	ErrNotFuture            = &apperror.PolicyViolation{Rule: apperror.RuleNotFuture}
	ErrTooFarAhead          = &apperror.PolicyViolation{Rule: apperror.RuleTooFarAhead}
	ErrBadGranularity       = &apperror.PolicyViolation{Rule: apperror.RuleBadGranularity}
	ErrOutsideBusinessHours = &apperror.PolicyViolation{Rule: apperror.RuleOutsideBusinessHours}
	ErrMisaligned           = &apperror.PolicyViolation{Rule: apperror.RuleMisaligned}
	ErrCancellationTooLate  = &apperror.PolicyViolation{Rule: apperror.RuleCancellationTooLate}
)

func ValidateBookingWindow(start, end time.Time, s Settings) error {
	return ValidateBookingWindowAt(start, end, s, time.Now())
}

// ValidateBookingWindowAt checks [start,end) against s as of now. Checks run
// in a fixed order and the first failure is returned.
func ValidateBookingWindowAt(start, end time.Time, s Settings, now time.Time) error {
	loc := s.Location()
	start, end = start.In(loc), end.In(loc)

	if !end.After(start) {
		return apperror.Violation(apperror.RuleInvalidWindow, "",
			"end time must be after start time")
	}

	if !start.After(now) {
		return apperror.Violation(apperror.RuleNotFuture, now.UTC().Format(time.RFC3339),
			"bookings must start in the future")
	}

	horizon := now.Add(time.Duration(s.AdvanceBookingDays) * 24 * time.Hour)
	if start.After(horizon) {
		return apperror.Violation(apperror.RuleTooFarAhead, strconv.Itoa(s.AdvanceBookingDays),
			"bookings can be made at most %d days in advance", s.AdvanceBookingDays)
	}

	minutes := int(end.Sub(start) / time.Minute)
	if minutes <= 0 || minutes%s.BookingInterval != 0 {
		return apperror.Violation(apperror.RuleBadGranularity, strconv.Itoa(s.BookingInterval),
			"duration must be a multiple of %d minutes", s.BookingInterval)
	}

	startTOD, endTOD := scheduling.Of(start), scheduling.Of(end)
	if !sameDay(start, end) || startTOD < s.WorkingHoursStart || endTOD > s.WorkingHoursEnd {
		return apperror.Violation(apperror.RuleOutsideBusinessHours,
			s.WorkingHoursStart.String()+"-"+s.WorkingHoursEnd.String(),
			"booking must fall within working hours %s-%s", s.WorkingHoursStart, s.WorkingHoursEnd)
	}

	if int(startTOD)%s.BookingInterval != 0 {
		return apperror.Violation(apperror.RuleMisaligned, strconv.Itoa(s.BookingInterval),
			"start time must align to %d-minute intervals", s.BookingInterval)
	}
	return nil
}

func ValidateCancellationWindow(bookingStart time.Time, s Settings) error {
	return ValidateCancellationWindowAt(bookingStart, s, time.Now())
}

func ValidateCancellationWindowAt(bookingStart time.Time, s Settings, now time.Time) error {
	if CanCancelAt(bookingStart, s, now) {
		return nil
	}
	return apperror.Violation(apperror.RuleCancellationTooLate, strconv.Itoa(s.CancellationHours),
		"cancellation is only allowed up to %d hours before the start", s.CancellationHours)
}

func CanCancel(bookingStart time.Time, s Settings) bool {
	return CanCancelAt(bookingStart, s, time.Now())
}

func CanCancelAt(bookingStart time.Time, s Settings, now time.Time) bool {
	if s.CancellationHours <= 0 {
		return true
	}
	limit := now.Add(time.Duration(s.CancellationHours) * time.Hour)
	return !bookingStart.Before(limit)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
