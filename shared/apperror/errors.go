package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnavailable       = errors.New("resource unavailable")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Rule names a single scheduling policy check.
type Rule string

const (
	RuleInvalidWindow        Rule = "invalid_window"
	RuleNotFuture            Rule = "not_future"
	RuleTooFarAhead          Rule = "too_far_ahead"
	RuleBadGranularity       Rule = "bad_granularity"
	RuleOutsideBusinessHours Rule = "outside_business_hours"
	RuleMisaligned           Rule = "misaligned"
	RuleCancellationTooLate  Rule = "cancellation_too_late"
	RuleDateInPast           Rule = "date_in_past"
)

// PolicyViolation is a user-correctable rejection of a booking window.
// Bound carries the limit that was crossed, formatted for display.
type PolicyViolation struct {
	Rule    Rule
	Message string
	Bound   string
}

func (e *PolicyViolation) Error() string {
	if e.Message == "" {
		return string(e.Rule)
	}
	return e.Message
}

// Is matches any *PolicyViolation with the same rule, so package-level
// sentinels can be compared with errors.Is.
func (e *PolicyViolation) Is(target error) bool {
	t, ok := target.(*PolicyViolation)
	return ok && (t.Rule == "" || t.Rule == e.Rule)
}

func Violation(rule Rule, bound string, format string, args ...interface{}) *PolicyViolation {
	return &PolicyViolation{Rule: rule, Bound: bound, Message: fmt.Sprintf(format, args...)}
}

// Interval is one conflicting booking reported back to the caller.
type Interval struct {
	BookingID string    `json:"booking_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
}

type ConflictError struct {
	Conflicts []Interval
}

func (e *ConflictError) Error() string {
	ids := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		ids = append(ids, c.BookingID)
	}
	return fmt.Sprintf("conflicts with %d booking(s): %s", len(e.Conflicts), strings.Join(ids, ", "))
}

// HTTPStatus maps an error from the scheduling engine to a response code.
func HTTPStatus(err error) int {
	var (
		violation *PolicyViolation
		conflict  *ConflictError
	)
	switch {
	case errors.As(err, &violation), errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Code is the machine-readable error string used in response bodies.
func Code(err error) string {
	var (
		violation *PolicyViolation
		conflict  *ConflictError
	)
	switch {
	case errors.As(err, &violation):
		return string(violation.Rule)
	case errors.As(err, &conflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "internal_error"
	}
}
