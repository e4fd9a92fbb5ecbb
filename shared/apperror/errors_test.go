package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicyViolationIs(t *testing.T) {
	err := fmt.Errorf("create booking: %w", Violation(RuleMisaligned, "30", "start must align to %d minutes", 30))

	assert.True(t, errors.Is(err, &PolicyViolation{Rule: RuleMisaligned}))
	assert.True(t, errors.Is(err, &PolicyViolation{}))
	assert.False(t, errors.Is(err, &PolicyViolation{Rule: RuleNotFuture}))
	assert.Equal(t, "start must align to 30 minutes", err.Error()[len("create booking: "):])
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"policy", Violation(RuleNotFuture, "", "in the past"), http.StatusBadRequest, "not_future"},
		{"conflict", &ConflictError{Conflicts: []Interval{{BookingID: "a"}}}, http.StatusConflict, "conflict"},
		{"not found", fmt.Errorf("booking x: %w", ErrNotFound), http.StatusNotFound, "not_found"},
		{"unavailable", ErrUnavailable, http.StatusUnprocessableEntity, "unavailable"},
		{"transition", ErrInvalidTransition, http.StatusUnprocessableEntity, "invalid_transition"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
			assert.Equal(t, tt.code, Code(tt.err))
		})
	}
}
