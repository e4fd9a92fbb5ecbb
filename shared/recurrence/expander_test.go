package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservation-platform/shared/models"
)

func date(y int, m time.Month, d, hour, minute int) time.Time {
	return time.Date(y, m, d, hour, minute, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestValidatePattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern models.RecurringPattern
		wantErr error
	}{
		{"daily", models.RecurringPattern{Frequency: models.FrequencyDaily, Interval: 1}, nil},
		{"weekly with days", models.RecurringPattern{Frequency: models.FrequencyWeekly, Interval: 52, DaysOfWeek: []int{0, 6}}, nil},
		{"yearly", models.RecurringPattern{Frequency: "yearly", Interval: 1}, ErrInvalidFrequency},
		{"zero interval", models.RecurringPattern{Frequency: models.FrequencyDaily, Interval: 0}, ErrInvalidInterval},
		{"interval too big", models.RecurringPattern{Frequency: models.FrequencyMonthly, Interval: 53}, ErrInvalidInterval},
		{"bad weekday", models.RecurringPattern{Frequency: models.FrequencyWeekly, Interval: 1, DaysOfWeek: []int{7}}, ErrInvalidWeekday},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidatePattern(tt.pattern), tt.wantErr)
		})
	}
}

func TestExpandDaily(t *testing.T) {
	start := date(2025, 1, 15, 10, 0)
	pattern := models.RecurringPattern{
		Frequency: models.FrequencyDaily,
		Interval:  1,
		EndDate:   ptr(time.Date(2025, 1, 20, 23, 59, 59, 0, time.UTC)),
	}

	got, err := Expand(start, start.Add(90*time.Minute), pattern)
	require.NoError(t, err)

	require.Len(t, got, 6)
	for i, occ := range got {
		assert.Equal(t, date(2025, 1, 15+i, 10, 0), occ.Start)
		assert.Equal(t, 90*time.Minute, occ.End.Sub(occ.Start))
	}
}

func TestExpandEndDateIsExclusiveOfLaterStarts(t *testing.T) {
	start := date(2025, 1, 15, 10, 0)
	pattern := models.RecurringPattern{
		Frequency: models.FrequencyDaily,
		Interval:  2,
		EndDate:   ptr(date(2025, 1, 19, 9, 0)),
	}

	got, err := Expand(start, start.Add(time.Hour), pattern)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, date(2025, 1, 17, 10, 0), got[1].Start)
}

func TestExpandWeeklyDaysOfWeek(t *testing.T) {
	// 2025-01-13 is a Monday.
	start := date(2025, 1, 13, 9, 0)
	pattern := models.RecurringPattern{
		Frequency:  models.FrequencyWeekly,
		Interval:   1,
		DaysOfWeek: []int{4, 0, 2},
		EndDate:    ptr(date(2025, 1, 26, 23, 0)),
	}

	got, err := Expand(start, start.Add(time.Hour), pattern)
	require.NoError(t, err)

	require.Len(t, got, 6)
	for _, occ := range got {
		wd := occ.Start.Weekday()
		assert.Contains(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, wd)
	}
	assert.Equal(t, date(2025, 1, 24, 9, 0), got[5].Start)
}

func TestExpandWeeklyDaysOfWeekEveryOtherWeek(t *testing.T) {
	start := date(2025, 1, 13, 9, 0)
	pattern := models.RecurringPattern{
		Frequency:  models.FrequencyWeekly,
		Interval:   2,
		DaysOfWeek: []int{0, 3},
		EndDate:    ptr(date(2025, 2, 9, 0, 0)),
	}

	got, err := Expand(start, start.Add(time.Hour), pattern)
	require.NoError(t, err)

	var starts []time.Time
	for _, occ := range got {
		starts = append(starts, occ.Start)
	}
	assert.Equal(t, []time.Time{
		date(2025, 1, 13, 9, 0),
		date(2025, 1, 16, 9, 0),
		date(2025, 1, 27, 9, 0),
		date(2025, 1, 30, 9, 0),
	}, starts)
}

func TestExpandFirstOccurrenceRespectsWeekdayFilter(t *testing.T) {
	// Tuesday start with a Monday-only filter.
	start := date(2025, 1, 14, 9, 0)
	pattern := models.RecurringPattern{
		Frequency:  models.FrequencyWeekly,
		Interval:   1,
		DaysOfWeek: []int{0},
		EndDate:    ptr(date(2025, 1, 28, 0, 0)),
	}

	got, err := Expand(start, start.Add(time.Hour), pattern)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, date(2025, 1, 20, 9, 0), got[0].Start)
	assert.Equal(t, date(2025, 1, 27, 9, 0), got[1].Start)
}

func TestExpandWithoutEndDateIsBounded(t *testing.T) {
	start := date(2025, 1, 15, 10, 0)

	got, err := Expand(start, start.Add(time.Hour), models.RecurringPattern{Frequency: models.FrequencyDaily, Interval: 1})
	require.NoError(t, err)

	assert.Len(t, got, MaxOccurrences)
}

func TestExpandMonthly(t *testing.T) {
	start := date(2025, 1, 10, 14, 0)
	pattern := models.RecurringPattern{
		Frequency: models.FrequencyMonthly,
		Interval:  1,
		EndDate:   ptr(date(2025, 4, 30, 0, 0)),
	}

	got, err := Expand(start, start.Add(time.Hour), pattern)
	require.NoError(t, err)

	require.Len(t, got, 4)
	assert.Equal(t, date(2025, 4, 10, 14, 0), got[3].Start)
}

func TestExpandMonthlyClampsToMonthEnd(t *testing.T) {
	start := date(2025, 1, 31, 9, 0)
	pattern := models.RecurringPattern{
		Frequency: models.FrequencyMonthly,
		Interval:  1,
		EndDate:   ptr(date(2025, 4, 30, 23, 0)),
	}

	got, err := Expand(start, start.Add(time.Hour), pattern)
	require.NoError(t, err)

	require.Len(t, got, 4)
	assert.Equal(t, date(2025, 2, 28, 9, 0), got[1].Start)
	assert.Equal(t, date(2025, 3, 31, 9, 0), got[2].Start)
	assert.Equal(t, date(2025, 4, 30, 9, 0), got[3].Start)
	assert.Equal(t, date(2025, 4, 30, 10, 0), got[3].End)
}

func TestExpandRejectsEmptyDuration(t *testing.T) {
	start := date(2025, 1, 15, 10, 0)
	_, err := Expand(start, start, models.RecurringPattern{Frequency: models.FrequencyDaily, Interval: 1})
	assert.ErrorIs(t, err, ErrInvalidDuration)
}
