package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"reservation-platform/shared/models"
	"reservation-platform/shared/scheduling"
)

const (
	// MaxOccurrences bounds a pattern without an end date.
	MaxOccurrences = 365
	// MaxIterations bounds a pattern with an end date.
	MaxIterations = 1000

	maxInterval = 52
)

var (
	ErrInvalidFrequency = errors.New("recurrence: frequency must be daily, weekly or monthly")
	ErrInvalidInterval  = fmt.Errorf("recurrence: interval must be between 1 and %d", maxInterval)
	ErrInvalidWeekday   = errors.New("recurrence: days_of_week values must be between 0 (Monday) and 6 (Sunday)")
	ErrInvalidDuration  = errors.New("recurrence: occurrence must end after it starts")
)

type Occurrence struct {
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
}

func ValidatePattern(p models.RecurringPattern) error {
	switch p.Frequency {
	case models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyMonthly:
	default:
		return ErrInvalidFrequency
	}
	if p.Interval < 1 || p.Interval > maxInterval {
		return ErrInvalidInterval
	}
	for _, d := range p.DaysOfWeek {
		if d < 0 || d > 6 {
			return ErrInvalidWeekday
		}
	}
	return nil
}

// Expand materializes the occurrences of p starting with [firstStart,
// firstEnd). Every occurrence keeps the first one's duration. Expansion
// stops at the first start after EndDate, or at the iteration cap.
func Expand(firstStart, firstEnd time.Time, p models.RecurringPattern) ([]Occurrence, error) {
	if err := ValidatePattern(p); err != nil {
		return nil, err
	}
	if !firstEnd.After(firstStart) {
		return nil, ErrInvalidDuration
	}

	duration := firstEnd.Sub(firstStart)
	days := weekdaySet(p)

	limit := MaxOccurrences
	if p.EndDate != nil {
		limit = MaxIterations
	}

	var out []Occurrence
	current := firstStart
	for i := 0; i < limit; i++ {
		if p.EndDate != nil && current.After(*p.EndDate) {
			break
		}

		if days == nil || contains(days, scheduling.WeekdayIndex(current.Weekday())) {
			out = append(out, Occurrence{Start: current, End: current.Add(duration)})
		}

		switch p.Frequency {
		case models.FrequencyDaily:
			current = current.AddDate(0, 0, p.Interval)
		case models.FrequencyWeekly:
			if days == nil {
				current = current.AddDate(0, 0, 7*p.Interval)
			} else {
				current = current.AddDate(0, 0, daysUntilNext(current, days, p.Interval))
			}
		case models.FrequencyMonthly:
			// Offsets are taken from the first occurrence so a month-end
			// start does not drift after a short month.
			current = addMonths(firstStart, (i+1)*p.Interval)
		}
	}
	return out, nil
}

// addMonths moves t by n calendar months, clamping the day to the last
// day of the target month.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// weekdaySet returns the sorted, de-duplicated weekday filter, or nil when
// the pattern has none.
func weekdaySet(p models.RecurringPattern) []int {
	if p.Frequency != models.FrequencyWeekly || len(p.DaysOfWeek) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(p.DaysOfWeek))
	var days []int
	for _, d := range p.DaysOfWeek {
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Ints(days)
	return days
}

func daysUntilNext(current time.Time, days []int, interval int) int {
	weekday := scheduling.WeekdayIndex(current.Weekday())
	for _, d := range days {
		if d > weekday {
			return d - weekday
		}
	}
	return 7 - weekday + days[0] + (interval-1)*7
}

func contains(days []int, d int) bool {
	for _, v := range days {
		if v == d {
			return true
		}
	}
	return false
}
