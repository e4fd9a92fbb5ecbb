package scheduling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

var weekdayKeys = [7]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// DayRange is one open interval of a resource's weekly schedule.
type DayRange struct {
	Weekday int       `json:"day_of_week"`
	Start   TimeOfDay `json:"start_time"`
	End     TimeOfDay `json:"end_time"`
}

// WeeklySchedule is the normalized form of a resource availability
// document, sorted by weekday then start.
type WeeklySchedule []DayRange

type structuredEntry struct {
	DayOfWeek *int   `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// ParseSchedule accepts both stored encodings:
//
//	{"monday": ["08:00-12:00", "13:00-17:00"], ...}
//	{"schedule": [{"day_of_week": 0, "start_time": "08:00", "end_time": "12:00"}]}
//
// When a weekday appears under its name, the structured entries for that
// weekday are ignored.
func ParseSchedule(raw []byte) (WeeklySchedule, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("availability schedule: %w", err)
	}

	var (
		out    WeeklySchedule
		legacy [7]bool
	)
	for day, key := range weekdayKeys {
		value, ok := doc[key]
		if !ok {
			continue
		}
		legacy[day] = true

		var entries []string
		if err := json.Unmarshal(value, &entries); err != nil {
			return nil, fmt.Errorf("availability schedule %s: %w", key, err)
		}
		for _, entry := range entries {
			r, err := parseLegacyRange(day, entry)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}

	if value, ok := doc["schedule"]; ok {
		var entries []structuredEntry
		if err := json.Unmarshal(value, &entries); err != nil {
			return nil, fmt.Errorf("availability schedule: %w", err)
		}
		for _, entry := range entries {
			if entry.DayOfWeek == nil || *entry.DayOfWeek < 0 || *entry.DayOfWeek > 6 {
				return nil, fmt.Errorf("availability schedule: day_of_week must be in 0..6")
			}
			if legacy[*entry.DayOfWeek] {
				continue
			}
			r, err := newDayRange(*entry.DayOfWeek, entry.StartTime, entry.EndTime)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weekday != out[j].Weekday {
			return out[i].Weekday < out[j].Weekday
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

func parseLegacyRange(day int, entry string) (DayRange, error) {
	start, end, ok := strings.Cut(entry, "-")
	if !ok {
		return DayRange{}, fmt.Errorf("availability schedule: malformed range %q", entry)
	}
	return newDayRange(day, start, end)
}

func newDayRange(day int, start, end string) (DayRange, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return DayRange{}, fmt.Errorf("availability schedule: %w", err)
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return DayRange{}, fmt.Errorf("availability schedule: %w", err)
	}
	if e <= s {
		return DayRange{}, fmt.Errorf("availability schedule: range %s-%s ends before it starts", s, e)
	}
	return DayRange{Weekday: day, Start: s, End: e}, nil
}

// For returns the ranges configured for weekday (Monday=0).
func (s WeeklySchedule) For(weekday int) []DayRange {
	var out []DayRange
	for _, r := range s {
		if r.Weekday == weekday {
			out = append(out, r)
		}
	}
	return out
}
