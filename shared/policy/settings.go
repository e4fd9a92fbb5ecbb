package policy

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"reservation-platform/shared/config"
	"reservation-platform/shared/scheduling"
)

// Settings is the scheduling policy of one tenant. Values are copied, never
// shared, so a snapshot stays fixed for the duration of a request.
type Settings struct {
	Timezone           string               `json:"timezone"`
	WorkingHoursStart  scheduling.TimeOfDay `json:"working_hours_start"`
	WorkingHoursEnd    scheduling.TimeOfDay `json:"working_hours_end"`
	BookingInterval    int                  `json:"booking_interval"`
	AdvanceBookingDays int                  `json:"advance_booking_days"`
	CancellationHours  int                  `json:"cancellation_hours"`
}

var fallback = Settings{
	Timezone:           "UTC",
	WorkingHoursStart:  scheduling.NewTimeOfDay(8, 0),
	WorkingHoursEnd:    scheduling.NewTimeOfDay(18, 0),
	BookingInterval:    30,
	AdvanceBookingDays: 30,
	CancellationHours:  24,
}

// Defaults builds settings from configuration. Invalid configuration falls
// back to built-in values field by field.
func Defaults(cfg config.DefaultsConfig) Settings {
	s := fallback
	if cfg.Timezone != "" {
		s.Timezone = cfg.Timezone
	}
	if t, err := scheduling.ParseTimeOfDay(cfg.WorkingHoursStart); err == nil {
		s.WorkingHoursStart = t
	}
	if t, err := scheduling.ParseTimeOfDay(cfg.WorkingHoursEnd); err == nil {
		s.WorkingHoursEnd = t
	}
	if cfg.BookingInterval > 0 {
		s.BookingInterval = cfg.BookingInterval
	}
	if cfg.AdvanceBookingDays >= 0 {
		s.AdvanceBookingDays = cfg.AdvanceBookingDays
	}
	if cfg.CancellationHours >= 0 {
		s.CancellationHours = cfg.CancellationHours
	}
	if err := s.Validate(); err != nil {
		logrus.WithError(err).Warn("Configured scheduling defaults are invalid, using built-in defaults")
		return fallback
	}
	return s
}

func (s Settings) Validate() error {
	if s.WorkingHoursStart >= s.WorkingHoursEnd {
		return fmt.Errorf("working hours start %s must be before end %s", s.WorkingHoursStart, s.WorkingHoursEnd)
	}
	if s.BookingInterval <= 0 {
		return errors.New("booking interval must be positive")
	}
	if s.AdvanceBookingDays < 0 || s.CancellationHours < 0 {
		return errors.New("advance booking days and cancellation hours must not be negative")
	}
	return nil
}

var zones sync.Map

// Location resolves Timezone, falling back to UTC for unknown names.
func (s Settings) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	if loc, ok := zones.Load(s.Timezone); ok {
		return loc.(*time.Location)
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		logrus.WithField("timezone", s.Timezone).Warn("Unknown timezone, using UTC")
		loc = time.UTC
	}
	zones.Store(s.Timezone, loc)
	return loc
}
