package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"reservation-platform/shared/apperror"
	"reservation-platform/shared/cache"
	"reservation-platform/shared/logging"
	"reservation-platform/shared/models"
	"reservation-platform/shared/policy"
	"reservation-platform/shared/scheduling"
)

const dateLayout = "2006-01-02"

type ResourceRepository interface {
	GetResource(ctx context.Context, id uuid.UUID) (*models.Resource, error)
}

// BookingLookup returns the active bookings of a resource overlapping
// [start,end). Implementations fail open and return nil on error.
type BookingLookup interface {
	ActiveBookings(ctx context.Context, tenantID, resourceID uuid.UUID, start, end time.Time) []models.Booking
}

type AvailabilityCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

type AvailabilityService struct {
	resources ResourceRepository
	bookings  BookingLookup
	policies  policy.Resolver
	cache     AvailabilityCache
	ttl       time.Duration
	now       func() time.Time
}

func NewAvailabilityService(resources ResourceRepository, bookings BookingLookup, policies policy.Resolver, c AvailabilityCache, ttl time.Duration) *AvailabilityService {
	return &AvailabilityService{
		resources: resources,
		bookings:  bookings,
		policies:  policies,
		cache:     c,
		ttl:       ttl,
		now:       time.Now,
	}
}

func (s *AvailabilityService) WithClock(now func() time.Time) *AvailabilityService {
	s.now = now
	return s
}

// ComputeAvailability lists the free slots of a resource on date
// (YYYY-MM-DD, tenant-local). A cached snapshot is returned as is.
// Resources owned by a tenant other than tenantID are reported as not
// found before anything about them is evaluated or cached.
func (s *AvailabilityService) ComputeAvailability(ctx context.Context, tenantID, resourceID uuid.UUID, date string) (*models.Availability, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", apperror.ErrInvalidArgument)
	}

	log := logging.FromContext(ctx).WithFields(logrus.Fields{
		"tenant_id":   tenantID,
		"resource_id": resourceID,
		"date":        date,
	})
	key := cache.AvailabilityKey(resourceID, date)

	if s.cache != nil {
		var cached models.Availability
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			log.WithError(err).Debug("Availability cache read failed")
		} else if found {
			if cached.TenantID != tenantID {
				return nil, apperror.ErrNotFound
			}
			return &cached, nil
		}
	}

	resource, err := s.resources.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if resource.TenantID != tenantID {
		return nil, apperror.ErrNotFound
	}
	if !resource.Status.Bookable() {
		return nil, fmt.Errorf("%w: resource status is %s", apperror.ErrUnavailable, resource.Status)
	}

	settings := s.policies.Resolve(ctx, resource.TenantID)
	loc := settings.Location()

	day, err := time.ParseInLocation(dateLayout, date, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", apperror.ErrInvalidArgument)
	}
	if err := checkHorizon(day, s.now().In(loc), settings); err != nil {
		return nil, err
	}

	schedule, err := scheduling.ParseSchedule(resource.AvailabilitySchedule)
	if err != nil {
		log.WithError(err).Warn("Unreadable availability schedule, treating as closed")
		schedule = nil
	}

	availability := &models.Availability{
		ResourceID: resource.ID,
		TenantID:   resource.TenantID,
		Date:       date,
		Timezone:   loc.String(),
		Slots:      []models.AvailabilitySlot{},
	}

	slots := scheduling.GenerateSlots(schedule.For(scheduling.WeekdayIndex(day.Weekday())), scheduling.SlotParams{
		Date:      day,
		Location:  loc,
		WorkStart: settings.WorkingHoursStart,
		WorkEnd:   settings.WorkingHoursEnd,
		Interval:  settings.BookingInterval,
		Now:       s.now(),
	})
	if len(slots) > 0 {
		booked := s.bookings.ActiveBookings(ctx, resource.TenantID, resource.ID, day, day.AddDate(0, 0, 1))
		availability.Slots = append(availability.Slots, scheduling.RemoveBooked(slots, booked)...)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, availability, s.ttl); err != nil {
			log.WithError(err).Debug("Availability cache write failed")
		}
	}
	return availability, nil
}

// checkHorizon bounds day to [today, today+AdvanceBookingDays] in the
// tenant's zone.
func checkHorizon(day, now time.Time, s policy.Settings) error {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	if day.Before(today) {
		return apperror.Violation(apperror.RuleDateInPast, today.Format(dateLayout),
			"date %s is in the past", day.Format(dateLayout))
	}
	if day.After(today.AddDate(0, 0, s.AdvanceBookingDays)) {
		return apperror.Violation(apperror.RuleTooFarAhead, strconv.Itoa(s.AdvanceBookingDays),
			"availability can be queried at most %d days in advance", s.AdvanceBookingDays)
	}
	return nil
}
