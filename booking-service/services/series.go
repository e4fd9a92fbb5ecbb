package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"reservation-platform/shared/apperror"
	"reservation-platform/shared/logging"
	"reservation-platform/shared/models"
	"reservation-platform/shared/recurrence"
)

// SeriesOccurrence is one expanded occurrence of a recurring request.
// Reason and Code are set when the occurrence cannot be booked.
type SeriesOccurrence struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Available bool      `json:"available"`
	Code      string    `json:"code,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

type SeriesResult struct {
	Created []models.Booking   `json:"created"`
	Skipped []SeriesOccurrence `json:"skipped"`
}

func (s *BookingService) expand(req CreateBookingRequest) ([]recurrence.Occurrence, error) {
	if req.RecurringPattern == nil {
		return nil, fmt.Errorf("recurring_pattern is required: %w", apperror.ErrInvalidArgument)
	}
	occurrences, err := recurrence.Expand(req.StartTime, req.EndTime, *req.RecurringPattern)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperror.ErrInvalidArgument)
	}
	return occurrences, nil
}

// PreviewSeries expands a recurring request and checks every occurrence
// against policy and existing bookings without storing anything.
func (s *BookingService) PreviewSeries(ctx context.Context, req CreateBookingRequest) ([]SeriesOccurrence, error) {
	occurrences, err := s.expand(req)
	if err != nil {
		return nil, err
	}

	settings := s.policies.Resolve(ctx, req.TenantID)
	out := make([]SeriesOccurrence, 0, len(occurrences))
	for _, occ := range occurrences {
		item := SeriesOccurrence{StartTime: occ.Start, EndTime: occ.End, Available: true}

		err := s.checkAvailable(ctx, req.TenantID, req.ResourceID, occ.Start, occ.End, uuid.Nil, settings)
		switch {
		case err == nil:
		case rejection(err):
			item.Available = false
			item.Code = apperror.Code(err)
			item.Reason = err.Error()
		default:
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// CreateSeries books every occurrence of a recurring request that passes
// policy and conflict checks. Occurrences that fail are reported in
// Skipped; only storage errors abort the series.
func (s *BookingService) CreateSeries(ctx context.Context, req CreateBookingRequest) (*SeriesResult, error) {
	occurrences, err := s.expand(req)
	if err != nil {
		return nil, err
	}

	result := &SeriesResult{Created: []models.Booking{}, Skipped: []SeriesOccurrence{}}
	for _, occ := range occurrences {
		one := req
		one.StartTime, one.EndTime = occ.Start, occ.End

		booking, err := s.CreateBooking(ctx, one)
		switch {
		case err == nil:
			result.Created = append(result.Created, *booking)
		case rejection(err):
			result.Skipped = append(result.Skipped, SeriesOccurrence{
				StartTime: occ.Start,
				EndTime:   occ.End,
				Code:      apperror.Code(err),
				Reason:    err.Error(),
			})
		default:
			return result, err
		}
	}

	logging.FromContext(ctx).WithFields(logrus.Fields{
		"tenant_id":   req.TenantID,
		"resource_id": req.ResourceID,
		"created":     len(result.Created),
		"skipped":     len(result.Skipped),
	}).Info("Booking series processed")
	return result, nil
}
