package scheduling

import (
	"sort"
	"time"

	"reservation-platform/shared/models"
)

// SlotParams carries the tenant policy and the target day for slot
// generation.
type SlotParams struct {
	Date      time.Time
	Location  *time.Location
	WorkStart TimeOfDay
	WorkEnd   TimeOfDay
	Interval  int
	Now       time.Time
}

// GenerateSlots walks each range in Interval-minute steps after clamping it
// to working hours. Slot starts are aligned to multiples of Interval from
// local midnight so every slot passes the booking window alignment rule.
// Slots starting before Now are left out.
func GenerateSlots(ranges []DayRange, p SlotParams) []models.AvailabilitySlot {
	if p.Interval <= 0 {
		return nil
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}

	seen := make(map[int]bool)
	var slots []models.AvailabilitySlot
	for _, r := range ranges {
		start, end := r.Start, r.End
		if start < p.WorkStart {
			start = p.WorkStart
		}
		if end > p.WorkEnd {
			end = p.WorkEnd
		}
		if end <= start {
			continue
		}

		cursor := int(start)
		if rem := cursor % p.Interval; rem != 0 {
			cursor += p.Interval - rem
		}

		for ; cursor+p.Interval <= int(end); cursor += p.Interval {
			if seen[cursor] {
				continue
			}
			slotStart := TimeOfDay(cursor).On(p.Date, loc)
			if slotStart.Before(p.Now) {
				continue
			}
			seen[cursor] = true
			slots = append(slots, models.AvailabilitySlot{
				Start: slotStart,
				End:   TimeOfDay(cursor + p.Interval).On(p.Date, loc),
			})
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots
}

// RemoveBooked drops every slot that overlaps an active booking.
func RemoveBooked(slots []models.AvailabilitySlot, bookings []models.Booking) []models.AvailabilitySlot {
	out := make([]models.AvailabilitySlot, 0, len(slots))
	for _, slot := range slots {
		taken := false
		for _, b := range bookings {
			if b.Status != "" && !b.Status.IsActive() {
				continue
			}
			if Overlaps(slot.Start, slot.End, b.StartTime, b.EndTime) {
				taken = true
				break
			}
		}
		if !taken {
			out = append(out, slot)
		}
	}
	return out
}
