// Package availability turns a service's weekly working hours into the free
// slots of one calendar day.
package availability

import (
	"time"

	"github.com/jwalitptl/slotbook/internal/model"
)

// DisplayLayout renders a slot start on a 12-hour clock.
const DisplayLayout = "3:04 PM"

// Window returns the bookable [start, end) of day for svc. ok is false when
// the weekday is missing, disabled or malformed.
func Window(svc *model.Service, day time.Time) (start, end time.Time, ok bool) {
	day, _ = model.DayBounds(day)
	sched, found := svc.WorkingHours[model.WeekdayName(day.Weekday())]
	if !found || !sched.Enabled {
		return time.Time{}, time.Time{}, false
	}
	from, err := model.ParseClock(sched.Start)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	to, err := model.ParseClock(sched.End)
	if err != nil || to <= from {
		return time.Time{}, time.Time{}, false
	}
	return day.Add(from), day.Add(to), true
}

// Calculate lists the free slots of svc on day in chronological order.
//
// The window is tiled with back-to-back slots of svc.Duration minutes and a
// trailing remainder shorter than one slot is dropped. A candidate is removed
// only when its start equals the start of a non-cancelled booking. Bookings
// that are not aligned to the tiling (for example after the duration was
// edited) are therefore not excluded here; the conflict check on create still
// rejects them.
func Calculate(svc *model.Service, day time.Time, bookings []*model.Booking) []model.Slot {
	slots := make([]model.Slot, 0)
	if svc == nil || !svc.IsActive || svc.Duration <= 0 {
		return slots
	}
	windowStart, windowEnd, ok := Window(svc, day)
	if !ok {
		return slots
	}

	taken := make(map[int64]struct{}, len(bookings))
	for _, b := range bookings {
		if b.Status == model.StatusCancelled {
			continue
		}
		taken[b.StartTime.UTC().UnixNano()] = struct{}{}
	}

	step := svc.SlotLength()
	for s := windowStart; !s.Add(step).After(windowEnd); s = s.Add(step) {
		if _, busy := taken[s.UnixNano()]; busy {
			continue
		}
		slots = append(slots, model.Slot{
			StartTime: s.Format(model.ClockLayout),
			EndTime:   s.Add(step).Format(model.ClockLayout),
			Display:   s.Format(DisplayLayout),
		})
	}
	return slots
}
