package scheduler

import "time"

// SlotMinutes is the atomic scheduling granularity.
const SlotMinutes = 30

// SlotsPerHour converts between hour quotas and slot counts.
const SlotsPerHour = 60 / SlotMinutes

// slotTime combines a calendar date with minutes-from-midnight into a slot key.
func slotTime(date time.Time, minute int) time.Time {
	y, m, d := date.UTC().Date()
	return time.Date(y, m, d, minute/60, minute%60, 0, 0, time.UTC)
}

// minuteOf returns minutes-from-midnight for a slot key.
func minuteOf(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// dateOf truncates a slot key to its calendar date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeekStartOf normalises any date to the Monday of its week. Callers that
// persist or load slots keyed by week use it so their window matches the
// engine's own normalisation.
func WeekStartOf(t time.Time) time.Time {
	d := dateOf(t)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// weekdaysOf lists the five schedulable days of the week starting at monday.
func weekdaysOf(monday time.Time) []time.Time {
	days := make([]time.Time, 0, 5)
	for i := 0; i < 5; i++ {
		days = append(days, monday.AddDate(0, 0, i))
	}
	return days
}

// isWeekend reports whether the date falls on Saturday or Sunday.
func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// hoursToSlots converts an hourly quota to 30-minute slots, rounding up.
func hoursToSlots(hours float64) int {
	slots := int(hours * SlotsPerHour)
	if float64(slots) < hours*SlotsPerHour {
		slots++
	}
	return slots
}

// slotsToHours converts a slot count back to hours.
func slotsToHours(slots int) float64 {
	return float64(slots) / SlotsPerHour
}
