package scheduler

import (
	"time"

	"github.com/slotwise/slotwise-api/internal/models"
)

// prohibitedTimeValidator answers whether a candidate range intersects any
// blocked or personal window.
type prohibitedTimeValidator struct {
	blocked []models.BlockedTime
}

func newProhibitedTimeValidator(windows ...[]models.BlockedTime) *prohibitedTimeValidator {
	v := &prohibitedTimeValidator{}
	for _, w := range windows {
		v.blocked = append(v.blocked, w...)
	}
	return v
}

// Intersects reports whether [startMinute, endMinute) on date touches a blocked window.
func (v *prohibitedTimeValidator) Intersects(date time.Time, startMinute, endMinute int) bool {
	for _, b := range v.blocked {
		if b.Covers(date, startMinute, endMinute) {
			return true
		}
	}
	return false
}

// BlockEnding returns the end minute of the first blocked window intersecting
// the candidate range, so a pushed start can resume just after it.
func (v *prohibitedTimeValidator) BlockEnding(date time.Time, startMinute, endMinute int) (int, bool) {
	end := -1
	for _, b := range v.blocked {
		if b.Covers(date, startMinute, endMinute) && b.EndMinute > end {
			end = b.EndMinute
		}
	}
	if end < 0 {
		return 0, false
	}
	return end, true
}

// scheduleValidator bundles the static predicates over candidate slots.
type scheduleValidator struct {
	startMinute int // room schedule window
	endMinute   int
	prohibited  *prohibitedTimeValidator
}

func newScheduleValidator(settings models.RoomSettings, personal []models.BlockedTime) *scheduleValidator {
	return &scheduleValidator{
		startMinute: settings.ScheduleStartHour * 60,
		endMinute:   settings.ScheduleEndHour * 60,
		prohibited:  newProhibitedTimeValidator(settings.BlockedTimes, settings.Exceptions, personal),
	}
}

// Allows reports whether the slot range is inside the room window, on a
// weekday, and clear of every blocked window.
func (v *scheduleValidator) Allows(date time.Time, startMinute, endMinute int) bool {
	if isWeekend(date) {
		return false
	}
	if startMinute < v.startMinute || endMinute > v.endMinute {
		return false
	}
	return !v.prohibited.Intersects(date, startMinute, endMinute)
}
