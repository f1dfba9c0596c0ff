package models

import (
	"fmt"
	"time"
)

// AvailabilityKind discriminates recurring weekday windows from date-specific ones.
type AvailabilityKind string

const (
	AvailabilityRecurring AvailabilityKind = "RECURRING"
	AvailabilityDated     AvailabilityKind = "DATED"
)

// Availability is a declared preference window on the 30-minute grid.
// Exactly one of DayOfWeek (recurring) or Date (dated) applies, selected by Kind.
type Availability struct {
	ID          string           `db:"id" json:"id"`
	OwnerType   string           `db:"owner_type" json:"owner_type"`
	OwnerRef    string           `db:"owner_ref" json:"owner_ref"`
	Kind        AvailabilityKind `db:"kind" json:"kind"`
	DayOfWeek   time.Weekday     `db:"day_of_week" json:"day_of_week"`
	Date        *time.Time       `db:"date" json:"date,omitempty"`
	StartMinute int              `db:"start_minute" json:"start_minute"`
	EndMinute   int              `db:"end_minute" json:"end_minute"`
	Priority    int              `db:"priority" json:"priority"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}

// NewRecurring builds a weekday-recurring availability window.
func NewRecurring(day time.Weekday, startMinute, endMinute, priority int) Availability {
	return Availability{
		Kind:        AvailabilityRecurring,
		DayOfWeek:   day,
		StartMinute: startMinute,
		EndMinute:   endMinute,
		Priority:    priority,
	}
}

// NewDated builds a date-specific availability window.
func NewDated(date time.Time, startMinute, endMinute, priority int) Availability {
	d := date.UTC().Truncate(24 * time.Hour)
	return Availability{
		Kind:        AvailabilityDated,
		Date:        &d,
		StartMinute: startMinute,
		EndMinute:   endMinute,
		Priority:    priority,
	}
}

// Validate enforces the recurring-XOR-dated shape and the 30-minute grid.
func (a Availability) Validate() error {
	switch a.Kind {
	case AvailabilityRecurring:
		if a.Date != nil {
			return fmt.Errorf("recurring availability must not carry a date")
		}
		if a.DayOfWeek == time.Saturday || a.DayOfWeek == time.Sunday {
			return fmt.Errorf("weekend availability is not schedulable")
		}
	case AvailabilityDated:
		if a.Date == nil {
			return fmt.Errorf("dated availability requires a date")
		}
		if wd := a.Date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return fmt.Errorf("weekend availability is not schedulable")
		}
	default:
		return fmt.Errorf("unknown availability kind %q", a.Kind)
	}
	if a.StartMinute%30 != 0 || a.EndMinute%30 != 0 {
		return fmt.Errorf("availability must align to the 30-minute grid")
	}
	if a.StartMinute < 0 || a.EndMinute > 24*60 || a.EndMinute <= a.StartMinute {
		return fmt.Errorf("availability window [%d, %d) is invalid", a.StartMinute, a.EndMinute)
	}
	return nil
}

// AppliesTo reports whether this window covers the given calendar date.
func (a Availability) AppliesTo(date time.Time) bool {
	switch a.Kind {
	case AvailabilityRecurring:
		return a.DayOfWeek == date.Weekday()
	case AvailabilityDated:
		return a.Date != nil && sameDate(*a.Date, date)
	}
	return false
}

// BlockedTime removes availability. Room-level entries come from the owner,
// personal entries from individual members.
type BlockedTime struct {
	ID          string           `db:"id" json:"id"`
	OwnerType   string           `db:"owner_type" json:"owner_type"`
	OwnerRef    string           `db:"owner_ref" json:"owner_ref"`
	Name        string           `db:"name" json:"name"`
	Kind        AvailabilityKind `db:"kind" json:"kind"`
	DayOfWeek   time.Weekday     `db:"day_of_week" json:"day_of_week"`
	Date        *time.Time       `db:"date" json:"date,omitempty"`
	StartMinute int              `db:"start_minute" json:"start_minute"`
	EndMinute   int              `db:"end_minute" json:"end_minute"`
}

// AppliesTo reports whether the blocked window covers the given date.
func (b BlockedTime) AppliesTo(date time.Time) bool {
	switch b.Kind {
	case AvailabilityRecurring:
		return b.DayOfWeek == date.Weekday()
	case AvailabilityDated:
		return b.Date != nil && sameDate(*b.Date, date)
	}
	return false
}

// Covers reports whether [startMinute, endMinute) intersects the blocked window
// on the given date.
func (b BlockedTime) Covers(date time.Time, startMinute, endMinute int) bool {
	if !b.AppliesTo(date) {
		return false
	}
	return startMinute < b.EndMinute && b.StartMinute < endMinute
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
