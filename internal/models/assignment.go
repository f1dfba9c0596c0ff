package models

import "time"

// AssignedSlot is one awarded block in a member's weekly schedule.
type AssignedSlot struct {
	Date        time.Time    `json:"date"`
	DayOfWeek   time.Weekday `json:"day_of_week"`
	StartMinute int          `json:"start_minute"`
	EndMinute   int          `json:"end_minute"`
}

// Assignment is the per-member outcome of a scheduling run. AssignedSlots and
// RequiredSlots count 30-minute units.
type Assignment struct {
	MemberID           string         `json:"member_id"`
	AssignedSlots      int            `json:"assigned_slots"`
	RequiredSlots      int            `json:"required_slots"`
	Slots              []AssignedSlot `json:"slots"`
	NeedsIntervention  bool           `json:"needs_intervention"`
	InterventionReason string         `json:"intervention_reason,omitempty"`
}

// AssignedHours converts the slot count to hours.
func (a *Assignment) AssignedHours() float64 {
	return float64(a.AssignedSlots) / 2
}

// Deficit is the unmet quota at the end of a run, in slots.
func (a *Assignment) Deficit() int {
	if d := a.RequiredSlots - a.AssignedSlots; d > 0 {
		return d
	}
	return 0
}

// CarryOverEntry records a weekly deficit carried into the next run.
type CarryOverEntry struct {
	ID        string    `db:"id" json:"id"`
	MemberID  string    `db:"member_id" json:"member_id"`
	Amount    int       `db:"amount" json:"amount"`
	Reason    string    `db:"reason" json:"reason"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

// UnassignedMemberInfo surfaces members whose demand went unmet this run.
type UnassignedMemberInfo struct {
	MemberID    string  `json:"member_id"`
	NeededHours float64 `json:"needed_hours"`
}
