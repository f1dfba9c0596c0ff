package scheduler

import (
	"time"

	"github.com/slotwise/slotwise-api/internal/models"
)

// buildTimetable expands owner and member availability over one week into the
// in-memory slot map. The owner's available set, reduced by room blocks and the
// owner's personal time, is the hard upper bound: member slots materialise only
// inside it. Each member's own personal time is subtracted afterwards.
func buildTimetable(st *runState, owner models.Owner, settings models.RoomSettings, members []models.Member) {
	windowStart := settings.ScheduleStartHour * 60
	windowEnd := settings.ScheduleEndHour * 60
	roomValidator := newScheduleValidator(settings, owner.PersonalTimes)

	ownerOpen := make(map[time.Time]claim)
	for _, day := range st.days {
		for _, pref := range owner.Availability {
			if !pref.AppliesTo(day) {
				continue
			}
			for minute := maxInt(pref.StartMinute, windowStart); minute+SlotMinutes <= minInt(pref.EndMinute, windowEnd); minute += SlotMinutes {
				if !roomValidator.Allows(day, minute, minute+SlotMinutes) {
					continue
				}
				ownerOpen[slotTime(day, minute)] = claim{memberID: owner.ID, priority: pref.Priority, isOwner: true}
			}
		}
	}

	for i := range members {
		member := &members[i]
		personal := newProhibitedTimeValidator(member.PersonalTimes)
		for _, day := range st.days {
			for _, pref := range member.Availability {
				if !pref.AppliesTo(day) {
					continue
				}
				for minute := maxInt(pref.StartMinute, windowStart); minute+SlotMinutes <= minInt(pref.EndMinute, windowEnd); minute += SlotMinutes {
					key := slotTime(day, minute)
					ownerClaim, open := ownerOpen[key]
					if !open {
						continue
					}
					if personal.Intersects(day, minute, minute+SlotMinutes) {
						continue
					}
					s := st.touchSlot(key)
					if _, dup := s.claimBy(member.ID); dup {
						continue
					}
					if _, present := s.claimBy(owner.ID); !present {
						s.claims = append(s.claims, ownerClaim)
					}
					s.claims = append(s.claims, claim{memberID: member.ID, priority: pref.Priority})
				}
			}
		}
	}
}

// seedExisting replays previously persisted assignments onto the fresh
// timetable so unchanged re-runs reproduce the same slot ownership.
func seedExisting(st *runState, existing []models.ScheduleSlot) {
	for _, row := range existing {
		date := dateOf(row.Date)
		if date.Before(st.days[0]) || date.After(st.days[len(st.days)-1]) {
			continue
		}
		for minute := row.StartMinute; minute+SlotMinutes <= row.EndMinute; minute += SlotMinutes {
			s := st.slotAt(slotTime(date, minute))
			if s == nil || s.AssignedTo != "" {
				continue
			}
			st.assign(s, row.MemberID)
		}
	}
}

// withdrawClaim removes a member's claim from a slot, dropping the slot when
// no member interest remains.
func withdrawClaim(st *runState, key time.Time, memberID string) {
	s := st.slotAt(key)
	if s == nil {
		return
	}
	kept := s.claims[:0]
	for _, c := range s.claims {
		if c.memberID != memberID {
			kept = append(kept, c)
		}
	}
	s.claims = kept
	if len(s.memberClaims()) == 0 && s.AssignedTo == "" {
		delete(st.slots, key)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
