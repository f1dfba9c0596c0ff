package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/slotwise/slotwise-api/internal/models"
)

// carryOverFor records a member's deficit at the end of a week. Conservation
// holds by construction: next week's quota is base plus exactly this amount.
func carryOverFor(m *memberState, weekEnd time.Time) (models.CarryOverEntry, bool) {
	deficit := m.required - m.assigned
	if deficit <= 0 {
		return models.CarryOverEntry{}, false
	}
	return models.CarryOverEntry{
		MemberID:  m.member.ID,
		Amount:    deficit,
		Reason:    fmt.Sprintf("weekly quota short by %.1f hours", slotsToHours(deficit)),
		Timestamp: weekEnd,
	}, true
}

// consecutiveShortfalls counts how many weeks in a row, ending with the week
// just before weekStart, a member recorded a deficit. Entries land on the
// Monday after their short week, so the walk starts at weekStart itself.
func consecutiveShortfalls(history []models.CarryOverEntry, weekStart time.Time) int {
	if len(history) == 0 {
		return 0
	}
	byWeek := make(map[time.Time]bool, len(history))
	for _, entry := range history {
		byWeek[WeekStartOf(entry.Timestamp)] = true
	}
	streak := 0
	for week := weekStart; byWeek[week]; week = week.AddDate(0, 0, -7) {
		streak++
	}
	return streak
}

// flagIntervention marks an assignment for human follow-up after repeated
// consecutive shortfalls.
func flagIntervention(a *models.Assignment, streak int) {
	if streak < InterventionShortfallStreak {
		return
	}
	a.NeedsIntervention = true
	a.InterventionReason = fmt.Sprintf(
		"member is %.1f hours short after %d consecutive weekly shortfalls; manual scheduling follow-up required",
		slotsToHours(a.Deficit()), streak)
}

// unassignedInfo lists members whose demand went unmet this run, sorted by id.
func unassignedInfo(assignments map[string]*models.Assignment) []models.UnassignedMemberInfo {
	var out []models.UnassignedMemberInfo
	for _, a := range assignments {
		if d := a.Deficit(); d > 0 {
			out = append(out, models.UnassignedMemberInfo{
				MemberID:    a.MemberID,
				NeededHours: slotsToHours(d),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out
}
