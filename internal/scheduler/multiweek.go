package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/slotwise/slotwise-api/internal/models"
)

// runWeeks executes the default policy once per calendar week in strict
// sequence, threading carry-over deficits forward. Week N's shortfall is an
// input to week N+1; there is no valid parallel execution of weeks.
func (e *Engine) runWeeks(ctx context.Context, in Input) (*Result, error) {
	weeks := in.Room.Settings.NumWeeks
	baseQuota := hoursToSlots(in.Room.Settings.MinHoursPerWeek)

	result := &Result{
		Assignments:  make(map[string]*models.Assignment, len(in.Members)),
		CarryOver:    make(map[string][]models.CarryOverEntry),
		Negotiations: []Negotiation{},
	}

	carried := make(map[string]int, len(in.Members))
	streaks := make(map[string]int, len(in.Members))
	for i := range in.Members {
		m := &in.Members[i]
		carried[m.ID] = priorWeekDeficit(m.CarryOverHistory, in.WeekStart)
		streaks[m.ID] = consecutiveShortfalls(m.CarryOverHistory, in.WeekStart)
		result.Assignments[m.ID] = &models.Assignment{
			MemberID:      m.ID,
			RequiredSlots: baseQuota*weeks + carried[m.ID],
		}
	}

	for w := 0; w < weeks; w++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		weekStart := in.WeekStart.AddDate(0, 0, 7*w)
		st := newRunState(e.cfg, weekStart)
		for i := range in.Members {
			m := &in.Members[i]
			st.addMember(m, baseQuota+carried[m.ID], carried[m.ID])
		}
		buildTimetable(st, in.Owner, in.Room.Settings, in.Members)
		seedExisting(st, in.ExistingSlots)

		e.runWeek(st, &result.Stats)

		weekEnd := weekStart.AddDate(0, 0, 7)
		for id, a := range st.exportAssignments() {
			total := result.Assignments[id]
			total.AssignedSlots += a.AssignedSlots
			total.Slots = append(total.Slots, a.Slots...)
		}
		for _, id := range st.order {
			m := st.members[id]
			if entry, ok := carryOverFor(m, weekEnd); ok {
				result.CarryOver[id] = append(result.CarryOver[id], entry)
				carried[id] = entry.Amount
				streaks[id]++
				e.logger.Debug("carry-over recorded",
					zap.String("member", id),
					zap.Int("amount", entry.Amount),
					zap.Int("streak", streaks[id]))
			} else {
				carried[id] = 0
				streaks[id] = 0
			}
		}
	}

	result.Stats.Weeks = weeks
	for id, a := range result.Assignments {
		flagIntervention(a, streaks[id])
	}
	result.Unassigned = unassignedInfo(result.Assignments)
	return result, nil
}

// priorWeekDeficit sums carry-over recorded for the week immediately before
// the run window. Entries are timestamped at the end of their short week,
// which normalises to the start of the run window.
func priorWeekDeficit(history []models.CarryOverEntry, weekStart time.Time) int {
	total := 0
	for _, entry := range history {
		if WeekStartOf(entry.Timestamp).Equal(weekStart) {
			total += entry.Amount
		}
	}
	return total
}
