package scheduler

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/slotwise/slotwise-api/internal/models"
	appErrors "github.com/slotwise/slotwise-api/pkg/errors"
)

// defaultClassMinutes applies when room settings leave the class duration unset.
const defaultClassMinutes = 60

type transitMemberState struct {
	member   *models.Member
	required int
	assigned int
	carried  int
	slots    []models.AssignedSlot
}

func (m *transitMemberState) underQuota() bool { return m.assigned < m.required }

// runTransit is the geo-aware policy: per day it starts at the owner's
// location and greedily serves the nearest still-unsatisfied member whose
// availability can host the travel plus class duration, updating the current
// location after every award. Remaining demand rolls to the next day.
func (e *Engine) runTransit(ctx context.Context, in Input) (*Result, error) {
	if in.Owner.Location == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "transit mode requires the owner location")
	}
	mode := in.Room.Settings.TransportMode
	if mode == "" {
		mode = models.TransportModeDriving
	}
	classMinutes := in.Room.Settings.ClassMinutes
	if classMinutes <= 0 {
		classMinutes = defaultClassMinutes
	}
	classSlots := (classMinutes + SlotMinutes - 1) / SlotMinutes

	weeks := in.Room.Settings.NumWeeks
	baseQuota := hoursToSlots(in.Room.Settings.MinHoursPerWeek)
	validator := newScheduleValidator(in.Room.Settings, in.Owner.PersonalTimes)

	result := &Result{
		Assignments:  make(map[string]*models.Assignment, len(in.Members)),
		CarryOver:    make(map[string][]models.CarryOverEntry),
		Negotiations: []Negotiation{},
	}

	members := make(map[string]*transitMemberState, len(in.Members))
	order := make([]string, 0, len(in.Members))
	carried := make(map[string]int, len(in.Members))
	streaks := make(map[string]int, len(in.Members))
	for i := range in.Members {
		m := &in.Members[i]
		carried[m.ID] = priorWeekDeficit(m.CarryOverHistory, in.WeekStart)
		streaks[m.ID] = consecutiveShortfalls(m.CarryOverHistory, in.WeekStart)
		members[m.ID] = &transitMemberState{member: m}
		order = append(order, m.ID)
		result.Assignments[m.ID] = &models.Assignment{
			MemberID:      m.ID,
			RequiredSlots: baseQuota*weeks + carried[m.ID],
		}
		if m.Location == nil {
			e.logger.Info("member excluded from transit ranking: no location", zap.String("member", m.ID))
		}
	}
	sort.Strings(order)

	for w := 0; w < weeks; w++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		weekStart := in.WeekStart.AddDate(0, 0, 7*w)
		for _, id := range order {
			m := members[id]
			m.required = baseQuota + carried[id]
			m.assigned = 0
			m.carried = carried[id]
			m.slots = nil
		}

		for _, day := range weekdaysOf(weekStart) {
			e.runTransitDay(ctx, transitDay{
				date:         day,
				owner:        in.Owner,
				mode:         mode,
				classMinutes: classMinutes,
				classSlots:   classSlots,
				dayStart:     in.Room.Settings.ScheduleStartHour * 60,
				validator:    validator,
				members:      members,
				order:        order,
			}, &result.Stats)
		}

		weekEnd := weekStart.AddDate(0, 0, 7)
		for _, id := range order {
			m := members[id]
			total := result.Assignments[id]
			total.AssignedSlots += m.assigned
			total.Slots = append(total.Slots, m.slots...)

			deficit := m.required - m.assigned
			if deficit > 0 {
				entry := models.CarryOverEntry{
					MemberID:  id,
					Amount:    deficit,
					Reason:    "transit run left weekly quota unmet",
					Timestamp: weekEnd,
				}
				result.CarryOver[id] = append(result.CarryOver[id], entry)
				carried[id] = deficit
				streaks[id]++
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

type transitDay struct {
	date         time.Time
	owner        models.Owner
	mode         models.TransportMode
	classMinutes int
	classSlots   int
	dayStart     int
	validator    *scheduleValidator
	members      map[string]*transitMemberState
	order        []string
}

func (e *Engine) runTransitDay(ctx context.Context, day transitDay, stats *RunStats) {
	current := *day.owner.Location
	currentEnd := day.dayStart
	firstLeg := true

	for {
		candidates := make(map[string]models.Coordinates)
		for _, id := range day.order {
			m := day.members[id]
			if !m.underQuota() || m.member.Location == nil {
				continue
			}
			if !hasWindowOn(m.member, day.date) {
				continue
			}
			candidates[id] = *m.member.Location
		}
		if len(candidates) == 0 {
			return
		}

		travel := e.estimateBatch(ctx, current, candidates, day.mode, stats)
		ranked := rankByTravel(travel)

		assigned := false
		for _, id := range ranked {
			m := day.members[id]
			earliest := currentEnd
			if !firstLeg {
				earliest += int(travel[id].Minutes())
			}
			start, ok := findTransitStart(m.member, day.date, earliest, day.classMinutes, day.validator)
			if !ok {
				continue
			}
			end := start + day.classMinutes
			m.assigned += day.classSlots
			m.slots = append(m.slots, models.AssignedSlot{
				Date:        dateOf(day.date),
				DayOfWeek:   day.date.Weekday(),
				StartMinute: start,
				EndMinute:   end,
			})
			current = *m.member.Location
			currentEnd = end
			firstLeg = false
			assigned = true
			break
		}
		if !assigned {
			return
		}
	}
}

// findTransitStart locates the earliest start within one of the member's
// windows on the day that hosts the class without crossing a blocked or
// personal window. Crossing one pushes the start to just after it (a bounded
// wait). Nothing may intersect the evening block.
func findTransitStart(member *models.Member, date time.Time, earliest, classMinutes int, room *scheduleValidator) (int, bool) {
	personal := newProhibitedTimeValidator(member.PersonalTimes)
	windows := windowsOn(member, date)
	for _, w := range windows {
		start := maxInt(w.StartMinute, earliest)
		for start+classMinutes <= w.EndMinute {
			end := start + classMinutes
			if end > EveningBlockStartMinute {
				break
			}
			if blockEnd, blocked := room.prohibited.BlockEnding(date, start, end); blocked {
				start = blockEnd
				continue
			}
			if blockEnd, blocked := personal.BlockEnding(date, start, end); blocked {
				start = blockEnd
				continue
			}
			if start < room.startMinute || end > room.endMinute {
				break
			}
			return start, true
		}
	}
	return 0, false
}

func hasWindowOn(member *models.Member, date time.Time) bool {
	return len(windowsOn(member, date)) > 0
}

func windowsOn(member *models.Member, date time.Time) []models.Availability {
	var out []models.Availability
	for _, a := range member.Availability {
		if a.AppliesTo(date) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartMinute < out[j].StartMinute })
	return out
}

func rankByTravel(travel map[string]time.Duration) []string {
	ids := make([]string, 0, len(travel))
	for id := range travel {
		ids = append(ids, id)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		if travel[ids[i]] != travel[ids[j]] {
			return travel[ids[i]] < travel[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

// estimateBatch ranks destinations through the travel estimator and degrades
// every failure to the configured default duration; estimation problems never
// fail the run.
func (e *Engine) estimateBatch(ctx context.Context, origin models.Coordinates, dests map[string]models.Coordinates, mode models.TransportMode, stats *RunStats) map[string]time.Duration {
	fallback := time.Duration(e.cfg.DefaultTravelMinutes) * time.Minute
	out := make(map[string]time.Duration, len(dests))

	estimates, err := e.travel.EstimateBatch(ctx, origin, dests, mode)
	if err != nil {
		e.logger.Warn("travel estimation degraded to default duration",
			zap.Error(err), zap.Int("destinations", len(dests)))
		stats.TravelFallbacks++
		for id := range dests {
			out[id] = fallback
		}
		return out
	}
	for id := range dests {
		if d, ok := estimates[id]; ok && d > 0 {
			out[id] = d
		} else {
			stats.TravelFallbacks++
			out[id] = fallback
		}
	}
	return out
}
