package scheduler

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

// hourSlots is the number of grid units in one schedulable hour block.
const hourSlots = 2

// assignUndisputed is the first pass: full one-hour blocks outside any
// conflict block go to their sole or strictly-highest-priority claimant,
// round-robin across under-quota members so nobody exhausts the undisputed
// inventory before others get a turn. High-priority claims are served first,
// then the remainder.
func assignUndisputed(st *runState, logger *zap.Logger) {
	for _, tier := range []int{st.cfg.HighTierPriority, 0} {
		undisputedRoundRobin(st, tier, logger)
	}
}

func undisputedRoundRobin(st *runState, minPriority int, logger *zap.Logger) {
	for round := 0; round < st.cfg.MaxAssignRounds; round++ {
		progressed := false
		for _, id := range st.order {
			m := st.members[id]
			if !m.underQuota() {
				continue
			}
			pair, ok := findUndisputedHour(st, id, minPriority)
			if !ok {
				continue
			}
			st.assign(pair[0], id)
			st.assign(pair[1], id)
			progressed = true
		}
		if !progressed {
			return
		}
	}
	st.roundCapHits++
	logger.Warn("undisputed pass hit round cap before convergence",
		zap.Int("cap", st.cfg.MaxAssignRounds),
		zap.Int("min_priority", minPriority))
}

// findUndisputedHour returns the earliest pair of adjacent slots a member
// uniquely holds, skipping conflict blocks and assigned slots.
func findUndisputedHour(st *runState, memberID string, minPriority int) ([2]*Slot, bool) {
	keys := st.sortedKeys()
	for i := 0; i+1 < len(keys); i++ {
		first, second := keys[i], keys[i+1]
		if !sameDay(first, second) || !first.Add(SlotMinutes*time.Minute).Equal(second) {
			continue
		}
		if st.inConflictBlock(first) || st.inConflictBlock(second) {
			continue
		}
		a, b := st.slots[first], st.slots[second]
		if a.AssignedTo != "" || b.AssignedTo != "" {
			continue
		}
		if holderA, ok := a.topUniqueClaimant(minPriority); !ok || holderA != memberID {
			continue
		}
		if holderB, ok := b.topUniqueClaimant(minPriority); !ok || holderB != memberID {
			continue
		}
		return [2]*Slot{a, b}, true
	}
	return [2]*Slot{}, false
}

// assignTargeted is the second pass: a single walk over the sorted slot keys.
// A contiguous uniquely-held run matching a member's remaining quota exactly is
// assigned whole; afterwards remaining under-quota members receive up to
// MaxPartialBlocks best-effort partial blocks to soak up fragmented availability.
func assignTargeted(st *runState, logger *zap.Logger) {
	keys := st.sortedKeys()

	i := 0
	for i < len(keys) {
		run, holder := uniqueRunAt(st, keys, i)
		if holder == "" {
			i++
			continue
		}
		m := st.members[holder]
		if m != nil && m.underQuota() && len(run) == m.remaining() {
			for _, s := range run {
				st.assign(s, holder)
			}
		}
		i += len(run)
	}

	for _, id := range st.order {
		m := st.members[id]
		if m == nil || !m.underQuota() {
			continue
		}
		granted := 0
		i = 0
		for i < len(keys) && granted < st.cfg.MaxPartialBlocks && m.underQuota() {
			run, holder := uniqueRunAt(st, keys, i)
			if holder != id || len(run) == 0 {
				i++
				continue
			}
			take := minInt(len(run), m.remaining())
			for j := 0; j < take; j++ {
				st.assign(run[j], id)
			}
			granted++
			i += len(run)
		}
	}
}

// uniqueRunAt returns the maximal contiguous run starting at keys[i] whose
// slots are all unassigned, outside conflict blocks, and uniquely top-held by
// the same member.
func uniqueRunAt(st *runState, keys []time.Time, i int) ([]*Slot, string) {
	first := keys[i]
	if st.inConflictBlock(first) {
		return nil, ""
	}
	s := st.slots[first]
	if s.AssignedTo != "" {
		return nil, ""
	}
	holder, ok := s.topUniqueClaimant(0)
	if !ok {
		return nil, ""
	}
	run := []*Slot{s}
	for j := i + 1; j < len(keys); j++ {
		prev, cur := keys[j-1], keys[j]
		if !sameDay(prev, cur) || !prev.Add(SlotMinutes*time.Minute).Equal(cur) {
			break
		}
		if st.inConflictBlock(cur) {
			break
		}
		next := st.slots[cur]
		if next.AssignedTo != "" {
			break
		}
		if h, ok := next.topUniqueClaimant(0); !ok || h != holder {
			break
		}
		run = append(run, next)
	}
	return run, holder
}

// assignIterative is the third pass: repeatedly select the least-progressed
// under-quota member (ties by declared member priority, descending), give them
// the earliest uniquely-held hour block on a day free of their unresolved
// conflicts, and repeat until nobody can progress.
func assignIterative(st *runState, logger *zap.Logger) {
	exhausted := make(map[string]bool)
	iterations := 0
	limit := st.cfg.MaxAssignRounds * maxInt(len(st.order), 1)

	for {
		if iterations >= limit {
			st.roundCapHits++
			logger.Warn("iterative pass hit round cap before convergence", zap.Int("cap", limit))
			return
		}
		iterations++

		id := pickLeastProgressed(st, exhausted)
		if id == "" {
			return
		}
		pair, ok := findIterativeHour(st, id)
		if !ok {
			exhausted[id] = true
			continue
		}
		st.assign(pair[0], id)
		st.assign(pair[1], id)
	}
}

func pickLeastProgressed(st *runState, exhausted map[string]bool) string {
	var ids []string
	for _, id := range st.order {
		m := st.members[id]
		if m.underQuota() && !exhausted[id] {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return ""
	}
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := st.members[ids[i]], st.members[ids[j]]
		if a.progress() != b.progress() {
			return a.progress() < b.progress()
		}
		if a.member.Priority != b.member.Priority {
			return a.member.Priority > b.member.Priority
		}
		return ids[i] < ids[j]
	})
	return ids[0]
}

// findIterativeHour mirrors findUndisputedHour but additionally refuses days
// that already hold one of the member's unresolved conflict blocks.
func findIterativeHour(st *runState, memberID string) ([2]*Slot, bool) {
	m := st.members[memberID]
	keys := st.sortedKeys()
	for i := 0; i+1 < len(keys); i++ {
		first, second := keys[i], keys[i+1]
		if !sameDay(first, second) || !first.Add(SlotMinutes*time.Minute).Equal(second) {
			continue
		}
		if m.conflictDays[dateOf(first)] && unresolvedConflictOn(st, dateOf(first)) {
			continue
		}
		if st.inConflictBlock(first) || st.inConflictBlock(second) {
			continue
		}
		a, b := st.slots[first], st.slots[second]
		if a.AssignedTo != "" || b.AssignedTo != "" {
			continue
		}
		if h, ok := a.topUniqueClaimant(0); !ok || h != memberID {
			continue
		}
		if h, ok := b.topUniqueClaimant(0); !ok || h != memberID {
			continue
		}
		return [2]*Slot{a, b}, true
	}
	return [2]*Slot{}, false
}

func unresolvedConflictOn(st *runState, day time.Time) bool {
	for _, b := range st.blocks {
		if !b.resolved && sameDay(b.Day, day) {
			return true
		}
	}
	return false
}

// deficitFirstPass gives members carrying a deficit from earlier weeks first
// attempt at contiguous idle one-hour blocks, up to the owed amount, before
// the ordinary passes run.
func deficitFirstPass(st *runState) {
	for _, id := range st.order {
		m := st.members[id]
		owed := minInt(m.carried, m.remaining())
		for owed >= hourSlots {
			pair, ok := findUndisputedHour(st, id, 0)
			if !ok {
				break
			}
			st.assign(pair[0], id)
			st.assign(pair[1], id)
			owed -= hourSlots
		}
	}
}
