package scheduler

import (
	"sort"
	"time"

	"github.com/slotwise/slotwise-api/internal/models"
)

// claim is one party's declared interest in a slot.
type claim struct {
	memberID string
	priority int
	isOwner  bool
}

// Slot is the atomic 30-minute schedulable unit, keyed by its start instant.
type Slot struct {
	Start      time.Time
	AssignedTo string
	claims     []claim
}

func (s *Slot) memberClaims() []claim {
	out := make([]claim, 0, len(s.claims))
	for _, c := range s.claims {
		if !c.isOwner {
			out = append(out, c)
		}
	}
	return out
}

func (s *Slot) claimBy(memberID string) (claim, bool) {
	for _, c := range s.claims {
		if c.memberID == memberID {
			return c, true
		}
	}
	return claim{}, false
}

// topUniqueClaimant returns the sole holder of the strictly highest priority
// among member claims, considering only claims with priority >= minPriority.
func (s *Slot) topUniqueClaimant(minPriority int) (string, bool) {
	best := ""
	bestPriority := -1
	unique := false
	for _, c := range s.claims {
		if c.isOwner || c.priority < minPriority {
			continue
		}
		switch {
		case c.priority > bestPriority:
			best, bestPriority, unique = c.memberID, c.priority, true
		case c.priority == bestPriority:
			unique = false
		}
	}
	if best == "" || !unique {
		return "", false
	}
	return best, true
}

type memberState struct {
	member       *models.Member
	required     int // 30-minute slots, base quota plus carry-over
	assigned     int
	carried      int // carry-over portion of required
	conflictDays map[time.Time]bool
}

func (m *memberState) remaining() int {
	if r := m.required - m.assigned; r > 0 {
		return r
	}
	return 0
}

func (m *memberState) underQuota() bool { return m.assigned < m.required }

// progress orders members for the iterative pass; lower means less progressed.
func (m *memberState) progress() float64 {
	if m.required == 0 {
		return 1
	}
	return float64(m.assigned) / float64(m.required)
}

// runState is the in-memory timetable for a single week. The engine owns it
// exclusively for the duration of the run.
type runState struct {
	cfg          Config
	weekStart    time.Time
	days         []time.Time
	slots        map[time.Time]*Slot
	members      map[string]*memberState
	order        []string // deterministic member iteration order
	blocks       []*ConflictBlock
	roundCapHits int
}

func newRunState(cfg Config, weekStart time.Time) *runState {
	return &runState{
		cfg:       cfg,
		weekStart: weekStart,
		days:      weekdaysOf(weekStart),
		slots:     make(map[time.Time]*Slot),
		members:   make(map[string]*memberState),
	}
}

func (st *runState) addMember(m *models.Member, required, carried int) {
	st.members[m.ID] = &memberState{
		member:       m,
		required:     required,
		carried:      carried,
		conflictDays: make(map[time.Time]bool),
	}
	st.order = append(st.order, m.ID)
	sort.Strings(st.order)
}

func (st *runState) slotAt(key time.Time) *Slot {
	return st.slots[key]
}

func (st *runState) touchSlot(key time.Time) *Slot {
	if s, ok := st.slots[key]; ok {
		return s
	}
	s := &Slot{Start: key}
	st.slots[key] = s
	return s
}

func (st *runState) sortedKeys() []time.Time {
	keys := make([]time.Time, 0, len(st.slots))
	for k := range st.slots {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}

// assign marks the slot for the member. A slot is assigned at most once per run.
func (st *runState) assign(s *Slot, memberID string) bool {
	if s.AssignedTo != "" {
		return false
	}
	if _, ok := s.claimBy(memberID); !ok {
		return false
	}
	s.AssignedTo = memberID
	if m, ok := st.members[memberID]; ok {
		m.assigned++
	}
	return true
}

// inConflictBlock reports whether the slot belongs to an unresolved block.
func (st *runState) inConflictBlock(key time.Time) bool {
	for _, b := range st.blocks {
		if b.resolved {
			continue
		}
		if b.contains(key) {
			return true
		}
	}
	return false
}

// openSlotsFor counts a member's unassigned claimed slots, excluding the given block.
func (st *runState) openSlotsFor(memberID string, exclude *ConflictBlock) int {
	count := 0
	for key, s := range st.slots {
		if s.AssignedTo != "" {
			continue
		}
		if exclude != nil && exclude.contains(key) {
			continue
		}
		if _, ok := s.claimBy(memberID); ok {
			count++
		}
	}
	return count
}

// exportAssignments materialises per-member assignments with contiguous slots
// merged into single ranges.
func (st *runState) exportAssignments() map[string]*models.Assignment {
	out := make(map[string]*models.Assignment, len(st.members))
	for _, id := range st.order {
		m := st.members[id]
		out[id] = &models.Assignment{
			MemberID:      id,
			RequiredSlots: m.required,
			AssignedSlots: m.assigned,
		}
	}
	keys := st.sortedKeys()
	for _, key := range keys {
		s := st.slots[key]
		if s.AssignedTo == "" {
			continue
		}
		a, ok := out[s.AssignedTo]
		if !ok {
			continue
		}
		start := minuteOf(key)
		end := start + SlotMinutes
		date := dateOf(key)
		if n := len(a.Slots); n > 0 {
			last := &a.Slots[n-1]
			if sameDay(last.Date, date) && last.EndMinute == start {
				last.EndMinute = end
				continue
			}
		}
		a.Slots = append(a.Slots, models.AssignedSlot{
			Date:        date,
			DayOfWeek:   date.Weekday(),
			StartMinute: start,
			EndMinute:   end,
		})
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
