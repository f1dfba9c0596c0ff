package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// ConflictBlock is a maximal run of contiguous same-day slots claimed by more
// than one member. Blocks are created once per run and consumed by the
// assignment and negotiation phases.
type ConflictBlock struct {
	ID       string
	Day      time.Time
	Keys     []time.Time
	Members  []string
	resolved bool
}

func (b *ConflictBlock) contains(key time.Time) bool {
	for _, k := range b.Keys {
		if k.Equal(key) {
			return true
		}
	}
	return false
}

// SlotCount is the number of 30-minute units inside the block.
func (b *ConflictBlock) SlotCount() int { return len(b.Keys) }

// identifyConflicts finds contested slots and merges temporally adjacent ones
// on the same day into blocks, so granular resolution cannot diverge inside a
// contiguous contested stretch.
func identifyConflicts(st *runState) []*ConflictBlock {
	var blocks []*ConflictBlock
	var current *ConflictBlock

	flush := func() {
		if current != nil {
			blocks = append(blocks, current)
			current = nil
		}
	}

	for _, key := range st.sortedKeys() {
		s := st.slots[key]
		contenders := s.memberClaims()
		if s.AssignedTo != "" || len(contenders) < 2 {
			flush()
			continue
		}
		day := dateOf(key)
		if current != nil {
			lastKey := current.Keys[len(current.Keys)-1]
			if !sameDay(lastKey, key) || !lastKey.Add(SlotMinutes*time.Minute).Equal(key) {
				flush()
			}
		}
		if current == nil {
			current = &ConflictBlock{ID: uuid.NewString(), Day: day}
		}
		current.Keys = append(current.Keys, key)
		for _, c := range contenders {
			current.Members = appendUnique(current.Members, c.memberID)
		}
	}
	flush()

	for _, b := range blocks {
		for _, id := range b.Members {
			if m, ok := st.members[id]; ok {
				m.conflictDays[b.Day] = true
			}
		}
	}
	return blocks
}

func appendUnique(list []string, v string) []string {
	for _, item := range list {
		if item == v {
			return list
		}
	}
	return append(list, v)
}
