package scheduler

import (
	"sort"

	"go.uber.org/zap"
)

// resolveOwnerFallback is the last automatic step before block negotiation:
// the owner either claims a contested slot outright (disabled unless
// configured) or yields their remaining reserved capacity to the contenders.
func resolveOwnerFallback(st *runState) {
	for _, b := range st.blocks {
		if b.resolved {
			continue
		}
		for _, key := range b.Keys {
			s := st.slotAt(key)
			if s == nil || s.AssignedTo != "" {
				continue
			}
			if st.cfg.OwnerClaimsContested {
				for _, c := range s.claims {
					if c.isOwner {
						st.assign(s, c.memberID)
						break
					}
				}
				continue
			}
			kept := s.claims[:0]
			for _, c := range s.claims {
				if !c.isOwner {
					kept = append(kept, c)
				}
			}
			s.claims = kept
		}
	}
}

// resolutionStrategy inspects a block and either names a winner or passes.
// Strategies are pure over the run state and tried in declaration order.
type resolutionStrategy func(st *runState, b *ConflictBlock, contenders []*memberState) (string, bool)

var resolutionStrategies = []resolutionStrategy{
	resolveByFlexibility,
	resolveByFairnessGap,
	resolveByLeastAssigned,
}

// negotiateBlocks disposes of every remaining conflict block deterministically
// and returns the number of blocks auto-resolved with an award.
func negotiateBlocks(st *runState, logger *zap.Logger) int {
	resolved := 0
	for _, b := range st.blocks {
		if b.resolved {
			continue
		}
		contenders := underQuotaContenders(st, b)
		switch len(contenders) {
		case 0:
			b.resolved = true
		case 1:
			awardSlots(st, b, contenders[0].member.ID, contenders[0].remaining())
			b.resolved = true
			resolved++
		default:
			winner := ""
			for _, strategy := range resolutionStrategies {
				if id, ok := strategy(st, b, contenders); ok {
					winner = id
					break
				}
			}
			if winner == "" {
				// The least-assigned strategy is total; reaching here
				// means a strategy list regression.
				logger.Error("no negotiation strategy produced a winner", zap.String("block", b.ID))
				b.resolved = true
				continue
			}
			need := st.members[winner].remaining()
			// Contested awards are granted at hour-block granularity;
			// the last block may overshoot the exact remaining need.
			award := minInt(b.SlotCount(), need)
			if award%hourSlots != 0 && award < b.SlotCount() {
				award++
			}
			awardSlots(st, b, winner, award)
			b.resolved = true
			resolved++
		}
	}
	return resolved
}

func underQuotaContenders(st *runState, b *ConflictBlock) []*memberState {
	var out []*memberState
	ids := append([]string(nil), b.Members...)
	sort.Strings(ids)
	for _, id := range ids {
		m, ok := st.members[id]
		if !ok || !m.underQuota() {
			continue
		}
		if !blockHasClaim(st, b, id) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func blockHasClaim(st *runState, b *ConflictBlock, memberID string) bool {
	for _, key := range b.Keys {
		if s := st.slotAt(key); s != nil && s.AssignedTo == "" {
			if _, ok := s.claimBy(memberID); ok {
				return true
			}
		}
	}
	return false
}

// awardSlots assigns up to n block slots to the winner, walking the block in
// time order and skipping slots the winner never claimed.
func awardSlots(st *runState, b *ConflictBlock, memberID string, n int) int {
	awarded := 0
	for _, key := range b.Keys {
		if awarded >= n {
			break
		}
		s := st.slotAt(key)
		if s == nil || s.AssignedTo != "" {
			continue
		}
		if st.assign(s, memberID) {
			awarded++
		}
	}
	return awarded
}

// resolveByFlexibility awards the block to the contender with a strictly
// lowest count of open slots elsewhere: the member with the fewest
// alternatives is served first.
func resolveByFlexibility(st *runState, b *ConflictBlock, contenders []*memberState) (string, bool) {
	best := ""
	bestScore := 0
	unique := false
	for _, m := range contenders {
		score := st.openSlotsFor(m.member.ID, b)
		switch {
		case best == "" || score < bestScore:
			best, bestScore, unique = m.member.ID, score, true
		case score == bestScore:
			unique = false
		}
	}
	if !unique {
		return "", false
	}
	return best, true
}

// resolveByFairnessGap awards the block to the trailing contender when the
// block could fully satisfy any contender's need and the least-assigned
// contender trails the next by more than the fairness gap.
func resolveByFairnessGap(st *runState, b *ConflictBlock, contenders []*memberState) (string, bool) {
	for _, m := range contenders {
		if m.remaining() > b.SlotCount() {
			return "", false
		}
	}
	sorted := append([]*memberState(nil), contenders...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].assigned < sorted[j].assigned })
	if sorted[1].assigned-sorted[0].assigned > st.cfg.FairnessGapSlots {
		return sorted[0].member.ID, true
	}
	return "", false
}

// resolveByLeastAssigned is the terminal strategy: fewest assigned slots wins,
// ties broken by larger remaining need, then by member id for determinism.
func resolveByLeastAssigned(st *runState, b *ConflictBlock, contenders []*memberState) (string, bool) {
	sorted := append([]*memberState(nil), contenders...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, c := sorted[i], sorted[j]
		if a.assigned != c.assigned {
			return a.assigned < c.assigned
		}
		if a.remaining() != c.remaining() {
			return a.remaining() > c.remaining()
		}
		return a.member.ID < c.member.ID
	})
	return sorted[0].member.ID, true
}
