package belief

import (
	"sapper/engine"
)

// maxFilterIterations caps the local fixed-point loop. The filters only
// ever shrink candidate sets, so the cap is a safety net, not a tuning
// knob.
const maxFilterIterations = 100

// ApplyFilters runs the four local deduction filters to a fixed point
// and registers every newly pinned non-owner slot with its tracker.
// Returns whether anything changed. The filters are sound but
// deliberately incomplete; only the global solver is exact.
func (s *State) ApplyFilters() bool {
	changedAny := false
	for i := 0; i < maxFilterIterations; i++ {
		changed := false
		if s.orderingFilter() {
			changed = true
		}
		if s.windowFilter() {
			changed = true
		}
		if s.subsetFilter() {
			changed = true
		}
		if s.countFilter() {
			changed = true
		}
		if !changed {
			s.registerCertainSlots()
			return changedAny
		}
		changedAny = true
	}
	s.log.Warn("local filters did not reach a fixed point within the iteration cap")
	s.registerCertainSlots()
	return changedAny
}

// registerCertainSlots promotes every singleton slot not yet tracked to
// a certain tracker entry.
func (s *State) registerCertainSlots() {
	for p, row := range s.grid {
		for pos, set := range row {
			if !set.Singleton() {
				continue
			}
			rank := set.Min()
			if !s.trackers[rank].IsPinned(p, pos) {
				s.trackers[rank].AddCertain(p, pos)
			}
		}
	}
}

// orderingFilter enforces sortedness within each hand: a slot's minimum
// possible value lower-bounds every slot to its right, and its maximum
// upper-bounds every slot to its left. Two sweeps per hand.
func (s *State) orderingFilter() bool {
	changed := false
	for p := range s.grid {
		row := s.grid[p]
		lb := 0
		for pos := 0; pos < len(row); pos++ {
			if s.narrowSlot(p, pos, engine.RanksAtLeast(lb)) {
				changed = true
			}
			if m := s.grid[p][pos].Min(); m > lb {
				lb = m
			}
		}
		ub := s.domain.Size() - 1
		for pos := len(row) - 1; pos >= 0; pos-- {
			if s.narrowSlot(p, pos, engine.RanksAtMost(ub)) {
				changed = true
			}
			if m := s.grid[p][pos].Max(); m < ub {
				ub = m
			}
		}
	}
	return changed
}

// windowFilter bounds where a value can sit inside a sorted hand. The
// copies of one value a player may hold (anchors already pinned there,
// plus globally unaccounted copies, plus one if the player carries a
// called mark) occupy a contiguous run of slots; if that run is shorter
// than the hand, only slots covered by some anchor-containing window of
// that length can hold the value.
func (s *State) windowFilter() bool {
	changed := false
	for p := 0; p < s.numPlayers; p++ {
		size := s.handSizes[p]
		for rank, tr := range s.trackers {
			anchors := tr.PinnedPositions(p)
			window := len(anchors) + tr.Uncertain()
			if tr.Called(p) {
				window++
			}
			if window == 0 || window >= size {
				continue
			}
			var allowed uint64
			anyWindow := false
			for start := 0; start+window <= size; start++ {
				if len(anchors) > 0 &&
					(anchors[0] < start || anchors[len(anchors)-1] >= start+window) {
					continue
				}
				anyWindow = true
				for i := start; i < start+window; i++ {
					allowed |= 1 << uint(i)
				}
			}
			if !anyWindow {
				// Anchors spread wider than any window can cover:
				// contradictory placement. Keep the anchors, drop the rest.
				for _, a := range anchors {
					allowed |= 1 << uint(a)
				}
				s.flagContradiction("window filter found anchors wider than the value's copy span")
			}
			for pos := 0; pos < size; pos++ {
				if allowed&(1<<uint(pos)) != 0 {
					continue
				}
				if s.removeRank(p, pos, rank) {
					changed = true
				}
			}
		}
	}
	return changed
}

// subsetFilter is the hidden-subset technique from grid-elimination
// puzzles, generalized across every player's slots: if exactly H slots
// in the whole game intersect a combination of H values, those slots can
// only hold values from the combination. Combination size is capped
// (s.subsetCap) because full enumeration is exponential in the number of
// distinct values.
func (s *State) subsetFilter() bool {
	var observed engine.CandidateSet
	totalSlots := 0
	for _, row := range s.grid {
		for _, set := range row {
			observed |= set
			totalSlots++
		}
	}
	ranks := observed.Ranks()
	maxH := len(ranks) - 1
	if maxH > s.subsetCap {
		maxH = s.subsetCap
	}
	changed := false
	var combo []int
	var walk func(start, need int)
	walk = func(start, need int) {
		if need == 0 {
			var mask engine.CandidateSet
			for _, r := range combo {
				mask = mask.With(r)
			}
			var hits []SlotRef
			for p, row := range s.grid {
				for pos, set := range row {
					if set&mask != 0 {
						hits = append(hits, SlotRef{p, pos})
						if len(hits) > len(combo) {
							return
						}
					}
				}
			}
			if len(hits) == len(combo) {
				for _, ref := range hits {
					if s.narrowSlot(ref.Player, ref.Position, mask) {
						changed = true
					}
				}
			}
			return
		}
		for i := start; i <= len(ranks)-need; i++ {
			combo = append(combo, ranks[i])
			walk(i+1, need-1)
			combo = combo[:len(combo)-1]
		}
	}
	for h := 2; h <= maxH && h < totalSlots; h++ {
		walk(0, h)
	}
	return changed
}

// countFilter removes values a player cannot hold at all, then applies
// the two positional thresholds: a value cannot sit so early that too
// few copies of it and everything above it remain to fill the rest of
// the hand, nor so late that too few copies of it and everything below
// it can fill the slots before it.
func (s *State) countFilter() bool {
	changed := false
	nRanks := s.domain.Size()
	for p := 0; p < s.numPlayers; p++ {
		size := s.handSizes[p]

		// Copies of each value plausibly available to this player.
		avail := make([]int, nRanks)
		for r, tr := range s.trackers {
			avail[r] = tr.Uncertain() + tr.PinnedCount(p)
			if tr.Called(p) {
				avail[r]++
			}
		}

		for r := 0; r < nRanks; r++ {
			if avail[r] != 0 {
				continue
			}
			for pos := 0; pos < size; pos++ {
				if s.removeRank(p, pos, r) {
					changed = true
				}
			}
		}

		// cumHigh[r]: copies of rank >= r available; cumLow[r]: <= r.
		cumHigh := make([]int, nRanks+1)
		for r := nRanks - 1; r >= 0; r-- {
			cumHigh[r] = cumHigh[r+1] + avail[r]
		}
		cumLow := make([]int, nRanks)
		for r := 0; r < nRanks; r++ {
			cumLow[r] = avail[r]
			if r > 0 {
				cumLow[r] += cumLow[r-1]
			}
		}

		for r := 0; r < nRanks; r++ {
			if avail[r] == 0 {
				continue
			}
			// Slots pos..size-1 all hold ranks >= r when slot pos does.
			for pos := 0; pos < size-cumHigh[r]; pos++ {
				if s.removeRank(p, pos, r) {
					changed = true
				}
			}
			// Slots 0..pos all hold ranks <= r when slot pos does.
			for pos := cumLow[r]; pos < size; pos++ {
				if s.removeRank(p, pos, r) {
					changed = true
				}
			}
		}
	}
	return changed
}
