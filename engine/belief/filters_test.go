package belief

import (
	"testing"

	"sapper/engine"
)

// bareState builds a State directly from a grid, bypassing NewState's
// dealing logic, so a single filter can be exercised in isolation.
func bareState(t *testing.T, d *engine.Domain, rows [][]engine.CandidateSet) *State {
	t.Helper()
	n := len(rows)
	s := &State{
		domain:      d,
		numPlayers:  n,
		handSizes:   make([]int, n),
		grid:        rows,
		trackers:    make([]*Tracker, d.Size()),
		adjEqual:    make([]map[int]bool, n),
		adjDistinct: make([]map[int]bool, n),
		subsetCap:   DefaultSubsetSizeCap,
		log:         quietLogger(),
	}
	for p := range rows {
		s.handSizes[p] = len(rows[p])
		s.adjEqual[p] = make(map[int]bool)
		s.adjDistinct[p] = make(map[int]bool)
	}
	for r := range s.trackers {
		s.trackers[r] = newTracker(d.Count(r), s.log)
	}
	return s
}

func cs(ranks ...int) engine.CandidateSet {
	var set engine.CandidateSet
	for _, r := range ranks {
		set = set.With(r)
	}
	return set
}

func TestOrderingFilterSweeps(t *testing.T) {
	d := mustDomain(t, map[engine.Value]int{1: 2, 2: 2, 3: 2, 4: 2, 5: 2})
	full := d.FullSet()
	s := bareState(t, d, [][]engine.CandidateSet{
		{full, cs(0), full, cs(2), full},
	})

	if !s.orderingFilter() {
		t.Fatal("expected the sweeps to narrow something")
	}
	if got := s.grid[0][0]; got != cs(0) {
		t.Fatalf("slot 0 = %v, want only rank 0", got.Ranks())
	}
	if got := s.grid[0][2]; got != cs(0, 1, 2) {
		t.Fatalf("slot 2 = %v, want ranks 0..2", got.Ranks())
	}
	if got := s.grid[0][4]; got != cs(2, 3, 4) {
		t.Fatalf("slot 4 = %v, want ranks 2..4", got.Ranks())
	}
	if s.orderingFilter() {
		t.Fatal("second sweep must be a no-op")
	}
}

func TestWindowFilterAnchoredRun(t *testing.T) {
	d := mustDomain(t, map[engine.Value]int{1: 2, 2: 4})
	full := d.FullSet()
	s := bareState(t, d, [][]engine.CandidateSet{
		{full, full, full, full},
	})
	// One copy of rank 0 is pinned at slot 0 and one copy is loose
	// elsewhere in the game: the copies in this hand span at most two
	// consecutive slots, and that run must cover the anchor.
	s.trackers[0].AddCertain(0, 0)

	if !s.windowFilter() {
		t.Fatal("expected the window to cut the tail")
	}
	for pos := 2; pos < 4; pos++ {
		if s.grid[0][pos].Has(0) {
			t.Fatalf("rank 0 should be gone from slot %d", pos)
		}
	}
	if !s.grid[0][1].Has(0) {
		t.Fatal("slot 1 is inside the anchored window and must keep rank 0")
	}
	if !s.Consistent() {
		t.Fatal("no contradiction expected")
	}
}

func TestSubsetFilterHiddenPair(t *testing.T) {
	d := mustDomain(t, map[engine.Value]int{1: 2, 2: 2, 3: 2})
	s := bareState(t, d, [][]engine.CandidateSet{
		{cs(0, 1, 2), cs(0, 1), cs(2)},
		{cs(2), cs(2), cs(2)},
	})

	// Ranks 0 and 1 only ever appear in the first two slots: two values
	// across two slots leave no room for rank 2 there.
	if !s.subsetFilter() {
		t.Fatal("expected the hidden pair to narrow slot 0")
	}
	if got := s.grid[0][0]; got != cs(0, 1) {
		t.Fatalf("slot (0,0) = %v, want ranks {0,1}", got.Ranks())
	}
	if got := s.grid[1][0]; got != cs(2) {
		t.Fatalf("slot (1,0) must be untouched, got %v", got.Ranks())
	}
}

func TestCountFilterRemovesExhaustedValue(t *testing.T) {
	// Four players; value 3 has three copies. One is revealed in the
	// caller's hand, one in a target's, and a failed call proves the
	// third sits with its caller: nothing is left for the fourth player.
	d := mustDomain(t, map[engine.Value]int{1: 2, 2: 2, 3: 3, 4: 2, 5: 3})
	s := mustState(t, d, []int{3, 3, 3, 3}, 0, []engine.Value{1, 3, 4})
	r3 := mustRank(t, d, 3)

	err := s.ProcessCall(engine.Call{
		Caller: 0, Target: 1, Position: 1, Value: 3,
		Success: true, CallerPosition: 1,
	})
	if err != nil {
		t.Fatalf("successful call: %v", err)
	}
	err = s.ProcessCall(engine.Call{
		Caller: 2, Target: 3, Position: 2, Value: 3,
		Success: false, CallerPosition: engine.NoPosition,
	})
	if err != nil {
		t.Fatalf("failed call: %v", err)
	}

	for pos := 0; pos < s.HandSize(3); pos++ {
		if s.Candidates(3, pos).Has(r3) {
			t.Fatalf("player 3 slot %d still admits 3; all copies are accounted", pos)
		}
	}
	// Hidden truth p1=[2,3,5], p2=[3,5,5], p3=[1,2,4]: ground truth
	// survives every removal.
	truth := map[int][]engine.Value{1: {2, 3, 5}, 2: {3, 5, 5}, 3: {1, 2, 4}}
	for p, hand := range truth {
		for pos, v := range hand {
			if r := mustRank(t, d, v); !s.Candidates(p, pos).Has(r) {
				t.Fatalf("true value %s removed from (%d,%d)", v, p, pos)
			}
		}
	}
	if !s.Consistent() {
		t.Fatal("truthful history must stay consistent")
	}
}

func TestDoubleRevealSqueezesNeighbors(t *testing.T) {
	s := openGame(t)
	d := s.Domain()
	r2 := mustRank(t, d, 2)

	// p1 reveals a pair of 2s at slots 0 and 1 (truth p1=[2,2,3]).
	err := s.ProcessDoubleReveal(engine.DoubleReveal{Player: 1, Value: 2, Position1: 0, Position2: 1})
	if err != nil {
		t.Fatalf("ProcessDoubleReveal: %v", err)
	}
	wantSlot(t, s, 1, 0, 2)
	wantSlot(t, s, 1, 1, 2)
	if s.Candidates(1, 2).Has(r2) {
		t.Fatal("both copies of 2 are placed; slot 2 cannot hold another")
	}
	for p := 2; p < 3; p++ {
		for pos := 0; pos < s.HandSize(p); pos++ {
			if s.Candidates(p, pos).Has(r2) {
				t.Fatalf("player %d slot %d still admits 2", p, pos)
			}
		}
	}
}

func TestApplyFiltersIdempotent(t *testing.T) {
	s := openGame(t)
	if s.ApplyFilters() {
		t.Fatal("construction already ran the filters to a fixed point")
	}

	if err := s.ProcessSignal(engine.Signal{Player: 2, Copies: 1, Position: 1}); err != nil {
		t.Fatalf("ProcessSignal: %v", err)
	}
	if s.ApplyFilters() {
		t.Fatal("processing already ran the filters to a fixed point")
	}
}

func TestTruthfulHistorySoundness(t *testing.T) {
	// Hidden truth: p0=[1,3,4] (observer), p1=[2,2,3], p2=[1,3.5,4].
	s := openGame(t)
	d := s.Domain()

	steps := []struct {
		name  string
		apply func() error
	}{
		{"double reveal 2s", func() error {
			return s.ProcessDoubleReveal(engine.DoubleReveal{Player: 1, Value: 2, Position1: 0, Position2: 1})
		}},
		{"tie-breaker signal", func() error {
			return s.ProcessSignal(engine.Signal{Player: 2, Copies: 1, Position: 1})
		}},
		{"successful call 4", func() error {
			return s.ProcessCall(engine.Call{Caller: 0, Target: 2, Position: 2, Value: 4, Success: true, CallerPosition: 2})
		}},
		{"no 4 with p1", func() error {
			return s.ProcessNotPresent(engine.NotPresent{Player: 1, Value: 4, Position: engine.NoPosition})
		}},
		{"failed call 1", func() error {
			return s.ProcessCall(engine.Call{Caller: 2, Target: 1, Position: 2, Value: 1, Success: false, CallerPosition: engine.NoPosition})
		}},
	}

	truth := map[int][]engine.Value{1: {2, 2, 3}, 2: {1, 3.5, 4}}
	for _, step := range steps {
		if err := step.apply(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		for p, hand := range truth {
			for pos, v := range hand {
				if r := mustRank(t, d, v); !s.Candidates(p, pos).Has(r) {
					t.Fatalf("after %s: true value %s removed from (%d,%d)", step.name, v, p, pos)
				}
			}
		}
		if !s.Consistent() {
			t.Fatalf("after %s: truthful history flagged inconsistent", step.name)
		}
	}
}
