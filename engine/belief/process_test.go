package belief

import (
	"reflect"
	"testing"

	"sapper/engine"
)

func snapshotGrid(s *State) [][]engine.CandidateSet {
	out := make([][]engine.CandidateSet, s.NumPlayers())
	for p := range out {
		out[p] = s.Row(p)
	}
	return out
}

func TestProcessCallPreconditions(t *testing.T) {
	cases := []struct {
		name string
		call engine.Call
	}{
		{"caller out of range", engine.Call{Caller: 7, Target: 1, Position: 0, Value: 3, CallerPosition: engine.NoPosition}},
		{"target out of range", engine.Call{Caller: 0, Target: 7, Position: 0, Value: 3, CallerPosition: engine.NoPosition}},
		{"position out of range", engine.Call{Caller: 0, Target: 1, Position: 9, Value: 3, CallerPosition: engine.NoPosition}},
		{"self call", engine.Call{Caller: 1, Target: 1, Position: 0, Value: 3, CallerPosition: engine.NoPosition}},
		{"value off domain", engine.Call{Caller: 0, Target: 1, Position: 0, Value: 9, CallerPosition: engine.NoPosition}},
		{"value not held", engine.Call{Caller: 0, Target: 1, Position: 0, Value: 2, CallerPosition: engine.NoPosition}},
		{"caller position mismatch", engine.Call{Caller: 0, Target: 1, Position: 0, Value: 3, CallerPosition: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := openGame(t)
			before := snapshotGrid(s)
			if err := s.ProcessCall(tc.call); err == nil {
				t.Fatal("expected a precondition error")
			}
			if !reflect.DeepEqual(before, snapshotGrid(s)) {
				t.Fatal("rejected action must not mutate the grid")
			}
			if !s.Consistent() {
				t.Fatal("rejected action must not flag a contradiction")
			}
		})
	}
}

func TestProcessCallRevealedSlotRejected(t *testing.T) {
	s := openGame(t)
	err := s.ProcessCall(engine.Call{Caller: 0, Target: 1, Position: 2, Value: 3, Success: true, CallerPosition: 1})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	err = s.ProcessCall(engine.Call{Caller: 0, Target: 1, Position: 2, Value: 4, Success: true, CallerPosition: 2})
	if err == nil {
		t.Fatal("calling an already revealed slot must error")
	}
}

func TestInformalModeSkipsPossession(t *testing.T) {
	s := openGame(t, WithInformalMode())
	// The observer holds no 2; formal mode rejects this call.
	err := s.ProcessCall(engine.Call{
		Caller: 0, Target: 1, Position: 0, Value: 2,
		Success: false, CallerPosition: engine.NoPosition,
	})
	if err != nil {
		t.Fatalf("informal mode should accept the call: %v", err)
	}
	r2 := mustRank(t, s.Domain(), 2)
	if s.Candidates(1, 0).Has(r2) {
		t.Fatal("failed call must remove the value from the target slot")
	}
}

func TestProcessSignalPreconditions(t *testing.T) {
	s := openGame(t)
	if err := s.ProcessSignal(engine.Signal{Player: 1, Copies: 0, Position: 0}); err == nil {
		t.Fatal("non-positive copy count must error")
	}
	if err := s.ProcessSignal(engine.Signal{Player: 1, Copies: 5, Position: 0}); err == nil {
		t.Fatal("copy count matching no value must error")
	}
	if err := s.ProcessSignal(engine.Signal{Player: 9, Copies: 1, Position: 0}); err == nil {
		t.Fatal("player out of range must error")
	}
}

func TestProcessNotPresentDropsConflictingCalledMark(t *testing.T) {
	s := openGame(t)

	// p1 fails a call of 2, so p1 carries a called mark for 2...
	err := s.ProcessCall(engine.Call{
		Caller: 1, Target: 0, Position: 0, Value: 2,
		Success: false, CallerPosition: engine.NoPosition,
	})
	if err != nil {
		t.Fatalf("failed call: %v", err)
	}
	snap, _ := s.TrackerFor(2)
	if !reflect.DeepEqual(snap.Called, []int{1}) {
		t.Fatalf("expected called mark for p1, got %v", snap.Called)
	}

	// ...then announces holding no 2 at all: the stale mark goes.
	err = s.ProcessNotPresent(engine.NotPresent{Player: 1, Value: 2, Position: engine.NoPosition})
	if err != nil {
		t.Fatalf("ProcessNotPresent: %v", err)
	}
	snap, _ = s.TrackerFor(2)
	if len(snap.Called) != 0 {
		t.Fatalf("conflicting called mark must be dropped, got %v", snap.Called)
	}
	r2 := mustRank(t, s.Domain(), 2)
	for pos := 0; pos < s.HandSize(1); pos++ {
		if s.Candidates(1, pos).Has(r2) {
			t.Fatalf("slot %d still admits 2 after the announcement", pos)
		}
	}
}

func TestProcessDoubleRevealPreconditions(t *testing.T) {
	s := openGame(t)
	if err := s.ProcessDoubleReveal(engine.DoubleReveal{Player: 1, Value: 2, Position1: 1, Position2: 1}); err == nil {
		t.Fatal("identical positions must error")
	}
	if err := s.ProcessDoubleReveal(engine.DoubleReveal{Player: 1, Value: 3.5, Position1: 0, Position2: 1}); err == nil {
		t.Fatal("single-copy value cannot be doubled")
	}
	if err := s.ProcessDoubleReveal(engine.DoubleReveal{Player: 1, Value: 7, Position1: 0, Position2: 1}); err == nil {
		t.Fatal("off-domain value must error")
	}
}

// Participant swap: the observer trades their 1 (slot 0) for p1's wire
// from slot 2, receiving a 3. Hidden truth p1=[2,2,3] becomes [1,2,2];
// the observer's hand [1,3,4] becomes [3,3,4].
func TestProcessSwapParticipant(t *testing.T) {
	s := openGame(t)
	d := s.Domain()

	err := s.ProcessSwap(engine.Swap{
		Player1: 0, Player2: 1,
		InitPos1: 0, InitPos2: 2,
		FinalPos1: 0, FinalPos2: 0,
		Revealed:  true,
		Received1: 3, Received2: 1,
	})
	if err != nil {
		t.Fatalf("ProcessSwap: %v", err)
	}

	wantSlot(t, s, 0, 0, 3)
	wantSlot(t, s, 1, 0, 1)
	if !s.IsSlotRevealed(0, 0) || !s.IsSlotRevealed(1, 0) {
		t.Fatal("a revealed exchange pins both final slots publicly")
	}

	// The observer's remaining certain entries follow their slots.
	snap3, _ := s.TrackerFor(3)
	found := false
	for _, ref := range append(snap3.Revealed, snap3.Certain...) {
		if ref == (SlotRef{0, 1}) {
			found = true
		}
	}
	if !found {
		t.Fatalf("own 3 at slot 1 lost its tracker entry: %+v", snap3)
	}

	if got := s.MyUnrevealedValues(); !reflect.DeepEqual(got, []engine.Value{3, 4}) {
		t.Fatalf("unrevealed values = %v, want [3 4]", got)
	}

	// Truth containment for p1's new hand [1,2,2].
	for pos, v := range []engine.Value{1, 2, 2} {
		if r := mustRank(t, d, v); !s.Candidates(1, pos).Has(r) {
			t.Fatalf("true value %s missing from (1,%d)", v, pos)
		}
	}
	if !s.Consistent() {
		t.Fatal("truthful swap flagged inconsistent")
	}
}

// Hidden swap between the two other players: candidate sets travel with
// the wires and nothing is revealed.
func TestProcessSwapHidden(t *testing.T) {
	s := openGame(t)

	moved1 := s.Candidates(1, 2)
	moved2 := s.Candidates(2, 0)
	err := s.ProcessSwap(engine.Swap{
		Player1: 1, Player2: 2,
		InitPos1: 2, InitPos2: 0,
		FinalPos1: 0, FinalPos2: 0,
		Revealed: false,
	})
	if err != nil {
		t.Fatalf("ProcessSwap: %v", err)
	}

	// The traveling sets may be narrowed further by the filters, never
	// expanded.
	if got := s.Candidates(2, 0); got&^moved1 != 0 {
		t.Fatalf("wire moved to (2,0) gained candidates: %v -> %v", moved1.Ranks(), got.Ranks())
	}
	if got := s.Candidates(1, 0); got&^moved2 != 0 {
		t.Fatalf("wire moved to (1,0) gained candidates: %v -> %v", moved2.Ranks(), got.Ranks())
	}
	if s.IsSlotRevealed(1, 0) || s.IsSlotRevealed(2, 0) {
		t.Fatal("hidden swap must not reveal anything")
	}
}

func TestProcessSwapPreconditions(t *testing.T) {
	s := openGame(t)
	if err := s.ProcessSwap(engine.Swap{Player1: 1, Player2: 1, InitPos1: 0, InitPos2: 1, Revealed: false}); err == nil {
		t.Fatal("swap with oneself must error")
	}
	// A participant record must carry the received values.
	if err := s.ProcessSwap(engine.Swap{Player1: 0, Player2: 1, InitPos1: 0, InitPos2: 0, Revealed: false}); err == nil {
		t.Fatal("participant swap without received values must error")
	}
	// Receiving a wire that breaks hand ordering is rejected.
	err := s.ProcessSwap(engine.Swap{
		Player1: 0, Player2: 1,
		InitPos1: 0, InitPos2: 0,
		FinalPos1: 2, FinalPos2: 0,
		Revealed:  true,
		Received1: 1, Received2: 1,
	})
	if err == nil {
		t.Fatal("unsorted insert must error")
	}
}

func TestProcessSwapDropsUnsoundCalledMark(t *testing.T) {
	s := openGame(t)

	// p1 demonstrates holding a 2 via a failed call.
	err := s.ProcessCall(engine.Call{
		Caller: 1, Target: 0, Position: 0, Value: 2,
		Success: false, CallerPosition: engine.NoPosition,
	})
	if err != nil {
		t.Fatalf("failed call: %v", err)
	}

	// p1 then swaps away a wire that could be that 2: the mark is no
	// longer sound and is dropped.
	err = s.ProcessSwap(engine.Swap{
		Player1: 1, Player2: 2,
		InitPos1: 0, InitPos2: 2,
		FinalPos1: 2, FinalPos2: 0,
		Revealed: false,
	})
	if err != nil {
		t.Fatalf("ProcessSwap: %v", err)
	}
	snap, _ := s.TrackerFor(2)
	if len(snap.Called) != 0 {
		t.Fatalf("called mark should be dropped after the swap, got %v", snap.Called)
	}
}
