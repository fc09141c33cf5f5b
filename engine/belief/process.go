package belief

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"sapper/engine"
)

// The Process* methods each translate one immutable action record into
// grid and tracker edits, then run the local filters. Precondition
// violations are returned before any mutation; no partial application.

// ProcessCall applies one cut attempt.
func (s *State) ProcessCall(c engine.Call) error {
	rank, err := s.checkCall(c)
	if err != nil {
		return err
	}
	if c.Success {
		s.pinSlot(c.Target, c.Position, rank)
		s.trackers[rank].AddRevealed(c.Target, c.Position)
		if c.CallerPosition != engine.NoPosition {
			s.pinSlot(c.Caller, c.CallerPosition, rank)
			s.trackers[rank].AddRevealed(c.Caller, c.CallerPosition)
		}
	} else {
		s.removeRank(c.Target, c.Position, rank)
		s.trackers[rank].AddCalled(c.Caller)
	}
	s.ApplyFilters()
	return nil
}

func (s *State) checkCall(c engine.Call) (int, error) {
	if err := s.checkSlot(c.Target, c.Position); err != nil {
		return 0, err
	}
	if c.Caller < 0 || c.Caller >= s.numPlayers {
		return 0, fmt.Errorf("caller %d out of range", c.Caller)
	}
	if c.Caller == c.Target {
		return 0, fmt.Errorf("player %d cannot call their own wire", c.Caller)
	}
	rank, ok := s.domain.Rank(c.Value)
	if !ok {
		return 0, fmt.Errorf("called value %s not in domain", c.Value)
	}
	if s.IsSlotRevealed(c.Target, c.Position) {
		return 0, fmt.Errorf("slot (%d,%d) is already revealed", c.Target, c.Position)
	}
	if c.CallerPosition != engine.NoPosition {
		if err := s.checkSlot(c.Caller, c.CallerPosition); err != nil {
			return 0, err
		}
		if s.IsSlotRevealed(c.Caller, c.CallerPosition) {
			return 0, fmt.Errorf("caller slot (%d,%d) is already revealed", c.Caller, c.CallerPosition)
		}
	}
	if !s.informal {
		if err := s.checkPossession(c.Caller, rank, c.CallerPosition); err != nil {
			return 0, err
		}
	}
	return rank, nil
}

// checkPossession verifies the caller can actually hold the called
// value. The owner's own hand is checked exactly; for other players the
// check is against tracked availability. Skipped in informal mode.
func (s *State) checkPossession(caller, rank, callerPos int) error {
	v := s.domain.Value(rank)
	if caller == s.me {
		for pos, held := range s.myHand {
			if held != v || s.IsSlotRevealed(s.me, pos) {
				continue
			}
			if callerPos == engine.NoPosition || callerPos == pos {
				return nil
			}
		}
		return fmt.Errorf("own hand holds no unplayed %s", v)
	}
	tr := s.trackers[rank]
	if tr.PinnedCount(caller) > 0 || tr.Called(caller) || tr.Uncertain() > 0 {
		return nil
	}
	return fmt.Errorf("player %d cannot hold %s: all copies accounted elsewhere", caller, v)
}

// ProcessSignal applies a copy-count announcement for one hidden slot.
func (s *State) ProcessSignal(sig engine.Signal) error {
	if err := s.checkSlot(sig.Player, sig.Position); err != nil {
		return err
	}
	if sig.Copies <= 0 {
		return fmt.Errorf("signal copy count must be positive, got %d", sig.Copies)
	}
	mask := s.domain.RanksWithCopyCount(sig.Copies)
	if mask.Empty() {
		return fmt.Errorf("no value in the domain has %d copies", sig.Copies)
	}
	s.narrowSlot(sig.Player, sig.Position, mask)
	s.ApplyFilters()
	return nil
}

// ProcessNotPresent applies an absence announcement: the value is not at
// the given position, or, with NoPosition, nowhere in the hand.
func (s *State) ProcessNotPresent(np engine.NotPresent) error {
	if np.Player < 0 || np.Player >= s.numPlayers {
		return fmt.Errorf("player %d out of range", np.Player)
	}
	rank, ok := s.domain.Rank(np.Value)
	if !ok {
		return fmt.Errorf("value %s not in domain", np.Value)
	}
	if np.Position != engine.NoPosition {
		if err := s.checkSlot(np.Player, np.Position); err != nil {
			return err
		}
		s.removeRank(np.Player, np.Position, rank)
	} else {
		tr := s.trackers[rank]
		if tr.Called(np.Player) {
			s.log.WithFields(logrus.Fields{"player": np.Player, "value": np.Value.String()}).
				Warn("absence announcement conflicts with an earlier failed call")
			tr.dropCalled(np.Player)
		}
		for pos := 0; pos < s.handSizes[np.Player]; pos++ {
			s.removeRank(np.Player, pos, rank)
		}
	}
	s.ApplyFilters()
	return nil
}

// ProcessDoubleReveal applies a double-detector reveal: both positions
// publicly hold the value. Slots between the two are squeezed to the
// same value by the ordering filter.
func (s *State) ProcessDoubleReveal(dr engine.DoubleReveal) error {
	if err := s.checkSlot(dr.Player, dr.Position1); err != nil {
		return err
	}
	if err := s.checkSlot(dr.Player, dr.Position2); err != nil {
		return err
	}
	if dr.Position1 == dr.Position2 {
		return fmt.Errorf("double reveal needs two distinct positions, got %d twice", dr.Position1)
	}
	rank, ok := s.domain.Rank(dr.Value)
	if !ok {
		return fmt.Errorf("value %s not in domain", dr.Value)
	}
	if s.domain.Count(rank) < 2 {
		return fmt.Errorf("value %s has a single copy, cannot be a double", dr.Value)
	}
	for _, pos := range []int{dr.Position1, dr.Position2} {
		s.pinSlot(dr.Player, pos, rank)
		s.trackers[rank].AddRevealed(dr.Player, pos)
	}
	s.ApplyFilters()
	return nil
}

// ProcessSwap applies a one-for-one wire exchange between two players.
// Candidate sets travel with their wires; every positioned tracker entry
// of the two players is remapped; called marks that may have moved with
// an outgoing wire are dropped to stay sound.
func (s *State) ProcessSwap(sw engine.Swap) error {
	if err := s.checkSwap(sw); err != nil {
		return err
	}
	p1, p2 := sw.Player1, sw.Player2

	moved1 := s.grid[p1][sw.InitPos1]
	moved2 := s.grid[p2][sw.InitPos2]
	s.grid[p1] = removeInsert(s.grid[p1], sw.InitPos1, sw.FinalPos1, moved2)
	s.grid[p2] = removeInsert(s.grid[p2], sw.InitPos2, sw.FinalPos2, moved1)

	remap1 := func(pos int) (int, int) {
		if pos == sw.InitPos1 {
			return p2, sw.FinalPos2
		}
		return p1, engine.RemapSwapPosition(pos, sw.InitPos1, sw.FinalPos1)
	}
	remap2 := func(pos int) (int, int) {
		if pos == sw.InitPos2 {
			return p1, sw.FinalPos1
		}
		return p2, engine.RemapSwapPosition(pos, sw.InitPos2, sw.FinalPos2)
	}
	for rank, tr := range s.trackers {
		tr.remapPair(p1, remap1, p2, remap2)
		if tr.Called(p1) && moved1.Has(rank) {
			tr.dropCalled(p1)
		}
		if tr.Called(p2) && moved2.Has(rank) {
			tr.dropCalled(p2)
		}
	}

	if sw.Revealed {
		r1, _ := s.domain.Rank(sw.Received1)
		r2, _ := s.domain.Rank(sw.Received2)
		s.pinSlot(p1, sw.FinalPos1, r1)
		s.trackers[r1].AddRevealed(p1, sw.FinalPos1)
		s.pinSlot(p2, sw.FinalPos2, r2)
		s.trackers[r2].AddRevealed(p2, sw.FinalPos2)
	}

	if s.me == p1 {
		s.myHand = removeInsertValues(s.myHand, sw.InitPos1, sw.FinalPos1, sw.Received1)
	} else if s.me == p2 {
		s.myHand = removeInsertValues(s.myHand, sw.InitPos2, sw.FinalPos2, sw.Received2)
	}

	s.ApplyFilters()
	return nil
}

func (s *State) checkSwap(sw engine.Swap) error {
	if sw.Player1 == sw.Player2 {
		return fmt.Errorf("swap needs two distinct players, got %d twice", sw.Player1)
	}
	for _, chk := range []struct{ p, init, final int }{
		{sw.Player1, sw.InitPos1, sw.FinalPos1},
		{sw.Player2, sw.InitPos2, sw.FinalPos2},
	} {
		if err := s.checkSlot(chk.p, chk.init); err != nil {
			return err
		}
		if err := s.checkSlot(chk.p, chk.final); err != nil {
			return err
		}
		if s.IsSlotRevealed(chk.p, chk.init) {
			return fmt.Errorf("slot (%d,%d) is revealed and cannot be swapped away", chk.p, chk.init)
		}
	}
	participant := s.me == sw.Player1 || s.me == sw.Player2
	if participant && !sw.Revealed {
		return fmt.Errorf("swap record for participant %d must carry the received values", s.me)
	}
	if sw.Revealed {
		for _, v := range []engine.Value{sw.Received1, sw.Received2} {
			if _, ok := s.domain.Rank(v); !ok {
				return fmt.Errorf("received value %s not in domain", v)
			}
		}
		if s.me == sw.Player1 {
			if err := checkSortedInsert(s.myHand, sw.InitPos1, sw.FinalPos1, sw.Received1); err != nil {
				return err
			}
		}
		if s.me == sw.Player2 {
			if err := checkSortedInsert(s.myHand, sw.InitPos2, sw.FinalPos2, sw.Received2); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *State) checkSlot(p, pos int) error {
	if p < 0 || p >= s.numPlayers {
		return fmt.Errorf("player %d out of range", p)
	}
	if pos < 0 || pos >= s.handSizes[p] {
		return fmt.Errorf("position %d out of range for player %d (hand size %d)", pos, p, s.handSizes[p])
	}
	return nil
}

// removeInsert returns row with the set at rm removed and set inserted
// at ins; ins is the index in the resulting row.
func removeInsert(row []engine.CandidateSet, rm, ins int, set engine.CandidateSet) []engine.CandidateSet {
	out := make([]engine.CandidateSet, 0, len(row))
	out = append(out, row[:rm]...)
	out = append(out, row[rm+1:]...)
	out = append(out, 0)
	copy(out[ins+1:], out[ins:])
	out[ins] = set
	return out
}

func removeInsertValues(hand []engine.Value, rm, ins int, v engine.Value) []engine.Value {
	out := make([]engine.Value, 0, len(hand))
	out = append(out, hand[:rm]...)
	out = append(out, hand[rm+1:]...)
	out = append(out, 0)
	copy(out[ins+1:], out[ins:])
	out[ins] = v
	return out
}

func checkSortedInsert(hand []engine.Value, rm, ins int, v engine.Value) error {
	next := removeInsertValues(hand, rm, ins, v)
	for i := 1; i < len(next); i++ {
		if next[i] < next[i-1] {
			return fmt.Errorf("received wire %s at position %d breaks hand ordering", v, ins)
		}
	}
	return nil
}
