package belief

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"sapper/engine"
)

// State is one player's belief about every hand in the game: a grid of
// candidate sets (one per hand slot per player) plus per-value trackers.
// The owner's own slots are pinned to their true values at construction
// and stay pinned for the life of the game.
//
// A State is owned by a single logical thread of game-turn processing;
// Process* mutators must not be called concurrently. Clone produces a
// fully independent copy for hypothetical exploration.
type State struct {
	domain     *engine.Domain
	numPlayers int
	me         int
	myHand     []engine.Value
	handSizes  []int

	grid     [][]engine.CandidateSet
	trackers []*Tracker

	// Adjacency constraints from setup announcements, consumed by the
	// exact solver: adjEqual[p][pos] means p's slots pos and pos+1 hold
	// the same value; adjDistinct means they differ.
	adjEqual    []map[int]bool
	adjDistinct []map[int]bool

	subsetCap     int
	informal      bool
	contradiction bool
	log           *logrus.Entry
}

// DefaultSubsetSizeCap bounds the subset-cardinality filter's
// combination size. Unbounded enumeration is exponential in the number
// of distinct values; see the solver for exact reasoning.
const DefaultSubsetSizeCap = 4

// Option configures a State at construction.
type Option func(*State)

// WithInformalMode disables possession validation on calls (physical
// table play, where desynchronization is tolerated).
func WithInformalMode() Option { return func(s *State) { s.informal = true } }

// WithLogger replaces the default logrus logger.
func WithLogger(log *logrus.Entry) Option { return func(s *State) { s.log = log } }

// WithSubsetSizeCap overrides the subset-cardinality filter's cap.
func WithSubsetSizeCap(cap int) Option { return func(s *State) { s.subsetCap = cap } }

// NewState constructs the belief state of player me, who holds the
// sorted hand myHand. handSizes gives every player's hand length; the
// hands jointly hold the entire deck.
func NewState(domain *engine.Domain, handSizes []int, me int, myHand []engine.Value, opts ...Option) (*State, error) {
	if domain == nil {
		return nil, fmt.Errorf("nil domain")
	}
	n := len(handSizes)
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 players, got %d", n)
	}
	if me < 0 || me >= n {
		return nil, fmt.Errorf("player %d out of range [0,%d)", me, n)
	}
	total := 0
	for p, sz := range handSizes {
		if sz <= 0 {
			return nil, fmt.Errorf("player %d has non-positive hand size %d", p, sz)
		}
		total += sz
	}
	if total != domain.TotalCards() {
		return nil, fmt.Errorf("hand sizes sum to %d, deck holds %d", total, domain.TotalCards())
	}
	if len(myHand) != handSizes[me] {
		return nil, fmt.Errorf("own hand has %d wires, expected %d", len(myHand), handSizes[me])
	}
	for i, v := range myHand {
		if _, ok := domain.Rank(v); !ok {
			return nil, fmt.Errorf("own wire %s not in domain", v)
		}
		if i > 0 && v < myHand[i-1] {
			return nil, fmt.Errorf("own hand not sorted at position %d", i)
		}
	}

	s := &State{
		domain:      domain,
		numPlayers:  n,
		me:          me,
		myHand:      append([]engine.Value(nil), myHand...),
		handSizes:   append([]int(nil), handSizes...),
		grid:        make([][]engine.CandidateSet, n),
		trackers:    make([]*Tracker, domain.Size()),
		adjEqual:    make([]map[int]bool, n),
		adjDistinct: make([]map[int]bool, n),
		subsetCap:   DefaultSubsetSizeCap,
		log:         logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("player", me)

	for r := 0; r < domain.Size(); r++ {
		s.trackers[r] = newTracker(domain.Count(r), s.log)
	}
	full := domain.FullSet()
	for p := 0; p < n; p++ {
		s.grid[p] = make([]engine.CandidateSet, handSizes[p])
		for pos := range s.grid[p] {
			s.grid[p][pos] = full
		}
		s.adjEqual[p] = make(map[int]bool)
		s.adjDistinct[p] = make(map[int]bool)
	}
	for pos, v := range s.myHand {
		rank, _ := domain.Rank(v)
		s.grid[me][pos] = engine.CandidateSet(0).With(rank)
		s.trackers[rank].AddCertain(me, pos)
	}
	s.ApplyFilters()
	return s, nil
}

// ---------------------------------------------------------------------------
// Narrowing primitives
// ---------------------------------------------------------------------------

// narrowSlot intersects (p, pos) with mask. The removal that would empty
// the set is refused and flips the consistency flag instead; an empty
// candidate set is a contradiction, not a repairable state.
func (s *State) narrowSlot(p, pos int, mask engine.CandidateSet) bool {
	old := s.grid[p][pos]
	next := old & mask
	if next == old {
		return false
	}
	if next.Empty() {
		s.flagContradiction(fmt.Sprintf("slot (%d,%d) has no remaining candidates", p, pos))
		return false
	}
	s.grid[p][pos] = next
	return true
}

// removeRank removes a single rank with the same empty-set guard.
func (s *State) removeRank(p, pos, rank int) bool {
	return s.narrowSlot(p, pos, ^(engine.CandidateSet(1) << uint(rank)))
}

// pinSlot forces (p, pos) to a single rank. Pinning a rank the grid had
// already excluded means a prior deduction contradicted ground truth;
// the observation wins and the state is flagged.
func (s *State) pinSlot(p, pos, rank int) bool {
	old := s.grid[p][pos]
	if !old.Has(rank) {
		s.flagContradiction(fmt.Sprintf("slot (%d,%d) pinned to excluded value %s", p, pos, s.domain.Value(rank)))
	}
	next := engine.CandidateSet(0).With(rank)
	if next == old {
		return false
	}
	s.grid[p][pos] = next
	return true
}

func (s *State) flagContradiction(reason string) {
	if !s.contradiction {
		s.log.WithField("reason", reason).Warn("belief state is inconsistent")
	}
	s.contradiction = true
}

// MarkInconsistent records an externally detected contradiction (the
// global solver uses this when the deck vector is unreachable).
func (s *State) MarkInconsistent(reason string) { s.flagContradiction(reason) }

// ---------------------------------------------------------------------------
// Setup-announcement constraints
// ---------------------------------------------------------------------------

// MarkAdjacentEqual records the public announcement that player's slots
// pos and pos+1 hold the same value.
func (s *State) MarkAdjacentEqual(player, pos int) error {
	if err := s.checkAdjacent(player, pos); err != nil {
		return err
	}
	if s.adjDistinct[player][pos] {
		return fmt.Errorf("player %d slots %d,%d already marked distinct", player, pos, pos+1)
	}
	s.adjEqual[player][pos] = true
	return nil
}

// MarkAdjacentDistinct records the public announcement that player's
// slots pos and pos+1 hold different values.
func (s *State) MarkAdjacentDistinct(player, pos int) error {
	if err := s.checkAdjacent(player, pos); err != nil {
		return err
	}
	if s.adjEqual[player][pos] {
		return fmt.Errorf("player %d slots %d,%d already marked equal", player, pos, pos+1)
	}
	s.adjDistinct[player][pos] = true
	return nil
}

// MarkNoDoubles records that player announced holding no two wires of
// the same value: every adjacent pair is distinct.
func (s *State) MarkNoDoubles(player int) error {
	if player < 0 || player >= s.numPlayers {
		return fmt.Errorf("player %d out of range", player)
	}
	for pos := 0; pos < s.handSizes[player]-1; pos++ {
		s.adjDistinct[player][pos] = true
	}
	return nil
}

func (s *State) checkAdjacent(player, pos int) error {
	if player < 0 || player >= s.numPlayers {
		return fmt.Errorf("player %d out of range", player)
	}
	if pos < 0 || pos+1 >= s.handSizes[player] {
		return fmt.Errorf("adjacent pair %d,%d out of range for player %d", pos, pos+1, player)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Read-only queries (output contract)
// ---------------------------------------------------------------------------

// Domain returns the configured value domain.
func (s *State) Domain() *engine.Domain { return s.domain }

// NumPlayers returns the player count.
func (s *State) NumPlayers() int { return s.numPlayers }

// Me returns the owning player's id.
func (s *State) Me() int { return s.me }

// HandSize returns player p's hand length.
func (s *State) HandSize(p int) int { return s.handSizes[p] }

// Candidates returns the candidate set at (p, pos).
func (s *State) Candidates(p, pos int) engine.CandidateSet { return s.grid[p][pos] }

// CandidateValues returns the still-possible values at (p, pos) in
// ascending order.
func (s *State) CandidateValues(p, pos int) []engine.Value {
	ranks := s.grid[p][pos].Ranks()
	out := make([]engine.Value, len(ranks))
	for i, r := range ranks {
		out[i] = s.domain.Value(r)
	}
	return out
}

// Row returns a copy of player p's candidate sets.
func (s *State) Row(p int) []engine.CandidateSet {
	return append([]engine.CandidateSet(nil), s.grid[p]...)
}

// Consistent reports whether no contradiction has been detected.
func (s *State) Consistent() bool { return !s.contradiction }

// FullyDeduced reports whether every slot of player p is pinned to a
// single value.
func (s *State) FullyDeduced(p int) bool {
	for _, set := range s.grid[p] {
		if !set.Singleton() {
			return false
		}
	}
	return true
}

// Entropy returns the total Shannon entropy of the grid under the
// uniform-belief assumption: the sum over all slots of log2 of the
// candidate-set size.
func (s *State) Entropy() float64 {
	h := 0.0
	for _, row := range s.grid {
		for _, set := range row {
			if c := set.Count(); c > 1 {
				h += math.Log2(float64(c))
			}
		}
	}
	return h
}

// TrackerFor returns a snapshot of the tracker for value v.
func (s *State) TrackerFor(v engine.Value) (TrackerSnapshot, bool) {
	r, ok := s.domain.Rank(v)
	if !ok {
		return TrackerSnapshot{}, false
	}
	return s.trackers[r].Snapshot(), true
}

// IsSlotRevealed reports whether (p, pos) has been publicly confirmed.
func (s *State) IsSlotRevealed(p, pos int) bool {
	for _, tr := range s.trackers {
		if tr.IsRevealed(p, pos) {
			return true
		}
	}
	return false
}

// MyUnrevealedValues returns the distinct values the owner still holds
// at unrevealed positions — the values they may truthfully call.
func (s *State) MyUnrevealedValues() []engine.Value {
	seen := make(map[engine.Value]bool)
	var out []engine.Value
	for pos, v := range s.myHand {
		if s.IsSlotRevealed(s.me, pos) || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MinCounts returns, per value rank, the minimum number of copies player
// p is known to hold: pinned slots plus one for an outstanding called
// mark. The solver uses these as signature floors.
func (s *State) MinCounts(p int) engine.ResourceVector {
	rv := make(engine.ResourceVector, s.domain.Size())
	for r, tr := range s.trackers {
		rv[r] = tr.PinnedCount(p)
		if tr.Called(p) {
			rv[r]++
		}
	}
	return rv
}

// AdjacencyConstraints returns per-pair flags for player p: equal[i]
// (distinct[i]) means slots i and i+1 hold the same (a different) value.
func (s *State) AdjacencyConstraints(p int) (equal, distinct []bool) {
	n := s.handSizes[p] - 1
	if n < 0 {
		n = 0
	}
	equal = make([]bool, n)
	distinct = make([]bool, n)
	for pos := range equal {
		equal[pos] = s.adjEqual[p][pos]
		distinct[pos] = s.adjDistinct[p][pos]
	}
	return equal, distinct
}

// PinHypothesis narrows (p, pos) to a single rank without recording a
// reveal. The suggester uses it on clones to explore a successful call.
func (s *State) PinHypothesis(p, pos, rank int) bool { return s.pinSlot(p, pos, rank) }

// RemoveHypothesis drops rank from (p, pos) without recording an
// action. The suggester uses it on clones to explore a failed call.
func (s *State) RemoveHypothesis(p, pos, rank int) bool { return s.removeRank(p, pos, rank) }

// IntersectRow narrows every slot of player p with the given sets; the
// grid only ever shrinks. Used by the global solver's projection phase.
func (s *State) IntersectRow(p int, row []engine.CandidateSet) bool {
	changed := false
	for pos, mask := range row {
		if pos >= s.handSizes[p] {
			break
		}
		if s.narrowSlot(p, pos, mask) {
			changed = true
		}
	}
	return changed
}

// Clone returns an independent deep copy sharing no mutable state.
func (s *State) Clone() *State {
	out := &State{
		domain:        s.domain,
		numPlayers:    s.numPlayers,
		me:            s.me,
		myHand:        append([]engine.Value(nil), s.myHand...),
		handSizes:     append([]int(nil), s.handSizes...),
		grid:          make([][]engine.CandidateSet, s.numPlayers),
		trackers:      make([]*Tracker, len(s.trackers)),
		adjEqual:      make([]map[int]bool, s.numPlayers),
		adjDistinct:   make([]map[int]bool, s.numPlayers),
		subsetCap:     s.subsetCap,
		informal:      s.informal,
		contradiction: s.contradiction,
		log:           s.log,
	}
	for p := range s.grid {
		out.grid[p] = append([]engine.CandidateSet(nil), s.grid[p]...)
		out.adjEqual[p] = make(map[int]bool, len(s.adjEqual[p]))
		for k, v := range s.adjEqual[p] {
			out.adjEqual[p][k] = v
		}
		out.adjDistinct[p] = make(map[int]bool, len(s.adjDistinct[p]))
		for k, v := range s.adjDistinct[p] {
			out.adjDistinct[p][k] = v
		}
	}
	for r, tr := range s.trackers {
		out.trackers[r] = tr.clone(out.log)
	}
	return out
}
