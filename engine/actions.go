package engine

// Action records are the sole channel through which a belief state
// changes. The turn orchestrator validates and timestamps each record,
// then delivers it exactly once to every player's BeliefState. Records
// are immutable once created.

// NoPosition marks an optional position field as absent.
const NoPosition = -1

// Call records one cut attempt: the caller claims the target player's
// wire at Position has face value Value. On success both the target's
// wire and (when CallerPosition is given) the caller's matching wire are
// publicly revealed. On failure the value is publicly excluded from the
// slot, and the caller is known to hold Value somewhere, since players
// may only call values they themselves still hold.
type Call struct {
	Caller         int
	Target         int
	Position       int
	Value          Value
	Success        bool
	CallerPosition int // NoPosition if not disclosed
}

// DoubleReveal records a player revealing two of their own wires that
// share the same value (the double-detector play). Both positions are
// publicly pinned to Value.
type DoubleReveal struct {
	Player    int
	Value     Value
	Position1 int
	Position2 int
}

// Signal records a player announcing that their hidden wire at Position
// has a value whose total deck copy count equals Copies. The announcement
// narrows the slot without naming the value (marking a tie-breaker wire
// is the common case: those values have a single copy).
type Signal struct {
	Player   int
	Copies   int
	Position int
}

// NotPresent records a player announcing they do not hold Value — at a
// specific position when Position >= 0, anywhere in their hand otherwise.
type NotPresent struct {
	Player   int
	Value    Value
	Position int // NoPosition for a whole-hand announcement
}

// Swap records two players exchanging one hidden wire each. Player1's
// wire leaves InitPos1 and, because hands stay sorted, Player2 slots it
// at FinalPos2; symmetrically Player2's wire moves from InitPos2 to
// Player1's FinalPos1. Received1/Received2 are the values each player
// received; they are meaningful only when Revealed is true (a public
// exchange, or a record delivered to a participant).
type Swap struct {
	Player1   int
	Player2   int
	InitPos1  int
	InitPos2  int
	FinalPos1 int
	FinalPos2 int
	Revealed  bool
	Received1 Value // value Player1 received
	Received2 Value // value Player2 received
}

// RemapSwapPosition returns the index a slot occupies after its hand lost
// the wire at removed and gained one at inserted. The moved wire itself
// (old == removed) lands in the other player's hand; callers handle that
// case with the counterpart's inserted index. Cases:
//
//	before both:  old < removed, old < inserted → unchanged
//	after both:   old > removed, old > inserted → unchanged
//	shift left:   removed < old <= inserted     → old-1
//	shift right:  inserted <= old < removed     → old+1
//	exchanged:    old == removed                → inserted
func RemapSwapPosition(old, removed, inserted int) int {
	switch {
	case old == removed:
		return inserted
	case old < removed && old < inserted:
		return old
	case old > removed && old > inserted:
		return old
	case old > removed:
		return old - 1
	default:
		return old + 1
	}
}
