// Package belief maintains, for one player, the candidate-set grid over
// every other player's sorted hand, together with per-value bookkeeping
// of confirmed, deduced, and demonstrated-possessed wires. The grid only
// ever narrows: local filters run to a fixed point after every processed
// action record.
package belief

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// SlotRef identifies one hand slot of one player.
type SlotRef struct {
	Player   int
	Position int
}

// Tracker is the per-value bookkeeping for a single value rank: how many
// copies exist, which slots are publicly confirmed (revealed), which are
// deduced but not confirmed (certain), and which players are known to
// hold a copy at an unknown position (called, from a failed cut).
//
// Revealed, certain, and called are kept pairwise disjoint per player:
// confirming a slot removes the matching deduction and drops the
// player's called mark, and a deduced slot also clears the mark.
type Tracker struct {
	Total    int
	revealed map[SlotRef]bool
	certain  map[SlotRef]bool
	called   map[int]bool
	log      *logrus.Entry
}

func newTracker(total int, log *logrus.Entry) *Tracker {
	return &Tracker{
		Total:    total,
		revealed: make(map[SlotRef]bool),
		certain:  make(map[SlotRef]bool),
		called:   make(map[int]bool),
		log:      log,
	}
}

// AddRevealed records a publicly confirmed copy at (player, pos). A
// matching certain entry and the player's called mark are superseded.
func (t *Tracker) AddRevealed(player, pos int) {
	ref := SlotRef{player, pos}
	if t.revealed[ref] {
		return
	}
	delete(t.certain, ref)
	delete(t.called, player)
	if t.accounted() >= t.Total {
		t.log.WithFields(logrus.Fields{"player": player, "pos": pos}).
			Warn("revealed copy exceeds total; tracker overcommitted")
	}
	t.revealed[ref] = true
}

// AddCertain records a deduced (not publicly confirmed) copy at
// (player, pos). No-op if the slot is already revealed. The player's
// called mark is superseded by the positioned deduction.
func (t *Tracker) AddCertain(player, pos int) {
	ref := SlotRef{player, pos}
	if t.revealed[ref] || t.certain[ref] {
		return
	}
	delete(t.called, player)
	if t.accounted() >= t.Total {
		t.log.WithFields(logrus.Fields{"player": player, "pos": pos}).
			Warn("certain copy exceeds total; tracker overcommitted")
	}
	t.certain[ref] = true
}

// AddCalled records that player holds a copy at an unknown position.
// A player already carrying a positioned deduction (or confirmation) is
// never re-added: the positioned fact is strictly stronger.
func (t *Tracker) AddCalled(player int) {
	if t.called[player] {
		return
	}
	for ref := range t.certain {
		if ref.Player == player {
			return
		}
	}
	for ref := range t.revealed {
		if ref.Player == player {
			return
		}
	}
	if t.accounted() >= t.Total {
		t.log.WithField("player", player).
			Warn("called copy exceeds total; tracker overcommitted")
	}
	t.called[player] = true
}

// accounted returns revealed + certain + called.
func (t *Tracker) accounted() int {
	return len(t.revealed) + len(t.certain) + len(t.called)
}

// Uncertain returns the number of copies whose location is fully
// unknown. Never negative.
func (t *Tracker) Uncertain() int {
	u := t.Total - t.accounted()
	if u < 0 {
		return 0
	}
	return u
}

// IsRevealed reports whether (player, pos) is publicly confirmed.
func (t *Tracker) IsRevealed(player, pos int) bool { return t.revealed[SlotRef{player, pos}] }

// IsPinned reports whether (player, pos) is revealed or certain.
func (t *Tracker) IsPinned(player, pos int) bool {
	ref := SlotRef{player, pos}
	return t.revealed[ref] || t.certain[ref]
}

// Called reports whether player carries an unpositioned copy.
func (t *Tracker) Called(player int) bool { return t.called[player] }

// PinnedPositions returns the sorted positions of player's revealed and
// certain copies (the anchors of the window filter).
func (t *Tracker) PinnedPositions(player int) []int {
	var out []int
	for ref := range t.revealed {
		if ref.Player == player {
			out = append(out, ref.Position)
		}
	}
	for ref := range t.certain {
		if ref.Player == player {
			out = append(out, ref.Position)
		}
	}
	sort.Ints(out)
	return out
}

// PinnedCount returns how many copies player is known to hold at fixed
// positions.
func (t *Tracker) PinnedCount(player int) int { return len(t.PinnedPositions(player)) }

// remapPair rewrites every positioned entry of two swapping players in
// one pass, so an entry moved into the second player's hand is not
// remapped twice. Each fn returns the new (player, position) for an old
// position of its player.
func (t *Tracker) remapPair(p1 int, fn1 func(pos int) (int, int), p2 int, fn2 func(pos int) (int, int)) {
	remapSet := func(m map[SlotRef]bool) {
		moved := make(map[SlotRef]bool)
		for ref := range m {
			switch ref.Player {
			case p1:
				np, npos := fn1(ref.Position)
				delete(m, ref)
				moved[SlotRef{np, npos}] = true
			case p2:
				np, npos := fn2(ref.Position)
				delete(m, ref)
				moved[SlotRef{np, npos}] = true
			}
		}
		for ref := range moved {
			m[ref] = true
		}
	}
	remapSet(t.revealed)
	remapSet(t.certain)
}

// dropCalled removes player's called mark (used when a swap makes the
// mark unsound).
func (t *Tracker) dropCalled(player int) { delete(t.called, player) }

func (t *Tracker) clone(log *logrus.Entry) *Tracker {
	out := newTracker(t.Total, log)
	for ref := range t.revealed {
		out.revealed[ref] = true
	}
	for ref := range t.certain {
		out.certain[ref] = true
	}
	for p := range t.called {
		out.called[p] = true
	}
	return out
}

// TrackerSnapshot is a read-only copy of one tracker's state, part of
// the engine's output contract.
type TrackerSnapshot struct {
	Total     int
	Revealed  []SlotRef
	Certain   []SlotRef
	Called    []int
	Uncertain int
}

// Snapshot returns a sorted, detached copy of the tracker state.
func (t *Tracker) Snapshot() TrackerSnapshot {
	snap := TrackerSnapshot{Total: t.Total, Uncertain: t.Uncertain()}
	for ref := range t.revealed {
		snap.Revealed = append(snap.Revealed, ref)
	}
	for ref := range t.certain {
		snap.Certain = append(snap.Certain, ref)
	}
	for p := range t.called {
		snap.Called = append(snap.Called, p)
	}
	sortRefs(snap.Revealed)
	sortRefs(snap.Certain)
	sort.Ints(snap.Called)
	return snap
}

func sortRefs(refs []SlotRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Player != refs[j].Player {
			return refs[i].Player < refs[j].Player
		}
		return refs[i].Position < refs[j].Position
	})
}
