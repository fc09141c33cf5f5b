package solver

import (
	"context"
	"fmt"

	"sapper/engine"
	"sapper/engine/belief"
)

// vectorSet maps a ResourceVector's key to the vector itself.
type vectorSet map[string]engine.ResourceVector

// forwardSweep computes alpha[i]: every total vector players 0..i-1 can
// jointly hold, bounded by the deck. alpha has len(sigs)+1 levels;
// alpha[0] holds only the zero vector.
func forwardSweep(ctx context.Context, deck engine.ResourceVector, sigs [][]engine.ResourceVector) ([]vectorSet, error) {
	alpha := make([]vectorSet, len(sigs)+1)
	zero := make(engine.ResourceVector, len(deck))
	alpha[0] = vectorSet{zero.Key(): zero}
	steps := 0
	for i, playerSigs := range sigs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := make(vectorSet)
		for _, base := range alpha[i] {
			steps++
			if steps%checkInterval == 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				default:
				}
			}
			for _, sig := range playerSigs {
				sum := base.Plus(sig)
				if !sum.FitsWithin(deck) {
					continue
				}
				next[sum.Key()] = sum
			}
		}
		alpha[i+1] = next
	}
	return alpha, nil
}

// backwardSweep computes beta[i]: every total vector players i..n-1 can
// jointly hold. beta[n] holds only the zero vector.
func backwardSweep(ctx context.Context, deck engine.ResourceVector, sigs [][]engine.ResourceVector) ([]vectorSet, error) {
	n := len(sigs)
	beta := make([]vectorSet, n+1)
	zero := make(engine.ResourceVector, len(deck))
	beta[n] = vectorSet{zero.Key(): zero}
	steps := 0
	for i := n - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := make(vectorSet)
		for _, base := range beta[i+1] {
			steps++
			if steps%checkInterval == 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				default:
				}
			}
			for _, sig := range sigs[i] {
				sum := base.Plus(sig)
				if !sum.FitsWithin(deck) {
					continue
				}
				next[sum.Key()] = sum
			}
		}
		beta[i] = next
	}
	return beta, nil
}

// projectRows keeps, per player, the signatures that extend to a full
// assignment of the deck, and expands the survivors back into per-slot
// candidate sets for a sorted hand: a signature with counts (c0, c1, ...)
// admits rank r at the positions its prefix sum covers, so the union
// over surviving signatures is exactly the globally consistent mask.
// Nothing is mutated here; the caller intersects the rows afterwards.
func projectRows(ctx context.Context, st *belief.State, deck engine.ResourceVector, sigs [][]engine.ResourceVector, alpha, beta []vectorSet) ([][]engine.CandidateSet, error) {
	rows := make([][]engine.CandidateSet, len(sigs))
	steps := 0
	for p, playerSigs := range sigs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := make([]engine.CandidateSet, st.HandSize(p))
		valid := 0
		for _, sig := range playerSigs {
			steps++
			if steps%checkInterval == 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				default:
				}
			}
			rest := deck.Minus(sig)
			if !rest.NonNegative() {
				continue
			}
			if !splits(rest, alpha[p], beta[p+1]) {
				continue
			}
			valid++
			pos := 0
			for r, c := range sig {
				for k := 0; k < c; k++ {
					row[pos] = row[pos].With(r)
					pos++
				}
			}
		}
		if valid == 0 {
			return nil, fmt.Errorf("player %d has no globally consistent hand: %w", p, ErrContradiction)
		}
		rows[p] = row
	}
	return rows, nil
}

// splits reports whether rest can be written as a + b with a drawn from
// before and b from after.
func splits(rest engine.ResourceVector, before, after vectorSet) bool {
	// Iterate the smaller side.
	if len(after) < len(before) {
		for _, b := range after {
			need := rest.Minus(b)
			if !need.NonNegative() {
				continue
			}
			if _, ok := before[need.Key()]; ok {
				return true
			}
		}
		return false
	}
	for _, a := range before {
		need := rest.Minus(a)
		if !need.NonNegative() {
			continue
		}
		if _, ok := after[need.Key()]; ok {
			return true
		}
	}
	return false
}
