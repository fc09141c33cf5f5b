package solver

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"sapper/engine"
	"sapper/engine/belief"
)

// checkInterval is how many search nodes pass between deadline checks.
const checkInterval = 1024

// playerInput is everything the enumeration depends on for one player.
// It is copied out of the belief state so workers never touch shared
// grid memory.
type playerInput struct {
	row       []engine.CandidateSet
	minCounts engine.ResourceVector
	adjEqual  []bool
	adjDist   []bool
}

func snapshotPlayer(st *belief.State, p int) playerInput {
	eq, dist := st.AdjacencyConstraints(p)
	return playerInput{
		row:       st.Row(p),
		minCounts: st.MinCounts(p),
		adjEqual:  eq,
		adjDist:   dist,
	}
}

// cacheKey identifies the enumeration inputs by content, so identical
// rows across cloned states resolve to the same entry.
func (in playerInput) cacheKey(p int) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(p))
	b.WriteByte('|')
	for _, cs := range in.row {
		b.WriteString(strconv.FormatUint(uint64(cs), 16))
		b.WriteByte(',')
	}
	b.WriteByte('|')
	b.WriteString(in.minCounts.Key())
	b.WriteByte('|')
	for i := range in.adjEqual {
		switch {
		case in.adjEqual[i]:
			b.WriteByte('=')
		case in.adjDist[i]:
			b.WriteByte('!')
		default:
			b.WriteByte('.')
		}
	}
	return b.String()
}

// enumerateSignatures backtracks over sorted hands consistent with the
// player's candidate sets, per-value copy caps, adjacency constraints
// and minimum count floors, and collects the distinct value multisets.
func enumerateSignatures(ctx context.Context, d *engine.Domain, in playerInput) ([]engine.ResourceVector, error) {
	size := len(in.row)
	used := make(engine.ResourceVector, d.Size())
	hand := make([]int, size)
	seen := make(map[string]bool)
	var sigs []engine.ResourceVector
	nodes := 0

	var walk func(pos, minRank int) error
	walk = func(pos, minRank int) error {
		nodes++
		if nodes%checkInterval == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		if pos == size {
			for r, floor := range in.minCounts {
				if used[r] < floor {
					return nil
				}
			}
			key := used.Key()
			if !seen[key] {
				seen[key] = true
				sigs = append(sigs, used.Clone())
			}
			return nil
		}
		// Unmet floors must still fit in the remaining slots.
		outstanding := 0
		for r, floor := range in.minCounts {
			if need := floor - used[r]; need > 0 {
				outstanding += need
			}
		}
		if outstanding > size-pos {
			return nil
		}
		for _, rank := range in.row[pos].Ranks() {
			if rank < minRank {
				continue
			}
			if used[rank] >= d.Count(rank) {
				continue
			}
			if pos > 0 {
				if in.adjEqual[pos-1] && rank != hand[pos-1] {
					continue
				}
				if in.adjDist[pos-1] && rank == hand[pos-1] {
					continue
				}
			}
			// The hand is sorted, so picking rank here abandons any
			// still-unmet floor on a lower rank.
			dead := false
			for r := minRank; r < rank; r++ {
				if used[r] < in.minCounts[r] {
					dead = true
					break
				}
			}
			if dead {
				continue
			}
			hand[pos] = rank
			used[rank]++
			if err := walk(pos+1, rank); err != nil {
				return err
			}
			used[rank]--
		}
		return nil
	}
	if err := walk(0, 0); err != nil {
		return nil, err
	}
	return sigs, nil
}

// signatureCache memoizes enumeration results by input content.
type signatureCache struct {
	mu      sync.RWMutex
	entries map[string][]engine.ResourceVector
}

func newSignatureCache() *signatureCache {
	return &signatureCache{entries: make(map[string][]engine.ResourceVector)}
}

func (c *signatureCache) get(key string) ([]engine.ResourceVector, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sigs, ok := c.entries[key]
	return sigs, ok
}

func (c *signatureCache) put(key string, sigs []engine.ResourceVector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = sigs
}
