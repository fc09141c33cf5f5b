// Package engine implements the core value model for the wire deduction
// engine: the configured value domain, bitset candidate sets, resource
// count vectors, and the public action records the belief layer consumes.
package engine

import (
	"fmt"
	"math"
	"math/bits"
	"sort"
	"strconv"
)

// MaxDistinctValues bounds the configured value domain so a CandidateSet
// fits in a single uint64.
const MaxDistinctValues = 64

// Value is a wire's face value. Tie-breaker wires use fractional values
// (e.g. 5.5) and carry their own copy counts.
type Value float64

// String renders integer values without a decimal point.
func (v Value) String() string {
	f := float64(v)
	if f == math.Trunc(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Domain is the immutable, globally known value domain of one game
// configuration: the sorted distinct values and how many copies of each
// exist in the deck. Ranks are indices into the sorted value list.
type Domain struct {
	values []Value
	counts []int
	index  map[Value]int
	total  int
}

// NewDomain builds a Domain from a copies-per-value map.
func NewDomain(counts map[Value]int) (*Domain, error) {
	if len(counts) == 0 {
		return nil, fmt.Errorf("empty value domain")
	}
	if len(counts) > MaxDistinctValues {
		return nil, fmt.Errorf("domain has %d distinct values, max is %d", len(counts), MaxDistinctValues)
	}
	d := &Domain{
		values: make([]Value, 0, len(counts)),
		counts: make([]int, 0, len(counts)),
		index:  make(map[Value]int, len(counts)),
	}
	for v, n := range counts {
		if n <= 0 {
			return nil, fmt.Errorf("value %s has non-positive copy count %d", v, n)
		}
		d.values = append(d.values, v)
	}
	sort.Slice(d.values, func(i, j int) bool { return d.values[i] < d.values[j] })
	for rank, v := range d.values {
		d.index[v] = rank
		d.counts = append(d.counts, counts[v])
		d.total += counts[v]
	}
	return d, nil
}

// Size returns the number of distinct values.
func (d *Domain) Size() int { return len(d.values) }

// TotalCards returns the total number of wires in the deck.
func (d *Domain) TotalCards() int { return d.total }

// Rank maps a value to its rank in the sorted domain.
func (d *Domain) Rank(v Value) (int, bool) {
	r, ok := d.index[v]
	return r, ok
}

// Value returns the value at a given rank.
func (d *Domain) Value(rank int) Value { return d.values[rank] }

// Count returns the number of deck copies of the value at rank.
func (d *Domain) Count(rank int) int { return d.counts[rank] }

// Values returns the sorted distinct values (shared slice; do not mutate).
func (d *Domain) Values() []Value { return d.values }

// DeckVector returns the full deck as a fresh resource vector.
func (d *Domain) DeckVector() ResourceVector {
	rv := make(ResourceVector, len(d.counts))
	copy(rv, d.counts)
	return rv
}

// FullSet returns the candidate set containing every rank of the domain.
func (d *Domain) FullSet() CandidateSet { return FullCandidateSet(len(d.values)) }

// RanksWithCopyCount returns the set of ranks whose deck copy count equals n.
func (d *Domain) RanksWithCopyCount(n int) CandidateSet {
	var s CandidateSet
	for r, c := range d.counts {
		if c == n {
			s = s.With(r)
		}
	}
	return s
}

// CandidateSet is a bitset over value ranks; bit r set means the value at
// rank r is still possible at the slot the set is attached to.
type CandidateSet uint64

// FullCandidateSet returns the set of all ranks 0..n-1.
func FullCandidateSet(n int) CandidateSet {
	if n >= 64 {
		return ^CandidateSet(0)
	}
	return CandidateSet(1)<<uint(n) - 1
}

// Has reports whether rank is in the set.
func (s CandidateSet) Has(rank int) bool { return s&(1<<uint(rank)) != 0 }

// With returns the set with rank added.
func (s CandidateSet) With(rank int) CandidateSet { return s | 1<<uint(rank) }

// Without returns the set with rank removed.
func (s CandidateSet) Without(rank int) CandidateSet { return s &^ (1 << uint(rank)) }

// Count returns the number of ranks in the set.
func (s CandidateSet) Count() int { return bits.OnesCount64(uint64(s)) }

// Empty reports whether the set has no ranks. An empty candidate set is
// a logical contradiction.
func (s CandidateSet) Empty() bool { return s == 0 }

// Singleton reports whether exactly one rank remains.
func (s CandidateSet) Singleton() bool { return s != 0 && s&(s-1) == 0 }

// Min returns the lowest rank in the set. Undefined on the empty set.
func (s CandidateSet) Min() int { return bits.TrailingZeros64(uint64(s)) }

// Max returns the highest rank in the set. Undefined on the empty set.
func (s CandidateSet) Max() int { return 63 - bits.LeadingZeros64(uint64(s)) }

// Ranks returns the ranks in ascending order.
func (s CandidateSet) Ranks() []int {
	out := make([]int, 0, s.Count())
	for b := uint64(s); b != 0; b &= b - 1 {
		out = append(out, bits.TrailingZeros64(b))
	}
	return out
}

// RanksAtLeast returns the mask of all ranks >= r.
func RanksAtLeast(r int) CandidateSet { return ^(CandidateSet(1)<<uint(r) - 1) }

// RanksAtMost returns the mask of all ranks <= r.
func RanksAtMost(r int) CandidateSet {
	if r >= 63 {
		return ^CandidateSet(0)
	}
	return CandidateSet(1)<<uint(r+1) - 1
}

// ResourceVector counts wire copies per value rank. It represents both the
// global deck and partial or complete hands (signatures).
type ResourceVector []int

// Clone returns a copy of the vector.
func (rv ResourceVector) Clone() ResourceVector {
	out := make(ResourceVector, len(rv))
	copy(out, rv)
	return out
}

// Sum returns the total number of copies counted.
func (rv ResourceVector) Sum() int {
	n := 0
	for _, c := range rv {
		n += c
	}
	return n
}

// Plus returns rv + other as a new vector.
func (rv ResourceVector) Plus(other ResourceVector) ResourceVector {
	out := rv.Clone()
	for i, c := range other {
		out[i] += c
	}
	return out
}

// Minus returns rv - other as a new vector.
func (rv ResourceVector) Minus(other ResourceVector) ResourceVector {
	out := rv.Clone()
	for i, c := range other {
		out[i] -= c
	}
	return out
}

// FitsWithin reports whether rv <= bound in every coordinate.
func (rv ResourceVector) FitsWithin(bound ResourceVector) bool {
	for i, c := range rv {
		if c > bound[i] {
			return false
		}
	}
	return true
}

// NonNegative reports whether every coordinate is >= 0.
func (rv ResourceVector) NonNegative() bool {
	for _, c := range rv {
		if c < 0 {
			return false
		}
	}
	return true
}

// Equal reports coordinate-wise equality.
func (rv ResourceVector) Equal(other ResourceVector) bool {
	if len(rv) != len(other) {
		return false
	}
	for i, c := range rv {
		if c != other[i] {
			return false
		}
	}
	return true
}

// Key packs the vector into a string usable as a map key. Counts are
// assumed to fit in a byte (copy counts are small).
func (rv ResourceVector) Key() string {
	b := make([]byte, len(rv))
	for i, c := range rv {
		b[i] = byte(c)
	}
	return string(b)
}
