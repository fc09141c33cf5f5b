// Package suggest ranks the calls the acting player could make by how
// much uncertainty each is expected to remove from the belief state.
// Every candidate is simulated twice on a clone of the live state, once
// assuming the call succeeds and once assuming it fails, with the
// global solver re-run on each branch. The live state is never mutated.
package suggest

import (
	"context"
	"errors"
	"runtime"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"sapper/engine"
	"sapper/engine/belief"
	"sapper/engine/solver"
	"sapper/internal/metrics"
)

// DefaultMaxUncertainty bounds which slots are worth simulating: only
// slots whose candidate set has at most this many values are candidates.
const DefaultMaxUncertainty = 3

// Candidate is one (target slot, value) pair the acting player could
// truthfully call, with its simulated outcome.
type Candidate struct {
	Target   int
	Position int
	Value    engine.Value

	SuccessProbability float64
	ExpectedEntropy    float64
	InfoGain           float64
}

// Suggester evaluates candidate calls. The zero value is not usable;
// construct with New.
type Suggester struct {
	solver         *solver.Solver
	maxUncertainty int
	parallelism    int
	met            *metrics.Set
	log            *logrus.Entry
}

// Option configures a Suggester.
type Option func(*Suggester)

// WithMaxUncertainty sets the candidate-set size cutoff.
func WithMaxUncertainty(n int) Option { return func(s *Suggester) { s.maxUncertainty = n } }

// WithParallelism caps concurrent candidate simulations. A value of 1
// forces the sequential path.
func WithParallelism(n int) Option { return func(s *Suggester) { s.parallelism = n } }

// WithLogger attaches a logger.
func WithLogger(log *logrus.Entry) Option { return func(s *Suggester) { s.log = log } }

// WithMetrics attaches instrumentation.
func WithMetrics(m *metrics.Set) Option { return func(s *Suggester) { s.met = m } }

// New creates a Suggester that simulates outcomes through sv.
func New(sv *solver.Solver, opts ...Option) *Suggester {
	s := &Suggester{
		solver:         sv,
		maxUncertainty: DefaultMaxUncertainty,
		parallelism:    runtime.GOMAXPROCS(0),
		log:            logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.parallelism < 1 {
		s.parallelism = 1
	}
	return s
}

// Best returns the candidate with the highest expected information
// gain, or false when the acting player has no candidate to evaluate.
// Ties keep the first candidate in enumeration order.
func (s *Suggester) Best(ctx context.Context, st *belief.State) (Candidate, bool, error) {
	ranked, err := s.Rank(ctx, st)
	if err != nil {
		return Candidate{}, false, err
	}
	if len(ranked) == 0 {
		return Candidate{}, false, nil
	}
	return ranked[0], true, nil
}

// Rank evaluates every candidate call and returns them ordered by
// descending information gain. The sort is stable, so equal gains keep
// enumeration order.
func (s *Suggester) Rank(ctx context.Context, st *belief.State) ([]Candidate, error) {
	cands := s.enumerate(st)
	if len(cands) == 0 {
		return nil, nil
	}
	h0 := st.Entropy()

	var err error
	if s.parallelism > 1 {
		err = s.evaluateParallel(ctx, st, h0, cands)
	} else {
		err = s.evaluateSequential(ctx, st, h0, cands)
	}
	if err != nil {
		return nil, err
	}
	s.met.AddSuggestEvaluations(len(cands))

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].InfoGain > cands[j].InfoGain })
	return cands, nil
}

// enumerate lists the calls worth simulating: each of the owner's still
// unrevealed values against every other player's unrevealed slot whose
// candidate set is small enough and still admits the value.
func (s *Suggester) enumerate(st *belief.State) []Candidate {
	values := st.MyUnrevealedValues()
	if len(values) == 0 {
		return nil
	}
	var out []Candidate
	for p := 0; p < st.NumPlayers(); p++ {
		if p == st.Me() {
			continue
		}
		for pos := 0; pos < st.HandSize(p); pos++ {
			if st.IsSlotRevealed(p, pos) {
				continue
			}
			set := st.Candidates(p, pos)
			if set.Count() > s.maxUncertainty {
				continue
			}
			for _, v := range values {
				r, ok := st.Domain().Rank(v)
				if !ok || !set.Has(r) {
					continue
				}
				out = append(out, Candidate{Target: p, Position: pos, Value: v})
			}
		}
	}
	return out
}

func (s *Suggester) evaluateSequential(ctx context.Context, st *belief.State, h0 float64, cands []Candidate) error {
	for i := range cands {
		if err := s.evaluate(ctx, st, h0, &cands[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Suggester) evaluateParallel(ctx context.Context, st *belief.State, h0 float64, cands []Candidate) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i := range cands {
		c := &cands[i]
		g.Go(func() error { return s.evaluate(gctx, st, h0, c) })
	}
	return g.Wait()
}

// evaluate fills in c's outcome fields by simulating both branches of
// the call on clones of st.
func (s *Suggester) evaluate(ctx context.Context, st *belief.State, h0 float64, c *Candidate) error {
	set := st.Candidates(c.Target, c.Position)
	pSuccess := 1.0 / float64(set.Count())
	rank, _ := st.Domain().Rank(c.Value)

	hSuccess, err := s.branchEntropy(ctx, st, c, func(clone *belief.State) {
		clone.PinHypothesis(c.Target, c.Position, rank)
	})
	if err != nil {
		return err
	}
	hFailure, err := s.branchEntropy(ctx, st, c, func(clone *belief.State) {
		clone.RemoveHypothesis(c.Target, c.Position, rank)
	})
	if err != nil {
		return err
	}

	c.SuccessProbability = pSuccess
	c.ExpectedEntropy = pSuccess*hSuccess + (1-pSuccess)*hFailure
	c.InfoGain = h0 - c.ExpectedEntropy
	return nil
}

// branchEntropy clones the state, applies the hypothetical narrowing,
// re-runs the consistency engine and measures the remaining entropy. A
// solver timeout or contradiction is not fatal to the ranking: the
// local filters have already run, so the clone's entropy is still a
// usable, if looser, estimate.
func (s *Suggester) branchEntropy(ctx context.Context, st *belief.State, c *Candidate, apply func(*belief.State)) (float64, error) {
	clone := st.Clone()
	apply(clone)
	if err := s.solver.Refine(ctx, clone); err != nil {
		if errors.Is(err, solver.ErrTimeout) || errors.Is(err, solver.ErrContradiction) {
			s.log.WithFields(logrus.Fields{
				"target":   c.Target,
				"position": c.Position,
				"value":    c.Value.String(),
			}).WithError(err).Debug("branch simulation fell back to local filters")
			return clone.Entropy(), nil
		}
		return 0, err
	}
	return clone.Entropy(), nil
}
