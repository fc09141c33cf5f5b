// Package solver implements the exact global consistency pass over a
// belief state. It enumerates every hand signature (multiset of values)
// each player could hold under the current candidate grid, then keeps
// only the signatures that participate in at least one full assignment
// of the deck across all players, and narrows the grid accordingly.
//
// The result is strictly stronger than the local filters: any rank the
// solver removes is impossible in every globally consistent world. The
// pass is bounded by a wall-clock deadline; on timeout the belief state
// keeps whatever the local filters established and the caller gets
// ErrTimeout.
package solver

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"sapper/engine"
	"sapper/engine/belief"
	"sapper/internal/metrics"
)

// DefaultTimeout bounds a single Refine call.
const DefaultTimeout = 5 * time.Second

var (
	// ErrTimeout is returned when a solve hits its deadline. The belief
	// state still reflects the local filters.
	ErrTimeout = errors.New("consistency solve exceeded its deadline")

	// ErrContradiction is returned when no assignment of the deck is
	// compatible with the belief state. The state is marked inconsistent.
	ErrContradiction = errors.New("no globally consistent assignment exists")
)

// Solver runs the global pass. It is safe for concurrent use; the
// signature cache is shared across all Refine calls, so refining many
// clones of the same game (as the suggester does) hits the cache for
// every player whose row did not change.
type Solver struct {
	timeout     time.Duration
	parallelism int
	cache       *signatureCache
	met         *metrics.Set
	log         *logrus.Entry
}

// Option configures a Solver.
type Option func(*Solver)

// WithTimeout sets the wall-clock budget for one Refine call.
func WithTimeout(d time.Duration) Option { return func(s *Solver) { s.timeout = d } }

// WithParallelism caps the workers used for per-player enumeration.
func WithParallelism(n int) Option { return func(s *Solver) { s.parallelism = n } }

// WithLogger attaches a logger.
func WithLogger(log *logrus.Entry) Option { return func(s *Solver) { s.log = log } }

// WithMetrics attaches instrumentation.
func WithMetrics(m *metrics.Set) Option { return func(s *Solver) { s.met = m } }

// New creates a Solver with a 5s deadline and one worker per CPU.
func New(opts ...Option) *Solver {
	s := &Solver{
		timeout:     DefaultTimeout,
		parallelism: runtime.GOMAXPROCS(0),
		cache:       newSignatureCache(),
		log:         logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.parallelism < 1 {
		s.parallelism = 1
	}
	return s
}

// Refine narrows st's candidate grid to the globally consistent ranks.
// The local filters always run before Refine returns, so even a timed
// out or contradictory solve leaves the state locally propagated.
func (s *Solver) Refine(ctx context.Context, st *belief.State) error {
	defer st.ApplyFilters()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()

	sigs, err := s.enumerateAll(ctx, st)
	if err != nil {
		return s.finish(st, err)
	}

	deck := st.Domain().DeckVector()
	alpha, err := forwardSweep(ctx, deck, sigs)
	if err != nil {
		return s.finish(st, err)
	}
	if _, ok := alpha[len(sigs)][deck.Key()]; !ok {
		return s.finish(st, ErrContradiction)
	}
	beta, err := backwardSweep(ctx, deck, sigs)
	if err != nil {
		return s.finish(st, err)
	}

	rows, err := projectRows(ctx, st, deck, sigs, alpha, beta)
	if err != nil {
		return s.finish(st, err)
	}
	for p, row := range rows {
		st.IntersectRow(p, row)
	}
	s.met.ObserveSolve(time.Since(start))
	return nil
}

// finish maps low-level failures onto the solver's error contract and
// records them.
func (s *Solver) finish(st *belief.State, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		s.met.IncTimeout()
		s.log.WithError(err).Warn("consistency solve timed out, keeping local filter results")
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, ErrContradiction):
		s.met.IncContradiction()
		s.log.WithError(err).Warn("consistency solve found a contradiction")
		st.MarkInconsistent(err.Error())
		return err
	default:
		return err
	}
}

// enumerateAll produces each player's feasible hand signatures, in
// parallel, consulting the shared cache first.
func (s *Solver) enumerateAll(ctx context.Context, st *belief.State) ([][]engine.ResourceVector, error) {
	n := st.NumPlayers()
	out := make([][]engine.ResourceVector, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for p := 0; p < n; p++ {
		p := p
		in := snapshotPlayer(st, p)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			key := in.cacheKey(p)
			if cached, ok := s.cache.get(key); ok {
				out[p] = cached
				return nil
			}
			sigs, err := enumerateSignatures(gctx, st.Domain(), in)
			if err != nil {
				return err
			}
			if len(sigs) == 0 {
				return fmt.Errorf("player %d has no feasible hand: %w", p, ErrContradiction)
			}
			s.cache.put(key, sigs)
			out[p] = sigs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
