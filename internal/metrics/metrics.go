// Package metrics exposes prometheus instrumentation for the deduction
// engine. A Set is scoped to a Registerer owned by the caller; there is
// no process-wide metric state. All methods are nil-safe so the engine
// runs unchanged without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Set holds the engine's collectors.
type Set struct {
	solverRuns           prometheus.Counter
	solverTimeouts       prometheus.Counter
	solverContradictions prometheus.Counter
	solverDuration       prometheus.Histogram
	suggestEvaluations   prometheus.Counter
}

// NewSet creates and registers the engine collectors on reg.
func NewSet(reg prometheus.Registerer) *Set {
	s := &Set{
		solverRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sapper_solver_runs_total",
			Help: "Completed global consistency solves.",
		}),
		solverTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sapper_solver_timeouts_total",
			Help: "Global solves abandoned at the wall-clock deadline.",
		}),
		solverContradictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sapper_solver_contradictions_total",
			Help: "Global solves that found the belief state contradictory.",
		}),
		solverDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sapper_solver_duration_seconds",
			Help:    "Wall-clock duration of completed global solves.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		suggestEvaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sapper_suggest_evaluations_total",
			Help: "Candidate call simulations run by the entropy suggester.",
		}),
	}
	reg.MustRegister(s.solverRuns, s.solverTimeouts, s.solverContradictions,
		s.solverDuration, s.suggestEvaluations)
	return s
}

// ObserveSolve records one completed solve.
func (s *Set) ObserveSolve(d time.Duration) {
	if s == nil {
		return
	}
	s.solverRuns.Inc()
	s.solverDuration.Observe(d.Seconds())
}

// IncTimeout records a deadline abort.
func (s *Set) IncTimeout() {
	if s == nil {
		return
	}
	s.solverTimeouts.Inc()
}

// IncContradiction records a contradictory solve.
func (s *Set) IncContradiction() {
	if s == nil {
		return
	}
	s.solverContradictions.Inc()
}

// AddSuggestEvaluations records n candidate simulations.
func (s *Set) AddSuggestEvaluations(n int) {
	if s == nil {
		return
	}
	s.suggestEvaluations.Add(float64(n))
}
