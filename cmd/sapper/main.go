// Command sapper replays a short scripted defusal session from one
// player's point of view, printing the deduced candidate grid after
// each public action and finishing with the suggester's best call.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"

	"sapper/engine"
	"sapper/engine/belief"
	"sapper/engine/solver"
	"sapper/engine/suggest"
	"sapper/internal/config"
	"sapper/internal/metrics"
	"sapper/internal/store"
)

func main() {
	if err := run(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.Logger()
	log := logrus.NewEntry(logger)

	domain, err := engine.NewDomain(map[engine.Value]int{
		1: 2, 2: 2, 3: 2, 3.5: 1, 4: 2, 5: 2, 6: 2,
	})
	if err != nil {
		return err
	}
	names := map[int]string{0: "ada", 1: "ben", 2: "eva"}

	stateOpts := []belief.Option{
		belief.WithLogger(log),
		belief.WithSubsetSizeCap(cfg.SubsetSizeCap),
	}
	if cfg.Informal {
		stateOpts = append(stateOpts, belief.WithInformalMode())
	}

	// Observer is ada (player 0); ben and eva's hands stay hidden.
	st, err := belief.NewState(domain, []int{4, 5, 4}, 0,
		[]engine.Value{1, 3, 4, 6}, stateOpts...)
	if err != nil {
		return err
	}

	met := metrics.NewSet(prometheus.NewRegistry())
	sv := solver.New(
		solver.WithTimeout(cfg.SolverTimeout),
		solver.WithParallelism(cfg.SolverParallelism),
		solver.WithLogger(log),
		solver.WithMetrics(met))
	sg := suggest.New(sv,
		suggest.WithMaxUncertainty(cfg.SuggestMaxUncertainty),
		suggest.WithParallelism(cfg.SuggestParallelism),
		suggest.WithLogger(log),
		suggest.WithMetrics(met))

	archive, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer func() { _ = archive.Close() }()
	session := store.NewSession()

	pterm.DefaultHeader.Println("sapper — deduction demo (observer: ada)")
	renderGrid(st, names)

	steps := []struct {
		title string
		apply func() error
	}{
		{"ben marks his tie-breaker wire (slot 3, a single-copy value)", func() error {
			return st.ProcessSignal(engine.Signal{Player: 1, Copies: 1, Position: 3})
		}},
		{"ada cuts eva's slot 0 calling 3 — success, ada's own 3 revealed", func() error {
			return st.ProcessCall(engine.Call{Caller: 0, Target: 2, Position: 0, Value: 3, Success: true, CallerPosition: 1})
		}},
		{"ada cuts ben's slot 0 calling 1 — success", func() error {
			return st.ProcessCall(engine.Call{Caller: 0, Target: 1, Position: 0, Value: 1, Success: true, CallerPosition: 0})
		}},
		{"ben announces he holds no 6", func() error {
			return st.ProcessNotPresent(engine.NotPresent{Player: 1, Value: 6, Position: engine.NoPosition})
		}},
		{"ben fires the double detector on his pair of 2s", func() error {
			return st.ProcessDoubleReveal(engine.DoubleReveal{Player: 1, Value: 2, Position1: 1, Position2: 2})
		}},
	}

	ctx := context.Background()
	for turn, step := range steps {
		pterm.DefaultSection.Println(step.title)
		if err := step.apply(); err != nil {
			return fmt.Errorf("turn %d: %w", turn+1, err)
		}
		if err := sv.Refine(ctx, st); err != nil {
			pterm.Warning.Printfln("solver: %v", err)
		}
		renderGrid(st, names)
		if err := archive.Save(ctx, session, turn+1, st, names); err != nil {
			return fmt.Errorf("archive turn %d: %w", turn+1, err)
		}
	}

	pterm.DefaultSection.Println("suggested call")
	best, ok, err := sg.Best(ctx, st)
	if err != nil {
		return err
	}
	if !ok {
		pterm.Info.Println("no candidate call worth simulating")
		return nil
	}
	pterm.DefaultBox.WithTitle("best call").Printfln(
		"call %s on %s slot %d\np(success) = %.2f   expected entropy = %.2f bits   info gain = %.2f bits",
		best.Value, names[best.Target], best.Position,
		best.SuccessProbability, best.ExpectedEntropy, best.InfoGain)
	return nil
}

// renderGrid prints each player's per-slot candidate values. Revealed
// slots are green, deduced singletons cyan.
func renderGrid(st *belief.State, names map[int]string) {
	data := pterm.TableData{{"player", "slots"}}
	for p := 0; p < st.NumPlayers(); p++ {
		var cells []string
		for pos := 0; pos < st.HandSize(p); pos++ {
			cells = append(cells, renderSlot(st, p, pos))
		}
		data = append(data, []string{names[p], strings.Join(cells, "  ")})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	status := pterm.Sprintf("entropy %.2f bits", st.Entropy())
	if !st.Consistent() {
		status += pterm.LightRed("  [inconsistent]")
	}
	pterm.Println(status)
}

func renderSlot(st *belief.State, p, pos int) string {
	values := st.CandidateValues(p, pos)
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = v.String()
	}
	cell := "[" + strings.Join(parts, "|") + "]"
	switch {
	case st.IsSlotRevealed(p, pos):
		return pterm.LightGreen(cell)
	case len(values) == 1:
		return pterm.LightCyan(cell)
	default:
		return cell
	}
}
