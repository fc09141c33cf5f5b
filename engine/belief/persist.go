package belief

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"sapper/engine"
)

// On-disk schema: one folder per player holding belief.json (the
// candidate grid) and value_tracker.json (per-value bookkeeping).
// Player keys are either plain ids ("2") or id_name composites
// ("2_ada"); loading also accepts bare names resolved through a
// supplied name table. Round-trip fidelity is a correctness
// requirement: a load of a save must be set-equal to the original.

const (
	beliefFileName  = "belief.json"
	trackerFileName = "value_tracker.json"
)

type beliefFile struct {
	MyPlayerID int                             `json:"my_player_id"`
	Beliefs    map[string]map[string][]float64 `json:"beliefs"`
}

type trackerEntry struct {
	Revealed  [][]any `json:"revealed"`
	Certain   [][]any `json:"certain"`
	Called    []any   `json:"called"`
	Uncertain string  `json:"uncertain"`
}

// MarshalBeliefs renders the candidate grid as belief.json bytes. names
// may be nil; known players get "id_name" composite keys.
func (s *State) MarshalBeliefs(names map[int]string) ([]byte, error) {
	out := beliefFile{
		MyPlayerID: s.me,
		Beliefs:    make(map[string]map[string][]float64, s.numPlayers),
	}
	for p, row := range s.grid {
		slots := make(map[string][]float64, len(row))
		for pos, set := range row {
			vals := make([]float64, 0, set.Count())
			for _, r := range set.Ranks() {
				vals = append(vals, float64(s.domain.Value(r)))
			}
			slots[strconv.Itoa(pos)] = vals
		}
		out.Beliefs[playerKey(p, names)] = slots
	}
	return json.MarshalIndent(out, "", "  ")
}

// MarshalTrackers renders the value trackers as value_tracker.json bytes.
func (s *State) MarshalTrackers(names map[int]string) ([]byte, error) {
	out := make(map[string]trackerEntry, len(s.trackers))
	for r, tr := range s.trackers {
		snap := tr.Snapshot()
		entry := trackerEntry{
			Revealed:  make([][]any, 0, len(snap.Revealed)),
			Certain:   make([][]any, 0, len(snap.Certain)),
			Called:    make([]any, 0, len(snap.Called)),
			Uncertain: fmt.Sprintf("%d/%d", snap.Uncertain, snap.Total),
		}
		for _, ref := range snap.Revealed {
			entry.Revealed = append(entry.Revealed, []any{playerKey(ref.Player, names), ref.Position})
		}
		for _, ref := range snap.Certain {
			entry.Certain = append(entry.Certain, []any{playerKey(ref.Player, names), ref.Position})
		}
		for _, p := range snap.Called {
			entry.Called = append(entry.Called, playerKey(p, names))
		}
		out[s.domain.Value(r).String()] = entry
	}
	return json.MarshalIndent(out, "", "  ")
}

// SaveToFolder writes belief.json and value_tracker.json under dir,
// creating it if needed.
func (s *State) SaveToFolder(dir string, names map[int]string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create folder: %w", err)
	}
	beliefs, err := s.MarshalBeliefs(names)
	if err != nil {
		return fmt.Errorf("marshal beliefs: %w", err)
	}
	trackers, err := s.MarshalTrackers(names)
	if err != nil {
		return fmt.Errorf("marshal trackers: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, beliefFileName), beliefs, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", beliefFileName, err)
	}
	if err := os.WriteFile(filepath.Join(dir, trackerFileName), trackers, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", trackerFileName, err)
	}
	return nil
}

// LoadFromFolder reconstructs a State from a folder written by
// SaveToFolder. names resolves name keys to player ids; it may be nil
// when all keys are numeric or id_name composites.
func LoadFromFolder(dir string, domain *engine.Domain, names map[string]int, opts ...Option) (*State, error) {
	beliefBytes, err := os.ReadFile(filepath.Join(dir, beliefFileName))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", beliefFileName, err)
	}
	trackerBytes, err := os.ReadFile(filepath.Join(dir, trackerFileName))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", trackerFileName, err)
	}
	return Restore(beliefBytes, trackerBytes, domain, names, opts...)
}

// Restore rebuilds a State from belief.json and value_tracker.json
// bytes (shared by folder loading and the snapshot store).
func Restore(beliefBytes, trackerBytes []byte, domain *engine.Domain, names map[string]int, opts ...Option) (*State, error) {
	if domain == nil {
		return nil, fmt.Errorf("nil domain")
	}
	var bf beliefFile
	if err := json.Unmarshal(beliefBytes, &bf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", beliefFileName, err)
	}

	grid := make(map[int][]engine.CandidateSet, len(bf.Beliefs))
	maxPlayer := -1
	for key, slots := range bf.Beliefs {
		p, err := resolvePlayerKey(key, names)
		if err != nil {
			return nil, err
		}
		row := make([]engine.CandidateSet, len(slots))
		for posKey, vals := range slots {
			pos, err := strconv.Atoi(posKey)
			if err != nil || pos < 0 || pos >= len(row) {
				return nil, fmt.Errorf("bad position key %q for player %d", posKey, p)
			}
			var set engine.CandidateSet
			for _, f := range vals {
				r, ok := domain.Rank(engine.Value(f))
				if !ok {
					return nil, fmt.Errorf("saved value %v not in domain", f)
				}
				set = set.With(r)
			}
			if set.Empty() {
				return nil, fmt.Errorf("empty saved candidate set at (%d,%d)", p, pos)
			}
			row[pos] = set
		}
		grid[p] = row
		if p > maxPlayer {
			maxPlayer = p
		}
	}
	n := maxPlayer + 1
	if n < 2 || len(grid) != n {
		return nil, fmt.Errorf("belief file covers %d players with max id %d", len(grid), maxPlayer)
	}
	if bf.MyPlayerID < 0 || bf.MyPlayerID >= n {
		return nil, fmt.Errorf("my_player_id %d out of range", bf.MyPlayerID)
	}

	s := &State{
		domain:      domain,
		numPlayers:  n,
		me:          bf.MyPlayerID,
		handSizes:   make([]int, n),
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
	s.log = s.log.WithField("player", s.me)
	for p := 0; p < n; p++ {
		row, ok := grid[p]
		if !ok {
			return nil, fmt.Errorf("belief file missing player %d", p)
		}
		s.grid[p] = row
		s.handSizes[p] = len(row)
		s.adjEqual[p] = make(map[int]bool)
		s.adjDistinct[p] = make(map[int]bool)
	}
	for pos, set := range s.grid[s.me] {
		if !set.Singleton() {
			return nil, fmt.Errorf("own slot %d is not pinned in the saved grid", pos)
		}
		s.myHand = append(s.myHand, domain.Value(set.Min()))
	}

	var tf map[string]trackerEntry
	if err := json.Unmarshal(trackerBytes, &tf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", trackerFileName, err)
	}
	for r := 0; r < domain.Size(); r++ {
		s.trackers[r] = newTracker(domain.Count(r), s.log)
	}
	for key, entry := range tf {
		f, err := strconv.ParseFloat(key, 64)
		if err != nil {
			return nil, fmt.Errorf("bad value key %q in %s", key, trackerFileName)
		}
		r, ok := domain.Rank(engine.Value(f))
		if !ok {
			return nil, fmt.Errorf("tracked value %s not in domain", key)
		}
		tr := s.trackers[r]
		if err := checkUncertain(entry.Uncertain, tr.Total, len(entry.Revealed)+len(entry.Certain)+len(entry.Called)); err != nil {
			return nil, fmt.Errorf("value %s: %w", key, err)
		}
		for _, pair := range entry.Revealed {
			p, pos, err := resolveRefPair(pair, names)
			if err != nil {
				return nil, fmt.Errorf("value %s revealed: %w", key, err)
			}
			tr.revealed[SlotRef{p, pos}] = true
		}
		for _, pair := range entry.Certain {
			p, pos, err := resolveRefPair(pair, names)
			if err != nil {
				return nil, fmt.Errorf("value %s certain: %w", key, err)
			}
			tr.certain[SlotRef{p, pos}] = true
		}
		for _, raw := range entry.Called {
			p, err := resolvePlayerAny(raw, names)
			if err != nil {
				return nil, fmt.Errorf("value %s called: %w", key, err)
			}
			tr.called[p] = true
		}
	}
	return s, nil
}

// playerKey renders a player id as "id" or "id_name".
func playerKey(p int, names map[int]string) string {
	if name, ok := names[p]; ok && name != "" {
		return fmt.Sprintf("%d_%s", p, name)
	}
	return strconv.Itoa(p)
}

// resolvePlayerKey accepts "3", "3_ada", or a bare name present in the
// name table.
func resolvePlayerKey(key string, names map[string]int) (int, error) {
	if id, err := strconv.Atoi(key); err == nil {
		return id, nil
	}
	if prefix, _, found := strings.Cut(key, "_"); found {
		if id, err := strconv.Atoi(prefix); err == nil {
			return id, nil
		}
	}
	if id, ok := names[key]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("cannot resolve player key %q", key)
}

func resolvePlayerAny(raw any, names map[string]int) (int, error) {
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case string:
		return resolvePlayerKey(v, names)
	default:
		return 0, fmt.Errorf("unsupported player reference %v", raw)
	}
}

func resolveRefPair(pair []any, names map[string]int) (player, pos int, err error) {
	if len(pair) != 2 {
		return 0, 0, fmt.Errorf("slot reference needs [player, position], got %v", pair)
	}
	player, err = resolvePlayerAny(pair[0], names)
	if err != nil {
		return 0, 0, err
	}
	f, ok := pair[1].(float64)
	if !ok {
		return 0, 0, fmt.Errorf("position must be a number, got %v", pair[1])
	}
	return player, int(f), nil
}

func checkUncertain(enc string, total, accounted int) error {
	parts := strings.Split(enc, "/")
	if len(parts) != 2 {
		return fmt.Errorf("uncertain field %q is not count/total", enc)
	}
	count, err1 := strconv.Atoi(parts[0])
	denom, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return fmt.Errorf("uncertain field %q is not numeric", enc)
	}
	if denom != total {
		return fmt.Errorf("saved total %d does not match domain total %d", denom, total)
	}
	if count != total-accounted {
		return fmt.Errorf("uncertain %d inconsistent with %d accounted of %d", count, accounted, total)
	}
	return nil
}
