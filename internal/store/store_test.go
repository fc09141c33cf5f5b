package store

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sapper/engine"
	"sapper/engine/belief"
)

var playerNames = map[int]string{0: "ada", 1: "ben", 2: "eva"}

func idTable() map[string]int {
	out := make(map[string]int, len(playerNames))
	for id, name := range playerNames {
		out[name] = id
	}
	return out
}

func quietLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newState(t *testing.T) *belief.State {
	t.Helper()
	d, err := engine.NewDomain(map[engine.Value]int{1: 2, 2: 2, 3: 2, 3.5: 1, 4: 2})
	require.NoError(t, err)
	st, err := belief.NewState(d, []int{3, 3, 3}, 0, []engine.Value{1, 3, 4}, belief.WithLogger(quietLogger()))
	require.NoError(t, err)
	return st
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func assertSameBeliefs(t *testing.T, want, got *belief.State) {
	t.Helper()
	require.Equal(t, want.NumPlayers(), got.NumPlayers())
	for p := 0; p < want.NumPlayers(); p++ {
		assert.Equal(t, want.Row(p), got.Row(p), "player %d", p)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	st := newState(t)
	session := NewSession()

	require.NoError(t, s.Save(ctx, session, 1, st, playerNames))

	require.NoError(t, st.ProcessCall(engine.Call{
		Caller: 0, Target: 2, Position: 0, Value: 3,
		Success: true, CallerPosition: 1,
	}))
	require.NoError(t, s.Save(ctx, session, 2, st, playerNames))

	loaded, err := s.Load(ctx, session, st.Me(), 2, st.Domain(), idTable(), belief.WithLogger(quietLogger()))
	require.NoError(t, err)
	assertSameBeliefs(t, st, loaded)

	// Turn 1 is still the pre-call snapshot.
	first, err := s.Load(ctx, session, st.Me(), 1, st.Domain(), idTable(), belief.WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.NotEqual(t, st.Row(2), first.Row(2))
}

func TestLoadLatest(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	st := newState(t)
	session := NewSession()

	require.NoError(t, s.Save(ctx, session, 1, st, playerNames))
	require.NoError(t, st.ProcessNotPresent(engine.NotPresent{Player: 1, Value: 4, Position: engine.NoPosition}))
	require.NoError(t, s.Save(ctx, session, 2, st, playerNames))

	loaded, turn, err := s.LoadLatest(ctx, session, st.Me(), st.Domain(), idTable(), belief.WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, 2, turn)
	assertSameBeliefs(t, st, loaded)
}

func TestTurns(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	st := newState(t)
	session := NewSession()

	for _, turn := range []int{3, 1, 2} {
		require.NoError(t, s.Save(ctx, session, turn, st, playerNames))
	}
	turns, err := s.Turns(ctx, session, st.Me())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, turns)

	none, err := s.Turns(ctx, "unknown-session", st.Me())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	st := newState(t)

	require.NoError(t, s.Save(ctx, "b-session", 1, st, playerNames))
	require.NoError(t, s.Save(ctx, "a-session", 1, st, playerNames))
	require.NoError(t, s.Save(ctx, "a-session", 2, st, playerNames))

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-session", "b-session"}, sessions)
}

func TestSaveOverwritesSameTurn(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	st := newState(t)
	session := NewSession()

	require.NoError(t, s.Save(ctx, session, 1, st, playerNames))
	require.NoError(t, st.ProcessNotPresent(engine.NotPresent{Player: 1, Value: 4, Position: engine.NoPosition}))
	require.NoError(t, s.Save(ctx, session, 1, st, playerNames))

	loaded, err := s.Load(ctx, session, st.Me(), 1, st.Domain(), idTable(), belief.WithLogger(quietLogger()))
	require.NoError(t, err)
	assertSameBeliefs(t, st, loaded)

	turns, err := s.Turns(ctx, session, st.Me())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, turns)
}

func TestLoadMissingSnapshot(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	st := newState(t)

	_, err := s.Load(ctx, "no-such-session", 0, 1, st.Domain(), idTable())
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.LoadLatest(ctx, "no-such-session", 0, st.Domain(), idTable())
	assert.ErrorIs(t, err, ErrNotFound)
}
