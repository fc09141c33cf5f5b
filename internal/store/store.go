// Package store persists belief snapshots to a single SQLite file so a
// session can be resumed or replayed per turn. Snapshots are the same
// JSON documents the folder persistence writes, keyed by session,
// observing player and turn number.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"sapper/engine"
	"sapper/engine/belief"
)

// ErrNotFound is returned when no snapshot matches the query.
var ErrNotFound = errors.New("snapshot not found")

// Store is a SQLite-backed snapshot archive. Safe for concurrent use;
// database/sql serializes access to the single connection pool.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the snapshot database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "sapper.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		session TEXT NOT NULL,
		player INTEGER NOT NULL,
		turn INTEGER NOT NULL,
		beliefs BLOB NOT NULL,
		trackers BLOB NOT NULL,
		saved_at TEXT NOT NULL,
		PRIMARY KEY (session, player, turn)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshots table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// NewSession returns a fresh session identifier.
func NewSession() string { return uuid.NewString() }

// Save archives st as seen by its owning player at the given turn.
// Saving the same (session, player, turn) again overwrites the earlier
// snapshot.
func (s *Store) Save(ctx context.Context, session string, turn int, st *belief.State, names map[int]string) error {
	beliefs, err := st.MarshalBeliefs(names)
	if err != nil {
		return fmt.Errorf("encode beliefs: %w", err)
	}
	trackers, err := st.MarshalTrackers(names)
	if err != nil {
		return fmt.Errorf("encode trackers: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO snapshots
		(session, player, turn, beliefs, trackers, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (session, player, turn) DO UPDATE SET
			beliefs = excluded.beliefs,
			trackers = excluded.trackers,
			saved_at = excluded.saved_at`,
		session, st.Me(), turn, beliefs, trackers,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Load restores the snapshot at exactly (session, player, turn).
func (s *Store) Load(ctx context.Context, session string, player, turn int, domain *engine.Domain, names map[string]int, opts ...belief.Option) (*belief.State, error) {
	row := s.db.QueryRowContext(ctx, `SELECT beliefs, trackers FROM snapshots
		WHERE session = ? AND player = ? AND turn = ?`, session, player, turn)
	return s.restore(row, domain, names, opts...)
}

// LoadLatest restores the most recent snapshot for (session, player)
// and reports its turn number.
func (s *Store) LoadLatest(ctx context.Context, session string, player int, domain *engine.Domain, names map[string]int, opts ...belief.Option) (*belief.State, int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT beliefs, trackers, turn FROM snapshots
		WHERE session = ? AND player = ?
		ORDER BY turn DESC LIMIT 1`, session, player)
	var beliefs, trackers []byte
	var turn int
	if err := row.Scan(&beliefs, &trackers, &turn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("scan snapshot: %w", err)
	}
	st, err := belief.Restore(beliefs, trackers, domain, names, opts...)
	if err != nil {
		return nil, 0, err
	}
	return st, turn, nil
}

// Sessions lists every archived session identifier, ascending.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT session FROM snapshots ORDER BY session`)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var sessions []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, id)
	}
	return sessions, rows.Err()
}

// Turns lists the turn numbers archived for (session, player), ascending.
func (s *Store) Turns(ctx context.Context, session string, player int) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT turn FROM snapshots
		WHERE session = ? AND player = ? ORDER BY turn`, session, player)
	if err != nil {
		return nil, fmt.Errorf("select turns: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var turns []int
	for rows.Next() {
		var t int
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *Store) restore(row *sql.Row, domain *engine.Domain, names map[string]int, opts ...belief.Option) (*belief.State, error) {
	var beliefs, trackers []byte
	if err := row.Scan(&beliefs, &trackers); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	return belief.Restore(beliefs, trackers, domain, names, opts...)
}
