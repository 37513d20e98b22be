// Package sqlite stores headless skirmish turns in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/freeeve/enclaves/internal/model"
)

// Store wraps a SQLite connection.
type Store struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*Store, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		state_before TEXT NOT NULL,
		state_after TEXT NOT NULL,
		events TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		resolved_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS skirmish_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, number);
	`
	_, err := s.conn.Exec(schema)
	return err
}

type turnRow struct {
	ID          string    `db:"id"`
	SessionID   string    `db:"session_id"`
	RunID       string    `db:"run_id"`
	Number      int       `db:"number"`
	StateBefore string    `db:"state_before"`
	StateAfter  string    `db:"state_after"`
	Events      string    `db:"events"`
	Outcome     string    `db:"outcome"`
	ResolvedAt  time.Time `db:"resolved_at"`
}

// SaveTurn inserts a resolved turn, assigning its ID and timestamp.
func (s *Store) SaveTurn(ctx context.Context, t *model.Turn) error {
	t.ID = uuid.NewString()
	t.ResolvedAt = time.Now().UTC()
	_, err := s.conn.NamedExecContext(ctx,
		`INSERT INTO turns (id, session_id, run_id, number, state_before, state_after, events, outcome, resolved_at)
		 VALUES (:id, :session_id, :run_id, :number, :state_before, :state_after, :events, :outcome, :resolved_at)`,
		turnRow{
			ID:          t.ID,
			SessionID:   t.SessionID,
			RunID:       t.RunID,
			Number:      t.Number,
			StateBefore: string(t.StateBefore),
			StateAfter:  string(t.StateAfter),
			Events:      string(t.Events),
			Outcome:     t.Outcome,
			ResolvedAt:  t.ResolvedAt,
		})
	if err != nil {
		return fmt.Errorf("insert turn %d: %w", t.Number, err)
	}
	return nil
}

// ListTurns returns a session's turns in play order.
func (s *Store) ListTurns(ctx context.Context, sessionID string) ([]model.Turn, error) {
	var rows []turnRow
	err := s.conn.SelectContext(ctx, &rows,
		`SELECT id, session_id, run_id, number, state_before, state_after, events, outcome, resolved_at
		 FROM turns WHERE session_id = ? ORDER BY number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	turns := make([]model.Turn, len(rows))
	for i, r := range rows {
		turns[i] = model.Turn{
			ID:          r.ID,
			SessionID:   r.SessionID,
			RunID:       r.RunID,
			Number:      r.Number,
			StateBefore: []byte(r.StateBefore),
			StateAfter:  []byte(r.StateAfter),
			Outcome:     r.Outcome,
			ResolvedAt:  r.ResolvedAt,
		}
		if r.Events != "" {
			turns[i].Events = []byte(r.Events)
		}
	}
	return turns, nil
}

// SaveMeta stores a key/value pair about the skirmish (seed, outcome).
func (s *Store) SaveMeta(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO skirmish_meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// GetMeta retrieves a metadata value, or "" if unset.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.GetContext(ctx, &value, "SELECT value FROM skirmish_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}
