package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/freeeve/enclaves/internal/model"
)

const sessionColumns = `id, user_id, name, status, outcome, turn_duration, run_id, setup, created_at, finished_at`

// SessionRepo handles session database operations.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a SessionRepo.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var s model.Session
	var setup []byte
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.Status, &s.Outcome, &s.TurnDuration, &s.RunID, &setup, &s.CreatedAt, &s.FinishedAt)
	if err != nil {
		return nil, err
	}
	s.Setup = json.RawMessage(setup)
	return &s, nil
}

// Create inserts a new active session.
func (r *SessionRepo) Create(ctx context.Context, userID, name, turnDuration, runID string, setup json.RawMessage) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`INSERT INTO sessions (user_id, name, turn_duration, run_id, setup)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+sessionColumns,
		userID, name, turnDuration, runID, []byte(setup),
	))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// FindByID returns a session by ID, or nil if it does not exist.
func (r *SessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return s, nil
}

// ListByUser returns a user's sessions, most recent first.
func (r *SessionRepo) ListByUser(ctx context.Context, userID string) ([]model.Session, error) {
	return r.list(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC LIMIT 50`, userID)
}

// ListActive returns every session still being played. Used to restore
// timers on startup.
func (r *SessionRepo) ListActive(ctx context.Context) ([]model.Session, error) {
	return r.list(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE status = 'active' ORDER BY created_at`)
}

func (r *SessionRepo) list(ctx context.Context, query string, args ...any) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// SetRun starts a new run of the session. Finished sessions become active
// again.
func (r *SessionRepo) SetRun(ctx context.Context, id, runID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET run_id = $2, status = 'active', outcome = '', finished_at = NULL WHERE id = $1`,
		id, runID)
	if err != nil {
		return fmt.Errorf("set run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set run: session %s not found", id)
	}
	return nil
}

// SetFinished marks a session as finished or abandoned.
func (r *SessionRepo) SetFinished(ctx context.Context, id, status, outcome string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = $2, outcome = $3, finished_at = now() WHERE id = $1`,
		id, status, outcome)
	if err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	return nil
}
