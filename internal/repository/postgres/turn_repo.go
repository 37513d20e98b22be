package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freeeve/enclaves/internal/model"
)

// TurnRepo stores resolved turns.
type TurnRepo struct {
	db *sql.DB
}

// NewTurnRepo creates a TurnRepo.
func NewTurnRepo(db *sql.DB) *TurnRepo {
	return &TurnRepo{db: db}
}

// SaveTurn inserts a resolved turn and fills in its ID and timestamp.
func (r *TurnRepo) SaveTurn(ctx context.Context, t *model.Turn) error {
	var events []byte
	if len(t.Events) > 0 {
		events = t.Events
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO turns (session_id, run_id, number, state_before, state_after, events, outcome)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, resolved_at`,
		t.SessionID, t.RunID, t.Number, []byte(t.StateBefore), []byte(t.StateAfter), events, t.Outcome,
	).Scan(&t.ID, &t.ResolvedAt)
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	return nil
}

// ListTurns returns a session's turns in play order.
func (r *TurnRepo) ListTurns(ctx context.Context, sessionID string) ([]model.Turn, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, run_id, number, state_before, state_after, events, outcome, resolved_at
		 FROM turns WHERE session_id = $1 ORDER BY resolved_at, number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var t model.Turn
		var before, after, events []byte
		if err := rows.Scan(&t.ID, &t.SessionID, &t.RunID, &t.Number, &before, &after, &events, &t.Outcome, &t.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.StateBefore, t.StateAfter, t.Events = before, after, events
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

