package model

import (
	"encoding/json"
	"time"
)

// Session statuses.
const (
	StatusActive    = "active"
	StatusFinished  = "finished"
	StatusAbandoned = "abandoned"
)

// Session is one player-versus-AI game.
type Session struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	Status       string `json:"status"` // active, finished, abandoned
	Outcome      string `json:"outcome,omitempty"`
	TurnDuration string `json:"turn_duration"`
	// RunID changes on every reset; results of an older run are stale.
	RunID      string          `json:"run_id"`
	Setup      json.RawMessage `json:"setup,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Active reports whether turns are still being played.
func (s *Session) Active() bool { return s.Status == StatusActive }

// Turn is one resolved turn in a session's history.
type Turn struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	RunID       string          `json:"run_id"`
	Number      int             `json:"number"`
	StateBefore json.RawMessage `json:"state_before"`
	StateAfter  json.RawMessage `json:"state_after"`
	Events      json.RawMessage `json:"events,omitempty"`
	Outcome     string          `json:"outcome"`
	ResolvedAt  time.Time       `json:"resolved_at"`
}
