package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/freeeve/enclaves/pkg/conflict"
)

// ErrInvalidSetup is returned when a posted world cannot be played.
var ErrInvalidSetup = errors.New("invalid session setup")

// Setup is the generated world a client posts to start a session. It is kept
// as the session's initial snapshot so resets can restore it.
type Setup struct {
	Name         string               `json:"name"`
	Territories  []conflict.Territory `json:"territories"`
	Routes       []conflict.Route     `json:"routes"`
	Map          *conflict.WorldMap   `json:"map,omitempty"`
	Sides        conflict.Sides       `json:"sides,omitzero"`
	Difficulty   string               `json:"difficulty,omitempty"`
	TurnDuration string               `json:"turn_duration,omitempty"`
}

// Validate checks that ids are unique and positive, owners are known, and
// routes join existing territories.
func (s Setup) Validate() error {
	if len(s.Territories) == 0 {
		return fmt.Errorf("%w: no territories", ErrInvalidSetup)
	}
	ids := make(map[int]bool, len(s.Territories))
	for _, t := range s.Territories {
		switch {
		case t.ID <= 0:
			return fmt.Errorf("%w: territory id %d must be positive", ErrInvalidSetup, t.ID)
		case ids[t.ID]:
			return fmt.Errorf("%w: duplicate territory %d", ErrInvalidSetup, t.ID)
		case t.Owner < conflict.Neutral || t.Owner > conflict.PlayerTwo:
			return fmt.Errorf("%w: territory %d has unknown owner %d", ErrInvalidSetup, t.ID, t.Owner)
		case t.Forces < 0:
			return fmt.Errorf("%w: territory %d has negative forces", ErrInvalidSetup, t.ID)
		}
		ids[t.ID] = true
	}
	for _, r := range s.Routes {
		if !ids[r.A] || !ids[r.B] || r.A == r.B {
			return fmt.Errorf("%w: route %d-%d", ErrInvalidSetup, r.A, r.B)
		}
	}
	if s.TurnDuration != "" {
		if d, err := time.ParseDuration(s.TurnDuration); err != nil || d <= 0 {
			return fmt.Errorf("%w: turn duration %q", ErrInvalidSetup, s.TurnDuration)
		}
	}
	return nil
}

// LiveState is the position of an active session between turns, kept in the
// cache under the session id.
type LiveState struct {
	RunID       string                 `json:"runId"`
	Turn        int                    `json:"turn"`
	Territories []conflict.Territory   `json:"territories"`
	Routes      []conflict.Route       `json:"routes"`
	Map         *conflict.WorldMap     `json:"map,omitempty"`
	Markers     []conflict.EventMarker `json:"eventMarkers,omitempty"`
	Sides       conflict.Sides         `json:"sides,omitzero"`
	Difficulty  string                 `json:"difficulty,omitempty"`
	Outcome     conflict.Outcome       `json:"outcome"`
	Deadline    time.Time              `json:"deadline"`
}

// initialState starts a run from the setup snapshot.
func initialState(setup Setup, runID string, deadline time.Time) *LiveState {
	return &LiveState{
		RunID:       runID,
		Turn:        1,
		Territories: setup.Territories,
		Routes:      setup.Routes,
		Map:         setup.Map,
		Sides:       setup.Sides,
		Difficulty:  setup.Difficulty,
		Outcome:     conflict.OutcomeOngoing,
		Deadline:    deadline,
	}
}

// advance builds the next state from a resolved turn. The map, sides and
// difficulty never change during a run.
func (s *LiveState) advance(res *conflict.Result, deadline time.Time) *LiveState {
	return &LiveState{
		RunID:       s.RunID,
		Turn:        res.Turn,
		Territories: res.Territories,
		Routes:      res.Routes,
		Map:         s.Map,
		Markers:     res.Markers,
		Sides:       s.Sides,
		Difficulty:  s.Difficulty,
		Outcome:     res.Outcome,
		Deadline:    deadline,
	}
}

func decodeState(data json.RawMessage) (*LiveState, error) {
	var st LiveState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &st, nil
}

func decodeOrders(data json.RawMessage) (conflict.Orders, error) {
	orders := conflict.Orders{}
	if len(data) == 0 {
		return orders, nil
	}
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, fmt.Errorf("unmarshal orders: %w", err)
	}
	return orders, nil
}

// sessionDuration returns the session's turn duration, or fallback when it
// is unset or unparseable.
func sessionDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
