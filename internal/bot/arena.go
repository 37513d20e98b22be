package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/enclaves/internal/model"
	"github.com/freeeve/enclaves/internal/repository"
	"github.com/freeeve/enclaves/pkg/conflict"
)

// Dispatcher hands encoded requests to a resolution worker. Implemented by
// worker.Worker.
type Dispatcher interface {
	Submit(ctx context.Context, req []byte) error
	Responses() <-chan []byte
}

// ArenaConfig configures a single bot-vs-bot skirmish.
type ArenaConfig struct {
	Name         string
	Width        int    // grid columns
	Height       int    // grid rows
	PlayerOne    string // difficulty for each side
	PlayerTwo    string
	MaxTurns     int     // cap before the game is called a draw
	Seed         int64   // 0 = random
	HazardChance float64 // per-turn chance of a neutral hazard
	Engine       conflict.Config
}

// ArenaResult describes the outcome of a completed skirmish.
type ArenaResult struct {
	SessionID string                 `json:"session_id"`
	Name      string                 `json:"name"`
	Outcome   conflict.Outcome       `json:"outcome"`
	TurnLimit bool                   `json:"turn_limit,omitempty"`
	Turns     int                    `json:"turns"`
	Owned     map[conflict.Owner]int `json:"owned"`
	Events    int                    `json:"events"`
	Hazards   int                    `json:"hazards"`
}

// arenaState is what gets recorded before and after each turn.
type arenaState struct {
	Turn        int                    `json:"turn"`
	Territories []conflict.Territory   `json:"territories"`
	Routes      []conflict.Route       `json:"routes"`
	Markers     []conflict.EventMarker `json:"eventMarkers,omitempty"`
}

// GenerateGrid lays out width*height territories on a grid joined to their
// orthogonal neighbours, one map cell each. PlayerOne starts in the first
// corner and PlayerTwo in the opposite one; every other territory is neutral
// with a small random garrison.
func GenerateGrid(width, height int, rng *rand.Rand) ([]conflict.Territory, []conflict.Route, *conflict.WorldMap) {
	id := func(x, y int) int { return y*width + x + 1 }
	var (
		territories []conflict.Territory
		routes      []conflict.Route
		wm          = &conflict.WorldMap{}
	)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pos := conflict.Vec3{X: float64(x), Z: float64(y)}
			t := conflict.Territory{ID: id(x, y), Owner: conflict.Neutral, Forces: float64(2 + rng.Intn(7)), Position: pos}
			cell := conflict.Cell{ID: t.ID, Territory: t.ID, Position: pos}
			if x > 0 {
				cell.Neighbors = append(cell.Neighbors, id(x-1, y))
			}
			if x < width-1 {
				cell.Neighbors = append(cell.Neighbors, id(x+1, y))
				routes = append(routes, conflict.Route{A: t.ID, B: id(x+1, y)})
			}
			if y > 0 {
				cell.Neighbors = append(cell.Neighbors, id(x, y-1))
			}
			if y < height-1 {
				cell.Neighbors = append(cell.Neighbors, id(x, y+1))
				routes = append(routes, conflict.Route{A: t.ID, B: id(x, y+1)})
			}
			territories = append(territories, t)
			wm.Cells = append(wm.Cells, cell)
		}
	}
	if len(territories) > 1 {
		territories[0].Owner, territories[0].Forces = conflict.PlayerOne, 20
		last := len(territories) - 1
		territories[last].Owner, territories[last].Forces = conflict.PlayerTwo, 20
	}
	return territories, routes, wm
}

// RunGame plays a skirmish to completion, sending every turn through the
// dispatcher and recording it in turns. Pass nil turns for dry-run mode.
// Responses for other runs are ignored, so the dispatcher must not be shared
// between concurrent games.
func RunGame(ctx context.Context, cfg ArenaConfig, d Dispatcher, turns repository.TurnRepository) (*ArenaResult, error) {
	if cfg.Width < 2 || cfg.Height < 1 {
		return nil, fmt.Errorf("grid %dx%d too small", cfg.Width, cfg.Height)
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 100
	}
	rng := conflict.NewRand(cfg.Seed)
	p1 := StrategyForDifficulty(cfg.PlayerOne)
	p2 := StrategyForDifficulty(cfg.PlayerTwo)

	territories, routes, wm := GenerateGrid(cfg.Width, cfg.Height, rng)
	st := arenaState{Turn: 1, Territories: territories, Routes: routes}
	result := &ArenaResult{
		SessionID: uuid.NewString(),
		Name:      cfg.Name,
		Outcome:   conflict.OutcomeOngoing,
	}
	l := log.With().Str("sessionId", result.SessionID).Str("name", cfg.Name).Logger()
	l.Info().Str("playerOne", p1.Name()).Str("playerTwo", p2.Name()).
		Int("territories", len(territories)).Msg("Skirmish started")

	for result.Turns < cfg.MaxTurns {
		board := NewBoard(st.Territories, st.Routes, cfg.Engine, conflict.Sides{})
		engine := cfg.Engine
		req := conflict.Request{
			SessionID:    result.SessionID,
			Turn:         st.Turn,
			Territories:  st.Territories,
			PlayerOrders: p1.GenerateOrders(board, conflict.PlayerOne),
			AIOrders:     p2.GenerateOrders(board, conflict.PlayerTwo),
			Routes:       st.Routes,
			Map:          wm,
			Markers:      st.Markers,
			Config:       &engine,
			Seed:         rng.Int63(),
		}
		res, err := resolveOne(ctx, d, &req)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", st.Turn, err)
		}

		next := arenaState{Turn: res.Turn, Territories: res.Territories, Routes: res.Routes, Markers: res.Markers}
		if !res.Outcome.Terminal() && cfg.HazardChance > 0 && rng.Float64() < cfg.HazardChance {
			if m, err := conflict.SpawnHazard(cfg.Engine.Profiles, wm, rng); err == nil {
				next.Markers = append(next.Markers, m)
				result.Hazards++
			}
		}
		if turns != nil {
			if err := record(ctx, turns, result.SessionID, st, next, res); err != nil {
				return nil, err
			}
		}

		result.Turns++
		result.Events += len(res.Events)
		result.Owned = res.Owned
		result.Outcome = res.Outcome
		st = next
		if res.Outcome.Terminal() {
			break
		}
	}

	if !result.Outcome.Terminal() {
		result.Outcome = conflict.OutcomeDraw
		result.TurnLimit = true
	}
	l.Info().Str("outcome", string(result.Outcome)).Int("turns", result.Turns).Msg("Skirmish finished")
	return result, nil
}

// resolveOne submits a request and waits for its response.
func resolveOne(ctx context.Context, d Dispatcher, req *conflict.Request) (*conflict.Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if err := d.Submit(ctx, payload); err != nil {
		return nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case data, ok := <-d.Responses():
			if !ok {
				return nil, errors.New("worker stopped")
			}
			resp, err := conflict.DecodeResponse(data)
			if err != nil {
				return nil, err
			}
			if resp.SessionID != req.SessionID {
				log.Debug().Str("runId", resp.SessionID).Msg("Ignoring response for another run")
				continue
			}
			if resp.Error != "" {
				return nil, fmt.Errorf("resolution failed: %s", resp.Error)
			}
			return resp.Result, nil
		}
	}
}

func record(ctx context.Context, turns repository.TurnRepository, sessionID string, before, after arenaState, res *conflict.Result) error {
	b, err := json.Marshal(before)
	if err != nil {
		return fmt.Errorf("marshal state before: %w", err)
	}
	a, err := json.Marshal(after)
	if err != nil {
		return fmt.Errorf("marshal state after: %w", err)
	}
	events, err := json.Marshal(res.Events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	return turns.SaveTurn(ctx, &model.Turn{
		SessionID:   sessionID,
		RunID:       sessionID,
		Number:      before.Turn,
		StateBefore: b,
		StateAfter:  a,
		Events:      events,
		Outcome:     string(res.Outcome),
	})
}
