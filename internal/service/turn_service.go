package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/enclaves/internal/bot"
	"github.com/freeeve/enclaves/internal/logger"
	"github.com/freeeve/enclaves/internal/model"
	"github.com/freeeve/enclaves/internal/repository"
	"github.com/freeeve/enclaves/pkg/conflict"
)

// Dispatcher hands encoded requests to the resolution worker and delivers its
// encoded responses. Implemented by worker.Worker.
type Dispatcher interface {
	Submit(ctx context.Context, req []byte) error
	Responses() <-chan []byte
}

// pendingTurn remembers what was sent for a run until its response arrives.
type pendingTurn struct {
	sessionID string
	turn      int
	before    json.RawMessage
	state     *LiveState
	// sent is the player order set the worker received. Anything in the cache
	// that differs from it was edited while the turn was in flight.
	sent conflict.Orders
}

// TurnService dispatches turns to the worker and applies what comes back.
type TurnService struct {
	sessions    repository.SessionRepository
	turns       repository.TurnRepository
	cache       repository.SessionCache
	broadcaster Broadcaster
	worker      Dispatcher

	engine       conflict.Config
	turnDuration time.Duration
	hazardChance float64
	rng          *rand.Rand
	rngMu        sync.Mutex

	// inflight holds one *atomic.Bool per session. A resolve request that finds
	// it set is skipped, never queued.
	inflight sync.Map
	// pending maps run id to the turn awaiting a response.
	pending sync.Map

	locks *Locks
}

// TurnOption configures a TurnService.
type TurnOption func(*TurnService)

// WithHazardChance sets the per-turn chance of spawning a neutral event marker.
func WithHazardChance(p float64) TurnOption {
	return func(s *TurnService) {
		s.hazardChance = p
	}
}

// WithRandSource pins the random source used for hazards.
func WithRandSource(rng *rand.Rand) TurnOption {
	return func(s *TurnService) {
		s.rng = rng
	}
}

// WithLocks shares a session lock set with other services.
func WithLocks(l *Locks) TurnOption {
	return func(s *TurnService) {
		s.locks = l
	}
}

// NewTurnService creates a TurnService.
func NewTurnService(
	sessions repository.SessionRepository,
	turns repository.TurnRepository,
	cache repository.SessionCache,
	broadcaster Broadcaster,
	worker Dispatcher,
	engine conflict.Config,
	turnDuration time.Duration,
	opts ...TurnOption,
) *TurnService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	s := &TurnService{
		sessions:     sessions,
		turns:        turns,
		cache:        cache,
		broadcaster:  broadcaster,
		worker:       worker,
		engine:       engine,
		turnDuration: turnDuration,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		locks:        NewLocks(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *TurnService) flag(sessionID string) *atomic.Bool {
	v, _ := s.inflight.LoadOrStore(sessionID, &atomic.Bool{})
	return v.(*atomic.Bool)
}

func (s *TurnService) sessionLock(sessionID string) *sync.Mutex {
	return s.locks.For(sessionID)
}

// Locks returns the per-session locks, for services that edit the same
// session data.
func (s *TurnService) Locks() *Locks { return s.locks }

// InFlight reports whether a turn for the session is awaiting its result.
func (s *TurnService) InFlight(sessionID string) bool {
	return s.flag(sessionID).Load()
}

// ResolveTurn sends the session's current turn to the worker. It returns
// false without error when a turn is already in flight.
func (s *TurnService) ResolveTurn(ctx context.Context, sessionID string) (bool, error) {
	flag := s.flag(sessionID)
	if !flag.CompareAndSwap(false, true) {
		l := logger.ForSession(ctx, sessionID)
		l.Debug().Msg("Turn already in flight, skipping")
		return false, nil
	}
	if err := s.dispatch(ctx, sessionID); err != nil {
		flag.Store(false)
		return false, err
	}
	return true, nil
}

// ResolveDue resolves the session's turn if its deadline has passed.
func (s *TurnService) ResolveDue(ctx context.Context, sessionID string) error {
	data, err := s.cache.GetState(ctx, sessionID)
	if err != nil || data == nil {
		return err
	}
	st, err := decodeState(data)
	if err != nil {
		return err
	}
	if time.Now().Before(st.Deadline) {
		log.Debug().Str("sessionId", sessionID).Time("deadline", st.Deadline).Msg("Turn deadline not yet reached, skipping")
		return nil
	}
	_, err = s.ResolveTurn(ctx, sessionID)
	return err
}

func (s *TurnService) dispatch(ctx context.Context, sessionID string) error {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("find session: %w", err)
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if !session.Active() {
		return ErrSessionNotActive
	}

	data, err := s.cache.GetState(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get state: %w", err)
	}
	if data == nil {
		return ErrSessionNotActive
	}
	st, err := decodeState(data)
	if err != nil {
		return err
	}
	player, err := s.loadOrders(ctx, sessionID, repository.SidePlayer)
	if err != nil {
		return err
	}
	ai, err := s.loadOrders(ctx, sessionID, repository.SideAI)
	if err != nil {
		return err
	}

	engine := s.engine
	req := conflict.Request{
		SessionID:    st.RunID,
		Turn:         st.Turn,
		Territories:  st.Territories,
		PlayerOrders: player,
		AIOrders:     ai,
		Routes:       st.Routes,
		Map:          st.Map,
		Markers:      st.Markers,
		Config:       &engine,
		Sides:        st.Sides,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	s.pending.Store(st.RunID, pendingTurn{sessionID: sessionID, turn: st.Turn, before: data, state: st, sent: player})
	if err := s.cache.ClearTimer(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("Failed to clear timer before dispatch")
	}
	if err := s.worker.Submit(ctx, payload); err != nil {
		s.pending.Delete(st.RunID)
		return fmt.Errorf("submit turn: %w", err)
	}

	l := logger.ForSession(ctx, sessionID)
	l.Info().
		Str("runId", st.RunID).
		Int("turn", st.Turn).
		Int("playerOrders", len(player)).
		Int("aiOrders", len(ai)).
		Msg("Turn dispatched")
	return nil
}

func (s *TurnService) loadOrders(ctx context.Context, sessionID, side string) (conflict.Orders, error) {
	data, err := s.cache.GetOrders(ctx, sessionID, side)
	if err != nil {
		return nil, fmt.Errorf("get %s orders: %w", side, err)
	}
	return decodeOrders(data)
}

// Run consumes worker responses until ctx is done or the worker stops.
func (s *TurnService) Run(ctx context.Context) {
	log.Info().Msg("Turn result consumer started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Turn result consumer stopped")
			return
		case data, ok := <-s.worker.Responses():
			if !ok {
				log.Info().Msg("Worker closed, turn result consumer stopped")
				return
			}
			s.HandleResponse(ctx, data)
		}
	}
}

// HandleResponse applies one encoded worker response.
func (s *TurnService) HandleResponse(ctx context.Context, data []byte) {
	resp, err := conflict.DecodeResponse(data)
	if err != nil {
		log.Error().Err(err).Msg("Undecodable worker response")
		return
	}
	v, ok := s.pending.LoadAndDelete(resp.SessionID)
	if !ok {
		log.Debug().Str("runId", resp.SessionID).Msg("Dropping response for unknown run")
		return
	}
	p := v.(pendingTurn)
	defer s.flag(p.sessionID).Store(false)

	if resp.Error != "" {
		s.resolutionFailed(ctx, p, resp.Error)
		return
	}
	if err := s.applyResponse(ctx, p, resp.Result); err != nil {
		log.Error().Err(err).Str("sessionId", p.sessionID).Int("turn", p.turn).Msg("Failed to apply turn result")
		s.broadcaster.BroadcastSessionEvent(p.sessionID, "resolution_failed", map[string]any{
			"turn":  p.turn,
			"error": err.Error(),
		})
	}
}

// resolutionFailed leaves the state untouched and re-arms the timer so the
// turn is retried at the next deadline.
func (s *TurnService) resolutionFailed(ctx context.Context, p pendingTurn, msg string) {
	log.Error().Str("sessionId", p.sessionID).Int("turn", p.turn).Str("error", msg).Msg("Turn resolution failed")
	s.broadcaster.BroadcastSessionEvent(p.sessionID, "resolution_failed", map[string]any{
		"turn":  p.turn,
		"error": msg,
	})

	mu := s.sessionLock(p.sessionID)
	mu.Lock()
	defer mu.Unlock()
	session, err := s.sessions.FindByID(ctx, p.sessionID)
	if err != nil || session == nil || !session.Active() || session.RunID != p.state.RunID {
		return
	}
	deadline := time.Now().Add(sessionDuration(session.TurnDuration, s.turnDuration))
	st := *p.state
	st.Deadline = deadline
	if err := s.storeState(ctx, p.sessionID, &st); err != nil {
		log.Error().Err(err).Str("sessionId", p.sessionID).Msg("Failed to re-arm deadline")
		return
	}
	if err := s.cache.SetTimer(ctx, p.sessionID, deadline); err != nil {
		log.Error().Err(err).Str("sessionId", p.sessionID).Msg("Failed to re-arm timer")
	}
}

// applyResponse commits a resolved turn, unless the session has moved on to
// another run or is no longer active, in which case the result is dropped.
func (s *TurnService) applyResponse(ctx context.Context, p pendingTurn, res *conflict.Result) error {
	mu := s.sessionLock(p.sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := s.sessions.FindByID(ctx, p.sessionID)
	if err != nil {
		return fmt.Errorf("find session: %w", err)
	}
	if session == nil || !session.Active() || session.RunID != res.SessionID {
		log.Debug().Str("sessionId", p.sessionID).Str("runId", res.SessionID).Msg("Discarding stale turn result")
		return nil
	}

	dur := sessionDuration(session.TurnDuration, s.turnDuration)
	deadline := time.Now().Add(dur)
	next := p.state.advance(res, deadline)
	if !res.Outcome.Terminal() {
		s.maybeSpawnHazard(next)
	}

	stateJSON, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	eventsJSON, err := json.Marshal(res.Events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	if err := s.turns.SaveTurn(ctx, &model.Turn{
		SessionID:   p.sessionID,
		RunID:       res.SessionID,
		Number:      p.turn,
		StateBefore: p.before,
		StateAfter:  stateJSON,
		Events:      eventsJSON,
		Outcome:     string(res.Outcome),
	}); err != nil {
		return fmt.Errorf("save turn: %w", err)
	}

	log.Info().
		Str("sessionId", p.sessionID).
		Int("turn", p.turn).
		Str("outcome", string(res.Outcome)).
		Int("playerOwned", res.Owned[conflict.PlayerOne]).
		Int("aiOwned", res.Owned[conflict.PlayerTwo]).
		Int("events", len(res.Events)).
		Msg("Turn resolved")

	s.broadcaster.BroadcastSessionEvent(p.sessionID, "turn_resolved", map[string]any{
		"turn":     p.turn,
		"next":     next.Turn,
		"outcome":  res.Outcome,
		"owned":    res.Owned,
		"deadline": deadline.Format(time.RFC3339),
	})
	if len(res.Events) > 0 {
		s.broadcaster.BroadcastSessionEvent(p.sessionID, "turn_events", res.Events)
	}
	if len(res.Cues) > 0 {
		s.broadcaster.BroadcastSessionEvent(p.sessionID, "asset_cues", res.Cues)
	}

	if res.Outcome.Terminal() {
		return s.finish(ctx, p.sessionID, model.StatusFinished, res.Outcome)
	}

	current, err := s.loadOrders(ctx, p.sessionID, repository.SidePlayer)
	if err != nil {
		return err
	}
	player := s.carryPlayerOrders(p.sent, current, res.PlayerOrders, next)
	if err := s.cache.ClearOrders(ctx, p.sessionID); err != nil {
		return fmt.Errorf("clear orders: %w", err)
	}
	if err := s.storeOrders(ctx, p.sessionID, repository.SidePlayer, player); err != nil {
		return err
	}
	if err := s.cache.SetState(ctx, p.sessionID, stateJSON); err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	if err := s.PlanAI(ctx, p.sessionID, next); err != nil {
		log.Warn().Err(err).Str("sessionId", p.sessionID).Msg("Failed to plan AI orders")
	}
	if err := s.cache.SetTimer(ctx, p.sessionID, deadline); err != nil {
		return fmt.Errorf("set timer: %w", err)
	}
	return nil
}

// carryPlayerOrders builds the player's orders for the next turn: the
// standing orders from the result, minus those cancelled while the turn was
// in flight, overlaid with those submitted meanwhile. The set is checked
// against the new board.
func (s *TurnService) carryPlayerOrders(sent, current, standing conflict.Orders, next *LiveState) conflict.Orders {
	out := make(conflict.Orders, len(standing)+len(current))
	for src, o := range standing {
		out[src] = o
	}
	for src := range sent {
		if _, ok := current[src]; !ok {
			delete(out, src)
		}
	}
	for src, o := range current {
		if prev, ok := sent[src]; ok && prev == o {
			continue
		}
		out[src] = o
	}
	ts := conflict.NewTerritories(next.Territories)
	return guardOrders(conflict.PlayerOne, out, ts, conflict.NewRouteSet(next.Routes), s.engine, next.Sides)
}

// finish ends a session and drops its live data.
func (s *TurnService) finish(ctx context.Context, sessionID, status string, outcome conflict.Outcome) error {
	if err := s.sessions.SetFinished(ctx, sessionID, status, string(outcome)); err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	s.broadcaster.BroadcastSessionEvent(sessionID, "session_ended", map[string]any{
		"status":  status,
		"outcome": outcome,
	})
	return s.cache.DeleteSessionData(ctx, sessionID)
}

// PlanAI stores the computer side's orders for the state's turn.
func (s *TurnService) PlanAI(ctx context.Context, sessionID string, st *LiveState) error {
	strategy := bot.StrategyForDifficulty(st.Difficulty)
	board := bot.NewBoard(st.Territories, st.Routes, s.engine, st.Sides)
	orders := strategy.GenerateOrders(board, conflict.PlayerTwo)
	log.Debug().Str("sessionId", sessionID).Str("strategy", strategy.Name()).Int("orders", len(orders)).Msg("AI orders planned")
	return s.storeOrders(ctx, sessionID, repository.SideAI, orders)
}

func (s *TurnService) storeOrders(ctx context.Context, sessionID, side string, orders conflict.Orders) error {
	if orders == nil {
		orders = conflict.Orders{}
	}
	data, err := json.Marshal(orders)
	if err != nil {
		return fmt.Errorf("marshal %s orders: %w", side, err)
	}
	if err := s.cache.SetOrders(ctx, sessionID, side, data); err != nil {
		return fmt.Errorf("set %s orders: %w", side, err)
	}
	return nil
}

func (s *TurnService) storeState(ctx context.Context, sessionID string, st *LiveState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return s.cache.SetState(ctx, sessionID, data)
}

// maybeSpawnHazard rolls the hazard chance and, on a hit, drops a neutral
// marker of a random profile on a random map cell.
func (s *TurnService) maybeSpawnHazard(st *LiveState) {
	if s.hazardChance <= 0 || st.Map == nil {
		return
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	if s.rng.Float64() >= s.hazardChance {
		return
	}
	m, err := conflict.SpawnHazard(s.engine.Profiles, st.Map, s.rng)
	if err != nil {
		log.Warn().Err(err).Str("runId", st.RunID).Msg("Failed to spawn hazard")
		return
	}
	st.Markers = append(st.Markers, m)
	log.Info().Str("runId", st.RunID).Str("profile", m.ProfileKey).Int("cell", m.Cell).Msg("Hazard spawned")
}
