package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/enclaves/internal/model"
	"github.com/freeeve/enclaves/internal/repository"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrNotYourSession   = errors.New("you do not own this session")
	ErrSessionNotActive = errors.New("session is not active")
)

// SessionService handles session lifecycle operations.
type SessionService struct {
	sessions    repository.SessionRepository
	turns       repository.TurnRepository
	cache       repository.SessionCache
	turnSvc     *TurnService
	broadcaster Broadcaster
}

// NewSessionService creates a SessionService.
func NewSessionService(
	sessions repository.SessionRepository,
	turns repository.TurnRepository,
	cache repository.SessionCache,
	turnSvc *TurnService,
	broadcaster Broadcaster,
) *SessionService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &SessionService{
		sessions:    sessions,
		turns:       turns,
		cache:       cache,
		turnSvc:     turnSvc,
		broadcaster: broadcaster,
	}
}

// CreateSession persists the posted world as the session's initial snapshot
// and starts its first run.
func (s *SessionService) CreateSession(ctx context.Context, userID string, setup Setup) (*model.Session, error) {
	if err := setup.Validate(); err != nil {
		return nil, err
	}
	dur := sessionDuration(setup.TurnDuration, s.turnSvc.turnDuration)
	setup.TurnDuration = dur.String()
	if setup.Name == "" {
		setup.Name = "Skirmish"
	}

	setupJSON, err := json.Marshal(setup)
	if err != nil {
		return nil, fmt.Errorf("marshal setup: %w", err)
	}
	session, err := s.sessions.Create(ctx, userID, setup.Name, setup.TurnDuration, uuid.NewString(), setupJSON)
	if err != nil {
		return nil, err
	}

	if err := s.startRun(ctx, session.ID, setup, session.RunID, dur); err != nil {
		return nil, err
	}
	log.Info().Str("sessionId", session.ID).Str("userId", userID).
		Int("territories", len(setup.Territories)).Str("difficulty", setup.Difficulty).
		Msg("Session created")
	return session, nil
}

// startRun writes a fresh live state for the run, plans the AI's first
// orders and arms the turn timer.
func (s *SessionService) startRun(ctx context.Context, sessionID string, setup Setup, runID string, dur time.Duration) error {
	deadline := time.Now().Add(dur)
	st := initialState(setup, runID, deadline)
	if err := s.cache.ClearOrders(ctx, sessionID); err != nil {
		return fmt.Errorf("clear orders: %w", err)
	}
	if err := s.turnSvc.storeState(ctx, sessionID, st); err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	if err := s.turnSvc.PlanAI(ctx, sessionID, st); err != nil {
		return err
	}
	if err := s.cache.SetTimer(ctx, sessionID, deadline); err != nil {
		return fmt.Errorf("set timer: %w", err)
	}
	return nil
}

// ResetSession restarts the session from its initial snapshot under a new run
// id. A turn still in flight for the old run is discarded when it returns.
func (s *SessionService) ResetSession(ctx context.Context, sessionID, userID string) (*LiveState, error) {
	session, err := s.owned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	var setup Setup
	if err := json.Unmarshal(session.Setup, &setup); err != nil {
		return nil, fmt.Errorf("unmarshal setup: %w", err)
	}

	mu := s.turnSvc.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	runID := uuid.NewString()
	if err := s.sessions.SetRun(ctx, sessionID, runID); err != nil {
		return nil, err
	}
	if err := s.startRun(ctx, sessionID, setup, runID, sessionDuration(session.TurnDuration, s.turnSvc.turnDuration)); err != nil {
		return nil, err
	}

	log.Info().Str("sessionId", sessionID).Str("runId", runID).Str("previousRun", session.RunID).Msg("Session reset")
	s.broadcaster.BroadcastSessionEvent(sessionID, "session_reset", map[string]any{"run_id": runID})
	return s.liveState(ctx, sessionID)
}

// ExitSession abandons an active session.
func (s *SessionService) ExitSession(ctx context.Context, sessionID, userID string) error {
	session, err := s.owned(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if !session.Active() {
		return ErrSessionNotActive
	}

	mu := s.turnSvc.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	log.Info().Str("sessionId", sessionID).Msg("Session abandoned")
	return s.turnSvc.finish(ctx, sessionID, model.StatusAbandoned, "")
}

// GetState returns the live state of an active session, or the final state
// of a finished one.
func (s *SessionService) GetState(ctx context.Context, sessionID, userID string) (*LiveState, error) {
	session, err := s.owned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Active() {
		return s.liveState(ctx, sessionID)
	}

	turns, err := s.turns.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(turns) == 0 {
		return nil, ErrSessionNotActive
	}
	return decodeState(turns[len(turns)-1].StateAfter)
}

// GetSession returns a session the user owns.
func (s *SessionService) GetSession(ctx context.Context, sessionID, userID string) (*model.Session, error) {
	return s.owned(ctx, sessionID, userID)
}

// ListSessions returns the user's sessions.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]model.Session, error) {
	return s.sessions.ListByUser(ctx, userID)
}

// History returns the resolved turns of the session's current run.
func (s *SessionService) History(ctx context.Context, sessionID, userID string) ([]model.Turn, error) {
	session, err := s.owned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	turns, err := s.turns.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var current []model.Turn
	for _, t := range turns {
		if t.RunID == session.RunID {
			current = append(current, t)
		}
	}
	return current, nil
}

// RecoverActiveSessions restores the timers of active sessions after a
// restart. Sessions whose live state was lost are restarted from their
// latest recorded turn, or from setup when none was recorded.
func (s *SessionService) RecoverActiveSessions(ctx context.Context) error {
	sessions, err := s.sessions.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active sessions: %w", err)
	}
	if len(sessions) == 0 {
		log.Info().Msg("No active sessions to recover")
		return nil
	}
	log.Info().Int("count", len(sessions)).Msg("Recovering active sessions after restart")

	for _, session := range sessions {
		if err := s.recover(ctx, session); err != nil {
			log.Error().Err(err).Str("sessionId", session.ID).Msg("Failed to recover session")
		}
	}
	return nil
}

func (s *SessionService) recover(ctx context.Context, session model.Session) error {
	data, err := s.cache.GetState(ctx, session.ID)
	if err != nil {
		return err
	}
	if data != nil {
		st, err := decodeState(data)
		if err != nil {
			return err
		}
		return s.cache.SetTimer(ctx, session.ID, st.Deadline)
	}

	var setup Setup
	if err := json.Unmarshal(session.Setup, &setup); err != nil {
		return fmt.Errorf("unmarshal setup: %w", err)
	}
	dur := sessionDuration(session.TurnDuration, s.turnSvc.turnDuration)
	turns, err := s.turns.ListTurns(ctx, session.ID)
	if err != nil {
		return err
	}
	var last *model.Turn
	for i := range turns {
		if turns[i].RunID == session.RunID {
			last = &turns[i]
		}
	}
	if last == nil {
		return s.startRun(ctx, session.ID, setup, session.RunID, dur)
	}

	st, err := decodeState(last.StateAfter)
	if err != nil {
		return err
	}
	st.Deadline = time.Now().Add(dur)
	if err := s.turnSvc.storeState(ctx, session.ID, st); err != nil {
		return err
	}
	if err := s.turnSvc.PlanAI(ctx, session.ID, st); err != nil {
		return err
	}
	log.Info().Str("sessionId", session.ID).Int("turn", st.Turn).Msg("Restored session from history")
	return s.cache.SetTimer(ctx, session.ID, st.Deadline)
}

func (s *SessionService) owned(ctx context.Context, sessionID, userID string) (*model.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.UserID != userID {
		return nil, ErrNotYourSession
	}
	return session, nil
}

func (s *SessionService) liveState(ctx context.Context, sessionID string) (*LiveState, error) {
	data, err := s.cache.GetState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrSessionNotActive
	}
	return decodeState(data)
}
