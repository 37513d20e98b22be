package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/freeeve/enclaves/internal/model"
)

type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*model.Session)}
}

func (m *mockSessionRepo) Create(_ context.Context, userID, name, turnDuration, runID string, setup json.RawMessage) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &model.Session{
		ID:           fmt.Sprintf("session-%d", len(m.sessions)+1),
		UserID:       userID,
		Name:         name,
		Status:       model.StatusActive,
		TurnDuration: turnDuration,
		RunID:        runID,
		Setup:        setup,
		CreatedAt:    time.Now(),
	}
	m.sessions[s.ID] = s
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) ListByUser(_ context.Context, userID string) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) ListActive(_ context.Context) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Session
	for _, s := range m.sessions {
		if s.Active() {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) SetRun(_ context.Context, id, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("set run: session %s not found", id)
	}
	s.RunID, s.Status, s.Outcome, s.FinishedAt = runID, model.StatusActive, "", nil
	return nil
}

func (m *mockSessionRepo) SetFinished(_ context.Context, id, status, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		now := time.Now()
		s.Status, s.Outcome, s.FinishedAt = status, outcome, &now
	}
	return nil
}

type mockTurnRepo struct {
	mu    sync.Mutex
	turns []model.Turn
}

func (m *mockTurnRepo) SaveTurn(_ context.Context, t *model.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = fmt.Sprintf("turn-%d", len(m.turns)+1)
	t.ResolvedAt = time.Now()
	m.turns = append(m.turns, *t)
	return nil
}

func (m *mockTurnRepo) ListTurns(_ context.Context, sessionID string) ([]model.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Turn
	for _, t := range m.turns {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out, nil
}

type mockCache struct {
	mu     sync.Mutex
	state  map[string]json.RawMessage
	orders map[string]json.RawMessage // "session/side"
	timers map[string]time.Time
}

func newMockCache() *mockCache {
	return &mockCache{
		state:  make(map[string]json.RawMessage),
		orders: make(map[string]json.RawMessage),
		timers: make(map[string]time.Time),
	}
}

func (m *mockCache) SetState(_ context.Context, sessionID string, state json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[sessionID] = state
	return nil
}

func (m *mockCache) GetState(_ context.Context, sessionID string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[sessionID], nil
}

func (m *mockCache) SetOrders(_ context.Context, sessionID, side string, orders json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[sessionID+"/"+side] = orders
	return nil
}

func (m *mockCache) GetOrders(_ context.Context, sessionID, side string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[sessionID+"/"+side], nil
}

func (m *mockCache) ClearOrders(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, sessionID+"/player")
	delete(m.orders, sessionID+"/ai")
	return nil
}

func (m *mockCache) SetTimer(_ context.Context, sessionID string, deadline time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers[sessionID] = deadline
	return nil
}

func (m *mockCache) ClearTimer(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timers, sessionID)
	return nil
}

func (m *mockCache) DeleteSessionData(ctx context.Context, sessionID string) error {
	m.ClearOrders(ctx, sessionID)
	m.ClearTimer(ctx, sessionID)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, sessionID)
	return nil
}

func (m *mockCache) hasTimer(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.timers[sessionID]
	return ok
}

type broadcastEvent struct {
	sessionID string
	eventType string
	data      any
}

type mockBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (m *mockBroadcaster) BroadcastSessionEvent(sessionID, eventType string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, broadcastEvent{sessionID, eventType, data})
}

func (m *mockBroadcaster) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.eventType
	}
	return out
}

func (m *mockBroadcaster) has(eventType string) bool {
	for _, t := range m.types() {
		if t == eventType {
			return true
		}
	}
	return false
}

// mockDispatcher records submitted requests; tests deliver responses by hand.
type mockDispatcher struct {
	mu        sync.Mutex
	submitted [][]byte
	responses chan []byte
	err       error
}

func newMockDispatcher() *mockDispatcher {
	return &mockDispatcher{responses: make(chan []byte, 8)}
}

func (m *mockDispatcher) Submit(_ context.Context, req []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.submitted = append(m.submitted, req)
	return nil
}

func (m *mockDispatcher) Responses() <-chan []byte { return m.responses }

func (m *mockDispatcher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.submitted)
}

func (m *mockDispatcher) last() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitted[len(m.submitted)-1]
}
