package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/freeeve/enclaves/pkg/conflict"
)

type testEnv struct {
	sessions    *mockSessionRepo
	turns       *mockTurnRepo
	cache       *mockCache
	broadcaster *mockBroadcaster
	dispatcher  *mockDispatcher

	turnSvc    *TurnService
	sessionSvc *SessionService
	orderSvc   *OrderService
}

func newTestEnv(opts ...TurnOption) *testEnv {
	e := &testEnv{
		sessions:    newMockSessionRepo(),
		turns:       &mockTurnRepo{},
		cache:       newMockCache(),
		broadcaster: &mockBroadcaster{},
		dispatcher:  newMockDispatcher(),
	}
	engine := conflict.DefaultConfig()
	e.turnSvc = NewTurnService(e.sessions, e.turns, e.cache, e.broadcaster, e.dispatcher, engine, 30*time.Second, opts...)
	e.sessionSvc = NewSessionService(e.sessions, e.turns, e.cache, e.turnSvc, e.broadcaster)
	e.orderSvc = NewOrderService(e.sessions, e.cache, engine, WithSessionLocks(e.turnSvc.Locks()))
	return e
}

// lineSetup is three territories in a row: the player at 1, the AI at 2 and 3.
func lineSetup() Setup {
	return Setup{
		Name: "line",
		Territories: []conflict.Territory{
			{ID: 1, Owner: conflict.PlayerOne, Forces: 40},
			{ID: 2, Owner: conflict.PlayerTwo, Forces: 2},
			{ID: 3, Owner: conflict.PlayerTwo, Forces: 20},
		},
		Routes:     []conflict.Route{{A: 1, B: 2}, {A: 2, B: 3}},
		Difficulty: "hold",
	}
}

func (e *testEnv) create(t *testing.T, setup Setup) string {
	t.Helper()
	s, err := e.sessionSvc.CreateSession(context.Background(), "user-1", setup)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s.ID
}

func (e *testEnv) state(t *testing.T, sessionID string) *LiveState {
	t.Helper()
	data, _ := e.cache.GetState(context.Background(), sessionID)
	if data == nil {
		return nil
	}
	st, err := decodeState(data)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func (e *testEnv) orders(t *testing.T, sessionID, side string) conflict.Orders {
	t.Helper()
	data, _ := e.cache.GetOrders(context.Background(), sessionID, side)
	orders, err := decodeOrders(data)
	if err != nil {
		t.Fatal(err)
	}
	return orders
}

// deliver resolves the last submitted request in-process and feeds the
// result back as the worker would.
func (e *testEnv) deliver(t *testing.T) {
	t.Helper()
	var req conflict.Request
	if err := json.Unmarshal(e.dispatcher.last(), &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	res, err := conflict.Resolve(&req, conflict.NewRand(1))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	data, err := json.Marshal(conflict.Response{Result: res})
	if err != nil {
		t.Fatal(err)
	}
	e.turnSvc.HandleResponse(context.Background(), data)
}

func territory(st *LiveState, id int) conflict.Territory {
	for _, t := range st.Territories {
		if t.ID == id {
			return t
		}
	}
	return conflict.Territory{}
}
