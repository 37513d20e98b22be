package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/enclaves/internal/repository"
	"github.com/freeeve/enclaves/pkg/conflict"
)

var ErrInvalidOrder = errors.New("invalid order")

// OrderService handles the player's pending orders.
type OrderService struct {
	sessions repository.SessionRepository
	cache    repository.SessionCache
	engine   conflict.Config
	locks    *Locks
}

// OrderOption configures an OrderService.
type OrderOption func(*OrderService)

// WithSessionLocks makes order edits wait for turn results, resets and exits
// holding the same locks.
func WithSessionLocks(l *Locks) OrderOption {
	return func(s *OrderService) {
		s.locks = l
	}
}

// NewOrderService creates an OrderService.
func NewOrderService(sessions repository.SessionRepository, cache repository.SessionCache, engine conflict.Config, opts ...OrderOption) *OrderService {
	s := &OrderService{sessions: sessions, cache: cache, engine: engine, locks: NewLocks()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SubmitOrder sets the player's order for one source territory, replacing any
// earlier one, and returns the pending set after the assist guard has run.
func (s *OrderService) SubmitOrder(ctx context.Context, sessionID, userID string, src int, order conflict.Order) (conflict.Orders, error) {
	mu := s.locks.For(sessionID)
	mu.Lock()
	defer mu.Unlock()

	st, err := s.activeState(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	ts := conflict.NewTerritories(st.Territories)
	t, ok := ts[src]
	if !ok {
		return nil, fmt.Errorf("%w: unknown territory %d", ErrInvalidOrder, src)
	}
	if t.Owner != conflict.PlayerOne {
		return nil, fmt.Errorf("%w: territory %d is not yours", ErrInvalidOrder, src)
	}
	if order.Type == conflict.OrderHold && order.To == 0 {
		order.To = src
	}
	if err := conflict.ValidateOrder(src, order, ts, conflict.NewRouteSet(st.Routes)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	orders, err := s.load(ctx, sessionID, repository.SidePlayer)
	if err != nil {
		return nil, err
	}
	orders[src] = order
	orders, dropped := conflict.PruneExhaustedAssists(orders, ts, s.engine, st.Sides)
	if len(dropped) > 0 {
		log.Debug().Str("sessionId", sessionID).Ints("sources", dropped).Msg("Dropped exhausting assists")
	}
	if err := s.store(ctx, sessionID, repository.SidePlayer, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// CancelOrder removes the player's order for src.
func (s *OrderService) CancelOrder(ctx context.Context, sessionID, userID string, src int) (conflict.Orders, error) {
	mu := s.locks.For(sessionID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.activeState(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	orders, err := s.load(ctx, sessionID, repository.SidePlayer)
	if err != nil {
		return nil, err
	}
	delete(orders, src)
	if err := s.store(ctx, sessionID, repository.SidePlayer, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListOrders returns the player's pending orders.
func (s *OrderService) ListOrders(ctx context.Context, sessionID, userID string) (conflict.Orders, error) {
	if _, err := s.activeState(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	return s.load(ctx, sessionID, repository.SidePlayer)
}

// GuardPending drops pending orders of both sides that are no longer legal
// on the current board or would exhaust their source.
func (s *OrderService) GuardPending(ctx context.Context, sessionID string) error {
	mu := s.locks.For(sessionID)
	mu.Lock()
	defer mu.Unlock()

	data, err := s.cache.GetState(ctx, sessionID)
	if err != nil || data == nil {
		return err
	}
	st, err := decodeState(data)
	if err != nil {
		return err
	}
	ts := conflict.NewTerritories(st.Territories)
	routes := conflict.NewRouteSet(st.Routes)

	for _, side := range []string{repository.SidePlayer, repository.SideAI} {
		orders, err := s.load(ctx, sessionID, side)
		if err != nil {
			return err
		}
		kept := guardOrders(sideOwner(side), orders, ts, routes, s.engine, st.Sides)
		if len(kept) == len(orders) {
			continue
		}
		log.Debug().Str("sessionId", sessionID).Str("side", side).
			Int("dropped", len(orders)-len(kept)).Msg("Guard dropped pending orders")
		if err := s.store(ctx, sessionID, side, kept); err != nil {
			return err
		}
	}
	return nil
}

// guardOrders keeps the orders whose source owner still holds, that are
// legal on the board and that do not exhaust their source.
func guardOrders(owner conflict.Owner, orders conflict.Orders, ts conflict.Territories, routes *conflict.RouteSet, cfg conflict.Config, sides conflict.Sides) conflict.Orders {
	kept := conflict.Orders{}
	for src, o := range orders {
		if ts[src].Owner != owner {
			continue
		}
		if conflict.ValidateOrder(src, o, ts, routes) == nil {
			kept[src] = o
		}
	}
	kept, _ = conflict.PruneExhaustedAssists(kept, ts, cfg, sides)
	return kept
}

// Preview projects one territory under the current pending orders of both
// sides.
func (s *OrderService) Preview(ctx context.Context, sessionID, userID string, territoryID int) (conflict.Projection, error) {
	st, err := s.activeState(ctx, sessionID, userID)
	if err != nil {
		return conflict.Projection{}, err
	}
	player, err := s.load(ctx, sessionID, repository.SidePlayer)
	if err != nil {
		return conflict.Projection{}, err
	}
	ai, err := s.load(ctx, sessionID, repository.SideAI)
	if err != nil {
		return conflict.Projection{}, err
	}
	return conflict.Preview(conflict.Snapshot{
		Territories: conflict.NewTerritories(st.Territories),
		Orders:      conflict.MergeOrders(player, ai),
		Config:      s.engine,
		Sides:       st.Sides,
	}, territoryID)
}

func sideOwner(side string) conflict.Owner {
	if side == repository.SideAI {
		return conflict.PlayerTwo
	}
	return conflict.PlayerOne
}

func (s *OrderService) activeState(ctx context.Context, sessionID, userID string) (*LiveState, error) {
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
	if !session.Active() {
		return nil, ErrSessionNotActive
	}
	data, err := s.cache.GetState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrSessionNotActive
	}
	return decodeState(data)
}

func (s *OrderService) load(ctx context.Context, sessionID, side string) (conflict.Orders, error) {
	data, err := s.cache.GetOrders(ctx, sessionID, side)
	if err != nil {
		return nil, fmt.Errorf("get %s orders: %w", side, err)
	}
	return decodeOrders(data)
}

func (s *OrderService) store(ctx context.Context, sessionID, side string, orders conflict.Orders) error {
	data, err := json.Marshal(orders)
	if err != nil {
		return fmt.Errorf("marshal %s orders: %w", side, err)
	}
	return s.cache.SetOrders(ctx, sessionID, side, data)
}
