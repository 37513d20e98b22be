package conflict

import (
	"fmt"
	"math/rand"
	"runtime/debug"

	"github.com/rs/zerolog/log"
)

// NewRand returns a random source for a resolution. A zero seed picks one.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = rand.Int63()
	}
	return rand.New(rand.NewSource(seed))
}

// Resolve runs one full turn: the event phase, order validation, the assist
// guard, then Hold, Assist and Attack. The request is not modified. Either the
// whole turn resolves or an error is returned with no result.
func Resolve(req *Request, rng *rand.Rand) (res *Result, err error) {
	if req == nil {
		return nil, fmt.Errorf("resolve: nil request")
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("sessionId", req.SessionID).
				Int("turn", req.Turn).
				Str("stack", string(debug.Stack())).
				Msgf("Turn resolution panicked: %v", r)
			res, err = nil, fmt.Errorf("resolve turn %d: %v", req.Turn, r)
		}
	}()
	if rng == nil {
		rng = NewRand(req.Seed)
	}

	cfg := DefaultConfig()
	if req.Config != nil {
		cfg = req.Config.withDefaults()
		if cfg.Profiles == nil {
			cfg.Profiles = DefaultProfiles()
		}
	}
	logger := log.With().Str("sessionId", req.SessionID).Int("turn", req.Turn).Logger()

	ts := NewTerritories(req.Territories)
	ts.settleModifiers(rng)
	routes := NewRouteSet(req.Routes)
	markers := make([]EventMarker, len(req.Markers))
	for i, m := range req.Markers {
		markers[i] = m.Clone()
	}
	wm := &WorldMap{}
	if req.Map != nil {
		wm = &WorldMap{Cells: append([]Cell(nil), req.Map.Cells...)}
	}

	ctx := &PhaseContext{
		Territories: ts,
		Routes:      routes,
		Map:         wm,
		Markers:     markers,
		Config:      cfg,
		Sides:       req.Sides,
		Rand:        rng,
		Log:         logger,
	}
	AdvanceEvents(ctx)
	events := ctx.Events

	player, ai, invalid := ValidateOrders(req.PlayerOrders, req.AIOrders, ts, routes)
	for _, ve := range invalid {
		logger.Debug().Str("order", ve.Order.Describe(ve.Source)).Msg(ve.Message)
		events = append(events, TurnEvent{Kind: EventOrderDropped, Source: ve.Source, Territory: ve.Order.To, Detail: ve.Message})
	}
	all := MergeOrders(player, ai)
	merged, exhausted := PruneExhaustedAssists(all, ts, cfg, req.Sides)
	for _, src := range exhausted {
		o := all[src]
		delete(player, src)
		delete(ai, src)
		events = append(events, TurnEvent{Kind: EventOrderDropped, Source: src, Territory: o.To, Detail: "assist would exhaust source"})
	}

	owners := make(map[int]Owner, len(ts))
	for id, t := range ts {
		owners[id] = t.Owner
	}
	events = append(events, resolveOrders(ts, merged, cfg, req.Sides)...)

	res = &Result{
		SessionID:    req.SessionID,
		Turn:         req.Turn + 1,
		Territories:  ts.List(),
		PlayerOrders: carryOrders(player, owners, ts, routes),
		AIOrders:     carryOrders(ai, owners, ts, routes),
		Routes:       routes.List(),
		Markers:      ctx.Markers,
		Owned: map[Owner]int{
			PlayerOne: ts.CountOwned(PlayerOne),
			PlayerTwo: ts.CountOwned(PlayerTwo),
		},
		Events: events,
		Cues:   ctx.Cues,
	}
	res.Outcome = outcomeOf(res.Owned[PlayerOne], res.Owned[PlayerTwo])
	return res, nil
}

// carryOrders keeps the standing orders that still make sense next turn: the
// source kept its owner and the order is still legal on the new board.
func carryOrders(orders Orders, owners map[int]Owner, ts Territories, routes *RouteSet) Orders {
	out := make(Orders, len(orders))
	for src, o := range orders {
		t, ok := ts[src]
		if !ok || t.Owner != owners[src] {
			continue
		}
		if ValidateOrder(src, o, ts, routes) != nil {
			continue
		}
		out[src] = o
	}
	return out
}

func outcomeOf(player, ai int) Outcome {
	switch {
	case player == 0 && ai == 0:
		return OutcomeDraw
	case ai == 0:
		return OutcomeVictory
	case player == 0:
		return OutcomeDefeat
	default:
		return OutcomeOngoing
	}
}
