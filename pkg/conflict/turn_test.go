package conflict

import (
	"math"
	"math/rand"
	"strings"
	"testing"
)

func resolveOK(t *testing.T, req *Request) *Result {
	t.Helper()
	res, err := Resolve(req, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return res
}

func territoryIn(res *Result, id int) Territory {
	for _, t := range res.Territories {
		if t.ID == id {
			return t
		}
	}
	return Territory{}
}

func hasEvent(events []TurnEvent, kind EventKind, territory int) bool {
	for _, e := range events {
		if e.Kind == kind && e.Territory == territory {
			return true
		}
	}
	return false
}

func TestAttackStageRepelled(t *testing.T) {
	ts := NewTerritories([]Territory{
		{ID: 1, Owner: PlayerOne, Forces: 20},
		{ID: 2, Owner: PlayerTwo, Forces: 10},
	})
	orders := Orders{1: {To: 2, Type: OrderAttack}}
	events := applyAttack(ts, orders, DefaultConfig(), Sides{})
	if ts[2].Owner != PlayerTwo || ts[2].Forces != 2 {
		t.Errorf("expected player two with 2, got %s with %v", ts[2].Owner, ts[2].Forces)
	}
	if ts[1].Forces != 13 {
		t.Errorf("expected attacker to keep 13, got %v", ts[1].Forces)
	}
	if !hasEvent(events, EventRepelled, 2) {
		t.Errorf("expected repelled event, got %v", events)
	}
}

func TestResolveAttackAfterHold(t *testing.T) {
	// The defender holds first (+2) so it meets the 8 power attack with 12.
	res := resolveOK(t, &Request{
		Territories: []Territory{
			{ID: 1, Owner: PlayerOne, Forces: 20},
			{ID: 2, Owner: PlayerTwo, Forces: 10},
		},
		Routes:       []Route{{A: 1, B: 2}},
		PlayerOrders: Orders{1: {To: 2, Type: OrderAttack}},
		Turn:         3,
	})
	if got := territoryIn(res, 2); got.Owner != PlayerTwo || got.Forces != 4 {
		t.Errorf("expected player two with 4, got %s with %v", got.Owner, got.Forces)
	}
	if got := territoryIn(res, 1); got.Forces != 13 {
		t.Errorf("expected attacker to keep 13, got %v", got.Forces)
	}
	if res.Turn != 4 {
		t.Errorf("expected turn 4, got %d", res.Turn)
	}
	if res.Outcome != OutcomeOngoing {
		t.Errorf("expected ongoing, got %s", res.Outcome)
	}
	if _, ok := res.PlayerOrders[1]; !ok {
		t.Error("expected the standing attack order to carry over")
	}
}

func TestResolveTwoAttackerMelee(t *testing.T) {
	// 28 forces commit 10 units, 10 forces commit 4.
	res := resolveOK(t, &Request{
		Territories: []Territory{
			{ID: 1, Owner: PlayerOne, Forces: 28},
			{ID: 2, Owner: PlayerTwo, Forces: 10},
			{ID: 3, Owner: Neutral, Forces: 8},
		},
		Routes:       []Route{{A: 1, B: 3}, {A: 2, B: 3}},
		PlayerOrders: Orders{1: {To: 3, Type: OrderAttack}},
		AIOrders:     Orders{2: {To: 3, Type: OrderAttack}},
		Sides: Sides{
			Archetypes: map[Owner]string{PlayerOne: "warlord"},
			Legacies:   map[Owner]string{PlayerOne: "iron"},
		},
	})
	// The warlord bonus only adds power, never units: the melee still ends 4-2.
	e := territoryIn(res, 3)
	if e.Owner != PlayerOne || e.Forces != 2 {
		t.Errorf("expected player one with 2, got %s with %v", e.Owner, e.Forces)
	}
	if f := territoryIn(res, 1).Forces; f != 18 {
		t.Errorf("expected 18 left at source 1, got %v", f)
	}
	if f := territoryIn(res, 2).Forces; f != 6 {
		t.Errorf("expected 6 left at source 2, got %v", f)
	}
	var conquest *TurnEvent
	for i := range res.Events {
		if res.Events[i].Kind == EventConquest {
			conquest = &res.Events[i]
		}
	}
	if conquest == nil {
		t.Fatal("expected a conquest event")
	}
	if conquest.Archetype != "warlord" || conquest.Legacy != "iron" || conquest.Owner != PlayerOne {
		t.Errorf("conquest event missing identity: %+v", conquest)
	}
	// Territory 3 changed hands, so the player attack no longer applies.
	if len(res.PlayerOrders) != 0 {
		t.Errorf("expected the attack order to lapse, got %v", res.PlayerOrders)
	}
}

func TestHoldConservation(t *testing.T) {
	cfg := DefaultConfig()
	sides := Sides{
		Archetypes:  map[Owner]string{PlayerOne: "steward", PlayerTwo: "heir"},
		HomeDomains: map[Owner]string{PlayerTwo: "north"},
	}
	ts := NewTerritories([]Territory{
		{ID: 1, Owner: PlayerOne, Forces: 10},
		{ID: 2, Owner: PlayerOne, Forces: 99},
		{ID: 3, Owner: PlayerTwo, Forces: 5, Domain: "north"},
		{ID: 4, Owner: PlayerTwo, Forces: 5, Effects: []ActiveEffect{{
			ProfileKey: "blizzard", Phase: PhaseImpact, Duration: 2,
			Rules: []Rule{{Type: RuleStatModifier, Stat: StatProduction, Value: Fixed(0.5)}},
		}}},
		{ID: 5, Owner: PlayerTwo, Forces: 5},
		{ID: 6, Owner: Neutral, Forces: 0},
	})
	orders := Orders{5: {To: 3, Type: OrderAssist}, 1: {To: 1, Type: OrderHold}}
	before := ts.Clone()
	applyHold(ts, orders, cfg, sides)

	for _, id := range ts.IDs() {
		old := before[id]
		if old.Owner == Neutral {
			if ts[id].Forces != 0 {
				t.Errorf("neutral %d produced", id)
			}
			continue
		}
		if o, ok := orders[id]; ok && o.outgoing(id) {
			if ts[id].Forces != old.Forces {
				t.Errorf("territory %d produced while sending an order", id)
			}
			continue
		}
		want := math.Min(cfg.SupplyCap, holdYield(old, cfg, sides)+old.Forces)
		if ts[id].Forces != want {
			t.Errorf("territory %d: want %v, got %v", id, want, ts[id].Forces)
		}
	}
	if ts[1].Forces != 13 {
		t.Errorf("steward bonus: expected 13, got %v", ts[1].Forces)
	}
	if ts[2].Forces != 100 {
		t.Errorf("expected cap at 100, got %v", ts[2].Forces)
	}
	if ts[3].Forces != 9 {
		t.Errorf("home domain bonus: expected 9, got %v", ts[3].Forces)
	}
	if ts[4].Forces != 6 {
		t.Errorf("production modifier: expected 6, got %v", ts[4].Forces)
	}
}

func TestResolveAssist(t *testing.T) {
	res := resolveOK(t, &Request{
		Territories: []Territory{
			{ID: 1, Owner: PlayerOne, Forces: 10},
			{ID: 2, Owner: PlayerOne, Forces: 5},
			{ID: 3, Owner: PlayerOne, Forces: 1},
		},
		Routes: []Route{{A: 1, B: 2}, {A: 3, B: 2}},
		PlayerOrders: Orders{
			1: {To: 2, Type: OrderAssist},
			3: {To: 2, Type: OrderAssist}, // would leave 0 behind
		},
	})
	if f := territoryIn(res, 1).Forces; f != 5 {
		t.Errorf("expected source to keep 5, got %v", f)
	}
	if f := territoryIn(res, 2).Forces; f != 12 {
		t.Errorf("expected 5 + 2 hold + 5 assist = 12, got %v", f)
	}
	// The exhausted assist is dropped, so territory 3 holds instead.
	if f := territoryIn(res, 3).Forces; f != 3 {
		t.Errorf("expected 3, got %v", f)
	}
	dropped := false
	for _, e := range res.Events {
		if e.Kind == EventOrderDropped && e.Source == 3 {
			dropped = true
		}
	}
	if !dropped {
		t.Error("expected an orderDropped event for source 3")
	}
	if _, ok := res.PlayerOrders[3]; ok {
		t.Error("exhausted assist must not carry over")
	}
}

func TestAssistNonNegativity(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	cfg := DefaultConfig()
	for i := 0; i < 200; i++ {
		ts := NewTerritories([]Territory{
			{ID: 1, Owner: PlayerOne, Forces: float64(1 + rng.Intn(20))},
			{ID: 2, Owner: PlayerOne, Forces: float64(1 + rng.Intn(20))},
		})
		orders, _ := PruneExhaustedAssists(Orders{1: {To: 2, Type: OrderAssist}}, ts, cfg, Sides{})
		before := ts[1].Forces
		applyAssist(ts, orders, cfg, Sides{})
		if ts[1].Forces < 1 {
			t.Fatalf("source %v left with %v", before, ts[1].Forces)
		}
	}
}

func TestAssistSimultaneous(t *testing.T) {
	ts := NewTerritories([]Territory{
		{ID: 1, Owner: PlayerOne, Forces: 10},
		{ID: 2, Owner: PlayerOne, Forces: 10},
	})
	orders := Orders{1: {To: 2, Type: OrderAssist}, 2: {To: 1, Type: OrderAssist}}
	applyAssist(ts, orders, DefaultConfig(), Sides{})
	if ts[1].Forces != 10 || ts[2].Forces != 10 {
		t.Errorf("swap should cancel out, got %v and %v", ts[1].Forces, ts[2].Forces)
	}
}

func TestResolveOutcomes(t *testing.T) {
	tests := []struct {
		player, ai int
		want       Outcome
	}{
		{3, 2, OutcomeOngoing},
		{3, 0, OutcomeVictory},
		{0, 2, OutcomeDefeat},
		{0, 0, OutcomeDraw},
	}
	for _, tt := range tests {
		if got := outcomeOf(tt.player, tt.ai); got != tt.want {
			t.Errorf("outcomeOf(%d, %d) = %s, want %s", tt.player, tt.ai, got, tt.want)
		}
	}
}

func TestResolveVictory(t *testing.T) {
	res := resolveOK(t, &Request{
		Territories: []Territory{
			{ID: 1, Owner: PlayerOne, Forces: 40},
			{ID: 2, Owner: PlayerTwo, Forces: 1},
		},
		Routes:       []Route{{A: 1, B: 2}},
		PlayerOrders: Orders{1: {To: 2, Type: OrderAttack}},
		// The AI territory attacks too, so it does not hold.
		AIOrders: Orders{2: {To: 1, Type: OrderAttack}},
	})
	if res.Outcome != OutcomeVictory {
		t.Errorf("expected victory, got %s (owned %v)", res.Outcome, res.Owned)
	}
	if !res.Outcome.Terminal() {
		t.Error("victory must be terminal")
	}
}

func TestResolveDoesNotModifyRequest(t *testing.T) {
	req := &Request{
		Territories: []Territory{
			{ID: 1, Owner: PlayerOne, Forces: 20},
			{ID: 2, Owner: PlayerTwo, Forces: 10},
		},
		Routes:       []Route{{A: 1, B: 2, DisabledTurns: 1}},
		PlayerOrders: Orders{1: {To: 2, Type: OrderAttack}},
	}
	resolveOK(t, req)
	if req.Territories[0].Forces != 20 || req.Territories[1].Forces != 10 {
		t.Errorf("request territories changed: %+v", req.Territories)
	}
	if req.Routes[0].DisabledTurns != 1 {
		t.Errorf("request routes changed: %+v", req.Routes)
	}
}

func TestResolveSettlesUnresolvedModifiers(t *testing.T) {
	tests := []struct {
		name string
		stat Stat
		want NumberRange
	}{
		{"combat", StatCombat, Between(2, 4)},
		{"production", StatProduction, Between(0.5, 1.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &Request{
				Territories: []Territory{
					{ID: 1, Owner: PlayerOne, Forces: 10, Effects: []ActiveEffect{
						{ProfileKey: "drill", Phase: PhaseImpact, Duration: -1,
							Rules: []Rule{{Type: RuleStatModifier, Stat: tt.stat, Value: tt.want}}},
					}},
					{ID: 2, Owner: PlayerTwo, Forces: 10},
				},
				Routes: []Route{{A: 1, B: 2}},
			}
			res := resolveOK(t, req)
			effects := territoryIn(res, 1).Effects
			if len(effects) != 1 || len(effects[0].Rules) != 1 {
				t.Fatalf("expected the effect to survive, got %+v", effects)
			}
			v := effects[0].Rules[0].Value
			if v.Min != v.Max {
				t.Errorf("modifier left unresolved: %+v", v)
			}
			if v.Min < tt.want.Min || v.Min > tt.want.Max {
				t.Errorf("modifier %v outside %+v", v.Min, tt.want)
			}
			if again := resolveOK(t, req); territoryIn(again, 1).Effects[0].Rules[0].Value != v {
				t.Errorf("same seed drew a different modifier")
			}
			if req.Territories[0].Effects[0].Rules[0].Value != tt.want {
				t.Errorf("request effect changed: %+v", req.Territories[0].Effects[0].Rules[0].Value)
			}
		})
	}
}

func TestResolveDisabledRouteTicksBeforeValidation(t *testing.T) {
	res := resolveOK(t, &Request{
		Territories: []Territory{
			{ID: 1, Owner: PlayerOne, Forces: 20},
			{ID: 2, Owner: PlayerTwo, Forces: 1},
		},
		Routes:       []Route{{A: 1, B: 2, DisabledTurns: 1}},
		PlayerOrders: Orders{1: {To: 2, Type: OrderAttack}},
		AIOrders:     Orders{2: {To: 2, Type: OrderHold}},
	})
	if territoryIn(res, 2).Owner != PlayerOne {
		t.Errorf("route should reopen this turn, got %+v", territoryIn(res, 2))
	}
}

type panicHandler struct{ defaultHandler }

func (panicHandler) Continuous(*PhaseContext, Territory, ActiveEffect) (Territory, bool) {
	panic("corrupted effect")
}

func TestResolvePanicIsAtomic(t *testing.T) {
	handlers["volatile"] = panicHandler{}
	defer delete(handlers, "volatile")

	cfg := DefaultConfig()
	cfg.Profiles["volatile"] = Profile{Key: "volatile", Kind: KindDisaster, Start: PhaseImpact,
		Phases: map[EventPhase]PhaseSpec{PhaseImpact: {Duration: Fixed(1)}}}
	res, err := Resolve(&Request{
		Territories: []Territory{{ID: 1, Owner: PlayerOne, Forces: 5, Effects: []ActiveEffect{
			{ProfileKey: "volatile", Phase: PhaseImpact, Duration: 3},
		}}},
		Config: &cfg,
	}, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if res != nil {
		t.Error("expected no partial result")
	}
	if !strings.Contains(err.Error(), "corrupted effect") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestResolveNilRequest(t *testing.T) {
	if _, err := Resolve(nil, nil); err == nil {
		t.Error("expected error for nil request")
	}
}

func TestResolveForcesStayInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for round := 0; round < 50; round++ {
		var terrs []Territory
		var routes []Route
		for id := 1; id <= 6; id++ {
			owner := Owner(1 + rng.Intn(2))
			terrs = append(terrs, Territory{ID: id, Owner: owner, Forces: float64(1 + rng.Intn(100))})
			if id > 1 {
				routes = append(routes, Route{A: id - 1, B: id})
			}
		}
		player, ai := Orders{}, Orders{}
		for _, tr := range terrs {
			to := tr.ID + 1
			if to > 6 {
				to = tr.ID - 1
			}
			typ := OrderAttack
			if rng.Intn(2) == 0 {
				typ = OrderAssist
			}
			if tr.Owner == PlayerOne {
				player[tr.ID] = Order{To: to, Type: typ}
			} else {
				ai[tr.ID] = Order{To: to, Type: typ}
			}
		}
		res := resolveOK(t, &Request{Territories: terrs, Routes: routes, PlayerOrders: player, AIOrders: ai})
		for _, tr := range res.Territories {
			if tr.Forces < 0 || tr.Forces > DefaultSupplyCap {
				t.Fatalf("territory %d out of bounds: %v", tr.ID, tr.Forces)
			}
			if tr.Forces == 0 && tr.Owner != Neutral {
				t.Fatalf("territory %d has an owner but no forces", tr.ID)
			}
		}
	}
}
