package conflict

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
)

// lineMap is cells 1..n in a row along x; cell i belongs to territory i.
func lineMap(n int) *WorldMap {
	wm := &WorldMap{}
	for i := 1; i <= n; i++ {
		c := Cell{ID: i, Territory: i, Position: Vec3{X: float64(i)}}
		if i > 1 {
			c.Neighbors = append(c.Neighbors, i-1)
		}
		if i < n {
			c.Neighbors = append(c.Neighbors, i+1)
		}
		wm.Cells = append(wm.Cells, c)
	}
	return wm
}

func lineTerritories(n int, forces float64) Territories {
	var list []Territory
	for i := 1; i <= n; i++ {
		list = append(list, Territory{ID: i, Owner: PlayerOne, Forces: forces})
	}
	return NewTerritories(list)
}

func phaseCtx(ts Territories, wm *WorldMap, profiles ...Profile) *PhaseContext {
	cfg := DefaultConfig()
	for _, p := range profiles {
		cfg.Profiles[p.Key] = p
	}
	var routes []Route
	for i := 1; i < len(wm.Cells); i++ {
		routes = append(routes, Route{A: i, B: i + 1})
	}
	return &PhaseContext{
		Territories: ts,
		Routes:      NewRouteSet(routes),
		Map:         wm,
		Config:      cfg,
		Rand:        rand.New(rand.NewSource(3)),
		Log:         zerolog.Nop(),
	}
}

func countEvents(events []TurnEvent, kind EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

var frostProfile = Profile{
	Key:    "frost",
	Kind:   KindDisaster,
	Radius: 1,
	Start:  PhaseAlert,
	Phases: map[EventPhase]PhaseSpec{
		PhaseAlert: {Duration: Fixed(1), Next: PhaseImpact, Assets: AssetKeys{Sound: "wind"}},
		PhaseImpact: {
			Duration: Fixed(2),
			Rules:    []Rule{{Type: RuleStatModifier, Stat: StatProduction, Value: Fixed(0.5)}},
			Assets:   AssetKeys{Visual: "snow", Dialog: "frost_hits"},
		},
	},
}

func TestMarkerLifecycle(t *testing.T) {
	wm := lineMap(4)
	ctx := phaseCtx(lineTerritories(4, 10), wm, frostProfile)
	m, err := NewEventMarker(frostProfile, 2, Neutral, Vec3{}, wm, ctx.Rand)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Affected) != 3 {
		t.Fatalf("expected territories 1-3 affected, got %v", m.Affected)
	}
	ctx.Markers = []EventMarker{m}

	// Turn 1: alert runs out at once and impact begins.
	AdvanceEvents(ctx)
	if len(ctx.Markers) != 1 || ctx.Markers[0].Phase != PhaseImpact {
		t.Fatalf("expected marker in impact, got %+v", ctx.Markers)
	}
	if len(ctx.Cues) != 2 || ctx.Cues[1].Dialog != "frost_hits" || ctx.Cues[1].Phase != PhaseImpact {
		t.Errorf("expected alert and impact cues, got %+v", ctx.Cues)
	}
	for _, id := range []int{1, 2, 3} {
		if got := ModifiersOf(ctx.Territories[id]).Production; got != 0.5 {
			t.Errorf("territory %d: expected production 0.5, got %v", id, got)
		}
	}
	if len(ctx.Territories[4].Effects) != 0 {
		t.Error("territory 4 is outside the radius")
	}

	// Turn 2: both the marker and the effects count down.
	AdvanceEvents(ctx)
	if ctx.Markers[0].Duration != 1 || ctx.Territories[2].Effects[0].Duration != 1 {
		t.Errorf("expected both counters at 1, marker %d effect %d",
			ctx.Markers[0].Duration, ctx.Territories[2].Effects[0].Duration)
	}

	// Turn 3: impact has no next phase, the marker retires and the effects end.
	ctx.Events = nil
	AdvanceEvents(ctx)
	if len(ctx.Markers) != 0 {
		t.Errorf("expected marker retired, got %+v", ctx.Markers)
	}
	if len(ctx.Territories[2].Effects) != 0 {
		t.Errorf("expected effects gone, got %+v", ctx.Territories[2].Effects)
	}
	if countEvents(ctx.Events, EventMarkerRetired) != 1 {
		t.Errorf("expected one markerRetired event, got %v", ctx.Events)
	}
	if countEvents(ctx.Events, EventEffectExpired) != 3 {
		t.Errorf("expected three effectExpired events, got %v", ctx.Events)
	}
}

func TestMarkerTerminalEffects(t *testing.T) {
	quake := Profile{
		Key:    "quake",
		Kind:   KindDisaster,
		Radius: 0,
		Start:  PhaseImpact,
		Phases: map[EventPhase]PhaseSpec{PhaseImpact: {Duration: Fixed(1)}},
		Expire: []Rule{
			{Type: RuleRouteDestroy},
			{Type: RuleStatModifier, Stat: StatCombat, Value: Fixed(0.5), Turns: Fixed(2)},
			{Type: RuleStatModifier, Stat: StatProduction, Value: Fixed(1.1), Permanent: true},
		},
	}
	wm := lineMap(3)
	ctx := phaseCtx(lineTerritories(3, 10), wm, quake)
	m, err := NewEventMarker(quake, 2, Neutral, Vec3{}, wm, ctx.Rand)
	if err != nil {
		t.Fatal(err)
	}
	ctx.Markers = []EventMarker{m}

	AdvanceEvents(ctx)
	if len(ctx.Markers) != 0 {
		t.Fatal("expected the marker to retire")
	}
	if ctx.Routes.Usable(1, 2) || ctx.Routes.Usable(2, 3) {
		t.Error("expected routes around territory 2 destroyed")
	}
	if countEvents(ctx.Events, EventRouteDestroyed) != 2 {
		t.Errorf("expected two routeDestroyed events, got %v", ctx.Events)
	}
	mods := ModifiersOf(ctx.Territories[2])
	if mods.Combat != 0.5 || mods.Production != 1.1 {
		t.Errorf("unexpected modifiers %+v", mods)
	}

	AdvanceEvents(ctx)
	AdvanceEvents(ctx)
	effects := ctx.Territories[2].Effects
	if len(effects) != 1 || !effects[0].Permanent() {
		t.Errorf("expected only the permanent effect left, got %+v", effects)
	}
}

func TestContinuousForceDamage(t *testing.T) {
	ts := NewTerritories([]Territory{
		{ID: 1, Owner: PlayerOne, Forces: 10, Effects: []ActiveEffect{
			{ProfileKey: "blizzard", Phase: PhaseImpact, Duration: 3, Rules: []Rule{{Type: RuleForceDamage, Value: Fixed(3)}}},
		}},
		{ID: 2, Owner: PlayerTwo, Forces: 2, Effects: []ActiveEffect{
			{ProfileKey: "blizzard", Phase: PhaseImpact, Duration: 3, Rules: []Rule{{Type: RuleForceDamage, Value: Fixed(3)}}},
		}},
	})
	ctx := phaseCtx(ts, lineMap(2))
	AdvanceEvents(ctx)
	if f := ctx.Territories[1].Forces; f != 7 {
		t.Errorf("expected 7, got %v", f)
	}
	if got := ctx.Territories[2]; got.Forces != 0 || got.Owner != Neutral {
		t.Errorf("expected territory 2 wiped out, got %+v", got)
	}
	if countEvents(ctx.Events, EventForceDamage) != 2 {
		t.Errorf("expected two forceDamage events, got %v", ctx.Events)
	}
}

func TestContinuousRouteDisable(t *testing.T) {
	ts := lineTerritories(3, 10)
	t2 := ts[2]
	t2.Effects = []ActiveEffect{{ProfileKey: "earthquake", Phase: PhaseImpact, Duration: 1,
		Rules: []Rule{{Type: RuleRouteDisable, Turns: Fixed(2)}}}}
	ts[2] = t2
	ctx := phaseCtx(ts, lineMap(3))
	AdvanceEvents(ctx)
	if ctx.Routes.Usable(1, 2) || ctx.Routes.Usable(3, 2) {
		t.Error("expected routes disabled")
	}
	AdvanceEvents(ctx)
	if ctx.Routes.Usable(1, 2) {
		t.Error("expected route still disabled after one tick")
	}
	AdvanceEvents(ctx)
	if !ctx.Routes.Usable(1, 2) {
		t.Error("expected route open again")
	}
}

func TestUnknownProfileSkipped(t *testing.T) {
	ts := NewTerritories([]Territory{
		{ID: 1, Owner: PlayerOne, Forces: 10, Effects: []ActiveEffect{
			{ProfileKey: "missing", Duration: 2, Rules: []Rule{{Type: RuleForceDamage, Value: Fixed(5)}}},
		}},
	})
	ctx := phaseCtx(ts, lineMap(1))
	ctx.Markers = []EventMarker{{ID: "m1", ProfileKey: "missing", Phase: PhaseAlert, Duration: 1}}
	AdvanceEvents(ctx)
	if f := ctx.Territories[1].Forces; f != 10 {
		t.Errorf("unknown profile must not act, forces %v", f)
	}
	if len(ctx.Markers) != 0 {
		t.Error("expected marker with unknown profile dropped")
	}
	if d := ctx.Territories[1].Effects[0].Duration; d != 1 {
		t.Errorf("expected the effect to keep counting down, got %d", d)
	}
}

func TestAftermathOnChance(t *testing.T) {
	blight := Profile{
		Key:   "blight",
		Kind:  KindDisaster,
		Start: PhaseImpact,
		Phases: map[EventPhase]PhaseSpec{
			PhaseImpact:    {Duration: Fixed(1), Rules: []Rule{{Type: RuleApplyAftermathOnChance, Chance: 1}}},
			PhaseAftermath: {Duration: Fixed(2), Rules: []Rule{{Type: RuleStatModifier, Stat: StatProduction, Value: Fixed(0.5)}}},
		},
	}
	ts := NewTerritories([]Territory{{ID: 1, Owner: PlayerOne, Forces: 10, Effects: []ActiveEffect{
		{ProfileKey: "blight", Phase: PhaseImpact, Duration: 1, Rules: blight.Phases[PhaseImpact].Rules},
	}}})
	ctx := phaseCtx(ts, lineMap(1), blight)
	AdvanceEvents(ctx)
	effects := ctx.Territories[1].Effects
	if len(effects) != 1 || effects[0].Phase != PhaseAftermath || effects[0].Duration != 2 {
		t.Fatalf("expected an aftermath effect, got %+v", effects)
	}
}

func TestEffectsVisitedNewestFirst(t *testing.T) {
	var seen []string
	handlers["tracer"] = recordingHandler{seen: &seen}
	defer delete(handlers, "tracer")
	tracer := Profile{Key: "tracer", Start: PhaseImpact, Phases: map[EventPhase]PhaseSpec{PhaseImpact: {Duration: Fixed(1)}}}

	ts := NewTerritories([]Territory{{ID: 1, Owner: PlayerOne, Forces: 10, Effects: []ActiveEffect{
		{ProfileKey: "tracer", MarkerID: "first", Duration: -1},
		{ProfileKey: "tracer", MarkerID: "second", Duration: -1},
		{ProfileKey: "tracer", MarkerID: "drop", Duration: -1},
	}}})
	ctx := phaseCtx(ts, lineMap(1), tracer)
	AdvanceEvents(ctx)
	if len(seen) != 3 || seen[0] != "drop" || seen[2] != "first" {
		t.Errorf("expected reverse order, got %v", seen)
	}
	effects := ctx.Territories[1].Effects
	if len(effects) != 2 || effects[0].MarkerID != "first" || effects[1].MarkerID != "second" {
		t.Errorf("expected the dropped effect removed and order kept, got %+v", effects)
	}
}

type recordingHandler struct {
	defaultHandler
	seen *[]string
}

func (h recordingHandler) Continuous(_ *PhaseContext, t Territory, e ActiveEffect) (Territory, bool) {
	*h.seen = append(*h.seen, e.MarkerID)
	return t, e.MarkerID != "drop"
}

func TestCycloneTravelsAndDissipates(t *testing.T) {
	cyclone := Profile{
		Key:    "cyclone",
		Kind:   KindDisaster,
		Radius: 0,
		Start:  PhaseImpact,
		Phases: map[EventPhase]PhaseSpec{PhaseImpact: {
			Duration: Fixed(5),
			Rules: []Rule{
				{Type: RuleForceDamage, Value: Fixed(2)},
				{Type: RuleDissipateOnNoMoveTarget},
			},
		}},
	}
	wm := lineMap(3)
	ctx := phaseCtx(lineTerritories(3, 10), wm, cyclone)
	m, err := NewEventMarker(cyclone, 1, Neutral, Vec3{X: 1}, wm, ctx.Rand)
	if err != nil {
		t.Fatal(err)
	}
	ctx.Markers = []EventMarker{m}

	AdvanceEvents(ctx)
	if ctx.Markers[0].Cell != 2 {
		t.Fatalf("expected the storm at cell 2, got %d", ctx.Markers[0].Cell)
	}
	if len(ctx.Territories[1].Effects) != 0 || len(ctx.Territories[2].Effects) != 1 {
		t.Errorf("expected the effect to follow the storm: t1 %+v t2 %+v",
			ctx.Territories[1].Effects, ctx.Territories[2].Effects)
	}

	AdvanceEvents(ctx)
	if f := ctx.Territories[2].Forces; f != 8 {
		t.Errorf("expected full damage under the eye, got %v", f)
	}

	AdvanceEvents(ctx)
	if f := ctx.Territories[3].Forces; f != 8 {
		t.Errorf("expected territory 3 hit, got %v", f)
	}
	if len(ctx.Markers) != 0 {
		t.Errorf("expected the storm to dissipate at the end of the line, got %+v", ctx.Markers)
	}
	if f := ctx.Territories[1].Forces; f != 10 {
		t.Errorf("territory 1 was never under the storm, got %v", f)
	}
}

func TestGambitOnlyTouchesOwner(t *testing.T) {
	rally := Profile{
		Key:    "rally",
		Kind:   KindGambit,
		Radius: 1,
		Start:  PhaseImpact,
		Phases: map[EventPhase]PhaseSpec{PhaseImpact: {
			Duration: Fixed(2),
			Rules:    []Rule{{Type: RuleStatModifier, Stat: StatCombat, Value: Fixed(1.5)}},
		}},
	}
	wm := lineMap(2)
	ts := NewTerritories([]Territory{
		{ID: 1, Owner: PlayerOne, Forces: 10},
		{ID: 2, Owner: PlayerTwo, Forces: 10},
	})
	ctx := phaseCtx(ts, wm, rally)
	m, err := NewEventMarker(rally, 1, PlayerOne, Vec3{}, wm, ctx.Rand)
	if err != nil {
		t.Fatal(err)
	}
	ctx.Markers = []EventMarker{m}
	AdvanceEvents(ctx)
	if ModifiersOf(ctx.Territories[1]).Combat != 1.5 {
		t.Error("expected the owner's territory boosted")
	}
	if len(ctx.Territories[2].Effects) != 0 {
		t.Error("gambit must not reach the opponent")
	}
}

func TestRangedModifierRolledOnce(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	e := newEffect("x", PhaseImpact, 3, []Rule{{Type: RuleStatModifier, Stat: StatCombat, Value: Between(0.5, 1.5)}}, "", rng)
	v := e.Rules[0].Value
	if v.Min != v.Max {
		t.Fatalf("expected a fixed value after attaching, got %+v", v)
	}
	if v.Min < 0.5 || v.Min > 1.5 {
		t.Errorf("rolled value %v outside range", v.Min)
	}
}

func TestSpawnHazard(t *testing.T) {
	wm := lineMap(4)
	profiles := map[string]Profile{"frost": frostProfile}

	m, err := SpawnHazard(profiles, wm, rand.New(rand.NewSource(9)))
	if err != nil {
		t.Fatal(err)
	}
	if m.ProfileKey != "frost" || m.Owner != Neutral || m.Phase != PhaseAlert || m.Duration != 1 {
		t.Errorf("unexpected marker %+v", m)
	}
	if m.Cell < 1 || m.Cell > 4 || len(m.Affected) == 0 {
		t.Errorf("marker not placed on the map: %+v", m)
	}
	if m.Heading.Y != 0 {
		t.Errorf("heading must stay on the ground plane, got %+v", m.Heading)
	}

	again, _ := SpawnHazard(profiles, wm, rand.New(rand.NewSource(9)))
	if again.Cell != m.Cell || again.Heading != m.Heading {
		t.Error("same seed must give the same site")
	}

	if _, err := SpawnHazard(nil, wm, rand.New(rand.NewSource(1))); err != ErrNoHazardSite {
		t.Errorf("expected ErrNoHazardSite, got %v", err)
	}
	if _, err := SpawnHazard(profiles, &WorldMap{}, rand.New(rand.NewSource(1))); err != ErrNoHazardSite {
		t.Errorf("expected ErrNoHazardSite for an empty map, got %v", err)
	}
}
