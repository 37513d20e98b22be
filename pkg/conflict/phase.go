package conflict

import (
	"math"
	"math/rand"

	"github.com/rs/zerolog"
)

// PhaseContext carries the mutable world a single event-phase pass works on.
// Everything in it belongs to one resolution; nothing is shared with callers.
type PhaseContext struct {
	Territories Territories
	Routes      *RouteSet
	Map         *WorldMap
	Markers     []EventMarker
	Config      Config
	Sides       Sides
	Rand        *rand.Rand
	Log         zerolog.Logger

	Events []TurnEvent
	Cues   []AssetCue
}

func (c *PhaseContext) emit(e TurnEvent) { c.Events = append(c.Events, e) }

func (c *PhaseContext) profile(key string) (Profile, bool) {
	p, ok := c.Config.Profiles[key]
	if !ok {
		c.Log.Warn().Str("profile", key).Msg("Unknown event profile, skipping")
	}
	return p, ok
}

func (c *PhaseContext) marker(id string) (EventMarker, bool) {
	for _, m := range c.Markers {
		if m.ID == id {
			return m, true
		}
	}
	return EventMarker{}, false
}

// AdvanceEvents runs the event phase of a turn: route timers tick, ongoing
// effects act on their territories, expired effects end, then markers move,
// count down and change phase or retire.
func AdvanceEvents(ctx *PhaseContext) {
	if ctx.Map == nil {
		ctx.Map = &WorldMap{}
	}
	ctx.Routes.tick()
	continuousPass(ctx)
	expireEffects(ctx)
	advanceMarkers(ctx)
	ctx.Territories.normalizeAll(ctx.Config.SupplyCap)
}

// continuousPass lets every effect act on its territory. Effects are visited
// newest first; a fresh record is built per territory and swapped in afterwards.
func continuousPass(ctx *PhaseContext) {
	for _, id := range ctx.Territories.IDs() {
		t := ctx.Territories[id]
		if len(t.Effects) == 0 {
			continue
		}
		next := t.Clone()
		next.Effects = nil
		kept := make([]ActiveEffect, 0, len(t.Effects))
		for i := len(t.Effects) - 1; i >= 0; i-- {
			e := t.Effects[i]
			var keep bool
			next, keep = handlerFor(e.ProfileKey).Continuous(ctx, next, e)
			if keep {
				kept = append(kept, e)
			}
		}
		for i := len(kept) - 1; i >= 0; i-- {
			next.Effects = append(next.Effects, kept[i])
		}
		ctx.Territories[id] = normalize(next, ctx.Config.SupplyCap)
	}
}

// expireEffects counts every timed effect down and ends the ones that run out.
func expireEffects(ctx *PhaseContext) {
	for _, id := range ctx.Territories.IDs() {
		t := ctx.Territories[id]
		if len(t.Effects) == 0 {
			continue
		}
		next := t.Clone()
		next.Effects = nil
		var ended []ActiveEffect
		for _, e := range t.Effects {
			if e.Permanent() {
				next.Effects = append(next.Effects, e.Clone())
				continue
			}
			e = e.Clone()
			e.Duration--
			if e.Duration > 0 {
				next.Effects = append(next.Effects, e)
				continue
			}
			ended = append(ended, e)
		}
		for _, e := range ended {
			next = handlerFor(e.ProfileKey).OnEffectExpire(ctx, next, e)
			ctx.emit(TurnEvent{
				Kind:      EventEffectExpired,
				Territory: id,
				Profile:   e.ProfileKey,
				Phase:     e.Phase,
			})
		}
		ctx.Territories[id] = normalize(next, ctx.Config.SupplyCap)
	}
}

// advanceMarkers moves and ages every marker. Retired markers are collected
// during the scan and their terminal effects applied once it is complete.
func advanceMarkers(ctx *PhaseContext) {
	live := make([]EventMarker, 0, len(ctx.Markers))
	var retired []EventMarker

	for _, m := range ctx.Markers {
		m = m.Clone()
		p, ok := ctx.profile(m.ProfileKey)
		if !ok {
			continue
		}
		if m.Applied != m.Phase {
			enterPhase(ctx, &m, p)
		}

		if mover, ok := handlerFor(m.ProfileKey).(MarkerMover); ok {
			if !mover.Move(ctx, &m, p) {
				retired = append(retired, m)
				continue
			}
		}

		m.Duration--
		if m.Duration > 0 {
			live = append(live, m)
			continue
		}
		spec, _ := p.Phase(m.Phase)
		if spec.Next == "" {
			retired = append(retired, m)
			continue
		}
		nextSpec, ok := p.Phase(spec.Next)
		if !ok {
			ctx.Log.Warn().Str("profile", p.Key).Str("phase", string(spec.Next)).Msg("Missing next phase, retiring marker")
			retired = append(retired, m)
			continue
		}
		m.Phase = spec.Next
		m.Duration = max(1, int(nextSpec.Duration.Roll(ctx.Rand)))
		enterPhase(ctx, &m, p)
		live = append(live, m)
	}

	// Terminal effects see the already updated marker list.
	ctx.Markers = live
	for _, m := range retired {
		p, ok := ctx.Config.Profiles[m.ProfileKey]
		if !ok {
			continue
		}
		handlerFor(m.ProfileKey).OnMarkerExpire(ctx, m, p)
		ctx.emit(TurnEvent{
			Kind:    EventMarkerRetired,
			Profile: m.ProfileKey,
			Phase:   m.Phase,
			Detail:  m.ID,
		})
	}
}

// enterPhase queues the phase assets and hands its rules to every affected
// territory as an effect, replacing what the marker granted before.
func enterPhase(ctx *PhaseContext, m *EventMarker, p Profile) {
	spec, ok := p.Phase(m.Phase)
	if !ok {
		return
	}
	m.Applied = m.Phase
	ctx.Cues = append(ctx.Cues, cueFor(p.Key, m.Phase, m.Position, spec.Assets))
	ctx.emit(TurnEvent{Kind: EventPhaseChanged, Profile: p.Key, Phase: m.Phase, Owner: m.Owner, Detail: m.ID})
	for _, id := range m.Affected {
		grantMarkerEffect(ctx, id, *m, p, spec)
	}
}

func grantMarkerEffect(ctx *PhaseContext, id int, m EventMarker, p Profile, spec PhaseSpec) {
	t, ok := ctx.Territories[id]
	if !ok {
		return
	}
	t = withoutMarker(t, m.ID)
	if len(spec.Rules) > 0 && affects(m, p, t) {
		t.Effects = append(t.Effects, newEffect(p.Key, m.Phase, m.Duration, spec.Rules, m.ID, ctx.Rand))
	}
	ctx.Territories[id] = t
}

// withoutMarker drops the effects a marker granted to the territory.
func withoutMarker(t Territory, markerID string) Territory {
	next := t.Clone()
	next.Effects = nil
	for _, e := range t.Effects {
		if e.MarkerID != markerID {
			next.Effects = append(next.Effects, e.Clone())
		}
	}
	return next
}

// retarget updates the affected set after a marker moves: territories left
// behind lose its effects, newly covered ones receive the current phase.
func retarget(ctx *PhaseContext, m *EventMarker, p Profile, affected []int) {
	now := make(map[int]bool, len(affected))
	for _, id := range affected {
		now[id] = true
	}
	before := make(map[int]bool, len(m.Affected))
	for _, id := range m.Affected {
		before[id] = true
		if !now[id] {
			if t, ok := ctx.Territories[id]; ok {
				ctx.Territories[id] = withoutMarker(t, m.ID)
			}
		}
	}
	m.Affected = affected
	spec, ok := p.Phase(m.Phase)
	if !ok {
		return
	}
	for _, id := range affected {
		if !before[id] {
			grantMarkerEffect(ctx, id, *m, p, spec)
		}
	}
}

// applyRule performs the immediate part of a rule against one territory.
// statModifier rules are passive and read by the formulas instead.
func applyRule(ctx *PhaseContext, t Territory, r Rule, key string, phase EventPhase, scale float64) Territory {
	switch r.Type {
	case RuleForceDamage:
		dmg := math.Floor(r.Value.Roll(ctx.Rand) * scale)
		if dmg <= 0 || t.Forces <= 0 {
			return t
		}
		dmg = math.Min(dmg, t.Forces)
		t.Forces -= dmg
		ctx.emit(TurnEvent{Kind: EventForceDamage, Territory: t.ID, Owner: t.Owner, Amount: dmg, Profile: key, Phase: phase})
	case RuleRouteDisable:
		turns := int(r.Turns.Roll(ctx.Rand))
		if turns <= 0 {
			turns = int(r.Value.Roll(ctx.Rand))
		}
		if turns <= 0 {
			return t
		}
		if n := ctx.Routes.Disable(t.ID, turns); n > 0 {
			ctx.emit(TurnEvent{Kind: EventRouteDisabled, Territory: t.ID, Amount: float64(turns), Profile: key, Phase: phase})
		}
	case RuleRouteDestroy:
		for _, rt := range ctx.Routes.Touching(t.ID) {
			if !chance(ctx.Rand, r.Chance) {
				continue
			}
			if ctx.Routes.Destroy(rt.A, rt.B) {
				destroyed := rt
				destroyed.Destroyed = true
				ctx.emit(TurnEvent{Kind: EventRouteDestroyed, Territory: t.ID, Route: &destroyed, Profile: key, Phase: phase})
			}
		}
	}
	return t
}

// chance reports whether an event with probability p happens. Zero means always.
func chance(rng *rand.Rand, p float64) bool {
	if p <= 0 || p >= 1 {
		return true
	}
	return rng.Float64() < p
}
