package conflict

// EffectHandler implements the behaviour of one event profile.
type EffectHandler interface {
	// Continuous acts on t once per turn for effect e and reports whether the
	// effect stays attached.
	Continuous(ctx *PhaseContext, t Territory, e ActiveEffect) (Territory, bool)
	// OnEffectExpire runs when e's duration on t reaches zero.
	OnEffectExpire(ctx *PhaseContext, t Territory, e ActiveEffect) Territory
	// OnMarkerExpire applies the terminal effect of a retired marker.
	OnMarkerExpire(ctx *PhaseContext, m EventMarker, p Profile)
}

// MarkerMover is implemented by handlers whose markers travel across the map.
// Move returns false when the marker dissipates.
type MarkerMover interface {
	Move(ctx *PhaseContext, m *EventMarker, p Profile) bool
}

var handlers = map[string]EffectHandler{
	"cyclone": cycloneHandler{},
}

func handlerFor(key string) EffectHandler {
	if h, ok := handlers[key]; ok {
		return h
	}
	return defaultHandler{}
}

// affects reports whether a marker's rules reach territory t. Gambits with an
// owner only touch that owner's territories.
func affects(m EventMarker, p Profile, t Territory) bool {
	if p.Kind == KindGambit && m.Owner != Neutral {
		return t.Owner == m.Owner
	}
	return true
}

type defaultHandler struct{}

func (defaultHandler) Continuous(ctx *PhaseContext, t Territory, e ActiveEffect) (Territory, bool) {
	if _, ok := ctx.profile(e.ProfileKey); !ok {
		return t, true
	}
	for _, r := range e.Rules {
		t = applyRule(ctx, t, r, e.ProfileKey, e.Phase, 1)
	}
	return t, true
}

func (defaultHandler) OnEffectExpire(ctx *PhaseContext, t Territory, e ActiveEffect) Territory {
	r := findRule(e.Rules, RuleApplyAftermathOnChance)
	if r == nil || e.Phase == PhaseAftermath {
		return t
	}
	p, ok := ctx.profile(e.ProfileKey)
	if !ok {
		return t
	}
	spec, ok := p.Phase(PhaseAftermath)
	if !ok || !chance(ctx.Rand, r.Chance) {
		return t
	}
	d := max(1, int(spec.Duration.Roll(ctx.Rand)))
	t.Effects = append(t.Effects, newEffect(p.Key, PhaseAftermath, d, spec.Rules, "", ctx.Rand))
	return t
}

func (defaultHandler) OnMarkerExpire(ctx *PhaseContext, m EventMarker, p Profile) {
	if len(p.Expire) == 0 {
		return
	}
	for _, id := range m.Affected {
		t, ok := ctx.Territories[id]
		if !ok || !affects(m, p, t) {
			continue
		}
		t = t.Clone()
		for _, r := range p.Expire {
			if r.Type != RuleStatModifier {
				t = applyRule(ctx, t, r, p.Key, m.Phase, 1)
				continue
			}
			d := -1
			if !r.Permanent {
				d = max(1, int(r.Turns.Roll(ctx.Rand)))
			}
			t.Effects = append(t.Effects, newEffect(p.Key, m.Phase, d, []Rule{r}, "", ctx.Rand))
		}
		ctx.Territories[id] = normalize(t, ctx.Config.SupplyCap)
	}
}

// cycloneHandler drives a travelling storm. It hits the territory under its
// eye at full strength and the rest of its radius at half, and moves one cell
// per turn along its heading without revisiting cells.
type cycloneHandler struct{ defaultHandler }

func (h cycloneHandler) Continuous(ctx *PhaseContext, t Territory, e ActiveEffect) (Territory, bool) {
	if _, ok := ctx.profile(e.ProfileKey); !ok {
		return t, true
	}
	scale := 0.5
	if m, ok := ctx.marker(e.MarkerID); ok {
		if c, ok := ctx.Map.Cell(m.Cell); ok && c.Territory == t.ID {
			scale = 1
		}
	}
	for _, r := range e.Rules {
		t = applyRule(ctx, t, r, e.ProfileKey, e.Phase, scale)
	}
	return t, true
}

func (h cycloneHandler) Move(ctx *PhaseContext, m *EventMarker, p Profile) bool {
	cur, ok := ctx.Map.Cell(m.Cell)
	if !ok {
		return false
	}
	best, bestScore := -1, 0.0
	still := m.Heading == Vec3{}
	for _, n := range cur.Neighbors {
		if m.visited(n) {
			continue
		}
		c, ok := ctx.Map.Cell(n)
		if !ok {
			continue
		}
		score := c.Position.Sub(cur.Position).Dot(m.Heading)
		if !still && score <= 0 {
			continue
		}
		if best < 0 || score > bestScore || (score == bestScore && n < best) {
			best, bestScore = n, score
		}
	}
	if best < 0 {
		spec, _ := p.Phase(m.Phase)
		return !spec.HasRule(RuleDissipateOnNoMoveTarget)
	}
	next, _ := ctx.Map.Cell(best)
	m.Cell = best
	m.Position = next.Position
	m.Visited = append(m.Visited, best)
	retarget(ctx, m, p, ctx.Map.TerritoriesWithin(best, m.Radius))
	return true
}
