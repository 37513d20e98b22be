package conflict

import "math"

// Snapshot is the read-only view the preview works from.
type Snapshot struct {
	Territories Territories
	Orders      Orders
	Config      Config
	Sides       Sides
}

// Projection is what is expected to happen to one territory this turn if
// nothing else changes.
type Projection struct {
	Territory int       `json:"territory"`
	Owner     Owner     `json:"owner"`
	Forces    float64   `json:"forces"`
	Order     *Order    `json:"order,omitempty"`
	Modifiers Modifiers `json:"modifiers"`

	Reinforcement float64    `json:"reinforcement"`
	AssistIn      float64    `json:"assistIn"`
	AssistOut     float64    `json:"assistOut"`
	AttackOut     float64    `json:"attackOut"`
	Defense       float64    `json:"defense"`
	Incoming      []Attacker `json:"incoming,omitempty"`
	Battle        *Battle    `json:"battle,omitempty"`

	ProjectedOwner  Owner   `json:"projectedOwner"`
	ProjectedForces float64 `json:"projectedForces"`
}

// Preview projects a single territory through Hold, Assist and Attack using
// the same formulas as resolution. Other territories are taken as they are
// now; only orders that point at or leave this territory are considered.
func Preview(snap Snapshot, id int) (Projection, error) {
	t, ok := snap.Territories[id]
	if !ok {
		return Projection{}, ErrUnknownTerritory
	}
	cfg := snap.Config.withDefaults()
	p := Projection{
		Territory: id,
		Owner:     t.Owner,
		Forces:    t.Forces,
		Modifiers: ModifiersOf(t),
	}

	own, hasOrder := snap.Orders[id]
	if hasOrder {
		o := own
		p.Order = &o
	}
	outgoing := hasOrder && own.outgoing(id)

	forces := t.Forces
	if t.Owner != Neutral && !outgoing {
		p.Reinforcement = holdYield(t, cfg, snap.Sides)
		forces = math.Min(cfg.SupplyCap, forces+p.Reinforcement)
	}

	if outgoing && own.Type == OrderAssist {
		if transfer := assistYield(t, cfg, snap.Sides); t.Forces-transfer >= 1 {
			p.AssistOut = transfer
		}
	}

	var incoming []Attacker
	for _, src := range snap.Orders.Sources() {
		o := snap.Orders[src]
		if o.To != id || !o.outgoing(src) {
			continue
		}
		from, ok := snap.Territories[src]
		if !ok || from.Owner == Neutral || from.Forces <= 0 {
			continue
		}
		switch o.Type {
		case OrderAssist:
			if from.Owner != t.Owner {
				continue
			}
			if transfer := assistYield(from, cfg, snap.Sides); from.Forces-transfer >= 1 {
				p.AssistIn += transfer
			}
		case OrderAttack:
			if from.Owner == t.Owner {
				continue
			}
			incoming = append(incoming, attackerFrom(from, cfg, snap.Sides))
		}
	}
	forces = math.Min(cfg.SupplyCap, math.Max(0, forces-p.AssistOut+p.AssistIn))

	if outgoing && own.Type == OrderAttack && t.Owner != Neutral {
		committed := t
		committed.Forces = forces
		p.AttackOut = attackerFrom(committed, cfg, snap.Sides).Units
	}
	p.Defense = math.Max(0, forces-p.AttackOut)
	p.Incoming = incoming

	b := ResolveBattle(t.Owner, p.Defense, incoming)
	if len(incoming) > 0 {
		p.Battle = &b
	}
	final := normalize(Territory{Owner: b.Owner, Forces: b.Forces}, cfg.SupplyCap)
	p.ProjectedOwner = final.Owner
	p.ProjectedForces = final.Forces
	return p, nil
}
