package conflict

import (
	"math"
	"sort"
)

// stage is one step of order resolution. Each stage reads the table, writes
// the updated records back and returns what happened.
type stage func(ts Territories, orders Orders, cfg Config, sides Sides) []TurnEvent

// pipeline is the fixed resolution order.
var pipeline = []stage{applyHold, applyAssist, applyAttack}

// resolveOrders runs Hold, Assist and Attack in order, enforcing the territory
// invariants after every stage.
func resolveOrders(ts Territories, orders Orders, cfg Config, sides Sides) []TurnEvent {
	var events []TurnEvent
	for _, s := range pipeline {
		events = append(events, s(ts, orders, cfg, sides)...)
		ts.normalizeAll(cfg.SupplyCap)
	}
	return events
}

// applyHold reinforces every owned territory that sends nothing out this turn.
func applyHold(ts Territories, orders Orders, cfg Config, sides Sides) []TurnEvent {
	var events []TurnEvent
	for _, id := range ts.IDs() {
		t := ts[id]
		if t.Owner == Neutral {
			continue
		}
		if o, ok := orders[id]; ok && o.outgoing(id) {
			continue
		}
		gain := holdYield(t, cfg, sides)
		before := t.Forces
		t.Forces = math.Min(cfg.SupplyCap, t.Forces+gain)
		ts[id] = t
		if t.Forces != before {
			events = append(events, TurnEvent{
				Kind:      EventReinforced,
				Territory: id,
				Owner:     t.Owner,
				Amount:    t.Forces - before,
			})
		}
	}
	return events
}

// applyAssist moves reinforcements between friendly territories. Transfers are
// computed from the forces at the start of the stage and applied together, so
// the outcome does not depend on order iteration.
func applyAssist(ts Territories, orders Orders, cfg Config, sides Sides) []TurnEvent {
	start := ts.Clone()
	delta := make(map[int]float64)
	var events []TurnEvent
	for _, src := range orders.Sources() {
		o := orders[src]
		if o.Type != OrderAssist || !o.outgoing(src) {
			continue
		}
		from, ok := start[src]
		if !ok {
			continue
		}
		if _, ok := start[o.To]; !ok {
			continue
		}
		transfer := assistYield(from, cfg, sides)
		if from.Forces-transfer < 1 {
			continue
		}
		delta[src] -= transfer
		delta[o.To] += transfer
		events = append(events, TurnEvent{
			Kind:      EventAssisted,
			Territory: o.To,
			Source:    src,
			Owner:     from.Owner,
			Amount:    transfer,
		})
	}
	for id, d := range delta {
		t := ts[id]
		t.Forces = math.Min(cfg.SupplyCap, t.Forces+d)
		ts[id] = t
	}
	return events
}

// applyAttack resolves every contested territory. Detachments leave their
// sources simultaneously; a territory that attacks defends with what it kept.
func applyAttack(ts Territories, orders Orders, cfg Config, sides Sides) []TurnEvent {
	start := ts.Clone()
	committed := make(map[int]float64)
	incoming := make(map[int][]Attacker)
	var targets []int

	for _, src := range orders.Sources() {
		o := orders[src]
		if o.Type != OrderAttack || !o.outgoing(src) {
			continue
		}
		from, ok := start[src]
		if !ok || from.Owner == Neutral {
			continue
		}
		if _, ok := start[o.To]; !ok {
			continue
		}
		a := attackerFrom(from, cfg, sides)
		committed[src] = a.Units
		if _, seen := incoming[o.To]; !seen {
			targets = append(targets, o.To)
		}
		incoming[o.To] = append(incoming[o.To], a)
	}

	var events []TurnEvent
	for _, src := range orders.Sources() {
		units, ok := committed[src]
		if !ok {
			continue
		}
		t := ts[src]
		t.Forces = math.Max(0, t.Forces-units)
		if t.Forces == 0 {
			events = append(events, TurnEvent{
				Kind:      EventDepleted,
				Territory: src,
				Previous:  t.Owner,
			})
			t.Owner = Neutral
		}
		ts[src] = t
	}

	for _, id := range sortedInts(targets) {
		def := start[id]
		d := math.Max(0, def.Forces-committed[id])
		b := ResolveBattle(def.Owner, d, incoming[id])
		t := ts[id]
		t.Owner = b.Owner
		t.Forces = b.Forces
		ts[id] = t
		events = append(events, battleEvent(id, def.Owner, b, sides))
	}
	return events
}

func battleEvent(id int, defender Owner, b Battle, sides Sides) TurnEvent {
	switch {
	case b.Owner == Neutral:
		return TurnEvent{
			Kind:      EventNeutralized,
			Territory: id,
			Previous:  defender,
			Amount:    b.TotalPower,
		}
	case b.Outcome == BattleConquered:
		return TurnEvent{
			Kind:      EventConquest,
			Territory: id,
			Owner:     b.Owner,
			Previous:  defender,
			Amount:    b.Forces,
		}.tagged(sides, b.Owner)
	default:
		return TurnEvent{
			Kind:      EventRepelled,
			Territory: id,
			Owner:     defender,
			Amount:    b.Forces,
		}.tagged(sides, defender)
	}
}

func sortedInts(ids []int) []int {
	out := append([]int(nil), ids...)
	sort.Ints(out)
	return out
}
