package bot

import (
	"sort"

	"github.com/freeeve/enclaves/pkg/conflict"
)

// GreedyStrategy attacks whatever the preview says it can take, then feeds
// interior forces to threatened frontline territories.
type GreedyStrategy struct {
	// Aggression scales how much a capture is worth against keeping forces
	// home. Zero means 1.
	Aggression float64
}

func (GreedyStrategy) Name() string { return "greedy" }

// attackCandidate is a scored (source, target) pair for greedy assignment.
type attackCandidate struct {
	src    int
	target int
	score  float64
}

// GenerateOrders scores every (owned, foreign neighbor) attack by projecting
// the target, assigns the best captures greedily, then plans assists and
// holds for the rest.
func (g GreedyStrategy) GenerateOrders(b Board, side conflict.Owner) conflict.Orders {
	owned := b.owned(side)
	orders := conflict.Orders{}
	if len(owned) == 0 {
		return orders
	}

	candidates := g.scoreAttacks(b, side, owned)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	// One attacker per source; a target may gain a second attacker when the
	// first alone does not take it.
	taken := make(map[int]bool)
	for _, c := range candidates {
		if _, busy := orders[c.src]; busy || taken[c.target] {
			continue
		}
		orders[c.src] = conflict.Order{To: c.target, Type: conflict.OrderAttack}
		if g.captures(b, side, orders, c.target) {
			taken[c.target] = true
			continue
		}
		delete(orders, c.src)
	}
	g.pairUp(b, side, owned, orders, taken)
	g.planAssists(b, side, owned, orders)

	for _, id := range owned {
		if _, ok := orders[id]; !ok {
			orders[id] = conflict.Order{To: id, Type: conflict.OrderHold}
		}
	}
	pruned, _ := conflict.PruneExhaustedAssists(orders, b.Territories, b.Config, b.Sides)
	return pruned
}

func (g GreedyStrategy) aggression() float64 {
	if g.Aggression <= 0 {
		return 1
	}
	return g.Aggression
}

// scoreAttacks lists every capture a single source can make on its own.
// Enemy territory is worth more than neutral, and a cheap win more than a
// costly one.
func (g GreedyStrategy) scoreAttacks(b Board, side conflict.Owner, owned []int) []attackCandidate {
	var out []attackCandidate
	for _, src := range owned {
		for _, target := range b.Routes.Neighbors(src) {
			t, ok := b.Territories[target]
			if !ok || t.Owner == side {
				continue
			}
			single := conflict.Orders{src: {To: target, Type: conflict.OrderAttack}}
			p, err := conflict.Preview(b.snapshot(single), target)
			if err != nil {
				continue
			}
			score := -1.0
			if p.ProjectedOwner == side {
				score = 10*g.aggression() - t.Forces*0.1
				if t.Owner != conflict.Neutral {
					score += 5
				}
			}
			out = append(out, attackCandidate{src: src, target: target, score: score + botFloat64()*0.01})
		}
	}
	return out
}

// pairUp tries two-source attacks on targets no single source could take.
func (g GreedyStrategy) pairUp(b Board, side conflict.Owner, owned []int, orders conflict.Orders, taken map[int]bool) {
	for _, target := range b.Territories.IDs() {
		t := b.Territories[target]
		if t.Owner == side || taken[target] {
			continue
		}
		var free []int
		for _, src := range owned {
			if _, busy := orders[src]; !busy && b.Routes.Usable(src, target) {
				free = append(free, src)
			}
		}
		if len(free) < 2 {
			continue
		}
		sort.SliceStable(free, func(i, j int) bool {
			return b.Territories[free[i]].Forces > b.Territories[free[j]].Forces
		})
		a, c := free[0], free[1]
		orders[a] = conflict.Order{To: target, Type: conflict.OrderAttack}
		orders[c] = conflict.Order{To: target, Type: conflict.OrderAttack}
		if g.captures(b, side, orders, target) {
			taken[target] = true
			continue
		}
		delete(orders, a)
		delete(orders, c)
	}
}

// planAssists sends interior territories' surplus to the weakest adjacent
// frontline territory.
func (g GreedyStrategy) planAssists(b Board, side conflict.Owner, owned []int, orders conflict.Orders) {
	for _, src := range owned {
		if _, busy := orders[src]; busy || b.frontline(src, side) {
			continue
		}
		best, bestForces := 0, 0.0
		for _, n := range b.Routes.Neighbors(src) {
			t := b.Territories[n]
			if t.Owner != side || !b.frontline(n, side) {
				continue
			}
			if best == 0 || t.Forces < bestForces {
				best, bestForces = n, t.Forces
			}
		}
		if best == 0 {
			continue
		}
		o := conflict.Order{To: best, Type: conflict.OrderAssist}
		if conflict.ValidateOrder(src, o, b.Territories, b.Routes) == nil {
			orders[src] = o
		}
	}
}

// captures reports whether the target ends the turn owned by side under the
// given orders.
func (g GreedyStrategy) captures(b Board, side conflict.Owner, orders conflict.Orders, target int) bool {
	p, err := conflict.Preview(b.snapshot(orders), target)
	return err == nil && p.ProjectedOwner == side
}

func (b Board) snapshot(orders conflict.Orders) conflict.Snapshot {
	return conflict.Snapshot{
		Territories: b.Territories,
		Orders:      orders,
		Config:      b.Config,
		Sides:       b.Sides,
	}
}
