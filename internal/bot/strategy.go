// Package bot picks orders for the computer-controlled side.
package bot

import (
	"github.com/rs/zerolog/log"

	"github.com/freeeve/enclaves/pkg/conflict"
)

// Board is the position a strategy plans against.
type Board struct {
	Territories conflict.Territories
	Routes      *conflict.RouteSet
	Config      conflict.Config
	Sides       conflict.Sides
}

// NewBoard builds a Board from wire values.
func NewBoard(territories []conflict.Territory, routes []conflict.Route, cfg conflict.Config, sides conflict.Sides) Board {
	return Board{
		Territories: conflict.NewTerritories(territories),
		Routes:      conflict.NewRouteSet(routes),
		Config:      cfg,
		Sides:       sides,
	}
}

// owned returns the ids held by side, ascending.
func (b Board) owned(side conflict.Owner) []int {
	var ids []int
	for _, id := range b.Territories.IDs() {
		if b.Territories[id].Owner == side {
			ids = append(ids, id)
		}
	}
	return ids
}

// frontline reports whether id borders a territory side does not own.
func (b Board) frontline(id int, side conflict.Owner) bool {
	for _, n := range b.Routes.Neighbors(id) {
		if t, ok := b.Territories[n]; ok && t.Owner != side {
			return true
		}
	}
	return false
}

// Strategy generates one turn of orders for a side.
type Strategy interface {
	Name() string
	GenerateOrders(b Board, side conflict.Owner) conflict.Orders
}

// StrategyForDifficulty returns the strategy for a session difficulty.
func StrategyForDifficulty(difficulty string) Strategy {
	switch difficulty {
	case "", "normal":
		return &GreedyStrategy{}
	case "hard":
		return &GreedyStrategy{Aggression: 1.5}
	case "random":
		return &RandomStrategy{}
	case "hold":
		return HoldStrategy{}
	default:
		log.Warn().Str("difficulty", difficulty).Msg("Unknown bot difficulty, using normal")
		return &GreedyStrategy{}
	}
}

// --- HoldStrategy ---

// HoldStrategy holds every territory.
type HoldStrategy struct{}

func (HoldStrategy) Name() string { return "hold" }

func (HoldStrategy) GenerateOrders(b Board, side conflict.Owner) conflict.Orders {
	orders := conflict.Orders{}
	for _, id := range b.owned(side) {
		orders[id] = conflict.Order{To: id, Type: conflict.OrderHold}
	}
	return orders
}

// --- RandomStrategy ---

// RandomStrategy issues random but valid orders. Used for testing.
type RandomStrategy struct{}

func (RandomStrategy) Name() string { return "random" }

// GenerateOrders holds ~30% of territories and sends the rest at a random
// neighbor: assists to friends, attacks on anyone else.
func (RandomStrategy) GenerateOrders(b Board, side conflict.Owner) conflict.Orders {
	orders := conflict.Orders{}
	for _, id := range b.owned(side) {
		neighbors := b.Routes.Neighbors(id)
		if len(neighbors) == 0 || botFloat64() < 0.3 {
			orders[id] = conflict.Order{To: id, Type: conflict.OrderHold}
			continue
		}
		target := neighbors[botIntn(len(neighbors))]
		o := conflict.Order{To: target, Type: conflict.OrderAttack}
		if b.Territories[target].Owner == side {
			o.Type = conflict.OrderAssist
		}
		if conflict.ValidateOrder(id, o, b.Territories, b.Routes) != nil {
			o = conflict.Order{To: id, Type: conflict.OrderHold}
		}
		orders[id] = o
	}
	pruned, _ := conflict.PruneExhaustedAssists(orders, b.Territories, b.Config, b.Sides)
	return pruned
}
