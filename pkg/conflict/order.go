package conflict

import (
	"fmt"
	"sort"
)

// OrderType is the instruction given to a territory for the turn.
type OrderType string

const (
	OrderHold   OrderType = "hold"   // stay and produce
	OrderAssist OrderType = "assist" // send reinforcements to a friendly territory
	OrderAttack OrderType = "attack" // send a detachment against a foreign territory
)

// Order is keyed by its source territory id in an Orders map.
type Order struct {
	To   int       `json:"to"`
	Type OrderType `json:"type"`
}

// Orders maps source territory id to that territory's single order for the turn.
type Orders map[int]Order

// Clone copies the order map.
func (os Orders) Clone() Orders {
	c := make(Orders, len(os))
	for k, v := range os {
		c[k] = v
	}
	return c
}

// Sources returns the source ids in ascending order.
func (os Orders) Sources() []int {
	ids := make([]int, 0, len(os))
	for id := range os {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// MergeOrders combines the player and AI sets into the set that is resolved.
// A source present in both keeps the player-issued order.
func MergeOrders(player, ai Orders) Orders {
	merged := make(Orders, len(player)+len(ai))
	for src, o := range ai {
		merged[src] = o
	}
	for src, o := range player {
		merged[src] = o
	}
	return merged
}

// outgoing reports whether the order moves forces away from its source.
func (o Order) outgoing(src int) bool {
	return o.Type != OrderHold && o.To != src
}

// Describe returns a human-readable description of the order.
func (o Order) Describe(src int) string {
	switch o.Type {
	case OrderHold:
		return fmt.Sprintf("%d hold", src)
	case OrderAssist:
		return fmt.Sprintf("%d assist %d", src, o.To)
	case OrderAttack:
		return fmt.Sprintf("%d attack %d", src, o.To)
	default:
		return fmt.Sprintf("%d %s %d", src, o.Type, o.To)
	}
}
