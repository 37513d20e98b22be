package conflict

import "fmt"

// ValidationError describes why an order was dropped.
type ValidationError struct {
	Source  int
	Order   Order
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order %s: %s", e.Order.Describe(e.Source), e.Message)
}

// ValidateOrder checks whether the order issued from src is legal against the
// current territories and routes. Returns nil if valid.
func ValidateOrder(src int, order Order, ts Territories, routes *RouteSet) error {
	source, ok := ts[src]
	if !ok {
		return &ValidationError{src, order, "source territory does not exist"}
	}
	if source.Forces <= 0 {
		return &ValidationError{src, order, "source territory has no forces"}
	}
	if source.Owner == Neutral {
		return &ValidationError{src, order, "source territory has no owner"}
	}

	switch order.Type {
	case OrderHold:
		if order.To != 0 && order.To != src {
			return &ValidationError{src, order, "hold must target its own territory"}
		}
		return nil
	case OrderAssist, OrderAttack:
	default:
		return &ValidationError{src, order, "unknown order type"}
	}

	if order.To == src {
		return &ValidationError{src, order, "order targets its own territory"}
	}
	dest, ok := ts[order.To]
	if !ok {
		return &ValidationError{src, order, fmt.Sprintf("destination territory %d does not exist", order.To)}
	}
	if order.Type == OrderAssist && dest.Owner != source.Owner {
		return &ValidationError{src, order, "cannot assist a territory of another owner"}
	}
	if order.Type == OrderAttack && dest.Owner == source.Owner {
		return &ValidationError{src, order, "cannot attack an own territory"}
	}
	if routes == nil || !routes.Usable(src, order.To) {
		return &ValidationError{src, order, "no usable route"}
	}
	return nil
}

// ValidateOrders filters the merged player and AI order sets. Valid orders are
// returned partitioned by the set that issued them; a source present in both
// sets counts as player-issued. Orders are never repaired, only dropped.
func ValidateOrders(player, ai Orders, ts Territories, routes *RouteSet) (Orders, Orders, []ValidationError) {
	merged := MergeOrders(player, ai)
	validPlayer := make(Orders)
	validAI := make(Orders)
	var errs []ValidationError

	for _, src := range merged.Sources() {
		o := merged[src]
		if err := ValidateOrder(src, o, ts, routes); err != nil {
			errs = append(errs, *err.(*ValidationError))
			continue
		}
		if _, ok := player[src]; ok {
			validPlayer[src] = o
		} else {
			validAI[src] = o
		}
	}
	return validPlayer, validAI, errs
}

// PruneExhaustedAssists removes assist orders whose transfer would leave the
// source with fewer than one force. It returns the surviving set and the
// dropped sources, ascending.
func PruneExhaustedAssists(orders Orders, ts Territories, cfg Config, sides Sides) (Orders, []int) {
	cfg = cfg.withDefaults()
	kept := make(Orders, len(orders))
	var dropped []int
	for _, src := range orders.Sources() {
		o := orders[src]
		if o.Type == OrderAssist {
			t, ok := ts[src]
			if ok && t.Forces-assistYield(t, cfg, sides) < 1 {
				dropped = append(dropped, src)
				continue
			}
		}
		kept[src] = o
	}
	return kept, dropped
}
