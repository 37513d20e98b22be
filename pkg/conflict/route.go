package conflict

import "sort"

// Route is an undirected traversal edge between two territories.
type Route struct {
	A             int  `json:"a"`
	B             int  `json:"b"`
	Destroyed     bool `json:"destroyed,omitempty"`
	DisabledTurns int  `json:"disabledTurns,omitempty"`
}

// Usable reports whether orders may travel along the route this turn.
func (r Route) Usable() bool {
	return !r.Destroyed && r.DisabledTurns <= 0
}

// Touches reports whether the route has the territory as an endpoint.
func (r Route) Touches(id int) bool {
	return r.A == id || r.B == id
}

// Other returns the endpoint opposite id.
func (r Route) Other(id int) int {
	if r.A == id {
		return r.B
	}
	return r.A
}

type routeKey struct{ lo, hi int }

func keyFor(a, b int) routeKey {
	if a > b {
		a, b = b, a
	}
	return routeKey{a, b}
}

// RouteSet indexes routes by their unordered endpoint pair.
type RouteSet struct {
	routes map[routeKey]*Route
}

// NewRouteSet copies the given routes into an index. Duplicated pairs are merged,
// keeping the most restrictive state.
func NewRouteSet(list []Route) *RouteSet {
	rs := &RouteSet{routes: make(map[routeKey]*Route, len(list))}
	for _, r := range list {
		k := keyFor(r.A, r.B)
		if existing, ok := rs.routes[k]; ok {
			existing.Destroyed = existing.Destroyed || r.Destroyed
			existing.DisabledTurns = max(existing.DisabledTurns, r.DisabledTurns)
			continue
		}
		cp := Route{A: k.lo, B: k.hi, Destroyed: r.Destroyed, DisabledTurns: r.DisabledTurns}
		rs.routes[k] = &cp
	}
	return rs
}

// Get returns the route between a and b, checked in both directions.
func (rs *RouteSet) Get(a, b int) (Route, bool) {
	r, ok := rs.routes[keyFor(a, b)]
	if !ok {
		return Route{}, false
	}
	return *r, true
}

// Usable reports whether a usable route joins a and b.
func (rs *RouteSet) Usable(a, b int) bool {
	r, ok := rs.Get(a, b)
	return ok && r.Usable()
}

// Neighbors returns the ids reachable from id over usable routes, ascending.
func (rs *RouteSet) Neighbors(id int) []int {
	var out []int
	for _, r := range rs.routes {
		if r.Touches(id) && r.Usable() {
			out = append(out, r.Other(id))
		}
	}
	sort.Ints(out)
	return out
}

// Disable blocks every route touching id for at least turns turns.
func (rs *RouteSet) Disable(id, turns int) int {
	n := 0
	for _, r := range rs.routes {
		if r.Touches(id) && !r.Destroyed {
			if turns > r.DisabledTurns {
				r.DisabledTurns = turns
			}
			n++
		}
	}
	return n
}

// Destroy permanently removes the route between a and b from play.
func (rs *RouteSet) Destroy(a, b int) bool {
	r, ok := rs.routes[keyFor(a, b)]
	if !ok || r.Destroyed {
		return false
	}
	r.Destroyed = true
	return true
}

// Touching returns the routes with id as an endpoint, in stable order.
func (rs *RouteSet) Touching(id int) []Route {
	var out []Route
	for _, r := range rs.routes {
		if r.Touches(id) {
			out = append(out, *r)
		}
	}
	sortRoutes(out)
	return out
}

func (rs *RouteSet) tick() {
	for _, r := range rs.routes {
		if r.DisabledTurns > 0 {
			r.DisabledTurns--
		}
	}
}

// List returns the routes sorted by endpoints.
func (rs *RouteSet) List() []Route {
	out := make([]Route, 0, len(rs.routes))
	for _, r := range rs.routes {
		out = append(out, *r)
	}
	sortRoutes(out)
	return out
}

func sortRoutes(rs []Route) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].A != rs[j].A {
			return rs[i].A < rs[j].A
		}
		return rs[i].B < rs[j].B
	})
}
