package conflict

import (
	"errors"
	"math"
	"sort"
)

// Owner identifies who controls a territory.
type Owner int

const (
	Neutral   Owner = 0
	PlayerOne Owner = 1 // the human side
	PlayerTwo Owner = 2 // the AI side
)

func (o Owner) String() string {
	switch o {
	case Neutral:
		return "neutral"
	case PlayerOne:
		return "player"
	case PlayerTwo:
		return "ai"
	default:
		return "owner"
	}
}

// ErrUnknownTerritory is returned when a territory id is not in the table.
var ErrUnknownTerritory = errors.New("unknown territory")

// Vec3 is a plain position record. Positions cross the worker boundary as {x,y,z}.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Territory (an enclave) is a map unit holding a force count.
// Ids are positive; 0 means "no territory" in map cells.
type Territory struct {
	ID       int            `json:"id"`
	Owner    Owner          `json:"owner"`
	Forces   float64        `json:"forces"`
	Position Vec3           `json:"position"`
	Effects  []ActiveEffect `json:"effects,omitempty"`
	Domain   string         `json:"domain,omitempty"`
}

// Clone returns a copy whose effect list can be changed independently.
func (t Territory) Clone() Territory {
	c := t
	if t.Effects != nil {
		c.Effects = make([]ActiveEffect, len(t.Effects))
		for i, e := range t.Effects {
			c.Effects[i] = e.Clone()
		}
	}
	return c
}

// Territories is the index-keyed territory table used during resolution.
type Territories map[int]Territory

// NewTerritories builds a table from a slice. Later duplicates win.
func NewTerritories(list []Territory) Territories {
	ts := make(Territories, len(list))
	for _, t := range list {
		ts[t.ID] = t.Clone()
	}
	return ts
}

// Clone deep-copies the table.
func (ts Territories) Clone() Territories {
	c := make(Territories, len(ts))
	for id, t := range ts {
		c[id] = t.Clone()
	}
	return c
}

// IDs returns the territory ids in ascending order. Every pass iterates in this
// order so resolution does not depend on map iteration.
func (ts Territories) IDs() []int {
	ids := make([]int, 0, len(ts))
	for id := range ts {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// List returns the territories sorted by id.
func (ts Territories) List() []Territory {
	out := make([]Territory, 0, len(ts))
	for _, id := range ts.IDs() {
		out = append(out, ts[id])
	}
	return out
}

// CountOwned returns how many territories the owner controls.
func (ts Territories) CountOwned(owner Owner) int {
	n := 0
	for _, t := range ts {
		if t.Owner == owner {
			n++
		}
	}
	return n
}

// normalize enforces the territory invariants: forces are whole numbers in
// [0, cap] and a territory without forces has no owner.
func normalize(t Territory, cap float64) Territory {
	f := math.Round(t.Forces)
	if f < 0 || math.IsNaN(f) {
		f = 0
	}
	if f > cap {
		f = cap
	}
	t.Forces = f
	if f == 0 {
		t.Owner = Neutral
	}
	return t
}

// normalizeAll applies normalize to every territory in the table.
func (ts Territories) normalizeAll(cap float64) {
	for id, t := range ts {
		ts[id] = normalize(t, cap)
	}
}
