package conflict

import (
	"errors"
	"sort"
)

var (
	ErrUnknownCell  = errors.New("unknown map cell")
	ErrUnknownPhase = errors.New("profile has no such phase")
)

// Cell is a map cell. Territory is 0 for cells that belong to no territory.
type Cell struct {
	ID        int   `json:"id"`
	Territory int   `json:"territory,omitempty"`
	Neighbors []int `json:"neighbors"`
	Position  Vec3  `json:"position"`
}

// WorldMap is the read-only cell graph produced by world generation.
type WorldMap struct {
	Cells []Cell `json:"cells"`

	index map[int]int
}

func (m *WorldMap) ensureIndex() {
	if m.index != nil && len(m.index) == len(m.Cells) {
		return
	}
	m.index = make(map[int]int, len(m.Cells))
	for i, c := range m.Cells {
		m.index[c.ID] = i
	}
}

// Cell returns the cell with the given id.
func (m *WorldMap) Cell(id int) (Cell, bool) {
	m.ensureIndex()
	i, ok := m.index[id]
	if !ok {
		return Cell{}, false
	}
	return m.Cells[i], true
}

// TerritoriesWithin returns the ids of territories that own at least one cell
// within radius steps of the start cell, found breadth-first. Ids are ascending.
func (m *WorldMap) TerritoriesWithin(start, radius int) []int {
	m.ensureIndex()
	if _, ok := m.index[start]; !ok {
		return nil
	}
	depth := map[int]int{start: 0}
	queue := []int{start}
	found := make(map[int]bool)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		c := m.Cells[m.index[cur]]
		if c.Territory != 0 {
			found[c.Territory] = true
		}
		if depth[cur] >= radius {
			continue
		}
		for _, n := range c.Neighbors {
			if _, seen := depth[n]; seen {
				continue
			}
			if _, ok := m.index[n]; !ok {
				continue
			}
			depth[n] = depth[cur] + 1
			queue = append(queue, n)
		}
	}
	out := make([]int, 0, len(found))
	for id := range found {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// TerritoryCells returns the cell ids that belong to a territory.
func (m *WorldMap) TerritoryCells(territory int) []int {
	var out []int
	for _, c := range m.Cells {
		if c.Territory == territory {
			out = append(out, c.ID)
		}
	}
	return out
}
