package conflict

import (
	"errors"
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"
)

// ActiveEffect is a modifier attached directly to a territory. Its duration
// counts down every turn regardless of any marker; a negative duration never
// expires.
type ActiveEffect struct {
	ProfileKey string     `json:"profileKey"`
	Phase      EventPhase `json:"phase"`
	Duration   int        `json:"duration"`
	Rules      []Rule     `json:"rules,omitempty"`
	MarkerID   string     `json:"markerId,omitempty"`
}

// Clone copies the effect including its rule slice.
func (e ActiveEffect) Clone() ActiveEffect {
	c := e
	if e.Rules != nil {
		c.Rules = append([]Rule(nil), e.Rules...)
	}
	return c
}

// Permanent reports whether the effect never expires.
func (e ActiveEffect) Permanent() bool { return e.Duration < 0 }

// newEffect builds an effect from a profile phase. statModifier values are
// drawn once here so every later read of the modifier sees the same number.
func newEffect(key string, phase EventPhase, duration int, rules []Rule, markerID string, rng *rand.Rand) ActiveEffect {
	resolved := make([]Rule, len(rules))
	for i, r := range rules {
		if r.Type == RuleStatModifier && r.Value.Min != r.Value.Max {
			r.Value = Fixed(r.Value.Roll(rng))
		}
		resolved[i] = r
	}
	return ActiveEffect{
		ProfileKey: key,
		Phase:      phase,
		Duration:   duration,
		Rules:      resolved,
		MarkerID:   markerID,
	}
}

// settleModifiers draws any statModifier that arrived as an unresolved range.
// Territories are visited in id order so a seeded rng gives the same board.
func (ts Territories) settleModifiers(rng *rand.Rand) {
	for _, id := range ts.IDs() {
		t := ts[id]
		for i := range t.Effects {
			for j, r := range t.Effects[i].Rules {
				if r.Type == RuleStatModifier && r.Value.Min != r.Value.Max {
					t.Effects[i].Rules[j].Value = Fixed(r.Value.Roll(rng))
				}
			}
		}
	}
}

// EventMarker is a site-anchored world event instance. Affected holds the
// territories inside Radius at creation or after its last move. Applied is the
// phase whose rules were last handed to the affected territories.
type EventMarker struct {
	ID         string     `json:"id"`
	ProfileKey string     `json:"profileKey"`
	Owner      Owner      `json:"owner,omitempty"`
	Phase      EventPhase `json:"phase"`
	Applied    EventPhase `json:"applied,omitempty"`
	Duration   int        `json:"duration"`
	Radius     int        `json:"radius"`
	Cell       int        `json:"cell"`
	Position   Vec3       `json:"position"`
	Heading    Vec3       `json:"heading"`
	Affected   []int      `json:"affected,omitempty"`
	Visited    []int      `json:"visited,omitempty"`
}

// Clone copies the marker including its slices.
func (m EventMarker) Clone() EventMarker {
	c := m
	c.Affected = append([]int(nil), m.Affected...)
	c.Visited = append([]int(nil), m.Visited...)
	return c
}

// NewEventMarker creates a marker for profile anchored at cell. Site selection
// belongs to the caller; this only snapshots the affected territories and rolls
// the first phase duration.
func NewEventMarker(p Profile, cell int, owner Owner, heading Vec3, wm *WorldMap, rng *rand.Rand) (EventMarker, error) {
	c, ok := wm.Cell(cell)
	if !ok {
		return EventMarker{}, ErrUnknownCell
	}
	spec, ok := p.Phase(p.Start)
	if !ok {
		return EventMarker{}, ErrUnknownPhase
	}
	return EventMarker{
		ID:         uuid.NewString(),
		ProfileKey: p.Key,
		Owner:      owner,
		Phase:      p.Start,
		Duration:   max(1, int(spec.Duration.Roll(rng))),
		Radius:     p.Radius,
		Cell:       cell,
		Position:   c.Position,
		Heading:    heading,
		Affected:   wm.TerritoriesWithin(cell, p.Radius),
		Visited:    []int{cell},
	}, nil
}

// ErrNoHazardSite is returned when there is no profile or no cell to spawn on.
var ErrNoHazardSite = errors.New("no hazard profile or cell available")

// SpawnHazard creates a neutral marker of a random profile on a random cell,
// heading in a random direction on the ground plane. Profiles are drawn in
// key order so a seeded rng always picks the same one.
func SpawnHazard(profiles map[string]Profile, wm *WorldMap, rng *rand.Rand) (EventMarker, error) {
	if len(profiles) == 0 || wm == nil || len(wm.Cells) == 0 {
		return EventMarker{}, ErrNoHazardSite
	}
	keys := make([]string, 0, len(profiles))
	for k := range profiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	p := profiles[keys[rng.Intn(len(keys))]]
	cell := wm.Cells[rng.Intn(len(wm.Cells))]
	angle := rng.Float64() * 2 * math.Pi
	return NewEventMarker(p, cell.ID, Neutral, Vec3{X: math.Cos(angle), Z: math.Sin(angle)}, wm, rng)
}

func (m EventMarker) visited(cell int) bool {
	for _, v := range m.Visited {
		if v == cell {
			return true
		}
	}
	return false
}
