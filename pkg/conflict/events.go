package conflict

// EventKind classifies a TurnEvent.
type EventKind string

const (
	EventReinforced     EventKind = "reinforced"
	EventAssisted       EventKind = "assisted"
	EventConquest       EventKind = "conquest"
	EventNeutralized    EventKind = "neutralized"
	EventRepelled       EventKind = "repelled"
	EventDepleted       EventKind = "depleted"
	EventForceDamage    EventKind = "forceDamage"
	EventRouteDisabled  EventKind = "routeDisabled"
	EventRouteDestroyed EventKind = "routeDestroyed"
	EventPhaseChanged   EventKind = "phaseChanged"
	EventMarkerRetired  EventKind = "markerRetired"
	EventEffectExpired  EventKind = "effectExpired"
	EventOrderDropped   EventKind = "orderDropped"
)

// TurnEvent records something that happened during resolution. Presentation
// code picks dialog and effects from it; events are never modified once emitted.
type TurnEvent struct {
	Kind      EventKind  `json:"kind"`
	Territory int        `json:"territory,omitempty"`
	Source    int        `json:"source,omitempty"`
	Owner     Owner      `json:"owner,omitempty"`
	Previous  Owner      `json:"previous,omitempty"`
	Amount    float64    `json:"amount,omitempty"`
	Archetype string     `json:"archetype,omitempty"`
	Legacy    string     `json:"legacy,omitempty"`
	Profile   string     `json:"profile,omitempty"`
	Phase     EventPhase `json:"phase,omitempty"`
	Route     *Route     `json:"route,omitempty"`
	Detail    string     `json:"detail,omitempty"`
}

// AssetCue asks the presentation layer to play a phase's assets at a position.
type AssetCue struct {
	ProfileKey string     `json:"profileKey"`
	Phase      EventPhase `json:"phase"`
	Position   Vec3       `json:"position"`
	Sound      string     `json:"sound,omitempty"`
	Visual     string     `json:"visual,omitempty"`
	Dialog     string     `json:"dialog,omitempty"`
}

// tagged fills the archetype and legacy identity of owner into the event.
func (e TurnEvent) tagged(sides Sides, owner Owner) TurnEvent {
	if owner == Neutral {
		return e
	}
	e.Archetype = sides.Archetypes[owner]
	e.Legacy = sides.Legacies[owner]
	return e
}

func cueFor(key string, phase EventPhase, pos Vec3, a AssetKeys) AssetCue {
	return AssetCue{
		ProfileKey: key,
		Phase:      phase,
		Position:   pos,
		Sound:      a.Sound,
		Visual:     a.Visual,
		Dialog:     a.Dialog,
	}
}
