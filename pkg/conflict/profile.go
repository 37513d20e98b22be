package conflict

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
)

// EventPhase is a step of a world event's lifecycle.
type EventPhase string

const (
	PhaseAlert     EventPhase = "alert"
	PhaseImpact    EventPhase = "impact"
	PhaseAftermath EventPhase = "aftermath"
)

// ProfileKind separates hazards from player-triggered abilities.
type ProfileKind string

const (
	KindDisaster ProfileKind = "disaster"
	KindGambit   ProfileKind = "gambit"
)

// RuleType names a declarative effect.
type RuleType string

const (
	RuleForceDamage             RuleType = "forceDamage"
	RuleRouteDisable            RuleType = "routeDisable"
	RuleRouteDestroy            RuleType = "routeDestroy"
	RuleStatModifier            RuleType = "statModifier"
	RuleDissipateOnNoMoveTarget RuleType = "dissipateOnNoMoveTarget"
	RuleApplyAftermathOnChance  RuleType = "applyAftermathOnChance"
)

// Stat is the quantity a statModifier rule scales.
type Stat string

const (
	StatCombat     Stat = "combat"
	StatProduction Stat = "production"
)

// NumberRange is either a fixed value or an inclusive [min,max] range. In JSON it
// is written as a plain number or a two-element array.
type NumberRange struct {
	Min float64
	Max float64
}

// Fixed returns a range holding a single value.
func Fixed(v float64) NumberRange { return NumberRange{Min: v, Max: v} }

// Between returns an inclusive range.
func Between(lo, hi float64) NumberRange { return NumberRange{Min: lo, Max: hi} }

// IsZero reports whether the range was never set.
func (n NumberRange) IsZero() bool { return n.Min == 0 && n.Max == 0 }

// Roll draws a value. Whole-number bounds draw an integer uniformly from the
// inclusive range; fractional bounds draw a float.
func (n NumberRange) Roll(rng *rand.Rand) float64 {
	lo, hi := n.Min, n.Max
	if hi < lo {
		lo, hi = hi, lo
	}
	if lo == hi {
		return lo
	}
	if lo == math.Trunc(lo) && hi == math.Trunc(hi) {
		return lo + float64(rng.Intn(int(hi-lo)+1))
	}
	return lo + rng.Float64()*(hi-lo)
}

func (n NumberRange) MarshalJSON() ([]byte, error) {
	if n.Min == n.Max {
		return json.Marshal(n.Min)
	}
	return json.Marshal([2]float64{n.Min, n.Max})
}

func (n *NumberRange) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		n.Min, n.Max = v, v
		return nil
	}
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("number range: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("number range: want [min,max], got %d values", len(pair))
	}
	n.Min, n.Max = pair[0], pair[1]
	return nil
}

// Rule is one declarative effect carried by a profile phase.
//
// Value is the damage for forceDamage and the multiplier for statModifier.
// Turns is the disable length for routeDisable and, on terminal rules, the
// lifetime of a granted statModifier. Chance gates routeDestroy and
// applyAftermathOnChance; zero means always.
type Rule struct {
	Type      RuleType    `json:"type"`
	Stat      Stat        `json:"stat,omitempty"`
	Value     NumberRange `json:"value,omitzero"`
	Turns     NumberRange `json:"turns,omitzero"`
	Permanent bool        `json:"permanent,omitempty"`
	Chance    float64     `json:"chance,omitempty"`
}

// AssetKeys names presentation assets queued for a phase. The engine never plays them.
type AssetKeys struct {
	Sound  string `json:"sound,omitempty"`
	Visual string `json:"visual,omitempty"`
	Dialog string `json:"dialog,omitempty"`
}

// PhaseSpec describes one phase of a profile.
type PhaseSpec struct {
	Duration NumberRange `json:"duration"`
	Next     EventPhase  `json:"next,omitempty"`
	Rules    []Rule      `json:"rules,omitempty"`
	Assets   AssetKeys   `json:"assets,omitzero"`
}

// Profile is a catalogue entry for a world event.
type Profile struct {
	Key    string                   `json:"key"`
	Kind   ProfileKind              `json:"kind"`
	Radius int                      `json:"radius"`
	Start  EventPhase               `json:"start"`
	Phases map[EventPhase]PhaseSpec `json:"phases"`
	Expire []Rule                   `json:"expire,omitempty"`
}

// Phase returns the spec for a phase of the profile.
func (p Profile) Phase(ph EventPhase) (PhaseSpec, bool) {
	s, ok := p.Phases[ph]
	return s, ok
}

// HasRule reports whether the phase carries a rule of the given type.
func (s PhaseSpec) HasRule(t RuleType) bool {
	return findRule(s.Rules, t) != nil
}

func findRule(rules []Rule, t RuleType) *Rule {
	for i := range rules {
		if rules[i].Type == t {
			return &rules[i]
		}
	}
	return nil
}

//go:embed profiles.json
var defaultProfilesJSON []byte

// DefaultProfiles returns the built-in event catalogue.
func DefaultProfiles() map[string]Profile {
	profiles, err := ParseProfiles(defaultProfilesJSON)
	if err != nil {
		panic(fmt.Sprintf("conflict: embedded profiles: %v", err))
	}
	return profiles
}

// ParseProfiles decodes a JSON array of profiles into a catalogue keyed by profile key.
func ParseProfiles(data []byte) (map[string]Profile, error) {
	var list []Profile
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	out := make(map[string]Profile, len(list))
	for _, p := range list {
		if p.Key == "" {
			return nil, fmt.Errorf("parse profiles: profile without key")
		}
		if p.Start == "" {
			p.Start = PhaseAlert
		}
		if _, ok := p.Phases[p.Start]; !ok {
			return nil, fmt.Errorf("parse profiles: %s has no %s phase", p.Key, p.Start)
		}
		out[p.Key] = p
	}
	return out, nil
}
