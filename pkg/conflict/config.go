package conflict

// Archetype carries the per-side bonuses chosen outside the engine.
// Territories in the side's home domain additionally receive HomeHoldBonus
// (the birthright).
type Archetype struct {
	HoldBonus        float64 `json:"holdBonus,omitempty"`
	AttackBonus      float64 `json:"attackBonus,omitempty"`
	AssistMultiplier float64 `json:"assistMultiplier,omitempty"`
	HomeHoldBonus    float64 `json:"homeHoldBonus,omitempty"`
}

// Config holds the engine tunables and the event catalogue.
type Config struct {
	SupplyCap        float64              `json:"supplyCap"`
	BaseProduction   float64              `json:"baseProduction"`
	AttackRatio      float64              `json:"attackRatio"`
	AssistMultiplier float64              `json:"assistMultiplier"`
	Archetypes       map[string]Archetype `json:"archetypes,omitempty"`
	Profiles         map[string]Profile   `json:"profiles,omitempty"`
}

// Default engine values.
const (
	DefaultSupplyCap        = 100
	DefaultBaseProduction   = 2
	DefaultAttackRatio      = 0.35
	DefaultAssistMultiplier = 0.5
)

// DefaultConfig returns the standard rules with the built-in catalogue.
func DefaultConfig() Config {
	return Config{
		SupplyCap:        DefaultSupplyCap,
		BaseProduction:   DefaultBaseProduction,
		AttackRatio:      DefaultAttackRatio,
		AssistMultiplier: DefaultAssistMultiplier,
		Archetypes: map[string]Archetype{
			"warlord":  {AttackBonus: 1},
			"steward":  {HoldBonus: 1},
			"diplomat": {AssistMultiplier: 0.6},
			"heir":     {HomeHoldBonus: 2},
		},
		Profiles: DefaultProfiles(),
	}
}

// withDefaults fills zero tunables so a partially specified config still resolves.
func (c Config) withDefaults() Config {
	if c.SupplyCap <= 0 {
		c.SupplyCap = DefaultSupplyCap
	}
	if c.BaseProduction == 0 {
		c.BaseProduction = DefaultBaseProduction
	}
	if c.AttackRatio <= 0 {
		c.AttackRatio = DefaultAttackRatio
	}
	if c.AssistMultiplier <= 0 {
		c.AssistMultiplier = DefaultAssistMultiplier
	}
	return c
}

// Sides maps owners to the archetype and legacy identifiers they play with.
type Sides struct {
	Archetypes  map[Owner]string `json:"archetypes,omitempty"`
	Legacies    map[Owner]string `json:"legacies,omitempty"`
	HomeDomains map[Owner]string `json:"homeDomains,omitempty"`
}

func (s Sides) archetype(cfg Config, o Owner) Archetype {
	key, ok := s.Archetypes[o]
	if !ok {
		return Archetype{}
	}
	return cfg.Archetypes[key]
}

// holdBonus is the extra production a territory receives from its owner's archetype.
func (s Sides) holdBonus(cfg Config, t Territory) float64 {
	a := s.archetype(cfg, t.Owner)
	bonus := a.HoldBonus
	if home := s.HomeDomains[t.Owner]; home != "" && home == t.Domain {
		bonus += a.HomeHoldBonus
	}
	return bonus
}

func (s Sides) attackBonus(cfg Config, o Owner) float64 {
	return s.archetype(cfg, o).AttackBonus
}

func (s Sides) assistMultiplier(cfg Config, o Owner) float64 {
	if m := s.archetype(cfg, o).AssistMultiplier; m > 0 {
		return m
	}
	return cfg.AssistMultiplier
}
