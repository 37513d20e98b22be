package conflict

import "math"

// Reinforcement is what an idle owned territory produces in a turn.
func Reinforcement(baseProduction, holdBonus, productionModifier float64) float64 {
	return math.Floor((baseProduction + holdBonus) * productionModifier)
}

// AssistTransfer is how many forces an assist order moves.
func AssistTransfer(forces, multiplier float64) float64 {
	return math.Ceil(forces * multiplier)
}

// AttackUnits is the detachment an attack order commits.
func AttackUnits(forces, ratio float64) float64 {
	return math.Ceil(forces * ratio)
}

// AttackPower converts a detachment into combat power.
func AttackPower(units, combatModifier, attackBonus float64) float64 {
	return math.Floor(units*combatModifier) + 1 + attackBonus
}

// Modifiers are the aggregated multipliers active on one territory.
type Modifiers struct {
	Combat     float64 `json:"combat"`
	Production float64 `json:"production"`
}

// ModifiersOf multiplies every statModifier rule on the territory's effects.
func ModifiersOf(t Territory) Modifiers {
	m := Modifiers{Combat: 1, Production: 1}
	for _, e := range t.Effects {
		for _, r := range e.Rules {
			if r.Type != RuleStatModifier {
				continue
			}
			switch r.Stat {
			case StatCombat:
				m.Combat *= r.Value.Min
			case StatProduction:
				m.Production *= r.Value.Min
			}
		}
	}
	return m
}

// holdYield is the reinforcement a territory would receive under Hold.
func holdYield(t Territory, cfg Config, sides Sides) float64 {
	return Reinforcement(cfg.BaseProduction, sides.holdBonus(cfg, t), ModifiersOf(t).Production)
}

// assistYield is the transfer a territory would send under Assist.
func assistYield(t Territory, cfg Config, sides Sides) float64 {
	return AssistTransfer(t.Forces, sides.assistMultiplier(cfg, t.Owner))
}

// attackerFrom builds the combat record of a territory attacking this turn.
func attackerFrom(t Territory, cfg Config, sides Sides) Attacker {
	return Attacker{
		Source:         t.ID,
		Owner:          t.Owner,
		Units:          AttackUnits(t.Forces, cfg.AttackRatio),
		CombatModifier: ModifiersOf(t).Combat,
		AttackBonus:    sides.attackBonus(cfg, t.Owner),
	}
}
