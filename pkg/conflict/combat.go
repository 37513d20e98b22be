package conflict

import (
	"math"
	"sort"
)

// Attacker is one detachment arriving at a contested territory.
type Attacker struct {
	Source         int     `json:"source"`
	Owner          Owner   `json:"owner"`
	Units          float64 `json:"units"`
	CombatModifier float64 `json:"combatModifier"`
	AttackBonus    float64 `json:"attackBonus"`
}

// Power is the detachment's combat power for the given number of units.
func (a Attacker) Power(units float64) float64 {
	return AttackPower(units, a.CombatModifier, a.AttackBonus)
}

// BattleOutcome classifies a battle result.
type BattleOutcome string

const (
	BattleUncontested BattleOutcome = "uncontested"
	BattleDefended    BattleOutcome = "defended"
	BattleConquered   BattleOutcome = "conquered"
	BattleAnnihilated BattleOutcome = "annihilated"
)

// Battle is the full result of resolving attacks on one territory.
type Battle struct {
	Outcome    BattleOutcome `json:"outcome"`
	Owner      Owner         `json:"owner"`
	Forces     float64       `json:"forces"`
	TotalPower float64       `json:"totalPower"`
	// Casualties holds the phase-one damage per attacker (same order as the
	// input) for multi-attacker battles; it always sums to the defender strength.
	Casualties []float64 `json:"casualties,omitempty"`
	// Survivors holds each attacker's units left after phase one.
	Survivors []float64 `json:"survivors,omitempty"`
}

// ResolveBattle settles a territory held by defender with strength d against
// every incoming detachment. Both the turn pipeline and the preview call this.
func ResolveBattle(defender Owner, d float64, attackers []Attacker) Battle {
	if len(attackers) == 0 {
		return Battle{Outcome: BattleUncontested, Owner: defender, Forces: d}
	}

	total := 0.0
	for _, a := range attackers {
		total += a.Power(a.Units)
	}

	if total <= d {
		rest := d - total
		owner := defender
		if rest <= 0 {
			owner = Neutral
		}
		return Battle{Outcome: BattleDefended, Owner: owner, Forces: rest, TotalPower: total}
	}

	if len(attackers) == 1 {
		surviving := attackers[0].Units - d
		if surviving > 0 {
			return Battle{
				Outcome:    BattleConquered,
				Owner:      attackers[0].Owner,
				Forces:     math.Max(1, surviving),
				TotalPower: total,
			}
		}
		return Battle{Outcome: BattleAnnihilated, Owner: Neutral, TotalPower: total}
	}

	b := melee(d, attackers)
	b.TotalPower = total
	return b
}

// DistributeCasualties splits damage d across detachments in proportion to
// their units. The rounding remainder is settled on the largest detachment
// (lowest index on a tie) so the result always sums to d. A negative remainder
// that would push that detachment below zero moves on to the next largest.
func DistributeCasualties(d float64, units []float64) []float64 {
	damage := make([]float64, len(units))
	sum := 0.0
	for _, u := range units {
		sum += u
	}
	if sum <= 0 || len(units) == 0 {
		return damage
	}
	applied := 0.0
	for i, u := range units {
		damage[i] = math.Round(d * (u / sum))
		applied += damage[i]
	}

	bySize := make([]int, len(units))
	for i := range bySize {
		bySize[i] = i
	}
	sort.SliceStable(bySize, func(a, b int) bool { return units[bySize[a]] > units[bySize[b]] })

	rem := d - applied
	if rem > 0 {
		damage[bySize[0]] += rem
		return damage
	}
	for _, i := range bySize {
		if rem == 0 {
			break
		}
		take := math.Min(-rem, damage[i])
		damage[i] -= take
		rem += take
	}
	return damage
}

type ownerGroup struct {
	owner Owner
	units float64
	power float64
}

// melee is the two-phase multi-attacker resolution: casualties from the
// defender first, then the surviving detachments fight each other by owner.
func melee(d float64, attackers []Attacker) Battle {
	units := make([]float64, len(attackers))
	for i, a := range attackers {
		units[i] = a.Units
	}
	damage := DistributeCasualties(d, units)

	survivors := make([]float64, len(attackers))
	groups := map[Owner]*ownerGroup{}
	for i, a := range attackers {
		left := a.Units - damage[i]
		if left < 0 {
			left = 0
		}
		survivors[i] = left
		if left <= 0 {
			continue
		}
		g, ok := groups[a.Owner]
		if !ok {
			g = &ownerGroup{owner: a.Owner}
			groups[a.Owner] = g
		}
		g.units += left
		g.power += a.Power(left)
	}

	b := Battle{Casualties: damage, Survivors: survivors}
	ranked := make([]*ownerGroup, 0, len(groups))
	for _, g := range groups {
		ranked = append(ranked, g)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].power != ranked[j].power {
			return ranked[i].power > ranked[j].power
		}
		return ranked[i].owner < ranked[j].owner
	})

	switch len(ranked) {
	case 0:
		b.Outcome, b.Owner = BattleAnnihilated, Neutral
		return b
	case 1:
		b.Outcome, b.Owner, b.Forces = BattleConquered, ranked[0].owner, math.Max(1, ranked[0].units)
		return b
	}

	top := ranked[0]
	otherPower, otherUnits := 0.0, 0.0
	for _, g := range ranked[1:] {
		otherPower += g.power
		otherUnits += g.units
	}
	remaining := top.units - otherUnits
	if top.power <= otherPower || remaining <= 0 {
		b.Outcome, b.Owner = BattleAnnihilated, Neutral
		return b
	}
	b.Outcome, b.Owner, b.Forces = BattleConquered, top.owner, math.Max(1, remaining)
	return b
}
