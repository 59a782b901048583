// Package rate derives hit-type probabilities and the critical damage multiplier
// from critical hit and direct hit stats at the reference level.
package rate

import (
	"fmt"
	"math"
	"strings"

	"github.com/rewired-gh/dmgvar/internal/level"
	"github.com/rewired-gh/dmgvar/internal/models"
)

// Guarantee forces the hit type of an action.
type Guarantee int

const (
	NoGuarantee Guarantee = iota
	GuaranteedCritical
	GuaranteedDirect
	GuaranteedCriticalDirect
)

func (g Guarantee) String() string {
	switch g {
	case GuaranteedCritical:
		return "critical"
	case GuaranteedDirect:
		return "direct"
	case GuaranteedCriticalDirect:
		return "critical-direct"
	default:
		return "none"
	}
}

// ParseGuarantee converts a table value into a Guarantee. Both the names and the
// numbers 0-3 are accepted.
func ParseGuarantee(s string) (Guarantee, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "none":
		return NoGuarantee, nil
	case "1", "critical":
		return GuaranteedCritical, nil
	case "2", "direct":
		return GuaranteedDirect, nil
	case "3", "critical-direct":
		return GuaranteedCriticalDirect, nil
	}
	return NoGuarantee, fmt.Errorf("invalid guaranteed hit type %q: allowed values are none, critical, direct, critical-direct", s)
}

// Rate holds the hit-rate stats of a character.
type Rate struct {
	CriticalHit int
	DirectHit   int

	mods level.Modifiers
}

// New creates a Rate at the reference level.
func New(criticalHit, directHit int) *Rate {
	return &Rate{CriticalHit: criticalHit, DirectHit: directHit, mods: level.Reference}
}

func (r *Rate) scaled(coeff float64, stat int) float64 {
	return coeff / float64(r.mods.Div) * float64(stat-r.mods.Sub)
}

// CritMultiplier returns the critical damage multiplier scaled by 1000 (l_c).
func (r *Rate) CritMultiplier() int {
	return int(math.Floor(r.scaled(200, r.CriticalHit) + 1400))
}

// CritProbability returns the probability of a critical hit.
func (r *Rate) CritProbability() float64 {
	return math.Floor(r.scaled(200, r.CriticalHit)+50) / 1000
}

// DirectHitProbability returns the probability of a direct hit.
func (r *Rate) DirectHitProbability() float64 {
	return math.Floor(r.scaled(550, r.DirectHit)) / 1000
}

// Probabilities returns the hit-type vector without buffs or guarantees.
func (r *Rate) Probabilities() [models.NumHitTypes]float64 {
	return r.HitTypeProbabilities(0, 0, NoGuarantee)
}

// HitTypeProbabilities returns [normal, critical, direct, critical-direct].
// critBonus and dhBonus are added to the base rates, e.g. 0.1 for a 10% rate buff.
// A guaranteed hit type overrides the matching rate with 1; a guaranteed
// critical-direct hit is a point mass. Rate bonuses granting extra damage to
// guaranteed hits are not modelled.
func (r *Rate) HitTypeProbabilities(critBonus, dhBonus float64, g Guarantee) [models.NumHitTypes]float64 {
	pc := round10(r.CritProbability() + critBonus)
	pd := round10(r.DirectHitProbability() + dhBonus)

	switch g {
	case GuaranteedCritical:
		pc = 1
	case GuaranteedDirect:
		pd = 1
	case GuaranteedCriticalDirect:
		return [models.NumHitTypes]float64{0, 0, 0, 1}
	}

	pcd := round10(pc * pd)
	return [models.NumHitTypes]float64{
		round10(1 - pc - pd + pcd),
		round10(pc - pcd),
		round10(pd - pcd),
		pcd,
	}
}

// round10 removes floating point drift; game rates carry at most six significant digits.
func round10(x float64) float64 {
	return math.Round(x*1e10) / 1e10
}
