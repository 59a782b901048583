// Package mixture models the damage of a single hit as a four-component mixture.
//
// Each hit lands as one of the hit types (normal, critical, direct,
// critical-direct) with the probability taken from the action row. Given the
// hit type, damage is uniform over a damage-roll range scaled by the hit-type
// multiplier and the product of all buffs.
//
// Two roll models are available. Lattice reproduces the integer arithmetic of the
// game: every component is a finite set of equally likely integer damage values,
// obtained by flooring after each multiplication. Continuous treats each component
// as a real-valued uniform distribution over [low, high].
//
// No validation is performed. Weights are copied from the action row as is.
package mixture

import (
	"fmt"
	"math"
	"strings"

	"github.com/rewired-gh/dmgvar/internal/models"
)

// DirectHitMultiplier is the direct hit damage multiplier scaled by 100.
const DirectHitMultiplier = 125

// maxLatticeValues caps the number of values stored for one lattice component.
// Wider components are represented by the continuous model instead.
const maxLatticeValues = 1 << 22

// RollRange is the damage-roll multiplier range applied to each hit.
type RollRange struct {
	Low  float64
	High float64
}

// DefaultRollRange is the ±5% damage roll.
var DefaultRollRange = RollRange{Low: 0.95, High: 1.05}

// Model selects how a component's support is represented.
type Model int

const (
	// Lattice uses game-exact integer supports.
	Lattice Model = iota
	// Continuous uses real-valued uniform supports.
	Continuous
)

func (m Model) String() string {
	if m == Continuous {
		return "continuous"
	}
	return "lattice"
}

// ParseModel converts a configuration value into a Model.
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lattice":
		return Lattice, nil
	case "continuous":
		return Continuous, nil
	}
	return Lattice, fmt.Errorf("unknown roll model %q: must be lattice or continuous", s)
}

// Options configure mixture construction.
type Options struct {
	// Direct is the roll range for direct damage.
	Direct RollRange
	// DoT is the roll range for damage-over-time ticks.
	DoT   RollRange
	Model Model
}

// DefaultOptions returns the reference-level roll ranges with the lattice model.
func DefaultOptions() Options {
	return Options{
		Direct: DefaultRollRange,
		DoT:    DefaultRollRange,
		Model:  Lattice,
	}
}

// Component is the damage distribution of one hit type.
type Component struct {
	Hit    models.HitType
	Weight float64
	Low    float64
	High   float64

	// values holds every equally likely damage value of a lattice component.
	// It is nil for continuous components.
	values []float64
}

// IsLattice reports whether the component is a finite set of damage values.
func (c *Component) IsLattice() bool {
	return c.values != nil
}

// Values returns the damage values of a lattice component. The slice must not be modified.
func (c *Component) Values() []float64 {
	return c.values
}

// Size returns the number of equally likely values, or 0 for a continuous component.
func (c *Component) Size() int {
	return len(c.values)
}

// Moments returns the mean, variance and third central moment of the component.
func (c *Component) Moments() (mean, variance, third float64) {
	if !c.IsLattice() {
		width := c.High - c.Low
		return (c.Low + c.High) / 2, width * width / 12, 0
	}

	n := float64(len(c.values))
	for _, v := range c.values {
		mean += v
	}
	mean /= n
	for _, v := range c.values {
		d := v - mean
		variance += d * d
		third += d * d * d
	}
	return mean, variance / n, third / n
}

// Mixture is the damage of one hit of an action.
type Mixture struct {
	Components  [models.NumHitTypes]Component
	BuffProduct float64
	IsDoT       bool
	Model       Model
}

// New builds the mixture for a single hit of the action.
func New(a models.Action, opts Options) *Mixture {
	m := &Mixture{
		BuffProduct: a.BuffProduct(),
		IsDoT:       a.IsDoT,
		Model:       opts.Model,
	}

	roll := opts.Direct
	if a.IsDoT {
		roll = opts.DoT
	}

	for _, h := range models.HitTypes {
		c := Component{Hit: h, Weight: a.P[h]}
		if opts.Model == Lattice && latticeWidth(a, roll, h) <= maxLatticeValues {
			c.values = latticeValues(a, roll, h, m.BuffProduct)
			c.Low, c.High = minMax(c.values)
		} else {
			mult := continuousMultiplier(a.CritMultiplier, h) * a.D2 * m.BuffProduct
			c.Low, c.High = roll.Low*mult, roll.High*mult
		}
		m.Components[h] = c
	}
	return m
}

// Weights returns the mixture weights indexed by hit type.
func (m *Mixture) Weights() [models.NumHitTypes]float64 {
	var w [models.NumHitTypes]float64
	for i, c := range m.Components {
		w[i] = c.Weight
	}
	return w
}

// Bounds returns the lowest and highest damage reachable by a component with
// positive weight. When no component has positive weight all components count.
func (m *Mixture) Bounds() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, c := range m.Components {
		if c.Weight <= 0 {
			continue
		}
		lo = math.Min(lo, c.Low)
		hi = math.Max(hi, c.High)
	}
	if lo > hi {
		for _, c := range m.Components {
			lo = math.Min(lo, c.Low)
			hi = math.Max(hi, c.High)
		}
	}
	return lo, hi
}

// hitDamage applies the floored hit-type multiplier to a damage value.
func hitDamage(x float64, critMultiplier int, h models.HitType) float64 {
	switch h {
	case models.CriticalHit:
		return math.Floor(math.Floor(x*float64(critMultiplier)) / 1000)
	case models.DirectHit:
		return math.Floor(math.Floor(x*DirectHitMultiplier) / 100)
	case models.CriticalDirectHit:
		crit := math.Floor(math.Floor(x*float64(critMultiplier)) / 1000)
		return math.Floor(math.Floor(crit*DirectHitMultiplier) / 100)
	default:
		return x
	}
}

// rollBounds returns the inclusive integer roll range and the value it is rolled on.
// Direct damage rolls the hit-type damage, DoT ticks roll d2 itself.
func rollBounds(a models.Action, roll RollRange, h models.HitType) (lo, hi float64) {
	base := a.D2
	if !a.IsDoT {
		base = hitDamage(a.D2, a.CritMultiplier, h)
	}
	return math.Floor(roll.Low * base), math.Floor(roll.High * base)
}

func latticeWidth(a models.Action, roll RollRange, h models.HitType) float64 {
	lo, hi := rollBounds(a, roll, h)
	return hi - lo + 1
}

func latticeValues(a models.Action, roll RollRange, h models.HitType, buff float64) []float64 {
	lo, hi := rollBounds(a, roll, h)
	if hi < lo {
		hi = lo
	}

	values := make([]float64, 0, int(hi-lo)+1)
	for r := lo; r <= hi; r++ {
		x := r
		if a.IsDoT {
			x = hitDamage(r, a.CritMultiplier, h)
		}
		values = append(values, math.Floor(x*buff))
	}
	return values
}

func continuousMultiplier(critMultiplier int, h models.HitType) float64 {
	crit := float64(critMultiplier) / 1000
	direct := float64(DirectHitMultiplier) / 100
	switch h {
	case models.CriticalHit:
		return crit
	case models.DirectHit:
		return direct
	case models.CriticalDirectHit:
		return crit * direct
	default:
		return 1
	}
}

func minMax(values []float64) (lo, hi float64) {
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
