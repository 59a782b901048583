// Package moments computes exact mean, variance and skewness of hit damage,
// multi-hit actions and whole rotations.
//
// Independent sums are combined through cumulants: means, variances and third
// cumulants add, and skewness is recomputed from the combined values. A set whose
// variance is zero (deterministic damage) has skewness 0.
package moments

import (
	"math"

	"github.com/rewired-gh/dmgvar/internal/mixture"
	"github.com/rewired-gh/dmgvar/internal/models"
)

// relativeVarianceFloor is the variance, relative to the squared mean, below which
// a set is treated as deterministic.
const relativeVarianceFloor = 1e-18

// Set holds the first three moments of a damage random variable.
type Set struct {
	Mean     float64
	Variance float64
	Skewness float64
}

// FromCumulants builds a Set from the mean, variance and third cumulant.
func FromCumulants(mean, variance, third float64) Set {
	s := Set{Mean: mean, Variance: variance}
	if variance > relativeVarianceFloor*math.Max(1, mean*mean) {
		s.Skewness = third / math.Pow(variance, 1.5)
	}
	return s
}

// StdDev returns the standard deviation.
func (s Set) StdDev() float64 {
	if s.Variance <= 0 {
		return 0
	}
	return math.Sqrt(s.Variance)
}

// ThirdCumulant returns the third central moment.
func (s Set) ThirdCumulant() float64 {
	if s.Variance <= 0 {
		return 0
	}
	return s.Skewness * math.Pow(s.Variance, 1.5)
}

// Scale returns the moments of c·X. Skewness flips sign for negative c.
func (s Set) Scale(c float64) Set {
	out := Set{Mean: s.Mean * c, Variance: s.Variance * c * c, Skewness: s.Skewness}
	switch {
	case c < 0:
		out.Skewness = -s.Skewness
	case c == 0:
		out.Skewness = 0
	}
	return out
}

// PerSecond converts damage moments into damage-per-second moments over elapsed seconds.
func (s Set) PerSecond(elapsed float64) Set {
	return s.Scale(1 / elapsed)
}

// Record returns the persisted form of the set.
func (s Set) Record() models.Moments {
	return models.Moments{Mean: s.Mean, Variance: s.Variance, Skewness: s.Skewness}
}

// FromRecord restores a set from its persisted form.
func FromRecord(m models.Moments) Set {
	return Set{Mean: m.Mean, Variance: m.Variance, Skewness: m.Skewness}
}

// SingleHit returns the moments of one hit drawn from the mixture.
//
// The variance adds the between-component spread to the weighted component
// variances, and the third central moment adds the matching cross terms:
//
//	Var = Σ p_i (σ_i² + d_i²)
//	κ3  = Σ p_i (κ3_i + 3 σ_i² d_i + d_i³),  d_i = μ_i - μ
func SingleHit(m *mixture.Mixture) Set {
	var (
		means  [models.NumHitTypes]float64
		vars   [models.NumHitTypes]float64
		thirds [models.NumHitTypes]float64
		mean   float64
	)
	for i := range m.Components {
		c := &m.Components[i]
		means[i], vars[i], thirds[i] = c.Moments()
		mean += c.Weight * means[i]
	}

	var variance, third float64
	for i, c := range m.Components {
		if c.Weight == 0 {
			continue
		}
		d := means[i] - mean
		variance += c.Weight * (vars[i] + d*d)
		third += c.Weight * (thirds[i] + 3*vars[i]*d + d*d*d)
	}
	return FromCumulants(mean, variance, third)
}

// MultiHit returns the moments of the sum of n independent hits with moments s.
func MultiHit(s Set, n int) Set {
	if n <= 0 {
		return Set{}
	}
	k := float64(n)
	out := Set{Mean: k * s.Mean, Variance: k * s.Variance}
	if out.Variance > 0 {
		out.Skewness = s.Skewness / math.Sqrt(k)
	}
	return out
}

// CombineIndependent returns the moments of the sum of independent variables.
func CombineIndependent(sets ...Set) Set {
	var mean, variance, third float64
	for _, s := range sets {
		mean += s.Mean
		variance += s.Variance
		third += s.ThirdCumulant()
	}
	return FromCumulants(mean, variance, third)
}

// Action returns the moments of all hits of one action row.
func Action(a models.Action, opts mixture.Options) Set {
	return MultiHit(SingleHit(mixture.New(a, opts)), a.Hits)
}

// SkewNormal holds the location, scale and shape of a skew-normal distribution.
type SkewNormal struct {
	Alpha float64
	Omega float64
	Xi    float64
}

// maxSkewNormalSkewness is just below the largest skewness a skew-normal
// distribution can reach.
const maxSkewNormalSkewness = 0.99

// SkewNormalParams matches a skew-normal distribution to the set by the method of moments.
// Skewness beyond the skew-normal range is clamped.
func SkewNormalParams(s Set) SkewNormal {
	gamma := math.Max(-maxSkewNormalSkewness, math.Min(maxSkewNormalSkewness, s.Skewness))

	g := math.Pow(math.Abs(gamma), 2.0/3.0)
	k := math.Pow((4-math.Pi)/2, 2.0/3.0)
	delta := math.Sqrt(math.Pi / 2 * g / (g + k))
	if gamma < 0 {
		delta = -delta
	}

	alpha := delta / math.Sqrt(1-delta*delta)
	omega := math.Sqrt(s.Variance / (1 - 2*delta*delta/math.Pi))
	xi := s.Mean - omega*delta*math.Sqrt(2/math.Pi)
	return SkewNormal{Alpha: alpha, Omega: omega, Xi: xi}
}
