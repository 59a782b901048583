package dist

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/rewired-gh/dmgvar/internal/models"
	"github.com/rewired-gh/dmgvar/internal/moments"
)

// Grid is a probability mass function on an evenly spaced support.
// Point i sits at (Origin+i)*Step and carries Mass[i].
type Grid struct {
	Origin int
	Step   float64
	Mass   []float64
}

// Point returns a grid holding all mass at x, rounded to the nearest point of the step.
func Point(x, step float64) (*Grid, error) {
	if err := checkStep(step); err != nil {
		return nil, err
	}
	if err := checkIndex(x, step); err != nil {
		return nil, err
	}
	return &Grid{Origin: int(math.Round(x / step)), Step: step, Mass: []float64{1}}, nil
}

// maxIndex bounds absolute grid indices so that they stay exact in float64
// and cannot overflow int when offsets are added.
const maxIndex = 1 << 52

func checkStep(step float64) error {
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return fmt.Errorf("grid step must be positive and finite, got %v", step)
	}
	return nil
}

func checkIndex(x, step float64) error {
	if v := math.Abs(x / step); !(v <= maxIndex) {
		return fmt.Errorf("%w: value %v at step %v is out of index range", ErrGridTooLarge, x, step)
	}
	return nil
}

func FromRecord(r *models.GridRecord) *Grid {
	mass := make([]float64, len(r.Mass))
	copy(mass, r.Mass)
	return &Grid{Origin: r.Origin, Step: r.Step, Mass: mass}
}

// Record returns the persisted form of the grid.
func (g *Grid) Record() *models.GridRecord {
	mass := make([]float64, len(g.Mass))
	copy(mass, g.Mass)
	return &models.GridRecord{Origin: g.Origin, Step: g.Step, Mass: mass}
}

// Len returns the number of support points.
func (g *Grid) Len() int {
	return len(g.Mass)
}

// X returns the damage value of point i.
func (g *Grid) X(i int) float64 {
	return float64(g.Origin+i) * g.Step
}

// Min returns the smallest support value.
func (g *Grid) Min() float64 {
	return g.X(0)
}

// Max returns the largest support value.
func (g *Grid) Max() float64 {
	return g.X(len(g.Mass) - 1)
}

// Support returns every support value in increasing order.
func (g *Grid) Support() []float64 {
	x := make([]float64, len(g.Mass))
	for i := range x {
		x[i] = g.X(i)
	}
	return x
}

// Probabilities returns the mass at each support point. The slice is shared with the grid.
func (g *Grid) Probabilities() []float64 {
	return g.Mass
}

// Total returns the sum of all mass.
func (g *Grid) Total() float64 {
	return floats.Sum(g.Mass)
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	mass := make([]float64, len(g.Mass))
	copy(mass, g.Mass)
	return &Grid{Origin: g.Origin, Step: g.Step, Mass: mass}
}

// Normalize rescales the mass to sum to 1. A grid without positive mass is left unchanged.
func (g *Grid) Normalize() {
	total := g.Total()
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return
	}
	floats.Scale(1/total, g.Mass)
}

// Moments returns the mean, variance and skewness of the grid.
func (g *Grid) Moments() moments.Set {
	x := g.Support()
	mean, variance := stat.PopMeanVariance(x, g.Mass)
	third := stat.MomentAbout(3, x, mean, g.Mass)
	return moments.FromCumulants(mean, variance, third)
}

// index returns the index of the last point at or below d, which may fall outside the grid.
func (g *Grid) index(d float64) int {
	pos := d / g.Step
	k := math.Floor(pos)
	// absorb rounding in d that lands a hair below a support point
	if pos-k > 1-1e-9 {
		k++
	}
	return int(k) - g.Origin
}

// CDF returns P(X <= d).
func (g *Grid) CDF(d float64) float64 {
	i := g.index(d)
	switch {
	case i < 0:
		return 0
	case i >= len(g.Mass)-1:
		return 1
	}
	return math.Min(1, floats.Sum(g.Mass[:i+1]))
}

// Survival returns P(X > d).
func (g *Grid) Survival(d float64) float64 {
	i := g.index(d)
	switch {
	case i < 0:
		return 1
	case i >= len(g.Mass)-1:
		return 0
	}
	return math.Min(1, floats.Sum(g.Mass[i+1:]))
}

// Quantile returns the smallest support value whose CDF reaches q.
func (g *Grid) Quantile(q float64) float64 {
	if len(g.Mass) == 0 {
		return math.NaN()
	}
	cum := floats.CumSum(make([]float64, len(g.Mass)), g.Mass)
	target := q * cum[len(cum)-1]
	for i, c := range cum {
		if c >= target {
			return g.X(i)
		}
	}
	return g.Max()
}

// Density returns the mass at each point divided by the step, an approximation of
// the probability density for plotting.
func (g *Grid) Density() []float64 {
	d := make([]float64, len(g.Mass))
	floats.AddScaled(d, 1/g.Step, g.Mass)
	return d
}

// Trim drops leading and trailing points until at most tail/2 mass is removed from
// each side, then renormalizes. Exact zeros at either end are always dropped. At
// least one point is kept.
func (g *Grid) Trim(tail float64) {
	if len(g.Mass) == 0 {
		return
	}
	limit := math.Max(0, tail/2)

	lo, cut := 0, 0.0
	for lo < len(g.Mass)-1 && cut+g.Mass[lo] <= limit {
		cut += g.Mass[lo]
		lo++
	}
	hi, cut := len(g.Mass)-1, 0.0
	for hi > lo && cut+g.Mass[hi] <= limit {
		cut += g.Mass[hi]
		hi--
	}

	if lo > 0 || hi < len(g.Mass)-1 {
		g.Mass = g.Mass[lo : hi+1 : hi+1]
		g.Origin += lo
	}
	if tail > 0 {
		g.Normalize()
	}
}

// Rebin moves the grid onto a coarser step. Each point's mass is split linearly
// between the two nearest points of the new grid, which preserves the mean.
func (g *Grid) Rebin(step float64) (*Grid, error) {
	if err := checkStep(step); err != nil {
		return nil, err
	}
	if step == g.Step || len(g.Mass) == 0 {
		return g.Clone(), nil
	}
	if err := checkIndex(g.Min(), step); err != nil {
		return nil, err
	}
	if err := checkIndex(g.Max(), step); err != nil {
		return nil, err
	}

	origin := int(math.Floor(g.Min() / step))
	last := int(math.Floor(g.Max()/step)) + 1
	mass := make([]float64, last-origin+1)
	for i, m := range g.Mass {
		if m == 0 {
			continue
		}
		pos := g.X(i) / step
		k := math.Floor(pos)
		frac := pos - k
		j := int(k) - origin
		mass[j] += m * (1 - frac)
		mass[j+1] += m * frac
	}

	out := &Grid{Origin: origin, Step: step, Mass: mass}
	out.Trim(0)
	return out, nil
}

// Scaled returns the distribution of factor·X for a positive factor. Only the step changes.
func (g *Grid) Scaled(factor float64) *Grid {
	out := g.Clone()
	out.Step *= factor
	return out
}

// Reflect returns the distribution of -X.
func (g *Grid) Reflect() *Grid {
	n := len(g.Mass)
	mass := make([]float64, n)
	for i, m := range g.Mass {
		mass[n-1-i] = m
	}
	return &Grid{Origin: -(g.Origin + n - 1), Step: g.Step, Mass: mass}
}
