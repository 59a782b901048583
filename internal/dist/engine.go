// Package dist computes discretized damage distributions.
//
// A single hit is placed on an evenly spaced grid by linear binning: each damage
// value splits its probability between the two nearest grid points, so the grid
// keeps the exact mean and adds at most step²/4 of variance per hit. Sums of
// independent hits and actions are convolutions of grids, done directly for small
// grids and by FFT otherwise. After every convolution negative round-off is
// clamped, mass is renormalized and tails holding less than the configured tail
// mass are trimmed. The trimming is the only approximation beyond the grid step.
package dist

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/rewired-gh/dmgvar/internal/mixture"
)

var (
	// ErrGridTooLarge is returned when a grid would exceed the configured point limit.
	ErrGridTooLarge = errors.New("distribution grid exceeds point limit")
	// ErrStepMismatch is returned when convolving grids with different steps.
	ErrStepMismatch = errors.New("distribution grids have different steps")
	// ErrNoGrids is returned when combining an empty set of grids.
	ErrNoGrids = errors.New("no distribution grids to combine")
)

// directKernelMax is the shorter-grid length up to which direct convolution is
// always used, whatever the output length.
const directKernelMax = 32

// Options configure the engine.
type Options struct {
	// TailMass is the total probability that may be trimmed from the tails after each convolution.
	TailMass float64
	// MaxPoints bounds the length of any grid.
	MaxPoints int
	// FFTThreshold is the output length above which convolution uses FFT.
	FFTThreshold int
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		TailMass:     1e-12,
		MaxPoints:    1 << 22,
		FFTThreshold: 4096,
	}
}

// Engine builds and combines distribution grids. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	opts Options
}

// NewEngine creates an engine, filling unset options with defaults.
func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.TailMass < 0 {
		opts.TailMass = 0
	}
	if opts.MaxPoints <= 0 {
		opts.MaxPoints = def.MaxPoints
	}
	if opts.FFTThreshold <= 0 {
		opts.FFTThreshold = def.FFTThreshold
	}
	return &Engine{opts: opts}
}

// Options returns the engine options.
func (e *Engine) Options() Options {
	return e.opts
}

func (e *Engine) checkSize(n int) error {
	if n > e.opts.MaxPoints {
		return fmt.Errorf("%w: %d points, limit %d", ErrGridTooLarge, n, e.opts.MaxPoints)
	}
	return nil
}

// SingleHit discretizes one hit of the mixture onto a grid with the given step.
// The four components are superposed with their weights.
func (e *Engine) SingleHit(m *mixture.Mixture, step float64) (*Grid, error) {
	if err := checkStep(step); err != nil {
		return nil, err
	}

	lo, hi := m.Bounds()
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return nil, fmt.Errorf("mixture support [%v, %v] is not finite", lo, hi)
	}
	if (hi-lo)/step > float64(e.opts.MaxPoints) {
		return nil, fmt.Errorf("%w: support width %v at step %v", ErrGridTooLarge, hi-lo, step)
	}
	if err := checkIndex(lo, step); err != nil {
		return nil, err
	}
	if err := checkIndex(hi, step); err != nil {
		return nil, err
	}
	origin := int(math.Floor(lo/step)) - 1
	last := int(math.Ceil(hi/step)) + 1
	if err := e.checkSize(last - origin + 1); err != nil {
		return nil, err
	}

	g := &Grid{Origin: origin, Step: step, Mass: make([]float64, last-origin+1)}
	for i := range m.Components {
		c := &m.Components[i]
		if c.Weight == 0 {
			continue
		}
		switch {
		case c.IsLattice():
			w := c.Weight / float64(c.Size())
			for _, v := range c.Values() {
				g.splitPoint(v, w)
			}
		case c.High <= c.Low:
			g.splitPoint(c.Low, c.Weight)
		default:
			g.addUniform(c.Low, c.High, c.Weight)
		}
	}

	g.Normalize()
	g.Trim(0)
	return g, nil
}

// splitPoint adds mass w at x, split linearly between the neighbouring points.
func (g *Grid) splitPoint(x, w float64) {
	pos := x / g.Step
	k := math.Floor(pos)
	frac := pos - k
	j := int(k) - g.Origin
	g.Mass[j] += w * (1 - frac)
	if frac > 0 {
		g.Mass[j+1] += w * frac
	}
}

// addUniform adds mass w spread uniformly over [a, b]. Point j receives the
// integral of the uniform density against the triangular kernel centred on it,
// the continuous form of linear binning.
func (g *Grid) addUniform(a, b, w float64) {
	h := g.Step
	density := w / (b - a)
	first := int(math.Floor(a/h)) - 1
	last := int(math.Ceil(b/h)) + 1
	for k := first; k <= last; k++ {
		j := k - g.Origin
		if j < 0 || j >= len(g.Mass) {
			continue
		}
		xk := float64(k) * h
		g.Mass[j] += density * h * (hatCDF((b-xk)/h) - hatCDF((a-xk)/h))
	}
}

// hatCDF is the integral of the triangular kernel max(0, 1-|u|) up to u.
func hatCDF(u float64) float64 {
	switch {
	case u <= -1:
		return 0
	case u <= 0:
		return (u + 1) * (u + 1) / 2
	case u < 1:
		return 1 - (1-u)*(1-u)/2
	default:
		return 1
	}
}

// Convolve returns the distribution of the sum of two independent grids.
func (e *Engine) Convolve(a, b *Grid) (*Grid, error) {
	if math.Abs(a.Step-b.Step) > 1e-9*math.Max(a.Step, b.Step) {
		return nil, fmt.Errorf("%w: %v and %v", ErrStepMismatch, a.Step, b.Step)
	}
	n := len(a.Mass) + len(b.Mass) - 1
	if err := e.checkSize(n); err != nil {
		return nil, err
	}
	origin := a.Origin + b.Origin
	if int64(abs(origin)) > maxIndex || int64(abs(origin+n)) > maxIndex {
		return nil, fmt.Errorf("%w: origin %d is out of index range", ErrGridTooLarge, origin)
	}

	var mass []float64
	if n <= e.opts.FFTThreshold || min(len(a.Mass), len(b.Mass)) <= directKernelMax {
		mass = convolveDirect(a.Mass, b.Mass)
	} else {
		mass = convolveFFT(a.Mass, b.Mass)
	}

	g := &Grid{Origin: origin, Step: a.Step, Mass: mass}
	g.Normalize()
	g.Trim(e.opts.TailMass)
	return g, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func convolveDirect(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, x := range a {
		if x == 0 {
			continue
		}
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}

func convolveFFT(a, b []float64) []float64 {
	n := len(a) + len(b) - 1
	size := 1
	for size < n {
		size <<= 1
	}

	fft := fourier.NewFFT(size)
	pa := make([]float64, size)
	pb := make([]float64, size)
	copy(pa, a)
	copy(pb, b)

	ca := fft.Coefficients(nil, pa)
	cb := fft.Coefficients(nil, pb)
	for i := range ca {
		ca[i] *= cb[i]
	}
	seq := fft.Sequence(pa, ca)

	out := make([]float64, n)
	scale := 1 / float64(size)
	for i := range out {
		// round-off leaves tiny negative values where the true mass is zero
		out[i] = math.Max(0, seq[i]*scale)
	}
	return out
}

// MultiHit returns the distribution of the sum of n independent copies of g by
// repeated doubling. Zero hits is a point mass at 0.
func (e *Engine) MultiHit(g *Grid, n int) (*Grid, error) {
	if n <= 0 {
		return Point(0, g.Step)
	}

	var result *Grid
	base := g.Clone()
	for n > 0 {
		if n&1 == 1 {
			if result == nil {
				result = base.Clone()
			} else {
				next, err := e.Convolve(result, base)
				if err != nil {
					return nil, err
				}
				result = next
			}
		}
		n >>= 1
		if n > 0 {
			next, err := e.Convolve(base, base)
			if err != nil {
				return nil, err
			}
			base = next
		}
	}
	return result, nil
}

// CombineIndependent returns the distribution of the sum of independent grids.
// Grids are convolved pairwise as a balanced tree so partial sums stay similar in width.
func (e *Engine) CombineIndependent(grids ...*Grid) (*Grid, error) {
	if len(grids) == 0 {
		return nil, ErrNoGrids
	}

	level := make([]*Grid, len(grids))
	copy(level, grids)
	for len(level) > 1 {
		next := make([]*Grid, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			g, err := e.Convolve(level[i], level[i+1])
			if err != nil {
				return nil, err
			}
			next = append(next, g)
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0].Clone(), nil
}
