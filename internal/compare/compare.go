// Package compare measures how far apart two analyzed rotations are.
//
// Both runs are compared in damage per second, per group and in total. Each
// difference is scored against the spread of the two runs:
//
//	z = (μ_candidate - μ_baseline) / √(σ²_baseline + σ²_candidate)
//
// which is the standardized mean of candidate - baseline for independent runs.
// When both runs carry a distribution grid, ProbabilityGreater adds the chance that
// one pull of the candidate out-damages one pull of the baseline.
package compare

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rewired-gh/dmgvar/internal/dist"
	"github.com/rewired-gh/dmgvar/internal/logger"
	"github.com/rewired-gh/dmgvar/internal/models"
	"github.com/rewired-gh/dmgvar/internal/moments"
)

// ErrInvalidRun is returned for runs that cannot be compared.
var ErrInvalidRun = errors.New("invalid run")

// Direction of a change between two runs.
type Direction string

const (
	Increase  Direction = "increase"
	Decrease  Direction = "decrease"
	Unchanged Direction = "unchanged"
)

// minRelativeChange suppresses floating-point noise when classifying a direction.
const minRelativeChange = 1e-9

// Delta is the difference between the same quantity in two runs.
type Delta struct {
	Name      string
	Baseline  moments.Set
	Candidate moments.Set
	// Difference is the candidate mean minus the baseline mean.
	Difference float64
	// Relative is Difference over the baseline mean, 0 when the baseline mean is 0.
	Relative  float64
	Z         float64
	Direction Direction
}

// Moments compares two moment sets.
// Identical deterministic values score 0; differing deterministic values score ±Inf.
func Moments(name string, baseline, candidate moments.Set) Delta {
	d := Delta{
		Name:       name,
		Baseline:   baseline,
		Candidate:  candidate,
		Difference: candidate.Mean - baseline.Mean,
		Direction:  Unchanged,
	}
	if baseline.Mean != 0 {
		d.Relative = d.Difference / math.Abs(baseline.Mean)
	}

	scale := math.Max(math.Abs(baseline.Mean), math.Abs(candidate.Mean))
	if math.Abs(d.Difference) > minRelativeChange*math.Max(1, scale) {
		d.Direction = Increase
		if d.Difference < 0 {
			d.Direction = Decrease
		}
	}

	sigma := math.Sqrt(math.Max(0, baseline.Variance) + math.Max(0, candidate.Variance))
	switch {
	case sigma > 0:
		d.Z = d.Difference / sigma
	case d.Direction == Increase:
		d.Z = math.Inf(1)
	case d.Direction == Decrease:
		d.Z = math.Inf(-1)
	}
	return d
}

// ProbabilityGreater returns P(candidate > baseline) for independent draws, with
// ties counted half. Grids on different steps are rebinned onto the coarser one.
func ProbabilityGreater(engine *dist.Engine, baseline, candidate *dist.Grid) (float64, error) {
	if baseline == nil || candidate == nil || baseline.Len() == 0 || candidate.Len() == 0 {
		return 0, fmt.Errorf("%w: missing distribution", ErrInvalidRun)
	}
	if baseline.Step != candidate.Step {
		step := math.Max(baseline.Step, candidate.Step)
		var err error
		if baseline, err = baseline.Rebin(step); err != nil {
			return 0, err
		}
		if candidate, err = candidate.Rebin(step); err != nil {
			return 0, err
		}
	}

	diff, err := engine.Convolve(candidate, baseline.Reflect())
	if err != nil {
		return 0, err
	}

	var greater, ties float64
	for i, m := range diff.Mass {
		switch k := diff.Origin + i; {
		case k > 0:
			greater += m
		case k == 0:
			ties += m
		}
	}
	return math.Min(1, greater+ties/2), nil
}

// Report compares two runs.
type Report struct {
	BaselineID  string
	CandidateID string
	Total       Delta
	// Groups holds every group found in either run, ordered by |Z| descending.
	Groups []Delta
	// Added and Removed name groups present in only one run.
	Added   []string
	Removed []string
	// ProbabilityGreater is set when both runs carry a grid.
	ProbabilityGreater *float64
}

// Runs compares a candidate run against a baseline run in damage per second.
// A group missing from one run counts as zero damage there.
func Runs(engine *dist.Engine, baseline, candidate *models.Run) (*Report, error) {
	if baseline == nil || candidate == nil {
		return nil, fmt.Errorf("%w: nil run", ErrInvalidRun)
	}
	if baseline.Elapsed <= 0 || candidate.Elapsed <= 0 {
		return nil, fmt.Errorf("%w: elapsed time must be positive", ErrInvalidRun)
	}

	perSecond := func(r *models.Run, m models.Moments) moments.Set {
		return moments.FromRecord(m).PerSecond(r.Elapsed)
	}

	report := &Report{
		BaselineID:  baseline.ID,
		CandidateID: candidate.ID,
		Total:       Moments("total", perSecond(baseline, baseline.Total), perSecond(candidate, candidate.Total)),
	}

	base := make(map[string]models.Moments, len(baseline.Groups))
	for _, g := range baseline.Groups {
		base[g.Name] = g.Moments
	}
	seen := make(map[string]bool, len(candidate.Groups))
	for _, g := range candidate.Groups {
		seen[g.Name] = true
		b, ok := base[g.Name]
		if !ok {
			report.Added = append(report.Added, g.Name)
		}
		report.Groups = append(report.Groups, Moments(g.Name, perSecond(baseline, b), perSecond(candidate, g.Moments)))
	}
	for _, g := range baseline.Groups {
		if seen[g.Name] {
			continue
		}
		report.Removed = append(report.Removed, g.Name)
		report.Groups = append(report.Groups, Moments(g.Name, perSecond(baseline, g.Moments), moments.Set{}))
	}

	sort.SliceStable(report.Groups, func(i, j int) bool {
		zi, zj := math.Abs(report.Groups[i].Z), math.Abs(report.Groups[j].Z)
		if zi != zj {
			return zi > zj
		}
		return report.Groups[i].Name < report.Groups[j].Name
	})

	if baseline.Grid != nil && candidate.Grid != nil {
		if engine == nil {
			engine = dist.NewEngine(dist.DefaultOptions())
		}
		b := dist.FromRecord(baseline.Grid).Scaled(1 / baseline.Elapsed)
		c := dist.FromRecord(candidate.Grid).Scaled(1 / candidate.Elapsed)
		p, err := ProbabilityGreater(engine, b, c)
		if err != nil {
			return nil, fmt.Errorf("failed to compare distributions: %w", err)
		}
		report.ProbabilityGreater = &p
	}

	logger.Debug("compare: %d groups (%d added, %d removed), total z=%.3f",
		len(report.Groups), len(report.Added), len(report.Removed), report.Total.Z)
	return report, nil
}

// Significant returns the groups whose |Z| reaches minZ, keeping their order.
func (r *Report) Significant(minZ float64) []Delta {
	var out []Delta
	for _, d := range r.Groups {
		if math.Abs(d.Z) >= minZ {
			out = append(out, d)
		}
	}
	return out
}
