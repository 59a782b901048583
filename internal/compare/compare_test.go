package compare

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/dmgvar/internal/dist"
	"github.com/rewired-gh/dmgvar/internal/models"
	"github.com/rewired-gh/dmgvar/internal/moments"
)

func TestMoments(t *testing.T) {
	d := Moments("Glare III", moments.Set{Mean: 100, Variance: 25}, moments.Set{Mean: 110, Variance: 75})
	assert.Equal(t, "Glare III", d.Name)
	assert.InDelta(t, 10, d.Difference, 1e-12)
	assert.InDelta(t, 0.1, d.Relative, 1e-12)
	assert.InDelta(t, 1, d.Z, 1e-12)
	assert.Equal(t, Increase, d.Direction)

	d = Moments("x", moments.Set{Mean: 110, Variance: 75}, moments.Set{Mean: 100, Variance: 25})
	assert.InDelta(t, -1, d.Z, 1e-12)
	assert.Equal(t, Decrease, d.Direction)
}

func TestMomentsDeterministic(t *testing.T) {
	d := Moments("x", moments.Set{Mean: 100}, moments.Set{Mean: 100})
	assert.Equal(t, Unchanged, d.Direction)
	assert.Zero(t, d.Z)

	d = Moments("x", moments.Set{Mean: 100}, moments.Set{Mean: 120})
	assert.True(t, math.IsInf(d.Z, 1))

	d = Moments("x", moments.Set{}, moments.Set{Mean: 5, Variance: 4})
	assert.Zero(t, d.Relative)
	assert.InDelta(t, 2.5, d.Z, 1e-12)
}

func TestProbabilityGreater(t *testing.T) {
	engine := dist.NewEngine(dist.DefaultOptions())

	p, err := ProbabilityGreater(engine, point(t, 100, 10), point(t, 110, 10))
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)

	p, err = ProbabilityGreater(engine, point(t, 110, 10), point(t, 100, 10))
	require.NoError(t, err)
	assert.Zero(t, p)

	p, err = ProbabilityGreater(engine, point(t, 100, 10), point(t, 100, 10))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-12)

	symmetric := &dist.Grid{Origin: 1, Step: 10, Mass: []float64{0.25, 0.5, 0.25}}
	p, err = ProbabilityGreater(engine, symmetric, symmetric.Clone())
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-12)

	// candidate - baseline is 0, 10 or 20 with mass 0.25, 0.5, 0.25
	baseline := &dist.Grid{Origin: 0, Step: 10, Mass: []float64{0.5, 0.5}}
	candidate := &dist.Grid{Origin: 1, Step: 10, Mass: []float64{0.5, 0.5}}
	p, err = ProbabilityGreater(engine, baseline, candidate)
	require.NoError(t, err)
	assert.InDelta(t, 0.875, p, 1e-12)
}

func TestProbabilityGreaterRebins(t *testing.T) {
	engine := dist.NewEngine(dist.DefaultOptions())
	p, err := ProbabilityGreater(engine, point(t, 100, 10), point(t, 150, 50))
	require.NoError(t, err)
	assert.InDelta(t, 1, p, 1e-12)

	_, err = ProbabilityGreater(engine, nil, point(t, 150, 50))
	assert.ErrorIs(t, err, ErrInvalidRun)
}

func testRuns() (*models.Run, *models.Run) {
	baseline := &models.Run{
		ID:      "baseline",
		Elapsed: 10,
		Total:   models.Moments{Mean: 1000, Variance: 400},
		Groups: []models.GroupRecord{
			{Name: "A", Moments: models.Moments{Mean: 500, Variance: 100}},
			{Name: "B", Moments: models.Moments{Mean: 500, Variance: 300}},
		},
		Grid: &models.GridRecord{Origin: 0, Step: 100, Mass: []float64{0.5, 0.5}},
	}
	candidate := &models.Run{
		ID:      "candidate",
		Elapsed: 10,
		Total:   models.Moments{Mean: 1200, Variance: 500},
		Groups: []models.GroupRecord{
			{Name: "A", Moments: models.Moments{Mean: 700, Variance: 200}},
			{Name: "C", Moments: models.Moments{Mean: 500, Variance: 300}},
		},
		Grid: &models.GridRecord{Origin: 1, Step: 100, Mass: []float64{0.5, 0.5}},
	}
	return baseline, candidate
}

func TestRuns(t *testing.T) {
	baseline, candidate := testRuns()
	report, err := Runs(nil, baseline, candidate)
	require.NoError(t, err)

	assert.Equal(t, "baseline", report.BaselineID)
	assert.Equal(t, "candidate", report.CandidateID)

	// totals in damage per second: {100, 4} against {120, 5}
	assert.InDelta(t, 20, report.Total.Difference, 1e-9)
	assert.InDelta(t, 20.0/3, report.Total.Z, 1e-9)
	assert.InDelta(t, 0.2, report.Total.Relative, 1e-9)

	require.Len(t, report.Groups, 3)
	assert.Equal(t, []string{"B", "C", "A"}, []string{report.Groups[0].Name, report.Groups[1].Name, report.Groups[2].Name})
	assert.InDelta(t, -50/math.Sqrt(3), report.Groups[0].Z, 1e-9)
	assert.InDelta(t, 50/math.Sqrt(3), report.Groups[1].Z, 1e-9)
	assert.InDelta(t, 20/math.Sqrt(3), report.Groups[2].Z, 1e-9)
	assert.Equal(t, []string{"C"}, report.Added)
	assert.Equal(t, []string{"B"}, report.Removed)

	require.NotNil(t, report.ProbabilityGreater)
	assert.InDelta(t, 0.875, *report.ProbabilityGreater, 1e-9)

	significant := report.Significant(20)
	require.Len(t, significant, 2)
	assert.Equal(t, "B", significant[0].Name)
	assert.Equal(t, "C", significant[1].Name)
}

func TestRunsWithoutGrids(t *testing.T) {
	baseline, candidate := testRuns()
	candidate.Grid = nil
	report, err := Runs(nil, baseline, candidate)
	require.NoError(t, err)
	assert.Nil(t, report.ProbabilityGreater)
}

func TestRunsErrors(t *testing.T) {
	baseline, candidate := testRuns()
	_, err := Runs(nil, nil, candidate)
	assert.ErrorIs(t, err, ErrInvalidRun)

	baseline.Elapsed = 0
	_, err = Runs(nil, baseline, candidate)
	assert.ErrorIs(t, err, ErrInvalidRun)
}

func point(t *testing.T, x, step float64) *dist.Grid {
	t.Helper()
	g, err := dist.Point(x, step)
	require.NoError(t, err)
	return g
}
