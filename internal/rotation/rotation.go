// Package rotation aggregates per-action damage into per-group and whole-rotation summaries.
//
// Every row of a rotation table is one action under one buff combination. Rows are
// grouped by base action, so "Glare III-buffA" and "Glare III-buffB" both count
// towards "Glare III". A Summary is built once from a fixed table and never mutated.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/dmgvar/internal/dist"
	"github.com/rewired-gh/dmgvar/internal/logger"
	"github.com/rewired-gh/dmgvar/internal/mixture"
	"github.com/rewired-gh/dmgvar/internal/models"
	"github.com/rewired-gh/dmgvar/internal/moments"
)

var (
	// ErrEmptyRotation is returned when building a summary without rows.
	ErrEmptyRotation = errors.New("rotation has no actions")
	// ErrUnknownGroup is returned when querying a group the summary does not contain.
	ErrUnknownGroup = errors.New("unknown action group")
	// ErrNoDistribution is returned by distribution queries on a moments-only summary.
	ErrNoDistribution = errors.New("summary was built without distributions")
)

// Options configure how a rotation is summarized.
type Options struct {
	Mixture mixture.Options
	Dist    dist.Options
	// ActionStep is the grid step used for single actions and groups.
	ActionStep float64
	// RotationStep is the grid step groups are rebinned to before the rotation total.
	RotationStep float64
	Separator    string
	// Elapsed is the fight duration in seconds used for DPS figures.
	Elapsed float64
	// Workers bounds concurrent action computations. Zero uses GOMAXPROCS.
	Workers     int
	MomentsOnly bool
}

// DefaultOptions returns the default summary options.
func DefaultOptions() Options {
	return Options{
		Mixture:      mixture.DefaultOptions(),
		Dist:         dist.DefaultOptions(),
		ActionStep:   10,
		RotationStep: 100,
		Separator:    DefaultSeparator,
		Elapsed:      1,
	}
}

// Validate checks that the options can produce a summary
func (o *Options) Validate() error {
	if o.Elapsed <= 0 {
		return errors.New("elapsed time must be positive")
	}
	if o.MomentsOnly {
		return nil
	}
	if o.ActionStep <= 0 {
		return errors.New("action step must be positive")
	}
	if o.RotationStep < o.ActionStep {
		return errors.New("rotation step must be at least the action step")
	}
	return nil
}

// ActionResult holds the statistics of one row.
type ActionResult struct {
	Action  models.Action
	Group   string
	Moments moments.Set
	// Grid is the damage distribution of all hits at the action step.
	Grid *dist.Grid
}

// GroupResult holds the statistics of one base action.
type GroupResult struct {
	Name    string
	Actions []string
	Moments moments.Set
	// Grid is the group damage distribution at the rotation step.
	Grid *dist.Grid
}

// Summary is the analyzed rotation.
type Summary struct {
	Actions   []ActionResult
	Groups    []GroupResult
	Total     moments.Set
	TotalGrid *dist.Grid
	Elapsed   float64

	index map[string]int
}

// Build analyzes every row of the rotation. Actions are computed concurrently and
// combined in table order, so the result does not depend on scheduling.
func Build(ctx context.Context, rows []models.Action, opts Options) (*Summary, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyRotation
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rotation options: %w", err)
	}

	started := time.Now()
	engine := dist.NewEngine(opts.Dist)
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	s := &Summary{
		Actions: make([]ActionResult, len(rows)),
		Elapsed: opts.Elapsed,
		index:   make(map[string]int),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := analyzeAction(rows[i], engine, opts)
			if err != nil {
				return fmt.Errorf("action %q: %w", rows[i].Name, err)
			}
			s.Actions[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	logger.Debug("Analyzed %d actions in %v", len(rows), time.Since(started))

	members := s.partition()

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for gi := range s.Groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return s.combineGroup(gi, members[gi], engine, opts)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	groupMoments := make([]moments.Set, len(s.Groups))
	for i := range s.Groups {
		groupMoments[i] = s.Groups[i].Moments
	}
	s.Total = moments.CombineIndependent(groupMoments...)

	if !opts.MomentsOnly {
		grids := make([]*dist.Grid, len(s.Groups))
		for i := range s.Groups {
			grids[i] = s.Groups[i].Grid
		}
		total, err := engine.CombineIndependent(grids...)
		if err != nil {
			return nil, fmt.Errorf("rotation total: %w", err)
		}
		s.TotalGrid = total
		logger.Debug("Rotation grid has %d points at step %v", total.Len(), total.Step)
	}

	logger.Debug("Built rotation summary with %d groups in %v", len(s.Groups), time.Since(started))
	return s, nil
}

func analyzeAction(a models.Action, engine *dist.Engine, opts Options) (ActionResult, error) {
	m := mixture.New(a, opts.Mixture)
	res := ActionResult{
		Action:  a,
		Group:   RowGroup(a, opts.Separator),
		Moments: moments.MultiHit(moments.SingleHit(m), a.Hits),
	}
	if opts.MomentsOnly {
		return res, nil
	}

	single, err := engine.SingleHit(m, opts.ActionStep)
	if err != nil {
		return res, err
	}
	res.Grid, err = engine.MultiHit(single, a.Hits)
	return res, err
}

// partition creates the groups in order of first appearance and returns the
// member action indices of each.
func (s *Summary) partition() [][]int {
	var members [][]int
	for i, a := range s.Actions {
		gi, ok := s.index[a.Group]
		if !ok {
			gi = len(s.Groups)
			s.index[a.Group] = gi
			s.Groups = append(s.Groups, GroupResult{Name: a.Group})
			members = append(members, nil)
		}
		s.Groups[gi].Actions = append(s.Groups[gi].Actions, a.Action.Name)
		members[gi] = append(members[gi], i)
	}
	return members
}

func (s *Summary) combineGroup(gi int, idx []int, engine *dist.Engine, opts Options) error {
	group := &s.Groups[gi]

	sets := make([]moments.Set, len(idx))
	for k, i := range idx {
		sets[k] = s.Actions[i].Moments
	}
	group.Moments = moments.CombineIndependent(sets...)
	if opts.MomentsOnly {
		return nil
	}

	grids := make([]*dist.Grid, len(idx))
	for k, i := range idx {
		grids[k] = s.Actions[i].Grid
	}
	combined, err := engine.CombineIndependent(grids...)
	if err != nil {
		return fmt.Errorf("group %q: %w", group.Name, err)
	}
	if group.Grid, err = combined.Rebin(opts.RotationStep); err != nil {
		return fmt.Errorf("group %q: %w", group.Name, err)
	}
	return nil
}

// Group returns the result of the named group.
func (s *Summary) Group(name string) (*GroupResult, error) {
	gi, ok := s.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, name)
	}
	return &s.Groups[gi], nil
}

// HasDistributions reports whether the summary carries distribution grids.
func (s *Summary) HasDistributions() bool {
	return s.TotalGrid != nil
}

// CDF returns P(total damage <= d).
func (s *Summary) CDF(d float64) (float64, error) {
	if s.TotalGrid == nil {
		return 0, ErrNoDistribution
	}
	return s.TotalGrid.CDF(d), nil
}

// Survival returns P(total damage > d).
func (s *Summary) Survival(d float64) (float64, error) {
	if s.TotalGrid == nil {
		return 0, ErrNoDistribution
	}
	return s.TotalGrid.Survival(d), nil
}

// Quantile returns the q-quantile of total damage.
func (s *Summary) Quantile(q float64) (float64, error) {
	if s.TotalGrid == nil {
		return 0, ErrNoDistribution
	}
	return s.TotalGrid.Quantile(q), nil
}

func (s *Summary) groupGrid(name string) (*dist.Grid, error) {
	g, err := s.Group(name)
	if err != nil {
		return nil, err
	}
	if g.Grid == nil {
		return nil, ErrNoDistribution
	}
	return g.Grid, nil
}

// GroupCDF returns P(group damage <= d).
func (s *Summary) GroupCDF(name string, d float64) (float64, error) {
	g, err := s.groupGrid(name)
	if err != nil {
		return 0, err
	}
	return g.CDF(d), nil
}

// GroupSurvival returns P(group damage > d).
func (s *Summary) GroupSurvival(name string, d float64) (float64, error) {
	g, err := s.groupGrid(name)
	if err != nil {
		return 0, err
	}
	return g.Survival(d), nil
}

// GroupQuantile returns the q-quantile of group damage.
func (s *Summary) GroupQuantile(name string, q float64) (float64, error) {
	g, err := s.groupGrid(name)
	if err != nil {
		return 0, err
	}
	return g.Quantile(q), nil
}

// TotalDPS returns the moments of rotation damage per second.
func (s *Summary) TotalDPS() moments.Set {
	return s.Total.PerSecond(s.Elapsed)
}

// TotalDPSGrid returns the distribution of rotation damage per second.
func (s *Summary) TotalDPSGrid() (*dist.Grid, error) {
	if s.TotalGrid == nil {
		return nil, ErrNoDistribution
	}
	return s.TotalGrid.Scaled(1 / s.Elapsed), nil
}

// Snapshot returns the persisted record of the summary.
func (s *Summary) Snapshot(label string) models.Run {
	run := models.Run{
		ID:        uuid.New().String(),
		Label:     label,
		Elapsed:   s.Elapsed,
		Total:     s.Total.Record(),
		Groups:    make([]models.GroupRecord, len(s.Groups)),
		CreatedAt: time.Now(),
	}
	for i, g := range s.Groups {
		rec := models.GroupRecord{
			Name:    g.Name,
			Actions: append([]string(nil), g.Actions...),
			Moments: g.Moments.Record(),
		}
		if g.Grid != nil {
			rec.P05 = g.Grid.Quantile(0.05)
			rec.P50 = g.Grid.Quantile(0.5)
			rec.P95 = g.Grid.Quantile(0.95)
		}
		run.Groups[i] = rec
	}
	if s.TotalGrid != nil {
		run.Grid = s.TotalGrid.Record()
	}
	return run
}
