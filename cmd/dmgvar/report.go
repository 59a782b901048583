package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/floats"

	"github.com/rewired-gh/dmgvar/internal/compare"
	"github.com/rewired-gh/dmgvar/internal/dist"
	"github.com/rewired-gh/dmgvar/internal/models"
	"github.com/rewired-gh/dmgvar/internal/moments"
)

func number(v float64) string {
	return humanize.FormatFloat("#,###.#", v)
}

func signedNumber(v float64) string {
	if v < 0 {
		return "-" + number(-v)
	}
	return "+" + number(v)
}

func runName(run *models.Run) string {
	if run.Label != "" {
		return fmt.Sprintf("%s (%s)", run.Label, run.ID)
	}
	return run.ID
}

// printRun writes the DPS report of a run.
func printRun(w io.Writer, run *models.Run) error {
	perSecond := 1 / run.Elapsed
	total := moments.FromRecord(run.Total).PerSecond(run.Elapsed)
	sn := moments.SkewNormalParams(total)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run\t%s\n", runName(run))
	fmt.Fprintf(tw, "Analyzed\t%s\n", humanize.Time(run.CreatedAt))
	fmt.Fprintf(tw, "Duration\t%s\n", time.Duration(run.Elapsed*float64(time.Second)).Round(time.Millisecond))
	fmt.Fprintf(tw, "Total DPS\t%s ± %s\tskew %.4f\n", number(total.Mean), number(total.StdDev()), total.Skewness)
	fmt.Fprintf(tw, "Skew-normal\txi %s\tomega %s\talpha %.4f\n", number(sn.Xi), number(sn.Omega), sn.Alpha)
	if run.Grid != nil {
		g := dist.FromRecord(run.Grid).Scaled(perSecond)
		fmt.Fprintf(tw, "Percentiles\tp05 %s\tp50 %s\tp95 %s\n",
			number(g.Quantile(0.05)), number(g.Quantile(0.5)), number(g.Quantile(0.95)))
		if density := g.Density(); len(density) > 0 {
			peak := floats.MaxIdx(density)
			fmt.Fprintf(tw, "Mode\t%s\tdensity %.3g\n", number(g.X(peak)), density[peak])
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "GROUP\tROWS\tDPS\tSD\tSKEW\tP05\tP50\tP95\t")
	for _, g := range run.Groups {
		m := moments.FromRecord(g.Moments).PerSecond(run.Elapsed)
		quantiles := "-\t-\t-"
		if g.P95 > 0 {
			quantiles = fmt.Sprintf("%s\t%s\t%s", number(g.P05*perSecond), number(g.P50*perSecond), number(g.P95*perSecond))
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%.4f\t%s\t\n",
			g.Name, len(g.Actions), number(m.Mean), number(m.StdDev()), m.Skewness, quantiles)
	}
	return tw.Flush()
}

// printRuns writes one line per stored run.
func printRuns(w io.Writer, runs []models.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tDPS\tSD\tANALYZED")
	for _, r := range runs {
		total := moments.FromRecord(r.Total).PerSecond(r.Elapsed)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Label,
			number(total.Mean), number(total.StdDev()), humanize.Time(r.CreatedAt))
	}
	return tw.Flush()
}

// printComparison writes the comparison of a candidate run against a baseline.
// Groups whose |z| is below minZ are left out of the table.
func printComparison(w io.Writer, baseline, candidate *models.Run, report *compare.Report, minZ float64) error {
	fmt.Fprintf(w, "\nBaseline  %s\nCandidate %s\n", runName(baseline), runName(candidate))
	fmt.Fprintf(w, "Total DPS %s (%+.2f%%), z %.2f, %s\n",
		signedNumber(report.Total.Difference), report.Total.Relative*100, report.Total.Z, report.Total.Direction)
	if report.ProbabilityGreater != nil {
		fmt.Fprintf(w, "P(candidate > baseline) %.2f%%\n", *report.ProbabilityGreater*100)
	}
	if len(report.Added) > 0 {
		fmt.Fprintf(w, "Added   %s\n", strings.Join(report.Added, ", "))
	}
	if len(report.Removed) > 0 {
		fmt.Fprintf(w, "Removed %s\n", strings.Join(report.Removed, ", "))
	}
	groups := report.Significant(minZ)
	if hidden := len(report.Groups) - len(groups); hidden > 0 {
		fmt.Fprintf(w, "%d groups below |z| %.2f not shown\n", hidden, minZ)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "GROUP\tBASELINE\tCANDIDATE\tDELTA\tZ\t")
	for _, d := range groups {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t\n", d.Name,
			number(d.Baseline.Mean), number(d.Candidate.Mean), signedNumber(d.Difference), d.Z)
	}
	return tw.Flush()
}
