// Package stats aggregates experiment results into per-variant and overall
// metrics, and evaluates significance and stopping rules.
//
// Everything here is pure: no storage, no clock. Callers pass results and,
// for stopping rules, the current time.
package stats

import (
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	kdb "github.com/felafax/split/pkg/db"
)

// VariantStats is the aggregate of all results recorded against one variant.
//
// Each result row counts as one participant observation.
type VariantStats struct {
	VariantId string `json:"variantId"`
	Name      string `json:"name"`
	IsControl bool   `json:"isControl"`

	Participants   int     `json:"participants"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversionRate"`
	Revenue        float64 `json:"revenue"`
	AvgRevenue     float64 `json:"avgRevenue"`
}

type TestStats struct {
	ExperimentId string               `json:"experimentId"`
	Status       kdb.ExperimentStatus `json:"status"`

	TotalParticipants int     `json:"totalParticipants"`
	TotalConversions  int     `json:"totalConversions"`
	ConversionRate    float64 `json:"conversionRate"`
	AvgRevenue        float64 `json:"avgRevenue"`

	// in the experiment's variant order.
	Variants []VariantStats `json:"variants"`

	// chi-square test of independence between the first control variant and
	// the first non-control variant. PValue is 1 when the test is not
	// applicable (missing pair, or a zero margin in the table).
	ChiSquare   float64 `json:"chiSquare"`
	PValue      float64 `json:"pValue"`
	Confidence  float64 `json:"confidence"`
	Significant bool    `json:"significant"`

	// variant id of the winner, nil when there is none (fewer than 2
	// variants, or a tie at the top conversion rate).
	Winner *string `json:"winner,omitempty"`
}

// Aggregate computes TestStats for an experiment from its results.
//
// Results against variants the experiment no longer lists are ignored.
func Aggregate(experiment kdb.Experiment, results []kdb.Result) TestStats {
	stats := TestStats{
		ExperimentId: experiment.Id,
		Status:       experiment.Status,
		Variants:     make([]VariantStats, 0, len(experiment.Variants)),
		PValue:       1,
	}

	index := map[string]int{}
	for i, v := range experiment.Variants {
		index[v.Id] = i
		stats.Variants = append(stats.Variants, VariantStats{
			VariantId: v.Id,
			Name:      v.Name,
			IsControl: v.IsControl,
		})
	}

	totalRevenue := 0.0
	for _, r := range results {
		i, ok := index[r.VariantId]
		if !ok {
			continue
		}
		vs := &stats.Variants[i]
		vs.Participants += 1
		vs.Revenue += r.Revenue
		if r.Converted {
			vs.Conversions += 1
		}

		stats.TotalParticipants += 1
		totalRevenue += r.Revenue
		if r.Converted {
			stats.TotalConversions += 1
		}
	}

	for i := range stats.Variants {
		vs := &stats.Variants[i]
		if vs.Participants == 0 {
			continue
		}
		vs.ConversionRate = float64(vs.Conversions) / float64(vs.Participants)
		vs.AvgRevenue = vs.Revenue / float64(vs.Participants)
	}
	if 0 < stats.TotalParticipants {
		stats.ConversionRate = float64(stats.TotalConversions) / float64(stats.TotalParticipants)
		stats.AvgRevenue = totalRevenue / float64(stats.TotalParticipants)
	}

	significance := experiment.SignificanceLevel
	if significance <= 0 || 1 <= significance {
		significance = kdb.DefaultSignificanceLevel
	}
	stats.ChiSquare, stats.PValue = significanceOf(stats.Variants)
	stats.Confidence = 1 - stats.PValue
	stats.Significant = stats.PValue <= significance

	stats.Winner = winnerOf(stats.Variants)

	return stats
}

// significanceOf runs a chi-square test of independence on the 2x2
// contingency table of the first control variant against the first
// non-control variant.
//
// Returns (0, 1) when no such pair exists or a margin of the table is zero.
func significanceOf(variants []VariantStats) (chiSquare float64, pValue float64) {
	var control, treatment *VariantStats
	for i := range variants {
		v := &variants[i]
		if v.IsControl && control == nil {
			control = v
		}
		if !v.IsControl && treatment == nil {
			treatment = v
		}
	}
	if control == nil || treatment == nil {
		return 0, 1
	}

	// observed counts: rows = {control, treatment}, cols = {converted, not}
	a := float64(control.Conversions)
	b := float64(control.Participants - control.Conversions)
	c := float64(treatment.Conversions)
	d := float64(treatment.Participants - treatment.Conversions)

	n := a + b + c + d
	if n == 0 {
		return 0, 1
	}
	rowC, rowT := a+b, c+d
	colY, colN := a+c, b+d
	if rowC == 0 || rowT == 0 || colY == 0 || colN == 0 {
		return 0, 1
	}

	for _, cell := range []struct{ observed, expected float64 }{
		{a, rowC * colY / n},
		{b, rowC * colN / n},
		{c, rowT * colY / n},
		{d, rowT * colN / n},
	} {
		diff := cell.observed - cell.expected
		chiSquare += diff * diff / cell.expected
	}

	chi2 := distuv.ChiSquared{K: 1}
	return chiSquare, chi2.Survival(chiSquare)
}

// winnerOf declares the variant with the strictly highest conversion rate.
// Ties at the top, or fewer than 2 variants, yield no winner.
func winnerOf(variants []VariantStats) *string {
	if len(variants) < 2 {
		return nil
	}

	best, runnerUp := -1.0, -1.0
	var winner *string
	for i := range variants {
		v := &variants[i]
		switch {
		case best < v.ConversionRate:
			runnerUp = best
			best = v.ConversionRate
			winner = &v.VariantId
		case runnerUp < v.ConversionRate:
			runnerUp = v.ConversionRate
		}
	}
	if best == runnerUp {
		return nil
	}
	return winner
}

// ShouldStop evaluates the stopping rules of a running experiment.
//
// The rules are OR'd: any one of them is sufficient.
//
//   - the sample size target is set and reached,
//   - the duration is set and has elapsed since the experiment started,
//   - the scheduled end has passed, or
//   - the significance level is reached.
//
// Always false for experiments not in Running status.
func ShouldStop(experiment kdb.Experiment, stats TestStats, now time.Time) bool {
	if experiment.Status != kdb.Running {
		return false
	}

	if experiment.SampleSize != nil && *experiment.SampleSize <= stats.TotalParticipants {
		return true
	}

	if experiment.DurationDays != nil && experiment.StartedAt != nil {
		deadline := experiment.StartedAt.AddDate(0, 0, *experiment.DurationDays)
		if !now.Before(deadline) {
			return true
		}
	}

	if experiment.EndAt != nil && !now.Before(*experiment.EndAt) {
		return true
	}

	return stats.Significant
}
