// Package aggregator reduces a request's provider results to a composite
// score, a coverage ratio and cross-validation flags.
//
// Aggregate is pure: it reads no clock and no shared state, and its output
// does not depend on the order of its input.
package aggregator

import (
	"cmp"
	"math"
	"slices"

	"propertyvet/internal/screening/models"
	pstrings "propertyvet/pkg/platform/strings"
)

// Aggregate combines results using weights. Only ok results contribute to the
// score, confidence and flags. Coverage is measured against every requested
// provider, including those listed in unregistered.
func Aggregate(results []models.ProviderResult, weights Weights, unregistered []models.ProviderID) models.AggregatedResult {
	sorted := slices.Clone(results)
	slices.SortFunc(sorted, compareResults)

	agg := models.AggregatedResult{
		CrossValidation: crossValidation(sorted),
		Providers:       sorted,
		Flags:           []string{},
	}
	if agg.Providers == nil {
		agg.Providers = []models.ProviderResult{}
	}
	for _, id := range unregistered {
		if !slices.ContainsFunc(sorted, func(r models.ProviderResult) bool { return r.Provider == id }) {
			agg.Unregistered = append(agg.Unregistered, id)
		}
	}
	slices.Sort(agg.Unregistered)
	agg.Unregistered = slices.Compact(agg.Unregistered)
	agg.RequestedCount = len(sorted) + len(agg.Unregistered)

	var ok []models.ProviderResult
	var flagLists [][]string
	for _, r := range sorted {
		if r.OK() {
			ok = append(ok, r)
			flagLists = append(flagLists, r.Flags)
		}
	}
	agg.OKCount = len(ok)
	agg.Flags = pstrings.Union(flagLists...)

	if len(ok) == 0 {
		return agg
	}

	agg.Coverage = round(float64(len(ok))/float64(agg.RequestedCount), 4)
	score, confidence := weightedMeans(ok, weights)
	agg.CompositeScore = round(math.Max(models.MinScore, math.Min(models.MaxScore, score)), 2)
	agg.MeanConfidence = round(confidence, 2)
	return agg
}

// weightedMeans renormalizes weights over the ok subset. When that subset
// carries no weight at all it falls back to the unweighted mean.
func weightedMeans(ok []models.ProviderResult, weights Weights) (score, confidence float64) {
	var total float64
	for _, r := range ok {
		total += weightOf(weights, r.Provider)
	}

	for _, r := range ok {
		w := 1.0 / float64(len(ok))
		if total > 0 {
			w = weightOf(weights, r.Provider) / total
		}
		score += *r.Score * w
		confidence += *r.Confidence * w
	}
	return score, confidence
}

func weightOf(weights Weights, id models.ProviderID) float64 {
	w := weights[id]
	if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return 0
	}
	return w
}

// crossValidation marks every category any provider declared, true when at
// least one ok result confirmed it.
func crossValidation(results []models.ProviderResult) map[models.Category]bool {
	out := make(map[models.Category]bool)
	for _, r := range results {
		for _, c := range r.Categories {
			if _, seen := out[c]; !seen {
				out[c] = false
			}
		}
	}
	for _, r := range results {
		if !r.OK() {
			continue
		}
		for c, v := range r.Verdicts {
			if _, expected := out[c]; expected && v == models.VerdictConfirmed {
				out[c] = true
			}
		}
	}
	return out
}

func compareResults(a, b models.ProviderResult) int {
	return cmp.Or(
		cmp.Compare(a.Provider, b.Provider),
		cmp.Compare(a.Status, b.Status),
		cmp.Compare(deref(a.Score), deref(b.Score)),
		cmp.Compare(deref(a.Confidence), deref(b.Confidence)),
	)
}

func deref(v *float64) float64 {
	if v == nil {
		return -1
	}
	return *v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
