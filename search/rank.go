package search

import (
	"math"
	"slices"

	"github.com/poiesic/finrank/core"
	"github.com/poiesic/finrank/query"
)

func roundSimilarity(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func toResult(m *core.Match) *core.Result {
	meta := m.Chunk.Metadata
	return &core.Result{
		Content:    m.Chunk.Text,
		Company:    meta.Company,
		Source:     meta.SourceFile,
		FilingType: meta.FilingType,
		FiscalYear: meta.FiscalYear,
		Quarter:    meta.Quarter,
		Similarity: roundSimilarity(1 - m.Distance),
	}
}

// byRecency orders newest first. Unparsable years and quarters are -1 and
// therefore sink to the end.
func byRecency(a, b *core.Result) int {
	ya, yb := query.ParseYear(a.FiscalYear), query.ParseYear(b.FiscalYear)
	if ya != yb {
		return yb - ya
	}
	return query.ParseQuarter(b.Quarter) - query.ParseQuarter(a.Quarter)
}

// applyRecencyBoost adds a decaying boost by recency rank and returns the
// results in recency order.
func applyRecencyBoost(results []*core.Result, boost, decay float64) []*core.Result {
	ordered := slices.Clone(results)
	slices.SortStableFunc(ordered, byRecency)
	for pos, r := range ordered {
		r.Similarity += max(0, boost-decay*float64(pos))
	}
	return ordered
}

func bySimilarity(a, b *core.Result) int {
	switch {
	case a.Similarity > b.Similarity:
		return -1
	case a.Similarity < b.Similarity:
		return 1
	}
	return 0
}
