package main

import (
	"fmt"
	"io"

	"github.com/poiesic/finrank/core"
	"github.com/poiesic/finrank/query"
	"github.com/poiesic/finrank/search"
)

// explainMonitor prints each ranking stage of a search.
type explainMonitor struct {
	w io.Writer
}

var _ search.SearchMonitor = (*explainMonitor)(nil)

func (m *explainMonitor) Start(q string, plan query.Plan) {
	fmt.Fprintf(m.w, "query: %q\n", q)
	if plan.HasFiscalYear() {
		fmt.Fprintf(m.w, "  fiscal year %s, variants %v\n", plan.FiscalYear, plan.Variants)
	}
	if plan.WantsLatest {
		fmt.Fprintln(m.w, "  recency boost enabled")
	}
}

func (m *explainMonitor) CacheHit(key string) {
	fmt.Fprintf(m.w, "  served from cache (%s)\n", key)
}

func (m *explainMonitor) AfterEmbedding(dimension int) {
	fmt.Fprintf(m.w, "  embedded query (%d dimensions)\n", dimension)
}

func (m *explainMonitor) AfterRetrieval(candidates []*core.Match, fallback bool) {
	if fallback {
		fmt.Fprintln(m.w, "  filtered query failed, fell back to unfiltered search")
	}
	fmt.Fprintf(m.w, "  retrieved %d candidates\n", len(candidates))
}

func (m *explainMonitor) YearBoosted(r *core.Result) {
	fmt.Fprintf(m.w, "  year boost: %s %s -> %.4f\n", r.Source, r.FiscalYear, r.Similarity)
}

func (m *explainMonitor) AfterRecencyBoost(ordered []*core.Result) {
	for i, r := range ordered {
		fmt.Fprintf(m.w, "  recency #%d: %s %s %s -> %.4f\n", i+1, r.Source, r.FiscalYear, r.Quarter, r.Similarity)
	}
}

func (m *explainMonitor) Finish(results []*core.Result) {
	fmt.Fprintf(m.w, "  returning %d results\n\n", len(results))
}
