// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package metrics exposes prometheus collectors for ingestion and search.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional metrics dependency without branching at every call site.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "finrank"

// Document ingestion outcomes.
const (
	StatusIndexed = "indexed"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Metrics holds every collector finrank reports.
type Metrics struct {
	gatherer prometheus.Gatherer

	searchDuration  *prometheus.HistogramVec
	searchResults   prometheus.Histogram
	searchFallbacks prometheus.Counter
	cacheLookups    *prometheus.CounterVec
	documents       *prometheus.CounterVec
	chunksIngested  prometheus.Counter
	embedDuration   prometheus.Histogram
}

// New creates the collectors and registers them with reg. When reg is nil
// a private registry is used.
func New(reg prometheus.Registerer) (*Metrics, error) {
	var gatherer prometheus.Gatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{
		gatherer: gatherer,
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Time spent answering a search request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		searchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "results",
			Help:      "Number of results returned per search.",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		}),
		searchFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "filter_fallbacks_total",
			Help:      "Filtered index queries that failed and were retried unfiltered.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Result cache lookups by result.",
		}, []string{"result"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Documents handled by the ingestor by status.",
		}, []string{"status"}),
		chunksIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Chunks written to the index.",
		}),
		embedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embed",
			Name:      "duration_seconds",
			Help:      "Time spent in embedding calls.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	collectors := []prometheus.Collector{
		m.searchDuration, m.searchResults, m.searchFallbacks, m.cacheLookups,
		m.documents, m.chunksIngested, m.embedDuration,
	}
	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// Handler serves the registry in the prometheus text format. It returns
// nil when the registerer given to New cannot be gathered.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return nil
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveSearch records one search request.
func (m *Metrics) ObserveSearch(elapsed time.Duration, results int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.searchDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	m.searchResults.Observe(float64(results))
}

// FilterFallback counts a filtered query retried without its filter.
func (m *Metrics) FilterFallback() {
	if m == nil {
		return
	}
	m.searchFallbacks.Inc()
}

// CacheLookup records a result cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// DocumentIngested records the outcome of one document and the chunks it
// produced.
func (m *Metrics) DocumentIngested(status string, chunks int) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(status).Inc()
	if chunks > 0 {
		m.chunksIngested.Add(float64(chunks))
	}
}

// ObserveEmbed records the duration of one embedding call.
func (m *Metrics) ObserveEmbed(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.embedDuration.Observe(elapsed.Seconds())
}
