package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSearch(time.Millisecond, 3, nil)
		m.FilterFallback()
		m.CacheLookup(true)
		m.DocumentIngested(StatusIndexed, 4)
		m.ObserveEmbed(time.Millisecond)
	})
	assert.Nil(t, m.Handler())
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.FilterFallback()
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)
	m.DocumentIngested(StatusIndexed, 4)
	m.DocumentIngested(StatusIndexed, 2)
	m.DocumentIngested(StatusSkipped, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.searchFallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.documents.WithLabelValues(StatusIndexed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.documents.WithLabelValues(StatusSkipped)))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.chunksIngested))
}

func TestObserveSearch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveSearch(10*time.Millisecond, 5, nil)
	m.ObserveSearch(10*time.Millisecond, 0, errors.New("x"))

	assert.Equal(t, 2, testutil.CollectAndCount(m.searchDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(m.searchResults))
}

func TestNew_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	m.DocumentIngested(StatusFailed, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `finrank_ingest_documents_total{status="failed"} 1`))
}
