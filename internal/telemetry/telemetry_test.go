package telemetry

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	m := New()

	m.SearchesTotal.WithLabelValues("ok").Inc()
	m.SearchesTotal.WithLabelValues("degraded").Add(2)
	m.DocsIndexedTotal.Add(5)
	m.NamespaceDocCount.WithLabelValues("agent-1").Set(42)
	m.SyncCursorRowID.Set(117)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchesTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SearchesTotal.WithLabelValues("degraded")))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.DocsIndexedTotal))
	assert.Equal(t, float64(42), testutil.ToFloat64(m.NamespaceDocCount.WithLabelValues("agent-1")))
	assert.Equal(t, float64(117), testutil.ToFloat64(m.SyncCursorRowID))
}

func TestIndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.DocsIndexedTotal.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(a.DocsIndexedTotal))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.DocsIndexedTotal))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SearchesTotal.WithLabelValues("ok").Inc()
	m.SearchLatency.Observe(0.012)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "memclawz_searches_total")
	assert.Contains(t, body, "memclawz_search_latency_seconds")
	assert.Contains(t, body, "go_goroutines")
}
