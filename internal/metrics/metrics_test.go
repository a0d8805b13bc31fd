package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsFetches(t *testing.T) {
	c := NewCollector()

	c.RecordFetch("example.com", "static", 200, 1024, 50*time.Millisecond)
	c.RecordFetch("example.com", "static", 200, 2048, 80*time.Millisecond)
	c.RecordFetchFailure("example.com", "timeout")
	c.RecordRetry("example.com")
	c.RecordPage("example.com", 10, 1)
	c.RecordRun("completed", time.Second)
	c.SetBreakerState("example.com", 1)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.fetchesTotal.WithLabelValues("example.com", "static")))
	assert.Equal(t, float64(3072), testutil.ToFloat64(c.fetchBytes.WithLabelValues("example.com")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.fetchFailures.WithLabelValues("example.com", "timeout")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.retriesTotal.WithLabelValues("example.com")))
	assert.Equal(t, float64(10), testutil.ToFloat64(c.itemsExtracted.WithLabelValues("example.com")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.breakerState.WithLabelValues("example.com")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.breakerTripped.WithLabelValues("example.com")))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.RecordFetch("example.com", "static", 200, 0, 0)
	c.RecordFetchFailure("example.com", "timeout")
	c.RecordRetry("example.com")
	c.SetBreakerState("example.com", 1)
	c.RecordPage("example.com", 0, 0)
	c.RecordRun("failed", 0)
}

func TestHandlerServesRegistry(t *testing.T) {
	c := NewCollector()
	c.RecordRun("completed", time.Second)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "ariadne_runs_total")
}
