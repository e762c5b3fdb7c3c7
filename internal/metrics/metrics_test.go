package metrics

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ChuLiYu/gridpath/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	// Reset Prometheus registry to avoid duplicate registration
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector := NewCollector()

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.requestsSubmitted)
	assert.NotNil(t, collector.batchesDispatched)
	assert.NotNil(t, collector.pathsCompleted)
	assert.NotNil(t, collector.solveLatency)
	assert.NotNil(t, collector.batchLatency)
	assert.NotNil(t, collector.requestsPending)
	assert.NotNil(t, collector.gridVersion)
}

func TestCounters(t *testing.T) {
	c := NewCollectorWith(prometheus.NewRegistry())

	for i := 0; i < 5; i++ {
		c.RecordSubmit()
	}
	c.RecordDispatch(3)
	c.RecordDispatch(2)

	assert.Equal(t, 5.0, testutil.ToFloat64(c.requestsSubmitted))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.batchesDispatched))
}

func TestRecordResult_Outcomes(t *testing.T) {
	c := NewCollectorWith(prometheus.NewRegistry())

	tests := []struct {
		name   string
		result types.PathResult
		want   string
	}{
		{"success", types.PathResult{Success: true, ReachedTarget: true}, OutcomeSuccess},
		{"truncated", types.PathResult{Truncated: true}, OutcomeTruncated},
		{"unreachable", types.PathResult{}, OutcomeUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(tt.result))
			before := testutil.ToFloat64(c.pathsCompleted.WithLabelValues(tt.want))
			c.RecordResult(tt.result)
			after := testutil.ToFloat64(c.pathsCompleted.WithLabelValues(tt.want))
			assert.Equal(t, before+1, after)
		})
	}
}

func TestGauges(t *testing.T) {
	c := NewCollectorWith(prometheus.NewRegistry())

	c.UpdateLedgerStats(10, 4)
	c.SetGridVersion(3)

	assert.Equal(t, 10.0, testutil.ToFloat64(c.requestsPending))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.requestsProcessing))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.gridVersion))
}

func TestNilCollector(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.RecordSubmit()
		c.RecordDispatch(1)
		c.RecordResult(types.PathResult{})
		c.RecordSolveLatency(0.1)
		c.RecordBatchLatency(0.1)
		c.UpdateLedgerStats(1, 1)
		c.SetGridVersion(1)
	})
}

func TestConcurrentMetricUpdates(t *testing.T) {
	c := NewCollectorWith(prometheus.NewRegistry())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordSubmit()
			c.RecordDispatch(1)
			c.RecordBatchLatency(0.01)
			c.RecordResult(types.PathResult{Success: true})
			c.UpdateLedgerStats(10, 5)
		}()
	}
	wg.Wait()

	assert.Equal(t, 100.0, testutil.ToFloat64(c.requestsSubmitted))
}

func TestCollectorIsolation(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector1 := NewCollector()
	require.NotNil(t, collector1)

	// a process should have only one collector per registry
	assert.Panics(t, func() {
		NewCollector()
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	c := NewCollector()
	c.RecordSubmit()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "gridpath_requests_submitted_total 1"))
}
