// ============================================================================
// gridpath Metrics - Prometheus 監控指標
// ============================================================================
//
// Package: internal/metrics
// 文件: metrics.go
// 功能: 收集和暴露尋路引擎運行指標，支持 Prometheus 監控
//
// 指標分類:
//
//   1. 計數器 (Counter)：
//      - gridpath_requests_submitted_total: 提交請求總數
//      - gridpath_batches_dispatched_total: 已分派批次總數
//      - gridpath_paths_completed_total{outcome}: 完成路徑數，
//        outcome = success | truncated | unreachable
//
//   2. 分佈 (Histogram)：
//      - gridpath_solve_seconds: 同步求解耗時
//      - gridpath_batch_seconds: 批次從分派到最後一個搜尋完成的耗時
//      - gridpath_batch_size: 每批次請求數
//
//   3. 瞬時值 (Gauge)：
//      - gridpath_requests_pending / gridpath_requests_processing
//      - gridpath_grid_version: 目前發佈的網格版本
//
// Prometheus 查詢示例:
//
//   # 截斷比例
//   rate(gridpath_paths_completed_total{outcome="truncated"}[5m])
//     / rate(gridpath_paths_completed_total[5m])
//
//   # 95 分位批次延遲
//   histogram_quantile(0.95, gridpath_batch_seconds_bucket)
//
// 所有方法對 nil *Collector 安全，未啟用監控時直接傳 nil。
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/ChuLiYu/gridpath/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess     = "success"
	OutcomeTruncated   = "truncated"
	OutcomeUnreachable = "unreachable"
)

// Collector Prometheus 指標收集器
type Collector struct {
	requestsSubmitted prometheus.Counter
	batchesDispatched prometheus.Counter
	pathsCompleted    *prometheus.CounterVec

	solveLatency prometheus.Histogram
	batchLatency prometheus.Histogram
	batchSize    prometheus.Histogram

	requestsPending    prometheus.Gauge
	requestsProcessing prometheus.Gauge
	gridVersion        prometheus.Gauge
}

// NewCollector 創建並註冊到 prometheus.DefaultRegisterer
func NewCollector() *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer)
}

// NewCollectorWith 創建並註冊到指定 registerer
func NewCollectorWith(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requestsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridpath_requests_submitted_total",
			Help: "Total number of path requests submitted",
		}),
		batchesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridpath_batches_dispatched_total",
			Help: "Total number of batches handed to the worker pool",
		}),
		pathsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridpath_paths_completed_total",
			Help: "Completed path requests by outcome",
		}, []string{"outcome"}),
		solveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gridpath_solve_seconds",
			Help:    "Synchronous solve latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 10),
		}),
		batchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gridpath_batch_seconds",
			Help:    "Time from batch dispatch until its last search finished in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gridpath_batch_size",
			Help:    "Number of requests per dispatched batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		requestsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridpath_requests_pending",
			Help: "Current number of pending requests",
		}),
		requestsProcessing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridpath_requests_processing",
			Help: "Current number of requests being solved",
		}),
		gridVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridpath_grid_version",
			Help: "Version of the published grid snapshot",
		}),
	}

	reg.MustRegister(
		c.requestsSubmitted,
		c.batchesDispatched,
		c.pathsCompleted,
		c.solveLatency,
		c.batchLatency,
		c.batchSize,
		c.requestsPending,
		c.requestsProcessing,
		c.gridVersion,
	)

	return c
}

// RecordSubmit 記錄請求提交
func (c *Collector) RecordSubmit() {
	if c == nil {
		return
	}
	c.requestsSubmitted.Inc()
}

// RecordDispatch 記錄批次分派
func (c *Collector) RecordDispatch(size int) {
	if c == nil {
		return
	}
	c.batchesDispatched.Inc()
	c.batchSize.Observe(float64(size))
}

// RecordResult 依結果分類計數
func (c *Collector) RecordResult(r types.PathResult) {
	if c == nil {
		return
	}
	c.pathsCompleted.WithLabelValues(Outcome(r)).Inc()
}

// RecordSolveLatency 記錄同步求解耗時
func (c *Collector) RecordSolveLatency(seconds float64) {
	if c == nil {
		return
	}
	c.solveLatency.Observe(seconds)
}

// RecordBatchLatency 記錄批次耗時
func (c *Collector) RecordBatchLatency(seconds float64) {
	if c == nil {
		return
	}
	c.batchLatency.Observe(seconds)
}

// UpdateLedgerStats 更新請求狀態統計
func (c *Collector) UpdateLedgerStats(pending, processing int) {
	if c == nil {
		return
	}
	c.requestsPending.Set(float64(pending))
	c.requestsProcessing.Set(float64(processing))
}

// SetGridVersion 設置目前網格版本
func (c *Collector) SetGridVersion(v uint64) {
	if c == nil {
		return
	}
	c.gridVersion.Set(float64(v))
}

// Outcome maps a result to its outcome label.
func Outcome(r types.PathResult) string {
	switch {
	case r.Success:
		return OutcomeSuccess
	case r.Truncated:
		return OutcomeTruncated
	default:
		return OutcomeUnreachable
	}
}

// Handler 回傳 /metrics 處理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartServer 啟動 Prometheus metrics HTTP 伺服器（阻塞）
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, mux)
}
