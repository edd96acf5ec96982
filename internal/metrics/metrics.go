// ============================================================================
// Geotile Metrics - Prometheus 監控指標
// ============================================================================
//
// Package: internal/metrics
// 文件: metrics.go
// 功能: 收集和暴露 worker 運行指標，支持 Prometheus 監控
//
// 指標分類:
//
//   1. 任務計數器 (Counter)：
//      - geotile_jobs_claimed_total: 認領的任務數
//      - geotile_jobs_completed_total: 標記為 DONE 的任務數
//      - geotile_jobs_failed_total{stage}: 在某階段失敗的任務數
//      - geotile_lock_timeouts_total{reason}: 取得 lock 失敗次數（timeout / stale）
//
//   2. 性能指標 (Histogram)：
//      - geotile_lock_wait_seconds: 取得 lock 的等待時間
//      - geotile_job_duration_seconds: 單一來源檔案的處理時間
//
//   3. 產出指標 (Counter)：
//      - geotile_outlines_removed_total: 被包含關係過濾掉的輪廓數
//      - geotile_tiles_estimated_total: 估算的圖磚數
//      - geotile_tiles_pruned_total: 刪除的空白圖磚數
//      - geotile_tile_failures_total{kind}: 解碼/刪除失敗的圖磚數
//
//   4. 狀態指標 (Gauge)：
//      - geotile_ledger_jobs{status}: ledger 中各狀態的任務數
//
// HTTP 端點:
//   通過 /metrics 端點暴露，默認端口 9090
//
// 所有方法都允許 nil receiver，未啟用 metrics 時呼叫端不需判斷。
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector Prometheus 指標收集器
type Collector struct {
	// 任務相關指標
	jobsClaimed   prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    *prometheus.CounterVec
	lockTimeouts  *prometheus.CounterVec

	// 效能指標
	lockWait    prometheus.Histogram
	jobDuration prometheus.Histogram

	// 產出指標
	outlinesRemoved prometheus.Counter
	tilesEstimated  prometheus.Counter
	tilesPruned     prometheus.Counter
	tileFailures    *prometheus.CounterVec

	// 狀態指標
	ledgerJobs *prometheus.GaugeVec
}

// NewCollector 創建新的指標收集器並註冊到預設 registry
func NewCollector() *Collector {
	c := &Collector{
		jobsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geotile_jobs_claimed_total",
			Help: "Total number of jobs claimed from the ledger",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geotile_jobs_completed_total",
			Help: "Total number of jobs marked DONE",
		}),
		jobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geotile_jobs_failed_total",
			Help: "Total number of jobs that failed, by pipeline stage",
		}, []string{"stage"}),
		lockTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geotile_lock_timeouts_total",
			Help: "Total number of failed lock acquisitions",
		}, []string{"reason"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geotile_lock_wait_seconds",
			Help:    "Time spent waiting for the job folder lock",
			Buckets: []float64{0.001, 0.01, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geotile_job_duration_seconds",
			Help:    "Time spent processing one source file",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		outlinesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geotile_outlines_removed_total",
			Help: "Total number of outlines removed by containment filtering",
		}),
		tilesEstimated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geotile_tiles_estimated_total",
			Help: "Total number of tiles estimated for rendering",
		}),
		tilesPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geotile_tiles_pruned_total",
			Help: "Total number of blank tiles deleted",
		}),
		tileFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geotile_tile_failures_total",
			Help: "Total number of tiles that could not be inspected or deleted",
		}, []string{"kind"}),
		ledgerJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "geotile_ledger_jobs",
			Help: "Jobs in the ledger by status",
		}, []string{"status"}),
	}

	// 註冊所有指標
	prometheus.MustRegister(c.jobsClaimed)
	prometheus.MustRegister(c.jobsCompleted)
	prometheus.MustRegister(c.jobsFailed)
	prometheus.MustRegister(c.lockTimeouts)
	prometheus.MustRegister(c.lockWait)
	prometheus.MustRegister(c.jobDuration)
	prometheus.MustRegister(c.outlinesRemoved)
	prometheus.MustRegister(c.tilesEstimated)
	prometheus.MustRegister(c.tilesPruned)
	prometheus.MustRegister(c.tileFailures)
	prometheus.MustRegister(c.ledgerJobs)

	return c
}

// RecordClaim 記錄任務被認領
func (c *Collector) RecordClaim() {
	if c == nil {
		return
	}
	c.jobsClaimed.Inc()
}

// RecordCompleted 記錄任務完成與處理時間
func (c *Collector) RecordCompleted(durationSeconds float64) {
	if c == nil {
		return
	}
	c.jobsCompleted.Inc()
	c.jobDuration.Observe(durationSeconds)
}

// RecordFailed 記錄任務在某個階段失敗
func (c *Collector) RecordFailed(stage string) {
	if c == nil {
		return
	}
	c.jobsFailed.WithLabelValues(stage).Inc()
}

// RecordLockWait 記錄 lock 等待時間
func (c *Collector) RecordLockWait(seconds float64) {
	if c == nil {
		return
	}
	c.lockWait.Observe(seconds)
}

// RecordLockTimeout 記錄 lock 取得失敗（reason: timeout / stale）
func (c *Collector) RecordLockTimeout(reason string) {
	if c == nil {
		return
	}
	c.lockTimeouts.WithLabelValues(reason).Inc()
}

// RecordOutlinesRemoved 記錄被過濾掉的輪廓數
func (c *Collector) RecordOutlinesRemoved(n int) {
	if c == nil {
		return
	}
	c.outlinesRemoved.Add(float64(n))
}

// RecordTilesEstimated 記錄估算的圖磚數
func (c *Collector) RecordTilesEstimated(n int64) {
	if c == nil {
		return
	}
	c.tilesEstimated.Add(float64(n))
}

// RecordTilesPruned 記錄刪除的空白圖磚數
func (c *Collector) RecordTilesPruned(n int) {
	if c == nil {
		return
	}
	c.tilesPruned.Add(float64(n))
}

// RecordTileFailures 記錄圖磚失敗（kind: decode / delete）
func (c *Collector) RecordTileFailures(kind string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.tileFailures.WithLabelValues(kind).Add(float64(n))
}

// UpdateLedgerStats 更新 ledger 狀態統計
func (c *Collector) UpdateLedgerStats(pending, inProgress, done int) {
	if c == nil {
		return
	}
	c.ledgerJobs.WithLabelValues("pending").Set(float64(pending))
	c.ledgerJobs.WithLabelValues("in_progress").Set(float64(inProgress))
	c.ledgerJobs.WithLabelValues("done").Set(float64(done))
}

// StartServer 啟動 Prometheus metrics HTTP 伺服器
//
// 參數：
//   - port: HTTP 伺服器端口
//
// 返回值：
//   - error: 啟動失敗的錯誤
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, mux)
}
