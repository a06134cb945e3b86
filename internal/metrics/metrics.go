// Package metrics 提供 metrics-quality 服务的 Prometheus 监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "metrics_quality"

// 任务执行指标
var (
	// JobRunsTotal 任务执行总数
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "任务执行总数",
		},
		[]string{"job_name", "status"}, // status: success, failed, skipped
	)

	// JobDuration 任务执行耗时
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "任务执行耗时(秒)",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"job_name"},
	)
)

// 派生管道指标
var (
	// MetricRowsRebuilt 各派生表最近一次重建行数
	MetricRowsRebuilt = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_rows_rebuilt",
			Help:      "各派生指标表最近一次重建行数",
		},
		[]string{"table"},
	)
)

// 校验指标
var (
	// CheckResultsTotal 校验结果总数
	CheckResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_results_total",
			Help:      "校验结果总数",
		},
		[]string{"check_name", "status"}, // status: PASS, FAIL
	)

	// LastRunPassRate 最近一次运行的通过率
	LastRunPassRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_pass_rate",
			Help:      "最近一次运行的通过率(百分比)",
		},
	)

	// LastRunCriticalFailed 最近一次运行的 CRITICAL 失败数
	LastRunCriticalFailed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_critical_failed",
			Help:      "最近一次运行的 CRITICAL 级失败数",
		},
	)

	// AlertsSentTotal 已发送告警总数
	AlertsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_sent_total",
			Help:      "已发送告警总数",
		},
		[]string{"severity", "escalated"},
	)
)
