package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kcard-data/metrics-quality/internal/alert"
	"github.com/kcard-data/metrics-quality/internal/checks"
	"github.com/kcard-data/metrics-quality/internal/metrics"
	"github.com/kcard-data/metrics-quality/internal/model"
	"github.com/kcard-data/metrics-quality/internal/pipeline"
	"github.com/kcard-data/metrics-quality/internal/report"
	"github.com/kcard-data/metrics-quality/internal/repository"
	"github.com/kcard-data/metrics-quality/internal/scheduler"
	"github.com/kcard-data/metrics-quality/pkg/logger"
)

// QualityRunJob 数据质量运行: 重建 → 校验 → 汇总 → 告警 → 导出
// 重建或校验失败使本次运行整体失败；告警与报告导出失败只记日志
type QualityRunJob struct {
	scheduler.BaseJob
	pipeline *pipeline.Pipeline
	engine   *checks.Engine
	exporter *report.Exporter
	notifier alert.Notifier
	runRepo  *repository.RunRepository
	now      func() time.Time
}

// NewQualityRunJob 创建质量运行任务
func NewQualityRunJob(
	p *pipeline.Pipeline,
	engine *checks.Engine,
	exporter *report.Exporter,
	notifier alert.Notifier,
	runRepo *repository.RunRepository,
) *QualityRunJob {
	return &QualityRunJob{
		BaseJob:  scheduler.NewBaseJob(scheduler.JobNameQualityRun, 30*time.Minute, 35*time.Minute, true),
		pipeline: p,
		engine:   engine,
		exporter: exporter,
		notifier: notifier,
		runRepo:  runRepo,
		now:      time.Now,
	}
}

// Execute 执行一次完整质量运行
func (j *QualityRunJob) Execute(ctx context.Context) (*scheduler.JobResult, error) {
	checkDate := j.now().Format("2006-01-02")

	// 阶段一: 全量重建派生指标
	set, err := j.pipeline.Rebuild(ctx)
	if err != nil {
		return nil, fmt.Errorf("rebuild failed: %w", err)
	}
	metrics.MetricRowsRebuilt.WithLabelValues("kpi_monthly_usage").Set(float64(len(set.MonthlyUsage)))
	metrics.MetricRowsRebuilt.WithLabelValues("kpi_market_share").Set(float64(len(set.MarketShare)))
	metrics.MetricRowsRebuilt.WithLabelValues("kpi_growth_rate").Set(float64(len(set.GrowthRate)))
	metrics.MetricRowsRebuilt.WithLabelValues("kpi_category_usage").Set(float64(len(set.CategoryUsage)))
	metrics.MetricRowsRebuilt.WithLabelValues("kpi_activation_rate").Set(float64(len(set.ActivationRate)))
	metrics.MetricRowsRebuilt.WithLabelValues("kpi_market_concentration").Set(float64(len(set.Concentration)))
	metrics.MetricRowsRebuilt.WithLabelValues("kpi_anomaly").Set(float64(len(set.Anomalies)))

	// 阶段二: 交叉校验 (严格在重建之后，两阶段不交叠)
	stats, err := j.engine.Run(ctx, checkDate)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	overall := stats.OverallStatus()
	metrics.LastRunPassRate.Set(passRatePct(stats))
	metrics.LastRunCriticalFailed.Set(float64(stats.CriticalFailed))

	// 阶段三: 告警，连续两次 CRITICAL 升级
	escalated := false
	if stats.CriticalFailed > 0 {
		prev, err := j.runRepo.GetPreviousFinished(ctx, j.Name(), j.now().UnixMilli())
		if err != nil {
			logger.Error("failed to load previous run for escalation", zap.Error(err))
		} else if prev != nil && prev.OverallStatus() == model.OverallCritical {
			escalated = true
		}
	}
	if a := alert.BuildRunAlert(stats, escalated); a != nil {
		if err := j.notifier.Notify(ctx, a); err != nil {
			logger.Error("failed to send alert", zap.Error(err))
		} else {
			metrics.AlertsSentTotal.WithLabelValues(a.Severity, fmt.Sprintf("%t", a.Escalated)).Inc()
		}
	}

	// 阶段四: 报告导出，失败不影响运行结论
	files, err := j.exporter.Export(ctx, checkDate)
	if err != nil {
		logger.Error("failed to export report", zap.Error(err))
	}

	return &scheduler.JobResult{
		ProcessedCount: stats.Total,
		FailedCount:    stats.Failed,
		Details: map[string]interface{}{
			"check_date":      checkDate,
			"overall_status":  overall,
			"passed":          stats.Passed,
			"failed":          stats.Failed,
			"critical_failed": stats.CriticalFailed,
			"warning_failed":  stats.WarningFailed,
			"escalated":       escalated,
			"report_files":    files,
		},
	}, nil
}

func passRatePct(stats *checks.RunStats) float64 {
	if stats.Total == 0 {
		return 100
	}
	return float64(stats.Passed) / float64(stats.Total) * 100
}
