package checks

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kcard-data/metrics-quality/internal/config"
	"github.com/kcard-data/metrics-quality/internal/metrics"
	"github.com/kcard-data/metrics-quality/internal/model"
	"github.com/kcard-data/metrics-quality/internal/repository"
	"github.com/kcard-data/metrics-quality/pkg/logger"
)

// Engine 交叉校验引擎
// 在派生重建完成后按阶段顺序执行全部注册校验，结果幂等写入结果日志。
// 上游阶段失败不抑制下游校验，只影响结果解读顺序
type Engine struct {
	factRepo   *repository.FactRepository
	metricRepo *repository.MetricRepository
	resultRepo *repository.CheckResultRepository
	thresholds config.ThresholdsConfig
	checks     []Check
}

// NewEngine 创建校验引擎并注册全部校验
// 可选校验 (IQR 离群、趋势急变) 仅在阈值配置给出对应键时注册
func NewEngine(
	factRepo *repository.FactRepository,
	metricRepo *repository.MetricRepository,
	resultRepo *repository.CheckResultRepository,
	thresholds config.ThresholdsConfig,
) *Engine {
	e := &Engine{
		factRepo:   factRepo,
		metricRepo: metricRepo,
		resultRepo: resultRepo,
		thresholds: thresholds,
	}

	e.register(
		&SumCheck{},
		&MarketShareRatioCheck{},
		&CategoryRatioCheck{},
		&FormulaMomCheck{},
		&FormulaYoyCheck{},
		&ActivationRangeCheck{},
		&ContinuityCheck{},
		&HHIRangeCheck{},
		&StatisticalAnomalyCheck{},
		&CrossKPICheck{},
	)
	if thresholds.Get(config.KeyStatisticalIQR) != nil {
		e.register(&IQROutlierCheck{})
	}
	if thresholds.Get(config.KeyTrendBreak) != nil {
		e.register(&TrendBreakCheck{})
	}
	return e
}

func (e *Engine) register(checks ...Check) {
	e.checks = append(e.checks, checks...)
	sort.SliceStable(e.checks, func(i, j int) bool {
		pi := model.CategoryPhase[e.checks[i].Category()]
		pj := model.CategoryPhase[e.checks[j].Category()]
		if pi != pj {
			return pi < pj
		}
		return e.checks[i].Name() < e.checks[j].Name()
	})
}

// RunStats 单次校验运行的汇总
type RunStats struct {
	CheckDate      string         `json:"check_date"`
	Total          int            `json:"total"`
	Passed         int            `json:"passed"`
	Failed         int            `json:"failed"`
	CriticalFailed int            `json:"critical_failed"`
	WarningFailed  int            `json:"warning_failed"`
	ByCheck        map[string]int `json:"by_check"`
}

// OverallStatus 运行整体结论
func (s *RunStats) OverallStatus() string {
	switch {
	case s.CriticalFailed > 0:
		return model.OverallCritical
	case s.Failed > 0:
		return model.OverallWarning
	default:
		return model.OverallPass
	}
}

// Run 加载快照并执行全部校验，checkDate 为结果日志的幂等键日期
// 配置错误在任何校验执行前返回
func (e *Engine) Run(ctx context.Context, checkDate string) (*RunStats, error) {
	if err := e.thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid threshold config: %w", err)
	}

	snap, err := e.loadSnapshot(ctx, checkDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	stats := &RunStats{
		CheckDate: checkDate,
		ByCheck:   make(map[string]int),
	}
	var all []*model.IntegrityCheckResult
	for _, c := range e.checks {
		th := e.thresholds.Get(c.ConfigKey())
		if th == nil {
			// 必备键已通过校验，这里只会是可选校验缺配置
			continue
		}
		start := time.Now()
		results := c.Run(snap, th)
		all = append(all, results...)
		stats.ByCheck[c.Name()] = len(results)

		failed := 0
		for _, r := range results {
			if r.IsPassed() {
				metrics.CheckResultsTotal.WithLabelValues(c.Name(), string(model.CheckStatusPass)).Inc()
			} else {
				metrics.CheckResultsTotal.WithLabelValues(c.Name(), string(model.CheckStatusFail)).Inc()
				failed++
			}
		}
		logger.Debug("check finished",
			zap.String("check", c.Name()),
			zap.Int("results", len(results)),
			zap.Int("failed", failed),
			zap.Duration("duration", time.Since(start)),
		)
	}

	if err := e.resultRepo.BatchUpsert(ctx, all); err != nil {
		return nil, fmt.Errorf("failed to write check results: %w", err)
	}

	for _, r := range all {
		stats.Total++
		if r.IsPassed() {
			stats.Passed++
			continue
		}
		stats.Failed++
		switch r.Severity {
		case string(model.SeverityCritical):
			stats.CriticalFailed++
		case string(model.SeverityWarning):
			stats.WarningFailed++
		}
	}

	logger.Info("validation run finished",
		zap.String("check_date", checkDate),
		zap.Int("total", stats.Total),
		zap.Int("passed", stats.Passed),
		zap.Int("failed", stats.Failed),
		zap.Int("critical_failed", stats.CriticalFailed),
		zap.String("overall", stats.OverallStatus()),
	)
	return stats, nil
}

// loadSnapshot 读取重建后的派生表与原始周期合计
func (e *Engine) loadSnapshot(ctx context.Context, checkDate string) (*Snapshot, error) {
	snap := &Snapshot{CheckDate: checkDate}
	var err error

	if snap.RawPeriodSums, err = e.factRepo.SumUsageByPeriod(ctx); err != nil {
		return nil, err
	}
	if snap.MonthlyUsage, err = e.metricRepo.ListMonthlyUsage(ctx); err != nil {
		return nil, err
	}
	if snap.MarketShare, err = e.metricRepo.ListMarketShare(ctx); err != nil {
		return nil, err
	}
	if snap.GrowthRate, err = e.metricRepo.ListGrowthRate(ctx); err != nil {
		return nil, err
	}
	if snap.CategoryUsage, err = e.metricRepo.ListCategoryUsage(ctx); err != nil {
		return nil, err
	}
	if snap.ActivationRate, err = e.metricRepo.ListActivationRate(ctx); err != nil {
		return nil, err
	}
	if snap.Concentration, err = e.metricRepo.ListConcentration(ctx); err != nil {
		return nil, err
	}
	if snap.Anomalies, err = e.metricRepo.ListAnomalies(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}
