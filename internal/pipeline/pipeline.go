package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kcard-data/metrics-quality/internal/config"
	"github.com/kcard-data/metrics-quality/internal/repository"
	"github.com/kcard-data/metrics-quality/pkg/logger"
)

// Pipeline 指标派生管道
// 每次运行从原始事实全量重建七张派生指标表，重建在单事务内整体替换，
// 校验阶段只会看到完整的旧状态或完整的新状态
type Pipeline struct {
	factRepo   *repository.FactRepository
	metricRepo *repository.MetricRepository
	zWarn      float64
	zCrit      float64
}

// New 创建派生管道
// 异常分级阈值取 statistical_anomaly 配置键，未配置时按 2/3 分级
func New(factRepo *repository.FactRepository, metricRepo *repository.MetricRepository, thresholds config.ThresholdsConfig) *Pipeline {
	zWarn, zCrit := 2.0, 3.0
	if th := thresholds.Get(config.KeyStatisticalAnomaly); th != nil {
		if th.ZScoreWarning != nil {
			zWarn = *th.ZScoreWarning
		}
		if th.ZScoreCritical != nil {
			zCrit = *th.ZScoreCritical
		}
	}
	return &Pipeline{
		factRepo:   factRepo,
		metricRepo: metricRepo,
		zWarn:      zWarn,
		zCrit:      zCrit,
	}
}

// Rebuild 按依赖顺序重建全部派生指标并持久化
// 返回本次产出的指标集供校验阶段直接使用
func (p *Pipeline) Rebuild(ctx context.Context) (*repository.MetricSet, error) {
	start := time.Now()

	usage, err := p.factRepo.ListUsage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage facts: %w", err)
	}
	issuance, err := p.factRepo.ListIssuance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read issuance facts: %w", err)
	}

	// 依赖顺序: 月度 → 份额/增长/异常，份额 → 集中度；分类与激活率独立
	monthly := buildMonthlyUsage(usage)
	shares := buildMarketShare(monthly)
	set := &repository.MetricSet{
		MonthlyUsage:   monthly,
		MarketShare:    shares,
		GrowthRate:     buildGrowthRate(monthly),
		CategoryUsage:  buildCategoryUsage(usage, monthly),
		ActivationRate: buildActivationRate(issuance),
		Concentration:  buildConcentration(shares),
		Anomalies:      buildAnomalies(monthly, p.zWarn, p.zCrit),
	}

	if err := p.metricRepo.ReplaceAll(ctx, set); err != nil {
		return nil, fmt.Errorf("failed to replace metric tables: %w", err)
	}

	logger.Info("metric tables rebuilt",
		zap.Int("usage_facts", len(usage)),
		zap.Int("issuance_facts", len(issuance)),
		zap.Int("monthly_usage", len(set.MonthlyUsage)),
		zap.Int("market_share", len(set.MarketShare)),
		zap.Int("growth_rate", len(set.GrowthRate)),
		zap.Int("category_usage", len(set.CategoryUsage)),
		zap.Int("activation_rate", len(set.ActivationRate)),
		zap.Int("concentration", len(set.Concentration)),
		zap.Int("anomalies", len(set.Anomalies)),
		zap.Duration("duration", time.Since(start)),
	)
	return set, nil
}
