package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/kcard-data/metrics-quality/internal/model"
)

// MetricRepository 派生指标仓储
// 写入仅通过 ReplaceAll 整体替换，校验引擎侧只读
type MetricRepository struct {
	db *gorm.DB
}

// NewMetricRepository 创建派生指标仓储
func NewMetricRepository(db *gorm.DB) *MetricRepository {
	return &MetricRepository{db: db}
}

// MetricSet 一次派生运行产出的全部指标表内容
type MetricSet struct {
	MonthlyUsage   []*model.MonthlyUsageMetric
	MarketShare    []*model.MarketShareMetric
	GrowthRate     []*model.GrowthRateMetric
	CategoryUsage  []*model.CategoryUsageMetric
	ActivationRate []*model.ActivationRateMetric
	Concentration  []*model.MarketConcentrationMetric
	Anomalies      []*model.AnomalyRecord
}

// ReplaceAll 在单事务内整体替换全部派生指标表
// 失败时整体回滚，校验阶段永远不会看到半重建状态
func (r *MetricRepository) ReplaceAll(ctx context.Context, set *MetricSet) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := replaceTable(tx, set.MonthlyUsage, &model.MonthlyUsageMetric{}); err != nil {
			return err
		}
		if err := replaceTable(tx, set.MarketShare, &model.MarketShareMetric{}); err != nil {
			return err
		}
		if err := replaceTable(tx, set.GrowthRate, &model.GrowthRateMetric{}); err != nil {
			return err
		}
		if err := replaceTable(tx, set.CategoryUsage, &model.CategoryUsageMetric{}); err != nil {
			return err
		}
		if err := replaceTable(tx, set.ActivationRate, &model.ActivationRateMetric{}); err != nil {
			return err
		}
		if err := replaceTable(tx, set.Concentration, &model.MarketConcentrationMetric{}); err != nil {
			return err
		}
		return replaceTable(tx, set.Anomalies, &model.AnomalyRecord{})
	})
}

// replaceTable 清空并批量重灌单张指标表
func replaceTable[T any](tx *gorm.DB, rows []*T, mdl interface{}) error {
	if err := tx.Where("1 = 1").Delete(mdl).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.CreateInBatches(&rows, 500).Error
}

// ListMonthlyUsage 查询月度用量指标，按 (公司, 周期) 有序
func (r *MetricRepository) ListMonthlyUsage(ctx context.Context) ([]*model.MonthlyUsageMetric, error) {
	var rows []*model.MonthlyUsageMetric
	err := r.db.WithContext(ctx).
		Order("card_company ASC, year_month ASC").
		Find(&rows).Error
	return rows, err
}

// ListMarketShare 查询市场份额指标，按 (周期, 公司) 有序
func (r *MetricRepository) ListMarketShare(ctx context.Context) ([]*model.MarketShareMetric, error) {
	var rows []*model.MarketShareMetric
	err := r.db.WithContext(ctx).
		Order("year_month ASC, card_company ASC").
		Find(&rows).Error
	return rows, err
}

// ListGrowthRate 查询增长率指标，按 (公司, 周期) 有序
func (r *MetricRepository) ListGrowthRate(ctx context.Context) ([]*model.GrowthRateMetric, error) {
	var rows []*model.GrowthRateMetric
	err := r.db.WithContext(ctx).
		Order("card_company ASC, year_month ASC").
		Find(&rows).Error
	return rows, err
}

// ListCategoryUsage 查询行业分类指标，按 (周期, 公司, 行业) 有序
func (r *MetricRepository) ListCategoryUsage(ctx context.Context) ([]*model.CategoryUsageMetric, error) {
	var rows []*model.CategoryUsageMetric
	err := r.db.WithContext(ctx).
		Order("year_month ASC, card_company ASC, business_category ASC").
		Find(&rows).Error
	return rows, err
}

// ListActivationRate 查询激活率指标，按 (周期, 公司) 有序
func (r *MetricRepository) ListActivationRate(ctx context.Context) ([]*model.ActivationRateMetric, error) {
	var rows []*model.ActivationRateMetric
	err := r.db.WithContext(ctx).
		Order("year_month ASC, card_company ASC").
		Find(&rows).Error
	return rows, err
}

// ListConcentration 查询市场集中度指标，按周期有序
func (r *MetricRepository) ListConcentration(ctx context.Context) ([]*model.MarketConcentrationMetric, error) {
	var rows []*model.MarketConcentrationMetric
	err := r.db.WithContext(ctx).
		Order("year_month ASC").
		Find(&rows).Error
	return rows, err
}

// ListAnomalies 查询异常检测记录，按 (公司, 周期) 有序
func (r *MetricRepository) ListAnomalies(ctx context.Context) ([]*model.AnomalyRecord, error) {
	var rows []*model.AnomalyRecord
	err := r.db.WithContext(ctx).
		Order("card_company ASC, year_month ASC").
		Find(&rows).Error
	return rows, err
}
