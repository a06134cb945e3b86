package app

import (
	"gorm.io/gorm"

	"github.com/kcard-data/metrics-quality/internal/model"
)

// AutoMigrate 迁移事实表、派生指标表、结果日志与运行记录
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		// 事实表
		&model.UsageFact{},
		&model.IssuanceFact{},
		// 派生指标表
		&model.MonthlyUsageMetric{},
		&model.MarketShareMetric{},
		&model.GrowthRateMetric{},
		&model.CategoryUsageMetric{},
		&model.ActivationRateMetric{},
		&model.MarketConcentrationMetric{},
		&model.AnomalyRecord{},
		// 校验结果与运行记录
		&model.IntegrityCheckResult{},
		&model.RunExecution{},
	)
}
