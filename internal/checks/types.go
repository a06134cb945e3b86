package checks

import (
	"fmt"
	"math"

	"github.com/kcard-data/metrics-quality/internal/config"
	"github.com/kcard-data/metrics-quality/internal/model"
	"github.com/kcard-data/metrics-quality/internal/repository"
)

// Snapshot 校验输入快照: 重建完成后的派生表与原始周期合计
// 校验只读快照，彼此独立，任何校验不依赖其他校验的输出
type Snapshot struct {
	CheckDate      string
	RawPeriodSums  []*repository.PeriodSum
	MonthlyUsage   []*model.MonthlyUsageMetric
	MarketShare    []*model.MarketShareMetric
	GrowthRate     []*model.GrowthRateMetric
	CategoryUsage  []*model.CategoryUsageMetric
	ActivationRate []*model.ActivationRateMetric
	Concentration  []*model.MarketConcentrationMetric
	Anomalies      []*model.AnomalyRecord
}

// Check 单项完整性校验
// Run 为纯函数: 给定快照与阈值产出结果行，不触碰存储
type Check interface {
	Name() string
	ConfigKey() string
	Category() model.CheckCategory
	Run(snap *Snapshot, th *config.Threshold) []*model.IntegrityCheckResult
}

// newResult 构造单条校验结果，difference 取绝对差
func newResult(snap *Snapshot, c Check, th *config.Threshold, groupKey string, expected, actual, tolerance float64, passed bool, detail string) *model.IntegrityCheckResult {
	status := model.CheckStatusPass
	if !passed {
		status = model.CheckStatusFail
	}
	return &model.IntegrityCheckResult{
		CheckDate:     snap.CheckDate,
		CheckName:     c.Name(),
		Category:      string(c.Category()),
		Severity:      th.Severity,
		ExpectedValue: expected,
		ActualValue:   actual,
		Difference:    math.Abs(expected - actual),
		Tolerance:     tolerance,
		Status:        string(status),
		GroupKey:      groupKey,
		Detail:        detail,
	}
}

// groupKey 拼接 (周期, 公司) 分组键
func groupKey(period, company string) string {
	return fmt.Sprintf("%s|%s", period, company)
}
