package summary

import (
	"context"
	"math"

	"github.com/kcard-data/metrics-quality/internal/model"
	"github.com/kcard-data/metrics-quality/internal/repository"
)

// Aggregator 结果日志的只读汇总
// 不产生新事实，只为外部看板/告警方提供聚合视图
type Aggregator struct {
	resultRepo *repository.CheckResultRepository
}

// New 创建汇总器
func New(resultRepo *repository.CheckResultRepository) *Aggregator {
	return &Aggregator{resultRepo: resultRepo}
}

// CategorySummary 按 (类别, 严重度) 的通过情况
type CategorySummary struct {
	Category string  `json:"category"`
	Severity string  `json:"severity"`
	Phase    int     `json:"phase"`
	Total    int64   `json:"total"`
	Passed   int64   `json:"passed"`
	Failed   int64   `json:"failed"`
	PassRate float64 `json:"pass_rate"`
}

// ByCategory 指定日期按 (类别, 严重度) 汇总
func (a *Aggregator) ByCategory(ctx context.Context, checkDate string) ([]*CategorySummary, error) {
	rows, err := a.resultRepo.SummarizeByCategory(ctx, checkDate)
	if err != nil {
		return nil, err
	}
	out := make([]*CategorySummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, &CategorySummary{
			Category: r.Category,
			Severity: r.Severity,
			Phase:    model.CategoryPhase[model.CheckCategory(r.Category)],
			Total:    r.Total,
			Passed:   r.Passed,
			Failed:   r.Failed,
			PassRate: passRate(r.Passed, r.Total),
		})
	}
	return out, nil
}

// CriticalFailures 指定日期的 CRITICAL 级失败行
func (a *Aggregator) CriticalFailures(ctx context.Context, checkDate string) ([]*model.IntegrityCheckResult, error) {
	return a.resultRepo.ListCriticalFailures(ctx, checkDate)
}

// TrendPoint 单日趋势点
type TrendPoint struct {
	CheckDate      string  `json:"check_date"`
	Total          int64   `json:"total"`
	Passed         int64   `json:"passed"`
	PassRate       float64 `json:"pass_rate"`
	CriticalFailed int64   `json:"critical_failed"`
}

// DailyTrend 起始日期之后逐日的通过率与 CRITICAL 失败数
func (a *Aggregator) DailyTrend(ctx context.Context, sinceDate string) ([]*TrendPoint, error) {
	rows, err := a.resultRepo.DailyTrend(ctx, sinceDate)
	if err != nil {
		return nil, err
	}
	out := make([]*TrendPoint, 0, len(rows))
	for _, r := range rows {
		out = append(out, &TrendPoint{
			CheckDate:      r.CheckDate,
			Total:          r.Total,
			Passed:         r.Passed,
			PassRate:       passRate(r.Passed, r.Total),
			CriticalFailed: r.CriticalFailed,
		})
	}
	return out, nil
}

// Overall 指定日期的整体结论
type Overall struct {
	CheckDate      string  `json:"check_date"`
	Total          int64   `json:"total"`
	Passed         int64   `json:"passed"`
	Failed         int64   `json:"failed"`
	PassRate       float64 `json:"pass_rate"`
	CriticalFailed int64   `json:"critical_failed"`
	Status         string  `json:"status"`
}

// GetOverall 指定日期的整体通过情况与结论
func (a *Aggregator) GetOverall(ctx context.Context, checkDate string) (*Overall, error) {
	rows, err := a.resultRepo.SummarizeByCategory(ctx, checkDate)
	if err != nil {
		return nil, err
	}
	o := &Overall{CheckDate: checkDate, Status: model.OverallPass}
	for _, r := range rows {
		o.Total += r.Total
		o.Passed += r.Passed
		o.Failed += r.Failed
		if r.Failed > 0 && r.Severity == string(model.SeverityCritical) {
			o.CriticalFailed += r.Failed
		}
	}
	o.PassRate = passRate(o.Passed, o.Total)
	switch {
	case o.CriticalFailed > 0:
		o.Status = model.OverallCritical
	case o.Failed > 0:
		o.Status = model.OverallWarning
	}
	return o, nil
}

// passRate 通过率百分比，无结果时记 100
func passRate(passed, total int64) float64 {
	if total == 0 {
		return 100
	}
	return math.Round(float64(passed)/float64(total)*10000) / 100
}
