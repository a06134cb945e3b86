package checks

import (
	"fmt"
	"sort"

	"github.com/kcard-data/metrics-quality/internal/config"
	"github.com/kcard-data/metrics-quality/internal/model"
	"github.com/kcard-data/metrics-quality/internal/stats"
)

// TrendBreakCheck 趋势急变检测 (补充校验)
// 对每公司月度金额序列，偏离前 window 个月移动均值超过 sigma 倍
// 移动标准差的月份视为急变，仅产出急变行
type TrendBreakCheck struct{}

func (c *TrendBreakCheck) Name() string                  { return "trend_break" }
func (c *TrendBreakCheck) ConfigKey() string             { return config.KeyTrendBreak }
func (c *TrendBreakCheck) Category() model.CheckCategory { return model.CategoryTrend }

func (c *TrendBreakCheck) Run(snap *Snapshot, th *config.Threshold) []*model.IntegrityCheckResult {
	window := 3
	if th.TrendWindow != nil {
		window = *th.TrendWindow
	}
	sigma := 2.0
	if th.TrendSigma != nil {
		sigma = *th.TrendSigma
	}

	byCompany := make(map[string][]*model.MonthlyUsageMetric)
	companySet := make(map[string]struct{})
	for _, m := range snap.MonthlyUsage {
		byCompany[m.CardCompany] = append(byCompany[m.CardCompany], m)
		companySet[m.CardCompany] = struct{}{}
	}
	companies := make([]string, 0, len(companySet))
	for company := range companySet {
		companies = append(companies, company)
	}
	sort.Strings(companies)

	var out []*model.IntegrityCheckResult
	for _, company := range companies {
		rows := byCompany[company]
		sort.Slice(rows, func(i, j int) bool { return rows[i].YearMonth < rows[j].YearMonth })
		values := make([]float64, len(rows))
		for i, m := range rows {
			values[i] = m.TotalAmount.InexactFloat64()
		}

		for _, idx := range stats.DetectTrendBreaks(values, window, sigma) {
			mean, _ := stats.PopulationMean(values[idx-window : idx])
			out = append(out, newResult(snap, c, th, groupKey(rows[idx].YearMonth, company),
				mean, values[idx], 0, false,
				fmt.Sprintf("period=%s company=%s window=%d sigma=%.1f", rows[idx].YearMonth, company, window, sigma)))
		}
	}
	return out
}
