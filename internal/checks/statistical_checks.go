package checks

import (
	"fmt"
	"sort"

	"github.com/kcard-data/metrics-quality/internal/config"
	"github.com/kcard-data/metrics-quality/internal/model"
	"github.com/kcard-data/metrics-quality/internal/stats"
)

// StatisticalAnomalyCheck 统计完整性: CRITICAL 级异常占比不得超过上限
// 分母只计 z 分有定义的行；无可计分行时视为通过
type StatisticalAnomalyCheck struct{}

func (c *StatisticalAnomalyCheck) Name() string                  { return "critical_anomaly_ratio" }
func (c *StatisticalAnomalyCheck) ConfigKey() string             { return config.KeyStatisticalAnomaly }
func (c *StatisticalAnomalyCheck) Category() model.CheckCategory { return model.CategoryStatistical }

func (c *StatisticalAnomalyCheck) Run(snap *Snapshot, th *config.Threshold) []*model.IntegrityCheckResult {
	scored := 0
	critical := 0
	for _, a := range snap.Anomalies {
		if a.ZScore == nil {
			continue
		}
		scored++
		if a.AnomalyLevel == string(model.AnomalyCritical) {
			critical++
		}
	}

	maxRatio := *th.MaxCriticalRatio
	ratio := 0.0
	if scored > 0 {
		ratio = float64(critical) / float64(scored) * 100
	}
	passed := ratio <= maxRatio
	return []*model.IntegrityCheckResult{
		newResult(snap, c, th, "all", 0, ratio, maxRatio, passed,
			fmt.Sprintf("critical=%d scored=%d max_ratio=%.1f%%", critical, scored, maxRatio)),
	}
}

// IQROutlierCheck 四分位距离群检测 (补充校验)，仅产出离群行
type IQROutlierCheck struct{}

func (c *IQROutlierCheck) Name() string                  { return "iqr_outlier" }
func (c *IQROutlierCheck) ConfigKey() string             { return config.KeyStatisticalIQR }
func (c *IQROutlierCheck) Category() model.CheckCategory { return model.CategoryStatistical }

func (c *IQROutlierCheck) Run(snap *Snapshot, th *config.Threshold) []*model.IntegrityCheckResult {
	byCompany := make(map[string][]*model.AnomalyRecord)
	companySet := make(map[string]struct{})
	for _, a := range snap.Anomalies {
		byCompany[a.CardCompany] = append(byCompany[a.CardCompany], a)
		companySet[a.CardCompany] = struct{}{}
	}
	companies := make([]string, 0, len(companySet))
	for company := range companySet {
		companies = append(companies, company)
	}
	sort.Strings(companies)

	var out []*model.IntegrityCheckResult
	for _, company := range companies {
		rows := byCompany[company]
		values := make([]float64, len(rows))
		for i, a := range rows {
			values[i] = a.Amount.InexactFloat64()
		}
		lo, hi, ok := stats.IQRBounds(values)
		if !ok {
			continue
		}
		for i, a := range rows {
			if values[i] >= lo && values[i] <= hi {
				continue
			}
			out = append(out, newResult(snap, c, th, groupKey(a.YearMonth, company),
				clamp(values[i], lo, hi), values[i], 0, false,
				fmt.Sprintf("period=%s company=%s bounds=[%.2f,%.2f]", a.YearMonth, company, lo, hi)))
		}
	}
	return out
}
