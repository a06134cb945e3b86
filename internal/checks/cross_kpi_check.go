package checks

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kcard-data/metrics-quality/internal/config"
	"github.com/kcard-data/metrics-quality/internal/model"
)

// CrossKPICheck 跨指标一致性: 份额上升 (> share_change_pp) 同时用量
// 环比下降 (< growth_rate_pct) 在逻辑上矛盾，每月统计矛盾公司数
// 每月产出一条结果，矛盾公司列表写入 detail
type CrossKPICheck struct{}

func (c *CrossKPICheck) Name() string                  { return "share_growth_consistency" }
func (c *CrossKPICheck) ConfigKey() string             { return config.KeyCrossKPI }
func (c *CrossKPICheck) Category() model.CheckCategory { return model.CategoryCrossKPI }

func (c *CrossKPICheck) Run(snap *Snapshot, th *config.Threshold) []*model.IntegrityCheckResult {
	momByKey := make(map[periodCompany]*float64)
	for _, g := range snap.GrowthRate {
		momByKey[periodCompany{g.YearMonth, g.CardCompany}] = g.MomGrowthRate
	}

	inconsistent := make(map[string][]string)
	periodSet := make(map[string]struct{})
	for _, s := range snap.MarketShare {
		periodSet[s.YearMonth] = struct{}{}
		mom := momByKey[periodCompany{s.YearMonth, s.CardCompany}]
		if mom == nil {
			continue
		}
		if s.ShareChangePP > *th.ShareChangePP && *mom < *th.GrowthRatePct {
			inconsistent[s.YearMonth] = append(inconsistent[s.YearMonth], s.CardCompany)
		}
	}
	periods := make([]string, 0, len(periodSet))
	for p := range periodSet {
		periods = append(periods, p)
	}
	sort.Strings(periods)

	var out []*model.IntegrityCheckResult
	for _, period := range periods {
		companies := inconsistent[period]
		sort.Strings(companies)
		count := len(companies)
		detail := fmt.Sprintf("period=%s inconsistent_count=%d", period, count)
		if count > 0 {
			detail += " companies=" + strings.Join(companies, ",")
		}
		out = append(out, newResult(snap, c, th, period, 0, float64(count), 0, count == 0, detail))
	}
	return out
}
