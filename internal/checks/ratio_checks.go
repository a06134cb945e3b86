package checks

import (
	"fmt"
	"math"
	"sort"

	"github.com/kcard-data/metrics-quality/internal/config"
	"github.com/kcard-data/metrics-quality/internal/model"
)

// MarketShareRatioCheck 份额比率: 每月全部公司份额之和必须为 100
// 当月无份额行 (市场总量为零) 时该月不产出结果
type MarketShareRatioCheck struct{}

func (c *MarketShareRatioCheck) Name() string                  { return "market_share_sum" }
func (c *MarketShareRatioCheck) ConfigKey() string             { return config.KeyRatioMarketShare }
func (c *MarketShareRatioCheck) Category() model.CheckCategory { return model.CategoryRatio }

func (c *MarketShareRatioCheck) Run(snap *Snapshot, th *config.Threshold) []*model.IntegrityCheckResult {
	sums := make(map[string]float64)
	periodSet := make(map[string]struct{})
	for _, s := range snap.MarketShare {
		sums[s.YearMonth] += s.SharePct
		periodSet[s.YearMonth] = struct{}{}
	}
	periods := make([]string, 0, len(periodSet))
	for p := range periodSet {
		periods = append(periods, p)
	}
	sort.Strings(periods)

	tolerance := *th.Tolerance
	var out []*model.IntegrityCheckResult
	for _, period := range periods {
		actual := sums[period]
		passed := math.Abs(100-actual) < tolerance
		out = append(out, newResult(snap, c, th, period, 100, actual, tolerance, passed,
			fmt.Sprintf("period=%s", period)))
	}
	return out
}

// CategoryRatioCheck 分类比率: 每 (月, 公司) 行业份额之和必须为 100
// 公司当月总量为零时份额无定义，该组不计分
type CategoryRatioCheck struct{}

func (c *CategoryRatioCheck) Name() string                  { return "category_share_sum" }
func (c *CategoryRatioCheck) ConfigKey() string             { return config.KeyRatioCategory }
func (c *CategoryRatioCheck) Category() model.CheckCategory { return model.CategoryRatio }

func (c *CategoryRatioCheck) Run(snap *Snapshot, th *config.Threshold) []*model.IntegrityCheckResult {
	type group struct {
		shareSum  float64
		amountSum float64
	}
	groups := make(map[periodCompany]*group)
	for _, r := range snap.CategoryUsage {
		k := periodCompany{r.YearMonth, r.CardCompany}
		g, ok := groups[k]
		if !ok {
			g = &group{}
			groups[k] = g
		}
		g.shareSum += r.CategorySharePct
		g.amountSum += r.CategoryAmount.InexactFloat64()
	}

	keys := make([]periodCompany, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].period != keys[j].period {
			return keys[i].period < keys[j].period
		}
		return keys[i].company < keys[j].company
	})

	tolerance := *th.Tolerance
	var out []*model.IntegrityCheckResult
	for _, k := range keys {
		g := groups[k]
		if g.amountSum == 0 {
			continue
		}
		passed := math.Abs(100-g.shareSum) < tolerance
		out = append(out, newResult(snap, c, th, groupKey(k.period, k.company), 100, g.shareSum, tolerance, passed,
			fmt.Sprintf("period=%s company=%s", k.period, k.company)))
	}
	return out
}

type periodCompany struct {
	period  string
	company string
}
