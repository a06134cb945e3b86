package pipeline

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/kcard-data/metrics-quality/internal/model"
	"github.com/kcard-data/metrics-quality/internal/stats"
)

// 派生构建器。全部为纯函数: 输入事实/上游指标，输出下游指标行，
// 迭代顺序对周期、公司、行业排序，相同输入产出逐位一致

// round2 四舍五入到两位小数
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type periodCompany struct {
	period  string
	company string
}

// sortedKeys 对 (周期, 公司) 键排序
func sortedKeys[V any](m map[periodCompany]V) []periodCompany {
	keys := make([]periodCompany, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].period != keys[j].period {
			return keys[i].period < keys[j].period
		}
		return keys[i].company < keys[j].company
	})
	return keys
}

// sortedStrings 对字符串集合排序
func sortedStrings(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// buildMonthlyUsage 按 (月, 公司) 聚合用量事实，并回填上月/去年同月金额
func buildMonthlyUsage(facts []*model.UsageFact) []*model.MonthlyUsageMetric {
	type agg struct {
		amount decimal.Decimal
		count  int64
	}
	groups := make(map[periodCompany]*agg)
	for _, f := range facts {
		k := periodCompany{f.YearMonth, f.CardCompany}
		a, ok := groups[k]
		if !ok {
			a = &agg{}
			groups[k] = a
		}
		a.amount = a.amount.Add(f.UsageAmount)
		a.count += f.UsageCount
	}

	byCompany := make(map[string][]*model.MonthlyUsageMetric)
	var companies []string
	for _, k := range sortedKeys(groups) {
		a := groups[k]
		avg := decimal.Zero
		if a.count > 0 {
			avg = a.amount.Div(decimal.NewFromInt(a.count)).Round(2)
		}
		row := &model.MonthlyUsageMetric{
			YearMonth:            k.period,
			CardCompany:          k.company,
			TotalAmount:          a.amount,
			TotalCount:           a.count,
			AvgTransactionAmount: avg,
		}
		if _, ok := byCompany[k.company]; !ok {
			companies = append(companies, k.company)
		}
		byCompany[k.company] = append(byCompany[k.company], row)
	}
	sort.Strings(companies)

	var out []*model.MonthlyUsageMetric
	for _, company := range companies {
		rows := byCompany[company] // 已按周期有序
		amounts := make([]decimal.Decimal, len(rows))
		for i, r := range rows {
			amounts[i] = r.TotalAmount
		}
		prevMonth := stats.Lag(amounts, 1)
		prevYear := stats.Lag(amounts, 12)
		for i, r := range rows {
			r.PrevMonthAmount = prevMonth[i]
			r.PrevYearAmount = prevYear[i]
		}
		out = append(out, rows...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].YearMonth != out[j].YearMonth {
			return out[i].YearMonth < out[j].YearMonth
		}
		return out[i].CardCompany < out[j].CardCompany
	})
	return out
}

// buildMarketShare 以当月市场总量为分母计算份额与排名
// 当月市场总量为零时该月不产出份额行
func buildMarketShare(monthly []*model.MonthlyUsageMetric) []*model.MarketShareMetric {
	byPeriod := make(map[string][]*model.MonthlyUsageMetric)
	periodSet := make(map[string]struct{})
	for _, m := range monthly {
		byPeriod[m.YearMonth] = append(byPeriod[m.YearMonth], m)
		periodSet[m.YearMonth] = struct{}{}
	}

	var out []*model.MarketShareMetric
	byCompany := make(map[string][]*model.MarketShareMetric)
	for _, period := range sortedStrings(periodSet) {
		rows := byPeriod[period]
		sort.Slice(rows, func(i, j int) bool { return rows[i].CardCompany < rows[j].CardCompany })

		total := decimal.Zero
		for _, m := range rows {
			total = total.Add(m.TotalAmount)
		}
		if total.IsZero() {
			continue
		}

		shares := make([]float64, len(rows))
		for i, m := range rows {
			shares[i] = round2(m.TotalAmount.InexactFloat64() / total.InexactFloat64() * 100)
		}
		ranks := stats.RankDesc(shares)

		for i, m := range rows {
			row := &model.MarketShareMetric{
				YearMonth:   period,
				CardCompany: m.CardCompany,
				SharePct:    shares[i],
				Rank:        ranks[i],
			}
			out = append(out, row)
			byCompany[m.CardCompany] = append(byCompany[m.CardCompany], row)
		}
	}

	// 份额历史按公司回填；无上月份额时变化记 0
	for _, rows := range byCompany {
		series := make([]float64, len(rows))
		for i, r := range rows {
			series[i] = r.SharePct
		}
		prevMonth := stats.Lag(series, 1)
		prevYear := stats.Lag(series, 12)
		for i, r := range rows {
			r.PrevMonthShare = prevMonth[i]
			r.PrevYearShare = prevYear[i]
			if prevMonth[i] != nil {
				r.ShareChangePP = round2(r.SharePct - *prevMonth[i])
			}
		}
	}
	return out
}

// buildGrowthRate 环比/同比增长率；除数缺失或为零时增长率为 nil
func buildGrowthRate(monthly []*model.MonthlyUsageMetric) []*model.GrowthRateMetric {
	byCompany := make(map[string][]*model.MonthlyUsageMetric)
	companySet := make(map[string]struct{})
	for _, m := range monthly {
		byCompany[m.CardCompany] = append(byCompany[m.CardCompany], m)
		companySet[m.CardCompany] = struct{}{}
	}

	var out []*model.GrowthRateMetric
	for _, company := range sortedStrings(companySet) {
		rows := byCompany[company]
		sort.Slice(rows, func(i, j int) bool { return rows[i].YearMonth < rows[j].YearMonth })

		growth := make([]*model.GrowthRateMetric, len(rows))
		for i, m := range rows {
			g := &model.GrowthRateMetric{
				YearMonth:       m.YearMonth,
				CardCompany:     company,
				CurrentAmount:   m.TotalAmount,
				PrevMonthAmount: m.PrevMonthAmount,
				PrevYearAmount:  m.PrevYearAmount,
			}
			g.MomGrowthRate = growthRate(m.TotalAmount, m.PrevMonthAmount)
			g.YoyGrowthRate = growthRate(m.TotalAmount, m.PrevYearAmount)
			if g.MomGrowthRate != nil {
				annualized := round2((math.Pow(1+*g.MomGrowthRate/100, 12) - 1) * 100)
				g.AnnualizedGrowth = &annualized
			}
			growth[i] = g
		}

		// 3个月移动平均在有定义的环比子序列上计算
		var defined []float64
		var definedIdx []int
		for i, g := range growth {
			if g.MomGrowthRate != nil {
				defined = append(defined, *g.MomGrowthRate)
				definedIdx = append(definedIdx, i)
			}
		}
		mavg := stats.MovingAverage(defined, 3)
		for j, i := range definedIdx {
			v := round2(mavg[j])
			growth[i].Mom3mAvg = &v
		}
		out = append(out, growth...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].YearMonth != out[j].YearMonth {
			return out[i].YearMonth < out[j].YearMonth
		}
		return out[i].CardCompany < out[j].CardCompany
	})
	return out
}

// growthRate (当前-上期)/上期 × 100，上期缺失或为零时返回 nil
func growthRate(current decimal.Decimal, prev *decimal.Decimal) *float64 {
	if prev == nil || prev.IsZero() {
		return nil
	}
	rate := round2(current.Sub(*prev).Div(*prev).InexactFloat64() * 100)
	return &rate
}

// buildCategoryUsage 行业分类用量: 份额以公司当月总量为分母
func buildCategoryUsage(facts []*model.UsageFact, monthly []*model.MonthlyUsageMetric) []*model.CategoryUsageMetric {
	companyTotal := make(map[periodCompany]decimal.Decimal)
	for _, m := range monthly {
		companyTotal[periodCompany{m.YearMonth, m.CardCompany}] = m.TotalAmount
	}

	type catKey struct {
		period   string
		company  string
		category string
	}
	amounts := make(map[catKey]decimal.Decimal)
	for _, f := range facts {
		k := catKey{f.YearMonth, f.CardCompany, f.BusinessCategory}
		amounts[k] = amounts[k].Add(f.UsageAmount)
	}
	keys := make([]catKey, 0, len(amounts))
	for k := range amounts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].period != keys[j].period {
			return keys[i].period < keys[j].period
		}
		if keys[i].company != keys[j].company {
			return keys[i].company < keys[j].company
		}
		return keys[i].category < keys[j].category
	})

	var out []*model.CategoryUsageMetric
	for _, k := range keys {
		amount := amounts[k]
		share := 0.0
		if total, ok := companyTotal[periodCompany{k.period, k.company}]; ok && !total.IsZero() {
			share = round2(amount.InexactFloat64() / total.InexactFloat64() * 100)
		}
		out = append(out, &model.CategoryUsageMetric{
			YearMonth:        k.period,
			CardCompany:      k.company,
			BusinessCategory: k.category,
			CategoryAmount:   amount,
			CategorySharePct: share,
		})
	}

	// 行业内公司排名: 每 (月, 行业) 按金额降序密集排名
	type sliceKey struct{ period, category string }
	bySlice := make(map[sliceKey][]*model.CategoryUsageMetric)
	for _, r := range out {
		sk := sliceKey{r.YearMonth, r.BusinessCategory}
		bySlice[sk] = append(bySlice[sk], r)
	}
	for _, rows := range bySlice {
		values := make([]float64, len(rows))
		for i, r := range rows {
			values[i] = r.CategoryAmount.InexactFloat64()
		}
		ranks := stats.RankDesc(values)
		for i, r := range rows {
			r.CategoryRank = ranks[i]
		}
	}

	// 上月同行业金额与环比
	type partKey struct{ company, category string }
	byPart := make(map[partKey][]*model.CategoryUsageMetric)
	for _, r := range out {
		pk := partKey{r.CardCompany, r.BusinessCategory}
		byPart[pk] = append(byPart[pk], r)
	}
	for _, rows := range byPart {
		series := make([]decimal.Decimal, len(rows))
		for i, r := range rows {
			series[i] = r.CategoryAmount
		}
		prev := stats.Lag(series, 1)
		for i, r := range rows {
			r.PrevMonthCatAmount = prev[i]
			r.CategoryMomGrowth = growthRate(r.CategoryAmount, prev[i])
		}
	}
	return out
}

// buildActivationRate 激活率 = 活跃卡/发卡量 × 100，发卡量为零时记 0
func buildActivationRate(issuance []*model.IssuanceFact) []*model.ActivationRateMetric {
	rows := make([]*model.ActivationRateMetric, 0, len(issuance))
	byPeriod := make(map[string][]*model.ActivationRateMetric)
	byCompany := make(map[string][]*model.ActivationRateMetric)

	sorted := make([]*model.IssuanceFact, len(issuance))
	copy(sorted, issuance)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].YearMonth != sorted[j].YearMonth {
			return sorted[i].YearMonth < sorted[j].YearMonth
		}
		return sorted[i].CardCompany < sorted[j].CardCompany
	})

	for _, f := range sorted {
		rate := 0.0
		if f.TotalIssuedCards > 0 {
			rate = round2(float64(f.ActiveCards) / float64(f.TotalIssuedCards) * 100)
		}
		row := &model.ActivationRateMetric{
			YearMonth:      f.YearMonth,
			CardCompany:    f.CardCompany,
			ActivationRate: rate,
		}
		rows = append(rows, row)
		byPeriod[f.YearMonth] = append(byPeriod[f.YearMonth], row)
		byCompany[f.CardCompany] = append(byCompany[f.CardCompany], row)
	}

	// 对比行业均值
	for _, group := range byPeriod {
		values := make([]float64, len(group))
		for i, r := range group {
			values[i] = r.ActivationRate
		}
		if avg, ok := stats.PopulationMean(values); ok {
			for _, r := range group {
				r.VsIndustryAvg = round2(r.ActivationRate - avg)
			}
		}
	}

	// 无上月记录时变化记 0
	for _, group := range byCompany {
		series := make([]float64, len(group))
		for i, r := range group {
			series[i] = r.ActivationRate
		}
		prev := stats.Lag(series, 1)
		for i, r := range group {
			r.PrevMonthRate = prev[i]
			if prev[i] != nil {
				r.RateChangePP = round2(r.ActivationRate - *prev[i])
			}
		}
	}
	return rows
}

// buildConcentration 按月聚合份额得到市场集中度
func buildConcentration(shares []*model.MarketShareMetric) []*model.MarketConcentrationMetric {
	byPeriod := make(map[string][]float64)
	periodSet := make(map[string]struct{})
	for _, s := range shares {
		byPeriod[s.YearMonth] = append(byPeriod[s.YearMonth], s.SharePct)
		periodSet[s.YearMonth] = struct{}{}
	}

	var out []*model.MarketConcentrationMetric
	for _, period := range sortedStrings(periodSet) {
		values := byPeriod[period]
		sorted := make([]float64, len(values))
		copy(sorted, values)
		sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

		hhi := 0.0
		for _, v := range sorted {
			hhi += v * v
		}
		cr3 := 0.0
		for i, v := range sorted {
			if i >= 3 {
				break
			}
			cr3 += v
		}

		out = append(out, &model.MarketConcentrationMetric{
			YearMonth:          period,
			HHIIndex:           round2(hhi),
			ConcentrationLevel: string(concentrationLevel(hhi)),
			NumCompanies:       len(sorted),
			Top1Share:          round2(sorted[0]),
			CR3Share:           round2(cr3),
		})
	}
	return out
}

// concentrationLevel HHI 分级
func concentrationLevel(hhi float64) model.ConcentrationLevel {
	switch {
	case hhi >= 2500:
		return model.ConcentrationConcentrated
	case hhi >= 1500:
		return model.ConcentrationModerate
	default:
		return model.ConcentrationCompetitive
	}
}

// buildAnomalies 以公司全量历史的总体均值/标准差计算逐行 z 分
// 历史不足两个月或标准差为零时 z 为 nil，等级记 NORMAL
// 分级阈值来自 statistical_anomaly 配置；先按未取整 z 分级，再取整存储
func buildAnomalies(monthly []*model.MonthlyUsageMetric, zWarn, zCrit float64) []*model.AnomalyRecord {
	byCompany := make(map[string][]*model.MonthlyUsageMetric)
	companySet := make(map[string]struct{})
	for _, m := range monthly {
		byCompany[m.CardCompany] = append(byCompany[m.CardCompany], m)
		companySet[m.CardCompany] = struct{}{}
	}

	var out []*model.AnomalyRecord
	for _, company := range sortedStrings(companySet) {
		rows := byCompany[company]
		sort.Slice(rows, func(i, j int) bool { return rows[i].YearMonth < rows[j].YearMonth })

		values := make([]float64, len(rows))
		for i, m := range rows {
			values[i] = m.TotalAmount.InexactFloat64()
		}
		mean, _ := stats.PopulationMean(values)
		stddev, stddevOK := stats.PopulationStddev(values)
		q1, _ := stats.PercentileContinuous(values, 0.25)
		q3, _ := stats.PercentileContinuous(values, 0.75)

		for i, m := range rows {
			rec := &model.AnomalyRecord{
				YearMonth:    m.YearMonth,
				CardCompany:  company,
				Amount:       m.TotalAmount,
				AnomalyLevel: string(model.AnomalyNormal),
				Q1:           round2(q1),
				Q3:           round2(q3),
			}
			if stddevOK && stddev > 0 {
				z := (values[i] - mean) / stddev
				rec.AnomalyLevel = string(anomalyLevel(z, zWarn, zCrit))
				rounded := round2(z)
				rec.ZScore = &rounded
			}
			out = append(out, rec)
		}
	}
	return out
}

// anomalyLevel 按配置阈值对 |z| 分级
func anomalyLevel(z, warn, crit float64) model.AnomalyLevel {
	abs := math.Abs(z)
	switch {
	case abs > crit:
		return model.AnomalyCritical
	case abs > warn:
		return model.AnomalyWarning
	default:
		return model.AnomalyNormal
	}
}
