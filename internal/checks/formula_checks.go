package checks

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/kcard-data/metrics-quality/internal/config"
	"github.com/kcard-data/metrics-quality/internal/model"
)

// 公式完整性: 用增长率反推上期金额，与存储的上期金额比对。
// 增长率无定义或恰为零的行整体排除，不计 PASS 也不计 FAIL

// reconstructPrev 由当前金额与增长率反推上期金额
func reconstructPrev(current decimal.Decimal, ratePct float64) float64 {
	return current.InexactFloat64() / (1 + ratePct/100)
}

// formulaResults 对单个增长率字段执行反推比对
func formulaResults(snap *Snapshot, c Check, th *config.Threshold,
	rate func(*model.GrowthRateMetric) *float64,
	prev func(*model.GrowthRateMetric) *decimal.Decimal,
) []*model.IntegrityCheckResult {
	tolerance := *th.Tolerance
	var out []*model.IntegrityCheckResult
	for _, g := range snap.GrowthRate {
		r := rate(g)
		p := prev(g)
		if r == nil || *r == 0 || p == nil {
			continue
		}
		expected := p.InexactFloat64()
		actual := reconstructPrev(g.CurrentAmount, *r)
		passed := math.Abs(expected-actual) < tolerance
		out = append(out, newResult(snap, c, th, groupKey(g.YearMonth, g.CardCompany),
			expected, actual, tolerance, passed,
			fmt.Sprintf("period=%s company=%s rate=%.2f", g.YearMonth, g.CardCompany, *r)))
	}
	return out
}

// FormulaMomCheck 环比公式反推
type FormulaMomCheck struct{}

func (c *FormulaMomCheck) Name() string                  { return "mom_formula_roundtrip" }
func (c *FormulaMomCheck) ConfigKey() string             { return config.KeyFormulaMom }
func (c *FormulaMomCheck) Category() model.CheckCategory { return model.CategoryFormula }

func (c *FormulaMomCheck) Run(snap *Snapshot, th *config.Threshold) []*model.IntegrityCheckResult {
	return formulaResults(snap, c, th,
		func(g *model.GrowthRateMetric) *float64 { return g.MomGrowthRate },
		func(g *model.GrowthRateMetric) *decimal.Decimal { return g.PrevMonthAmount },
	)
}

// FormulaYoyCheck 同比公式反推 (12个月偏移)
type FormulaYoyCheck struct{}

func (c *FormulaYoyCheck) Name() string                  { return "yoy_formula_roundtrip" }
func (c *FormulaYoyCheck) ConfigKey() string             { return config.KeyFormulaYoy }
func (c *FormulaYoyCheck) Category() model.CheckCategory { return model.CategoryFormula }

func (c *FormulaYoyCheck) Run(snap *Snapshot, th *config.Threshold) []*model.IntegrityCheckResult {
	return formulaResults(snap, c, th,
		func(g *model.GrowthRateMetric) *float64 { return g.YoyGrowthRate },
		func(g *model.GrowthRateMetric) *decimal.Decimal { return g.PrevYearAmount },
	)
}
