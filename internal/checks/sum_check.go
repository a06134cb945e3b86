package checks

import (
	"fmt"
	"math"
	"sort"

	"github.com/kcard-data/metrics-quality/internal/config"
	"github.com/kcard-data/metrics-quality/internal/model"
)

// SumCheck 总和完整性: 每月原始金额合计与月度指标合计必须一致
type SumCheck struct{}

func (c *SumCheck) Name() string                  { return "usage_amount_sum" }
func (c *SumCheck) ConfigKey() string             { return config.KeySumIntegrity }
func (c *SumCheck) Category() model.CheckCategory { return model.CategorySum }

func (c *SumCheck) Run(snap *Snapshot, th *config.Threshold) []*model.IntegrityCheckResult {
	derived := make(map[string]float64)
	for _, m := range snap.MonthlyUsage {
		derived[m.YearMonth] += m.TotalAmount.InexactFloat64()
	}

	periodSet := make(map[string]struct{})
	raw := make(map[string]float64)
	for _, s := range snap.RawPeriodSums {
		raw[s.YearMonth] = s.TotalAmount.InexactFloat64()
		periodSet[s.YearMonth] = struct{}{}
	}
	for p := range derived {
		periodSet[p] = struct{}{}
	}
	periods := make([]string, 0, len(periodSet))
	for p := range periodSet {
		periods = append(periods, p)
	}
	sort.Strings(periods)

	tolerance := *th.Tolerance
	var out []*model.IntegrityCheckResult
	for _, period := range periods {
		expected := raw[period]
		actual := derived[period]
		passed := math.Abs(expected-actual) < tolerance
		out = append(out, newResult(snap, c, th, period, expected, actual, tolerance, passed,
			fmt.Sprintf("period=%s", period)))
	}
	return out
}
