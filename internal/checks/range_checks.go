package checks

import (
	"fmt"

	"github.com/kcard-data/metrics-quality/internal/config"
	"github.com/kcard-data/metrics-quality/internal/model"
)

// clamp 把值压回 [lo, hi] 区间
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ActivationRangeCheck 区间完整性: 激活率必须落在 [min, max]，无容差
type ActivationRangeCheck struct{}

func (c *ActivationRangeCheck) Name() string                  { return "activation_rate_range" }
func (c *ActivationRangeCheck) ConfigKey() string             { return config.KeyRangeActivation }
func (c *ActivationRangeCheck) Category() model.CheckCategory { return model.CategoryRange }

func (c *ActivationRangeCheck) Run(snap *Snapshot, th *config.Threshold) []*model.IntegrityCheckResult {
	lo, hi := *th.Min, *th.Max
	var out []*model.IntegrityCheckResult
	for _, r := range snap.ActivationRate {
		actual := r.ActivationRate
		expected := clamp(actual, lo, hi)
		passed := actual >= lo && actual <= hi
		out = append(out, newResult(snap, c, th, groupKey(r.YearMonth, r.CardCompany),
			expected, actual, 0, passed,
			fmt.Sprintf("period=%s company=%s range=[%.0f,%.0f]", r.YearMonth, r.CardCompany, lo, hi)))
	}
	return out
}

// HHIRangeCheck 区间完整性: HHI 指数必须落在 [min, max]
type HHIRangeCheck struct{}

func (c *HHIRangeCheck) Name() string                  { return "hhi_index_range" }
func (c *HHIRangeCheck) ConfigKey() string             { return config.KeyRangeHHI }
func (c *HHIRangeCheck) Category() model.CheckCategory { return model.CategoryRange }

func (c *HHIRangeCheck) Run(snap *Snapshot, th *config.Threshold) []*model.IntegrityCheckResult {
	lo, hi := *th.Min, *th.Max
	var out []*model.IntegrityCheckResult
	for _, r := range snap.Concentration {
		actual := r.HHIIndex
		expected := clamp(actual, lo, hi)
		passed := actual >= lo && actual <= hi
		out = append(out, newResult(snap, c, th, r.YearMonth,
			expected, actual, 0, passed,
			fmt.Sprintf("period=%s level=%s", r.YearMonth, r.ConcentrationLevel)))
	}
	return out
}
