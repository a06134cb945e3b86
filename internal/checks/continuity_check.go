package checks

import (
	"fmt"
	"sort"

	"github.com/kcard-data/metrics-quality/internal/config"
	"github.com/kcard-data/metrics-quality/internal/model"
)

// ContinuityCheck 连续性: 每公司首末周期间的日历月数与实际观测月数必须一致
// 单周期公司期望与实际均为 1，恒通过且差为 0
type ContinuityCheck struct{}

func (c *ContinuityCheck) Name() string                  { return "monthly_continuity" }
func (c *ContinuityCheck) ConfigKey() string             { return config.KeyContinuity }
func (c *ContinuityCheck) Category() model.CheckCategory { return model.CategoryContinuity }

func (c *ContinuityCheck) Run(snap *Snapshot, th *config.Threshold) []*model.IntegrityCheckResult {
	periods := make(map[string]map[string]struct{})
	companySet := make(map[string]struct{})
	for _, m := range snap.MonthlyUsage {
		if _, ok := periods[m.CardCompany]; !ok {
			periods[m.CardCompany] = make(map[string]struct{})
			companySet[m.CardCompany] = struct{}{}
		}
		periods[m.CardCompany][m.YearMonth] = struct{}{}
	}
	companies := make([]string, 0, len(companySet))
	for company := range companySet {
		companies = append(companies, company)
	}
	sort.Strings(companies)

	maxMissing := 0
	if th.MaxMissingMonths != nil {
		maxMissing = *th.MaxMissingMonths
	}

	var out []*model.IntegrityCheckResult
	for _, company := range companies {
		observed := make([]string, 0, len(periods[company]))
		for p := range periods[company] {
			observed = append(observed, p)
		}
		sort.Strings(observed)

		span, err := model.MonthSpan(observed[0], observed[len(observed)-1])
		if err != nil {
			// 周期键非法属于派生缺陷，按排除规则跳过该公司
			continue
		}
		expected := float64(span)
		actual := float64(len(observed))
		missing := span - len(observed)
		passed := missing <= maxMissing
		out = append(out, newResult(snap, c, th, company, expected, actual, float64(maxMissing), passed,
			fmt.Sprintf("company=%s first=%s last=%s missing=%d", company, observed[0], observed[len(observed)-1], missing)))
	}
	return out
}
