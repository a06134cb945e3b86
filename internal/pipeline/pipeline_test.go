package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kcard-data/metrics-quality/internal/config"
	"github.com/kcard-data/metrics-quality/internal/model"
	"github.com/kcard-data/metrics-quality/internal/repository"
)

func usageFact(period, company, category string, amount int64, count int64) *model.UsageFact {
	return &model.UsageFact{
		YearMonth:        period,
		CardCompany:      company,
		BusinessCategory: category,
		UsageAmount:      decimal.NewFromInt(amount),
		UsageCount:       count,
	}
}

func TestBuildMonthlyUsage(t *testing.T) {
	facts := []*model.UsageFact{
		usageFact("2025-01", "A카드", "일반음식점", 600, 6),
		usageFact("2025-01", "A카드", "주유소", 400, 4),
		usageFact("2025-02", "A카드", "일반음식점", 1100, 10),
	}

	monthly := buildMonthlyUsage(facts)
	require.Len(t, monthly, 2)

	jan := monthly[0]
	assert.Equal(t, "2025-01", jan.YearMonth)
	assert.True(t, jan.TotalAmount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, int64(10), jan.TotalCount)
	assert.True(t, jan.AvgTransactionAmount.Equal(decimal.NewFromInt(100)))
	assert.Nil(t, jan.PrevMonthAmount)

	feb := monthly[1]
	require.NotNil(t, feb.PrevMonthAmount)
	assert.True(t, feb.PrevMonthAmount.Equal(decimal.NewFromInt(1000)))
	assert.Nil(t, feb.PrevYearAmount)
}

func TestBuildMarketShare(t *testing.T) {
	monthly := buildMonthlyUsage([]*model.UsageFact{
		usageFact("2025-01", "A카드", "일반음식점", 1000, 10),
		usageFact("2025-01", "B카드", "일반음식점", 1000, 10),
		usageFact("2025-02", "A카드", "일반음식점", 3000, 10),
		usageFact("2025-02", "B카드", "일반음식점", 1000, 10),
	})

	shares := buildMarketShare(monthly)
	require.Len(t, shares, 4)

	// 2025-01: 对半分，密集排名并列第一
	assert.Equal(t, 50.0, shares[0].SharePct)
	assert.Equal(t, 50.0, shares[1].SharePct)
	assert.Equal(t, 1, shares[0].Rank)
	assert.Equal(t, 1, shares[1].Rank)
	assert.Equal(t, 0.0, shares[0].ShareChangePP) // 首个观测月变化记 0

	// 2025-02: 75/25
	assert.Equal(t, "A카드", shares[2].CardCompany)
	assert.Equal(t, 75.0, shares[2].SharePct)
	assert.Equal(t, 1, shares[2].Rank)
	assert.Equal(t, 25.0, shares[3].SharePct)
	assert.Equal(t, 2, shares[3].Rank)
	require.NotNil(t, shares[2].PrevMonthShare)
	assert.Equal(t, 50.0, *shares[2].PrevMonthShare)
	assert.Equal(t, 25.0, shares[2].ShareChangePP)
	assert.Equal(t, -25.0, shares[3].ShareChangePP)
}

func TestBuildMarketShareZeroTotalOmitted(t *testing.T) {
	monthly := []*model.MonthlyUsageMetric{
		{YearMonth: "2025-01", CardCompany: "A카드", TotalAmount: decimal.Zero},
		{YearMonth: "2025-01", CardCompany: "B카드", TotalAmount: decimal.Zero},
		{YearMonth: "2025-02", CardCompany: "A카드", TotalAmount: decimal.NewFromInt(100)},
	}
	shares := buildMarketShare(monthly)
	require.Len(t, shares, 1)
	assert.Equal(t, "2025-02", shares[0].YearMonth)
	assert.Equal(t, 100.0, shares[0].SharePct)
}

func TestBuildGrowthRate(t *testing.T) {
	monthly := buildMonthlyUsage([]*model.UsageFact{
		usageFact("2025-01", "A카드", "일반음식점", 1000, 10),
		usageFact("2025-02", "A카드", "일반음식점", 1100, 10),
		usageFact("2025-03", "A카드", "일반음식점", 990, 10),
	})

	growth := buildGrowthRate(monthly)
	require.Len(t, growth, 3)

	// 首月无历史: 全部为 nil，校验引擎按排除规则处理
	assert.Nil(t, growth[0].MomGrowthRate)
	assert.Nil(t, growth[0].YoyGrowthRate)
	assert.Nil(t, growth[0].Mom3mAvg)

	require.NotNil(t, growth[1].MomGrowthRate)
	assert.Equal(t, 10.0, *growth[1].MomGrowthRate)
	require.NotNil(t, growth[2].MomGrowthRate)
	assert.Equal(t, -10.0, *growth[2].MomGrowthRate)

	// 3个月均线在有定义的环比子序列上计算，不足窗口按实际个数
	require.NotNil(t, growth[1].Mom3mAvg)
	assert.Equal(t, 10.0, *growth[1].Mom3mAvg)
	require.NotNil(t, growth[2].Mom3mAvg)
	assert.Equal(t, 0.0, *growth[2].Mom3mAvg)
}

func TestGrowthRateZeroDivisor(t *testing.T) {
	zero := decimal.Zero
	assert.Nil(t, growthRate(decimal.NewFromInt(100), &zero))
	assert.Nil(t, growthRate(decimal.NewFromInt(100), nil))

	prev := decimal.NewFromInt(200)
	rate := growthRate(decimal.NewFromInt(100), &prev)
	require.NotNil(t, rate)
	assert.Equal(t, -50.0, *rate)
}

func TestBuildCategoryUsage(t *testing.T) {
	facts := []*model.UsageFact{
		usageFact("2025-01", "A카드", "일반음식점", 600, 6),
		usageFact("2025-01", "A카드", "주유소", 400, 4),
		usageFact("2025-01", "B카드", "일반음식점", 1000, 10),
	}
	monthly := buildMonthlyUsage(facts)
	cats := buildCategoryUsage(facts, monthly)
	require.Len(t, cats, 3)

	// 份额以公司当月总量为分母，每公司之和为 100
	var aTotal float64
	for _, c := range cats {
		if c.CardCompany == "A카드" {
			aTotal += c.CategorySharePct
		}
	}
	assert.InDelta(t, 100.0, aTotal, 0.001)

	// 同行业内按金额排名: 일반음식점 B(1000) > A(600)
	for _, c := range cats {
		if c.BusinessCategory == "일반음식점" {
			if c.CardCompany == "B카드" {
				assert.Equal(t, 1, c.CategoryRank)
			} else {
				assert.Equal(t, 2, c.CategoryRank)
			}
		}
	}
}

func TestBuildActivationRate(t *testing.T) {
	issuance := []*model.IssuanceFact{
		{YearMonth: "2025-01", CardCompany: "A카드", TotalIssuedCards: 1000, ActiveCards: 600},
		{YearMonth: "2025-01", CardCompany: "B카드", TotalIssuedCards: 2000, ActiveCards: 1600},
		{YearMonth: "2025-02", CardCompany: "A카드", TotalIssuedCards: 0, ActiveCards: 0},
	}

	rows := buildActivationRate(issuance)
	require.Len(t, rows, 3)

	assert.Equal(t, 60.0, rows[0].ActivationRate)
	assert.Equal(t, 80.0, rows[1].ActivationRate)
	assert.Equal(t, 0.0, rows[0].RateChangePP)

	// 行业均值 70: A -10, B +10
	assert.Equal(t, -10.0, rows[0].VsIndustryAvg)
	assert.Equal(t, 10.0, rows[1].VsIndustryAvg)

	// 发卡量为零时激活率记 0
	assert.Equal(t, 0.0, rows[2].ActivationRate)
	assert.Equal(t, -60.0, rows[2].RateChangePP)
}

func TestBuildConcentration(t *testing.T) {
	shares := []*model.MarketShareMetric{
		{YearMonth: "2025-01", CardCompany: "A카드", SharePct: 50},
		{YearMonth: "2025-01", CardCompany: "B카드", SharePct: 50},
	}
	conc := buildConcentration(shares)
	require.Len(t, conc, 1)

	assert.Equal(t, 5000.0, conc[0].HHIIndex)
	assert.Equal(t, string(model.ConcentrationConcentrated), conc[0].ConcentrationLevel)
	assert.Equal(t, 2, conc[0].NumCompanies)
	assert.Equal(t, 50.0, conc[0].Top1Share)
	assert.Equal(t, 100.0, conc[0].CR3Share)
}

func TestConcentrationLevelBoundaries(t *testing.T) {
	assert.Equal(t, model.ConcentrationCompetitive, concentrationLevel(1499.99))
	assert.Equal(t, model.ConcentrationModerate, concentrationLevel(1500))
	assert.Equal(t, model.ConcentrationModerate, concentrationLevel(2499.99))
	assert.Equal(t, model.ConcentrationConcentrated, concentrationLevel(2500))
}

func TestBuildAnomalies(t *testing.T) {
	t.Run("constant series has no z-score", func(t *testing.T) {
		monthly := buildMonthlyUsage([]*model.UsageFact{
			usageFact("2025-01", "A카드", "일반음식점", 1000, 10),
			usageFact("2025-02", "A카드", "일반음식점", 1000, 10),
		})
		recs := buildAnomalies(monthly, 2, 3)
		require.Len(t, recs, 2)
		for _, r := range recs {
			assert.Nil(t, r.ZScore)
			assert.Equal(t, string(model.AnomalyNormal), r.AnomalyLevel)
		}
	})

	t.Run("single observation has no z-score", func(t *testing.T) {
		monthly := buildMonthlyUsage([]*model.UsageFact{
			usageFact("2025-01", "A카드", "일반음식점", 1000, 10),
		})
		recs := buildAnomalies(monthly, 2, 3)
		require.Len(t, recs, 1)
		assert.Nil(t, recs[0].ZScore)
	})

	t.Run("z-scores computed over full history", func(t *testing.T) {
		monthly := buildMonthlyUsage([]*model.UsageFact{
			usageFact("2025-01", "A카드", "일반음식점", 100, 1),
			usageFact("2025-02", "A카드", "일반음식점", 100, 1),
			usageFact("2025-03", "A카드", "일반음식점", 100, 1),
			usageFact("2025-04", "A카드", "일반음식점", 200, 1),
		})
		recs := buildAnomalies(monthly, 2, 3)
		require.Len(t, recs, 4)
		require.NotNil(t, recs[3].ZScore)
		assert.Greater(t, *recs[3].ZScore, 1.0)
		assert.Less(t, *recs[0].ZScore, 0.0)
	})

	t.Run("levels follow configured cutoffs", func(t *testing.T) {
		// 15个月平稳 + 1个月尖峰: 尖峰 z = sqrt(15) ≈ 3.87
		var monthly []*model.MonthlyUsageMetric
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 15; i++ {
			monthly = append(monthly, &model.MonthlyUsageMetric{
				YearMonth: base.AddDate(0, i, 0).Format("2006-01"), CardCompany: "A카드",
				TotalAmount: decimal.NewFromInt(100),
			})
		}
		monthly = append(monthly, &model.MonthlyUsageMetric{
			YearMonth: base.AddDate(0, 15, 0).Format("2006-01"), CardCompany: "A카드",
			TotalAmount: decimal.NewFromInt(1000),
		})

		recs := buildAnomalies(monthly, 2, 3)
		require.Len(t, recs, 16)
		assert.Equal(t, string(model.AnomalyCritical), recs[15].AnomalyLevel)

		// 提高 critical 阈值后同一尖峰只记 WARNING
		recs = buildAnomalies(monthly, 2, 10)
		assert.Equal(t, string(model.AnomalyWarning), recs[15].AnomalyLevel)

		// 两个阈值都抬高则视为正常
		recs = buildAnomalies(monthly, 5, 10)
		assert.Equal(t, string(model.AnomalyNormal), recs[15].AnomalyLevel)
	})

	t.Run("classification uses unrounded z-score", func(t *testing.T) {
		// 379×100 与 42×200: 高值行真实 z = sqrt(379/42) ≈ 3.004，
		// 取整存储为 3.0，但分级须按未取整值落在 CRITICAL
		var monthly []*model.MonthlyUsageMetric
		base := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 421; i++ {
			amount := int64(100)
			if i >= 379 {
				amount = 200
			}
			monthly = append(monthly, &model.MonthlyUsageMetric{
				YearMonth: base.AddDate(0, i, 0).Format("2006-01"), CardCompany: "A카드",
				TotalAmount: decimal.NewFromInt(amount),
			})
		}

		recs := buildAnomalies(monthly, 2, 3)
		require.Len(t, recs, 421)
		high := recs[420]
		require.NotNil(t, high.ZScore)
		assert.Equal(t, 3.0, *high.ZScore)
		assert.Equal(t, string(model.AnomalyCritical), high.AnomalyLevel)
	})
}

func TestAnomalyLevelBoundaries(t *testing.T) {
	assert.Equal(t, model.AnomalyNormal, anomalyLevel(2.0, 2, 3))
	assert.Equal(t, model.AnomalyWarning, anomalyLevel(2.5, 2, 3))
	assert.Equal(t, model.AnomalyWarning, anomalyLevel(3.0, 2, 3))
	assert.Equal(t, model.AnomalyCritical, anomalyLevel(3.5, 2, 3))
	assert.Equal(t, model.AnomalyCritical, anomalyLevel(-3.5, 2, 3))
	assert.Equal(t, model.AnomalyNormal, anomalyLevel(4.36, 5, 10))
}

func TestRebuildIdempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.UsageFact{}, &model.IssuanceFact{},
		&model.MonthlyUsageMetric{}, &model.MarketShareMetric{},
		&model.GrowthRateMetric{}, &model.CategoryUsageMetric{},
		&model.ActivationRateMetric{}, &model.MarketConcentrationMetric{},
		&model.AnomalyRecord{},
	))

	ctx := context.Background()
	factRepo := repository.NewFactRepository(db)
	metricRepo := repository.NewMetricRepository(db)
	require.NoError(t, factRepo.BatchUpsertUsage(ctx, []*model.UsageFact{
		usageFact("2025-01", "A카드", "일반음식점", 1000, 10),
		usageFact("2025-01", "B카드", "일반음식점", 1000, 10),
		usageFact("2025-02", "A카드", "일반음식점", 1200, 12),
		usageFact("2025-02", "B카드", "일반음식점", 800, 8),
	}))
	require.NoError(t, factRepo.BatchUpsertIssuance(ctx, []*model.IssuanceFact{
		{YearMonth: "2025-01", CardCompany: "A카드", TotalIssuedCards: 1000, ActiveCards: 700},
		{YearMonth: "2025-02", CardCompany: "A카드", TotalIssuedCards: 1000, ActiveCards: 750},
	}))

	p := New(factRepo, metricRepo, config.DefaultThresholds())
	first, err := p.Rebuild(ctx)
	require.NoError(t, err)
	second, err := p.Rebuild(ctx)
	require.NoError(t, err)

	// 相同事实重跑: 派生结果逐行一致
	require.Equal(t, len(first.MonthlyUsage), len(second.MonthlyUsage))
	for i := range first.MonthlyUsage {
		a, b := first.MonthlyUsage[i], second.MonthlyUsage[i]
		assert.Equal(t, a.YearMonth, b.YearMonth)
		assert.Equal(t, a.CardCompany, b.CardCompany)
		assert.True(t, a.TotalAmount.Equal(b.TotalAmount))
	}

	stored, err := metricRepo.ListMarketShare(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 4)

	// 总量守恒: 派生合计等于原始合计
	sums, err := factRepo.SumUsageByPeriod(ctx)
	require.NoError(t, err)
	monthly, err := metricRepo.ListMonthlyUsage(ctx)
	require.NoError(t, err)
	derived := make(map[string]decimal.Decimal)
	for _, m := range monthly {
		derived[m.YearMonth] = derived[m.YearMonth].Add(m.TotalAmount)
	}
	for _, s := range sums {
		assert.True(t, s.TotalAmount.Equal(derived[s.YearMonth]),
			"period %s raw %s derived %s", s.YearMonth, s.TotalAmount, derived[s.YearMonth])
	}
}
