package seed

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kcard-data/metrics-quality/internal/model"
	"github.com/kcard-data/metrics-quality/internal/repository"
	"github.com/kcard-data/metrics-quality/pkg/logger"
)

// 演示数据生成器: 8家卡公司 × 10个行业 × N个月的规整事实，
// 带季节因子与年增长趋势，同一种子产出逐位一致

// companyScales 公司基准月度规模 (百万韩元)
var companyScales = []struct {
	name  string
	scale float64
}{
	{"신한카드", 21000},
	{"삼성카드", 18500},
	{"KB국민카드", 17800},
	{"현대카드", 16200},
	{"롯데카드", 11500},
	{"우리카드", 9800},
	{"하나카드", 9200},
	{"BC카드", 7400},
}

// categoryWeights 行业用量权重，合计 1.0
var categoryWeights = []struct {
	name   string
	weight float64
}{
	{"일반음식점", 0.22},
	{"대형마트", 0.16},
	{"온라인쇼핑", 0.15},
	{"주유소", 0.12},
	{"편의점", 0.09},
	{"병원", 0.08},
	{"숙박업", 0.06},
	{"항공사", 0.05},
	{"커피전문점", 0.04},
	{"약국", 0.03},
}

// seasonalFactors 月度季节因子 (1月~12月)
var seasonalFactors = [12]float64{
	0.95, 0.90, 0.98, 1.00, 1.05, 1.02,
	1.04, 1.06, 0.99, 1.03, 1.01, 1.12,
}

const annualGrowth = 0.06 // 年增长 6%

// Generator 演示事实生成器
type Generator struct {
	rng    *rand.Rand
	months int
	last   time.Time
}

// NewGenerator 创建生成器，last 为最后一个生成月
func NewGenerator(seedVal int64, months int, last time.Time) *Generator {
	return &Generator{
		rng:    rand.New(rand.NewSource(seedVal)),
		months: months,
		last:   time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, time.UTC),
	}
}

// Facts 生成全部用量与发卡事实
func (g *Generator) Facts() ([]*model.UsageFact, []*model.IssuanceFact) {
	var usage []*model.UsageFact
	var issuance []*model.IssuanceFact

	start := g.last.AddDate(0, -(g.months - 1), 0)
	for i := 0; i < g.months; i++ {
		month := start.AddDate(0, i, 0)
		period := model.FormatPeriod(month)
		growth := math.Pow(1+annualGrowth, float64(i)/12)
		seasonal := seasonalFactors[month.Month()-1]

		for ci, company := range companyScales {
			monthTotal := company.scale * growth * seasonal
			for _, category := range categoryWeights {
				noise := 1 + (g.rng.Float64()-0.5)*0.10
				amount := monthTotal * category.weight * noise * 1_000_000
				count := int64(amount / (42000 + float64(ci)*1500))
				usage = append(usage, &model.UsageFact{
					YearMonth:        period,
					CardCompany:      company.name,
					BusinessCategory: category.name,
					UsageAmount:      decimal.NewFromFloat(amount).Round(2),
					UsageCount:       count,
				})
			}

			issued := int64(company.scale*400) + int64(i)*int64(2000+ci*300)
			activation := 0.58 + 0.02*float64(ci%4) + (g.rng.Float64()-0.5)*0.04
			issuance = append(issuance, &model.IssuanceFact{
				YearMonth:        period,
				CardCompany:      company.name,
				TotalIssuedCards: issued,
				ActiveCards:      int64(float64(issued) * activation),
			})
		}
	}
	return usage, issuance
}

// Load 生成并幂等写入演示事实
func Load(ctx context.Context, factRepo *repository.FactRepository, seedVal int64, months int, last time.Time) error {
	g := NewGenerator(seedVal, months, last)
	usage, issuance := g.Facts()

	if err := factRepo.BatchUpsertUsage(ctx, usage); err != nil {
		return fmt.Errorf("failed to load usage facts: %w", err)
	}
	if err := factRepo.BatchUpsertIssuance(ctx, issuance); err != nil {
		return fmt.Errorf("failed to load issuance facts: %w", err)
	}

	logger.Info("demo facts loaded",
		zap.Int("usage_rows", len(usage)),
		zap.Int("issuance_rows", len(issuance)),
		zap.Int("months", months),
	)
	return nil
}
