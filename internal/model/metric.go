package model

import "github.com/shopspring/decimal"

// 派生指标表，每次运行由派生管道整表重建 (staging 表 + 原子切换)
// 校验引擎只读这些表，从不修改

// MonthlyUsageMetric 月度用量指标，每 (月, 卡公司) 一行
type MonthlyUsageMetric struct {
	ID                   int64            `gorm:"column:id;primaryKey;autoIncrement"`
	YearMonth            string           `gorm:"column:year_month;type:varchar(7);not null;uniqueIndex:uk_monthly_key"`
	CardCompany          string           `gorm:"column:card_company;type:varchar(50);not null;uniqueIndex:uk_monthly_key"`
	TotalAmount          decimal.Decimal  `gorm:"column:total_amount;type:decimal(20,2);not null"`
	TotalCount           int64            `gorm:"column:total_count;not null"`
	AvgTransactionAmount decimal.Decimal  `gorm:"column:avg_transaction_amount;type:decimal(20,2);not null"`
	PrevMonthAmount      *decimal.Decimal `gorm:"column:prev_month_amount;type:decimal(20,2)"`
	PrevYearAmount       *decimal.Decimal `gorm:"column:prev_year_amount;type:decimal(20,2)"`
}

// TableName 表名
func (MonthlyUsageMetric) TableName() string {
	return "kpi_monthly_usage"
}

// MarketShareMetric 市场份额指标，每 (月, 卡公司) 一行
// 不变量: 每月所有公司 share_pct 之和 = 100 (容差内)
type MarketShareMetric struct {
	ID             int64    `gorm:"column:id;primaryKey;autoIncrement"`
	YearMonth      string   `gorm:"column:year_month;type:varchar(7);not null;uniqueIndex:uk_share_key"`
	CardCompany    string   `gorm:"column:card_company;type:varchar(50);not null;uniqueIndex:uk_share_key"`
	SharePct       float64  `gorm:"column:market_share_pct;not null"`
	Rank           int      `gorm:"column:market_rank;not null"` // 1 = 份额最大
	PrevMonthShare *float64 `gorm:"column:prev_month_share"`
	ShareChangePP  float64  `gorm:"column:share_change_pp;not null"` // 无历史时为 0
	PrevYearShare  *float64 `gorm:"column:prev_year_share"`
}

// TableName 表名
func (MarketShareMetric) TableName() string {
	return "kpi_market_share"
}

// GrowthRateMetric 增长率指标，每 (月, 卡公司) 一行
// 除数为零或缺失时增长率为 nil，校验引擎按排除规则处理
type GrowthRateMetric struct {
	ID               int64            `gorm:"column:id;primaryKey;autoIncrement"`
	YearMonth        string           `gorm:"column:year_month;type:varchar(7);not null;uniqueIndex:uk_growth_key"`
	CardCompany      string           `gorm:"column:card_company;type:varchar(50);not null;uniqueIndex:uk_growth_key"`
	CurrentAmount    decimal.Decimal  `gorm:"column:current_amount;type:decimal(20,2);not null"`
	PrevMonthAmount  *decimal.Decimal `gorm:"column:prev_month_amount;type:decimal(20,2)"`
	PrevYearAmount   *decimal.Decimal `gorm:"column:prev_year_amount;type:decimal(20,2)"`
	MomGrowthRate    *float64         `gorm:"column:mom_growth_rate"`
	YoyGrowthRate    *float64         `gorm:"column:yoy_growth_rate"`
	Mom3mAvg         *float64         `gorm:"column:mom_3m_avg"`
	AnnualizedGrowth *float64         `gorm:"column:annualized_growth"`
}

// TableName 表名
func (GrowthRateMetric) TableName() string {
	return "kpi_growth_rate"
}

// CategoryUsageMetric 行业分类用量指标，每 (月, 卡公司, 行业) 一行
// category_share_pct 以该公司当月总量为分母，不变量: 每 (月, 公司) 之和 = 100
type CategoryUsageMetric struct {
	ID                 int64            `gorm:"column:id;primaryKey;autoIncrement"`
	YearMonth          string           `gorm:"column:year_month;type:varchar(7);not null;uniqueIndex:uk_category_key"`
	CardCompany        string           `gorm:"column:card_company;type:varchar(50);not null;uniqueIndex:uk_category_key"`
	BusinessCategory   string           `gorm:"column:business_category;type:varchar(50);not null;uniqueIndex:uk_category_key"`
	CategoryAmount     decimal.Decimal  `gorm:"column:category_amount;type:decimal(20,2);not null"`
	CategorySharePct   float64          `gorm:"column:category_share_pct;not null"`
	CategoryRank       int              `gorm:"column:category_rank;not null"` // 当月该行业内公司排名
	PrevMonthCatAmount *decimal.Decimal `gorm:"column:prev_month_cat_amount;type:decimal(20,2)"`
	CategoryMomGrowth  *float64         `gorm:"column:category_mom_growth"`
}

// TableName 表名
func (CategoryUsageMetric) TableName() string {
	return "kpi_category_usage"
}

// ActivationRateMetric 卡激活率指标，每 (月, 卡公司) 一行
// activation_rate 必须落在 [0, 100]
type ActivationRateMetric struct {
	ID             int64    `gorm:"column:id;primaryKey;autoIncrement"`
	YearMonth      string   `gorm:"column:year_month;type:varchar(7);not null;uniqueIndex:uk_activation_key"`
	CardCompany    string   `gorm:"column:card_company;type:varchar(50);not null;uniqueIndex:uk_activation_key"`
	ActivationRate float64  `gorm:"column:activation_rate;not null"`
	PrevMonthRate  *float64 `gorm:"column:prev_month_rate"`
	RateChangePP   float64  `gorm:"column:rate_change_pp;not null"` // 无历史时为 0
	VsIndustryAvg  float64  `gorm:"column:vs_industry_avg;not null"`
}

// TableName 表名
func (ActivationRateMetric) TableName() string {
	return "kpi_activation_rate"
}

// ConcentrationLevel 市场集中度分级
type ConcentrationLevel string

const (
	ConcentrationCompetitive  ConcentrationLevel = "competitive"  // HHI < 1500
	ConcentrationModerate     ConcentrationLevel = "moderate"     // 1500 <= HHI < 2500
	ConcentrationConcentrated ConcentrationLevel = "concentrated" // HHI >= 2500
)

// MarketConcentrationMetric 市场集中度指标，每月一行
// 不变量: hhi_index 落在 [0, 10000]
type MarketConcentrationMetric struct {
	ID                 int64   `gorm:"column:id;primaryKey;autoIncrement"`
	YearMonth          string  `gorm:"column:year_month;type:varchar(7);not null;uniqueIndex"`
	HHIIndex           float64 `gorm:"column:hhi_index;not null"`
	ConcentrationLevel string  `gorm:"column:concentration_level;type:varchar(20);not null"`
	NumCompanies       int     `gorm:"column:num_companies;not null"`
	Top1Share          float64 `gorm:"column:top1_share;not null"`
	CR3Share           float64 `gorm:"column:cr3_share;not null"`
}

// TableName 表名
func (MarketConcentrationMetric) TableName() string {
	return "kpi_market_concentration"
}

// AnomalyLevel 异常分级
type AnomalyLevel string

const (
	AnomalyNormal   AnomalyLevel = "NORMAL"
	AnomalyWarning  AnomalyLevel = "WARNING"  // |z| > 2
	AnomalyCritical AnomalyLevel = "CRITICAL" // |z| > 3
)

// AnomalyRecord 异常检测记录，每 (月, 卡公司) 一行
// z_score 以该公司全部历史的总体均值/标准差计算；历史不足或标准差为零时为 nil
type AnomalyRecord struct {
	ID           int64           `gorm:"column:id;primaryKey;autoIncrement"`
	YearMonth    string          `gorm:"column:year_month;type:varchar(7);not null;uniqueIndex:uk_anomaly_key"`
	CardCompany  string          `gorm:"column:card_company;type:varchar(50);not null;uniqueIndex:uk_anomaly_key"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null"`
	ZScore       *float64        `gorm:"column:z_score"`
	AnomalyLevel string          `gorm:"column:anomaly_level;type:varchar(20);not null"`
	Q1           float64         `gorm:"column:q1;not null"`
	Q3           float64         `gorm:"column:q3;not null"`
}

// TableName 表名
func (AnomalyRecord) TableName() string {
	return "kpi_anomaly"
}
