package model

import "github.com/shopspring/decimal"

// UsageFact 信用卡月度刷卡事实 (按卡公司、按行业分类)
// 原始事实表，仅追加，由上游装载器写入，本服务只读
type UsageFact struct {
	ID               int64           `gorm:"column:id;primaryKey;autoIncrement"`
	YearMonth        string          `gorm:"column:year_month;type:varchar(7);not null;uniqueIndex:uk_usage_key"`
	CardCompany      string          `gorm:"column:card_company;type:varchar(50);not null;uniqueIndex:uk_usage_key"`
	BusinessCategory string          `gorm:"column:business_category;type:varchar(50);not null;uniqueIndex:uk_usage_key"`
	UsageAmount      decimal.Decimal `gorm:"column:usage_amount;type:decimal(20,2);not null"`
	UsageCount       int64           `gorm:"column:usage_count;not null"`
	CreatedAt        int64           `gorm:"column:created_at;not null"`
}

// TableName 表名
func (UsageFact) TableName() string {
	return "credit_card_usage"
}

// IssuanceFact 发卡统计事实，每 (月, 卡公司) 一行
type IssuanceFact struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	YearMonth        string `gorm:"column:year_month;type:varchar(7);not null;uniqueIndex:uk_issuance_key"`
	CardCompany      string `gorm:"column:card_company;type:varchar(50);not null;uniqueIndex:uk_issuance_key"`
	TotalIssuedCards int64  `gorm:"column:total_issued_cards;not null"`
	ActiveCards      int64  `gorm:"column:active_cards;not null"`
	CreatedAt        int64  `gorm:"column:created_at;not null"`
}

// TableName 表名
func (IssuanceFact) TableName() string {
	return "card_issuance_stats"
}
