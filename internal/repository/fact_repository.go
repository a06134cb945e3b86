package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kcard-data/metrics-quality/internal/model"
)

// FactRepository 原始事实数据仓储 (只读为主，写入仅供数据装载)
type FactRepository struct {
	db *gorm.DB
}

// NewFactRepository 创建事实数据仓储
func NewFactRepository(db *gorm.DB) *FactRepository {
	return &FactRepository{db: db}
}

// ListUsage 查询全部用量事实，按 (周期, 公司, 类别) 有序返回
func (r *FactRepository) ListUsage(ctx context.Context) ([]*model.UsageFact, error) {
	var facts []*model.UsageFact
	err := r.db.WithContext(ctx).
		Order("year_month ASC, card_company ASC, business_category ASC").
		Find(&facts).Error
	return facts, err
}

// ListIssuance 查询全部发卡事实，按 (周期, 公司) 有序返回
func (r *FactRepository) ListIssuance(ctx context.Context) ([]*model.IssuanceFact, error) {
	var facts []*model.IssuanceFact
	err := r.db.WithContext(ctx).
		Order("year_month ASC, card_company ASC").
		Find(&facts).Error
	return facts, err
}

// PeriodSum 单周期原始金额合计
type PeriodSum struct {
	YearMonth   string          `gorm:"column:year_month"`
	TotalAmount decimal.Decimal `gorm:"column:total_amount"`
}

// SumUsageByPeriod 按周期汇总原始用量金额，供总和校验比对
func (r *FactRepository) SumUsageByPeriod(ctx context.Context) ([]*PeriodSum, error) {
	var sums []*PeriodSum
	err := r.db.WithContext(ctx).
		Model(&model.UsageFact{}).
		Select("year_month, COALESCE(SUM(usage_amount), 0) AS total_amount").
		Group("year_month").
		Order("year_month ASC").
		Scan(&sums).Error
	return sums, err
}

// CountUsage 用量事实行数
func (r *FactRepository) CountUsage(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.UsageFact{}).Count(&count).Error
	return count, err
}

// BatchUpsertUsage 批量写入用量事实 (幂等，供演示数据装载)
func (r *FactRepository) BatchUpsertUsage(ctx context.Context, facts []*model.UsageFact) error {
	if len(facts) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	for _, f := range facts {
		f.CreatedAt = now
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "year_month"},
			{Name: "card_company"},
			{Name: "business_category"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"usage_amount", "usage_count", "created_at"}),
	}).CreateInBatches(&facts, 500).Error
}

// BatchUpsertIssuance 批量写入发卡事实 (幂等，供演示数据装载)
func (r *FactRepository) BatchUpsertIssuance(ctx context.Context, facts []*model.IssuanceFact) error {
	if len(facts) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	for _, f := range facts {
		f.CreatedAt = now
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "year_month"},
			{Name: "card_company"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"total_issued_cards", "active_cards", "created_at"}),
	}).CreateInBatches(&facts, 500).Error
}
