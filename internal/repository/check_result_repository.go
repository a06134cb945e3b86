package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kcard-data/metrics-quality/internal/model"
)

// CheckResultRepository 校验结果仓储 (仅追加日志)
type CheckResultRepository struct {
	db *gorm.DB
}

// NewCheckResultRepository 创建校验结果仓储
func NewCheckResultRepository(db *gorm.DB) *CheckResultRepository {
	return &CheckResultRepository{db: db}
}

// BatchUpsert 批量写入校验结果
// 按 (check_date, check_name, group_key) 幂等，同日重跑覆盖旧结果
func (r *CheckResultRepository) BatchUpsert(ctx context.Context, results []*model.IntegrityCheckResult) error {
	if len(results) == 0 {
		return nil
	}

	now := time.Now().UnixMilli()
	for _, res := range results {
		res.CreatedAt = now
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "check_date"},
			{Name: "check_name"},
			{Name: "group_key"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"check_category", "severity", "expected_value", "actual_value",
			"difference", "tolerance", "status", "detail", "created_at",
		}),
	}).CreateInBatches(&results, 500).Error
}

// ListByDate 查询指定日期的全部校验结果
func (r *CheckResultRepository) ListByDate(ctx context.Context, checkDate string) ([]*model.IntegrityCheckResult, error) {
	var results []*model.IntegrityCheckResult
	err := r.db.WithContext(ctx).
		Where("check_date = ?", checkDate).
		Order("check_category ASC, check_name ASC, group_key ASC").
		Find(&results).Error
	return results, err
}

// ListCriticalFailures 查询指定日期的 CRITICAL 级失败
func (r *CheckResultRepository) ListCriticalFailures(ctx context.Context, checkDate string) ([]*model.IntegrityCheckResult, error) {
	var results []*model.IntegrityCheckResult
	err := r.db.WithContext(ctx).
		Where("check_date = ? AND status = ? AND severity = ?",
			checkDate, string(model.CheckStatusFail), string(model.SeverityCritical)).
		Order("check_category ASC, check_name ASC, group_key ASC").
		Find(&results).Error
	return results, err
}

// CategorySummaryRow 按 (类别, 严重度) 的通过/失败计数
type CategorySummaryRow struct {
	Category string `gorm:"column:check_category"`
	Severity string `gorm:"column:severity"`
	Total    int64  `gorm:"column:total"`
	Passed   int64  `gorm:"column:passed"`
	Failed   int64  `gorm:"column:failed"`
}

// SummarizeByCategory 按 (类别, 严重度) 汇总指定日期的校验结果
func (r *CheckResultRepository) SummarizeByCategory(ctx context.Context, checkDate string) ([]*CategorySummaryRow, error) {
	var rows []*CategorySummaryRow
	err := r.db.WithContext(ctx).
		Model(&model.IntegrityCheckResult{}).
		Select(`check_category, severity,
			COUNT(*) AS total,
			SUM(CASE WHEN status = 'PASS' THEN 1 ELSE 0 END) AS passed,
			SUM(CASE WHEN status = 'FAIL' THEN 1 ELSE 0 END) AS failed`).
		Where("check_date = ?", checkDate).
		Group("check_category, severity").
		Order("check_category ASC, severity ASC").
		Scan(&rows).Error
	return rows, err
}

// TrendRow 单日通过率趋势
type TrendRow struct {
	CheckDate      string `gorm:"column:check_date"`
	Total          int64  `gorm:"column:total"`
	Passed         int64  `gorm:"column:passed"`
	CriticalFailed int64  `gorm:"column:critical_failed"`
}

// DailyTrend 查询起始日期之后逐日的通过率与 CRITICAL 失败数
func (r *CheckResultRepository) DailyTrend(ctx context.Context, sinceDate string) ([]*TrendRow, error) {
	var rows []*TrendRow
	err := r.db.WithContext(ctx).
		Model(&model.IntegrityCheckResult{}).
		Select(`check_date,
			COUNT(*) AS total,
			SUM(CASE WHEN status = 'PASS' THEN 1 ELSE 0 END) AS passed,
			SUM(CASE WHEN status = 'FAIL' AND severity = 'CRITICAL' THEN 1 ELSE 0 END) AS critical_failed`).
		Where("check_date >= ?", sinceDate).
		Group("check_date").
		Order("check_date ASC").
		Scan(&rows).Error
	return rows, err
}

// CountByDateAndStatus 统计指定日期某状态的结果数
func (r *CheckResultRepository) CountByDateAndStatus(ctx context.Context, checkDate string, status model.CheckStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.IntegrityCheckResult{}).
		Where("check_date = ? AND status = ?", checkDate, string(status)).
		Count(&count).Error
	return count, err
}
