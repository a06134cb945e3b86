package model

// Severity 校验失败严重度
type Severity string

const (
	SeverityCritical Severity = "CRITICAL" // 立即处理
	SeverityWarning  Severity = "WARNING"  // 周期复核
	SeverityInfo     Severity = "INFO"     // 仅趋势参考
)

// ValidSeverity 判断严重度取值是否合法
func ValidSeverity(s string) bool {
	switch Severity(s) {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// CheckStatus 单项校验结果状态
type CheckStatus string

const (
	CheckStatusPass CheckStatus = "PASS"
	CheckStatusFail CheckStatus = "FAIL"
)

// CheckCategory 校验类别
type CheckCategory string

const (
	CategorySum         CheckCategory = "sum_integrity"
	CategoryRatio       CheckCategory = "ratio_integrity"
	CategoryFormula     CheckCategory = "formula_integrity"
	CategoryRange       CheckCategory = "range_integrity"
	CategoryContinuity  CheckCategory = "continuity_integrity"
	CategoryStatistical CheckCategory = "statistical_integrity"
	CategoryCrossKPI    CheckCategory = "cross_kpi_integrity"
	CategoryTrend       CheckCategory = "trend_integrity"
)

// CategoryPhase 类别解读优先级: 上游阶段失败会使下游失败失去语义
// 仅用于结果排序与标注，所有校验无条件执行，不做抑制
var CategoryPhase = map[CheckCategory]int{
	CategorySum:         1,
	CategoryRatio:       1,
	CategoryFormula:     2,
	CategoryRange:       3,
	CategoryContinuity:  3,
	CategoryStatistical: 4,
	CategoryCrossKPI:    4,
	CategoryTrend:       4,
}

// IntegrityCheckResult 定期校验结果，仅追加
// 按 (check_date, check_name, group_key) 幂等写入，支持安全重跑
type IntegrityCheckResult struct {
	ID            int64   `gorm:"column:id;primaryKey;autoIncrement"`
	CheckDate     string  `gorm:"column:check_date;type:varchar(10);not null;uniqueIndex:uk_check_key"`
	CheckName     string  `gorm:"column:check_name;type:varchar(100);not null;uniqueIndex:uk_check_key"`
	Category      string  `gorm:"column:check_category;type:varchar(50);not null"`
	Severity      string  `gorm:"column:severity;type:varchar(20);not null"`
	ExpectedValue float64 `gorm:"column:expected_value;not null"`
	ActualValue   float64 `gorm:"column:actual_value;not null"`
	Difference    float64 `gorm:"column:difference;not null"`
	Tolerance     float64 `gorm:"column:tolerance;not null"`
	Status        string  `gorm:"column:status;type:varchar(10);not null"`
	GroupKey      string  `gorm:"column:group_key;type:varchar(150);not null;uniqueIndex:uk_check_key"`
	Detail        string  `gorm:"column:detail;type:text"`
	CreatedAt     int64   `gorm:"column:created_at;not null"`
}

// TableName 表名
func (IntegrityCheckResult) TableName() string {
	return "integrity_check_results"
}

// IsPassed 是否通过
func (r *IntegrityCheckResult) IsPassed() bool {
	return r.Status == string(CheckStatusPass)
}

// IsCriticalFailure 是否为 CRITICAL 级失败
func (r *IntegrityCheckResult) IsCriticalFailure() bool {
	return !r.IsPassed() && r.Severity == string(SeverityCritical)
}

// Phase 所属解读阶段
func (r *IntegrityCheckResult) Phase() int {
	if p, ok := CategoryPhase[CheckCategory(r.Category)]; ok {
		return p
	}
	return 4
}
