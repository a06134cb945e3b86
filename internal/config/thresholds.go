package config

import "fmt"

// 校验阈值配置。十个必备键固定，缺键、容差非数值、严重度非法
// 均为配置错误，在任何校验运行前中止

const (
	KeySumIntegrity       = "sum_integrity"
	KeyRatioMarketShare   = "ratio_market_share"
	KeyRatioCategory      = "ratio_category"
	KeyFormulaMom         = "formula_mom"
	KeyFormulaYoy         = "formula_yoy"
	KeyRangeActivation    = "range_activation"
	KeyRangeHHI           = "range_hhi"
	KeyContinuity         = "continuity"
	KeyStatisticalAnomaly = "statistical_anomaly"
	KeyCrossKPI           = "cross_kpi"

	// 可选补充校验
	KeyStatisticalIQR = "statistical_iqr"
	KeyTrendBreak     = "trend_break"
)

// RequiredThresholdKeys 必备阈值键
var RequiredThresholdKeys = []string{
	KeySumIntegrity,
	KeyRatioMarketShare,
	KeyRatioCategory,
	KeyFormulaMom,
	KeyFormulaYoy,
	KeyRangeActivation,
	KeyRangeHHI,
	KeyContinuity,
	KeyStatisticalAnomaly,
	KeyCrossKPI,
}

// Threshold 单项校验阈值，字段按校验类型选用
type Threshold struct {
	Tolerance        *float64 `yaml:"tolerance" json:"tolerance,omitempty"`
	Severity         string   `yaml:"severity" json:"severity"`
	Min              *float64 `yaml:"min" json:"min,omitempty"`
	Max              *float64 `yaml:"max" json:"max,omitempty"`
	MaxMissingMonths *int     `yaml:"max_missing_months" json:"max_missing_months,omitempty"`
	ZScoreWarning    *float64 `yaml:"z_score_warning" json:"z_score_warning,omitempty"`
	ZScoreCritical   *float64 `yaml:"z_score_critical" json:"z_score_critical,omitempty"`
	MaxCriticalRatio *float64 `yaml:"max_critical_ratio" json:"max_critical_ratio,omitempty"`
	ShareChangePP    *float64 `yaml:"share_change_pp" json:"share_change_pp,omitempty"`
	GrowthRatePct    *float64 `yaml:"growth_rate_pct" json:"growth_rate_pct,omitempty"`
	TrendWindow      *int     `yaml:"trend_window" json:"trend_window,omitempty"`
	TrendSigma       *float64 `yaml:"trend_sigma" json:"trend_sigma,omitempty"`
}

// ThresholdsConfig 阈值键到阈值的映射
type ThresholdsConfig map[string]*Threshold

func f64(v float64) *float64 { return &v }
func i(v int) *int           { return &v }

// defaultThresholds 默认阈值，与生产基线保持一致
func defaultThresholds() ThresholdsConfig {
	return ThresholdsConfig{
		KeySumIntegrity:     {Tolerance: f64(1.0), Severity: "CRITICAL"},
		KeyRatioMarketShare: {Tolerance: f64(0.1), Severity: "CRITICAL"},
		KeyRatioCategory:    {Tolerance: f64(0.5), Severity: "WARNING"},
		KeyFormulaMom:       {Tolerance: f64(10.0), Severity: "WARNING"},
		KeyFormulaYoy:       {Tolerance: f64(10.0), Severity: "WARNING"},
		KeyRangeActivation:  {Min: f64(0), Max: f64(100), Severity: "CRITICAL"},
		KeyRangeHHI:         {Min: f64(0), Max: f64(10000), Severity: "WARNING"},
		KeyContinuity:       {MaxMissingMonths: i(0), Severity: "CRITICAL"},
		KeyStatisticalAnomaly: {
			ZScoreWarning:    f64(2.0),
			ZScoreCritical:   f64(3.0),
			MaxCriticalRatio: f64(5.0),
			Severity:         "WARNING",
		},
		KeyCrossKPI: {
			ShareChangePP: f64(0.5),
			GrowthRatePct: f64(-1.0),
			Severity:      "INFO",
		},
		// 可选校验 (statistical_iqr, trend_break) 不在默认集内，
		// 只有配置文件显式给出对应键才启用
	}
}

// DefaultThresholds 返回全量默认阈值配置
func DefaultThresholds() ThresholdsConfig {
	return mergeThresholdDefaults(nil)
}

// mergeThresholdDefaults 逐键合并默认值: 文件未给出的键取默认，
// 给出的键内未设置的字段取默认字段
func mergeThresholdDefaults(user ThresholdsConfig) ThresholdsConfig {
	merged := defaultThresholds()
	for key, t := range user {
		if t == nil {
			continue
		}
		base, ok := merged[key]
		if !ok {
			merged[key] = t
			continue
		}
		if t.Severity != "" {
			base.Severity = t.Severity
		}
		if t.Tolerance != nil {
			base.Tolerance = t.Tolerance
		}
		if t.Min != nil {
			base.Min = t.Min
		}
		if t.Max != nil {
			base.Max = t.Max
		}
		if t.MaxMissingMonths != nil {
			base.MaxMissingMonths = t.MaxMissingMonths
		}
		if t.ZScoreWarning != nil {
			base.ZScoreWarning = t.ZScoreWarning
		}
		if t.ZScoreCritical != nil {
			base.ZScoreCritical = t.ZScoreCritical
		}
		if t.MaxCriticalRatio != nil {
			base.MaxCriticalRatio = t.MaxCriticalRatio
		}
		if t.ShareChangePP != nil {
			base.ShareChangePP = t.ShareChangePP
		}
		if t.GrowthRatePct != nil {
			base.GrowthRatePct = t.GrowthRatePct
		}
		if t.TrendWindow != nil {
			base.TrendWindow = t.TrendWindow
		}
		if t.TrendSigma != nil {
			base.TrendSigma = t.TrendSigma
		}
	}
	return merged
}

// validSeverity 严重度合法取值
func validSeverity(s string) bool {
	return s == "CRITICAL" || s == "WARNING" || s == "INFO"
}

// toleranceRequired 需要数值容差的键
var toleranceRequired = map[string]bool{
	KeySumIntegrity:     true,
	KeyRatioMarketShare: true,
	KeyRatioCategory:    true,
	KeyFormulaMom:       true,
	KeyFormulaYoy:       true,
}

// rangeRequired 需要 min/max 区间的键
var rangeRequired = map[string]bool{
	KeyRangeActivation: true,
	KeyRangeHHI:        true,
}

// Validate 校验阈值配置完整性，返回聚合错误
func (tc ThresholdsConfig) Validate() error {
	var errs []string
	for _, key := range RequiredThresholdKeys {
		t, ok := tc[key]
		if !ok || t == nil {
			errs = append(errs, fmt.Sprintf("missing required threshold key %q", key))
			continue
		}
		if !validSeverity(t.Severity) {
			errs = append(errs, fmt.Sprintf("threshold %q: invalid severity %q", key, t.Severity))
		}
		if toleranceRequired[key] && t.Tolerance == nil {
			errs = append(errs, fmt.Sprintf("threshold %q: tolerance is required", key))
		}
		if rangeRequired[key] {
			if t.Min == nil || t.Max == nil {
				errs = append(errs, fmt.Sprintf("threshold %q: min and max are required", key))
			} else if *t.Min > *t.Max {
				errs = append(errs, fmt.Sprintf("threshold %q: min %v exceeds max %v", key, *t.Min, *t.Max))
			}
		}
	}
	if t, ok := tc[KeyStatisticalAnomaly]; ok && t != nil {
		if t.ZScoreWarning == nil || t.ZScoreCritical == nil || t.MaxCriticalRatio == nil {
			errs = append(errs, fmt.Sprintf("threshold %q: z_score_warning, z_score_critical and max_critical_ratio are required", KeyStatisticalAnomaly))
		}
	}
	if t, ok := tc[KeyCrossKPI]; ok && t != nil {
		if t.ShareChangePP == nil || t.GrowthRatePct == nil {
			errs = append(errs, fmt.Sprintf("threshold %q: share_change_pp and growth_rate_pct are required", KeyCrossKPI))
		}
	}
	if t, ok := tc[KeyTrendBreak]; ok && t != nil {
		if t.TrendWindow == nil || t.TrendSigma == nil {
			errs = append(errs, fmt.Sprintf("threshold %q: trend_window and trend_sigma are required", KeyTrendBreak))
		}
	}
	for key, t := range tc {
		if t != nil && t.Severity != "" && !validSeverity(t.Severity) {
			if contains(RequiredThresholdKeys, key) {
				continue // 已在上面报过
			}
			errs = append(errs, fmt.Sprintf("threshold %q: invalid severity %q", key, t.Severity))
		}
	}
	return joinErrors(errs)
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// Get 读取指定键的阈值，缺失时返回 nil
func (tc ThresholdsConfig) Get(key string) *Threshold {
	return tc[key]
}
