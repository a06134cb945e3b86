package model

import (
	"fmt"
	"time"
)

// 周期键为月粒度，统一使用 YYYY-MM 格式字符串，字典序即时间序

const periodLayout = "2006-01"

// ParsePeriod 解析 YYYY-MM 周期键 (兼容 YYYY-MM-DD 前缀)
func ParsePeriod(s string) (time.Time, error) {
	if len(s) > 7 {
		s = s[:7]
	}
	t, err := time.Parse(periodLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return t, nil
}

// FormatPeriod 格式化为 YYYY-MM
func FormatPeriod(t time.Time) string {
	return t.Format(periodLayout)
}

// MonthSpan 两个周期间的日历月数，首尾均含
// first 晚于 last 时返回 0
func MonthSpan(first, last string) (int, error) {
	a, err := ParsePeriod(first)
	if err != nil {
		return 0, err
	}
	b, err := ParsePeriod(last)
	if err != nil {
		return 0, err
	}
	span := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month()) + 1
	if span < 0 {
		return 0, nil
	}
	return span, nil
}
