// Package stats 提供分区窗口与统计原语
// 所有函数均为纯函数: 输入为已按分区键分组、按单调键排序的序列，
// 不触碰任何存储，给定相同输入结果确定
package stats

import (
	"math"
	"sort"
)

// Lag 位置滞后: 返回每个元素在其分区内 offset 个位置之前的值
// 历史不足的位置为 nil。派生管道使用 offset=1 (上月) 与 offset=12 (去年同月)
func Lag[T any](series []T, offset int) []*T {
	out := make([]*T, len(series))
	if offset <= 0 {
		return out
	}
	for i := offset; i < len(series); i++ {
		v := series[i-offset]
		out[i] = &v
	}
	return out
}

// MovingAverage 含当前元素的尾随移动平均
// 分区前 window-1 个元素按实际存在的元素数取平均，不传播空值
func MovingAverage(series []float64, window int) []float64 {
	out := make([]float64, len(series))
	if window <= 0 {
		copy(out, series)
		return out
	}
	var sum float64
	for i, v := range series {
		sum += v
		if i >= window {
			sum -= series[i-window]
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

// RankDesc 降序密集排名: 并列共享名次，名次 1 为最大值
func RankDesc(values []float64) []int {
	distinct := make([]float64, 0, len(values))
	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			distinct = append(distinct, v)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(distinct)))

	rankOf := make(map[float64]int, len(distinct))
	for i, v := range distinct {
		rankOf[v] = i + 1
	}

	out := make([]int, len(values))
	for i, v := range values {
		out[i] = rankOf[v]
	}
	return out
}

// PopulationMean 总体均值，空序列返回 ok=false
func PopulationMean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// PopulationStddev 总体标准差 (除以 N 而非 N-1)
// 少于 2 个点返回 ok=false；返回 0 时调用方须按未定义除数处理
func PopulationStddev(values []float64) (float64, bool) {
	if len(values) < 2 {
		return 0, false
	}
	mean, _ := PopulationMean(values)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values))), true
}

// PercentileContinuous 线性插值分位数，q 取 [0,1]
// 输入无需有序，内部排序副本后按 pos = q*(n-1) 插值
func PercentileContinuous(values []float64, q float64) (float64, bool) {
	n := len(values)
	if n == 0 {
		return 0, false
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0], true
	}
	if q >= 1 {
		return sorted[n-1], true
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo], true
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac, true
}

// IQRBounds 基于四分位距的离群边界 [Q1-1.5*IQR, Q3+1.5*IQR]
func IQRBounds(values []float64) (float64, float64, bool) {
	q1, ok := PercentileContinuous(values, 0.25)
	if !ok {
		return 0, 0, false
	}
	q3, _ := PercentileContinuous(values, 0.75)
	iqr := q3 - q1
	return q1 - 1.5*iqr, q3 + 1.5*iqr, true
}

// DetectTrendBreaks 对比前 window 个元素的移动均值，偏离超过 sigma 倍
// 移动标准差的位置视为趋势急变，返回急变位置下标
func DetectTrendBreaks(values []float64, window int, sigma float64) []int {
	if len(values) < window+1 {
		return nil
	}
	var breaks []int
	for i := window; i < len(values); i++ {
		win := values[i-window : i]
		mean, _ := PopulationMean(win)
		stddev, ok := PopulationStddev(win)
		if !ok || stddev == 0 {
			stddev = 1.0
		}
		if math.Abs(values[i]-mean) > sigma*stddev {
			breaks = append(breaks, i)
		}
	}
	return breaks
}
