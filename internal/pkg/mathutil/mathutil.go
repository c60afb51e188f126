package mathutil

import "math"

// SafeDiv 返回 a/b；分母为零/负/NaN 时返回 fallback，避免 NaN 扩散。
func SafeDiv(a, b, fallback float64) float64 {
	if b <= 0 || math.IsNaN(b) || math.IsInf(b, 0) {
		return fallback
	}
	v := a / b
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// Clamp 把 v 压到 [lo, hi]。
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 等价于 Clamp(v, 0, 1)。
func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

// Lerp 线性插值：t=0 取 a，t=1 取 b。
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*Clamp01(t)
}

// Finite 过滤 NaN/Inf，非法时返回 fallback。
func Finite(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
