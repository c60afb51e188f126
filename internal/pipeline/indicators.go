package pipeline

import (
	talib "github.com/markcheno/go-talib"

	"evcore/internal/market"
	"evcore/internal/pkg/mathutil"
	"evcore/internal/types"
)

// 中文说明：
// 单周期指标计算：K 线序列 → TimeframeIndicators。
// 数据不足时返回中性默认并把 trend 置 0，与解码端的缺数据约定一致。

const minCandlesForIndicators = 60

// ComputeIndicators 把一个周期的 K 线压成指标集。
func ComputeIndicators(candles []market.Candle) *types.TimeframeIndicators {
	if len(candles) < minCandlesForIndicators {
		ind := types.DefaultIndicators()
		ind.Trend = 0
		return ind
	}
	closes := market.Closes(candles)
	highs := market.Highs(candles)
	lows := market.Lows(candles)
	volumes := market.Volumes(candles)
	price := last(closes)

	ind := &types.TimeframeIndicators{}
	ind.Trend = trendScore(closes)
	ind.RSI = mathutil.Finite(last(talib.Rsi(closes, 14)), 50)

	macd, _, _ := talib.Macd(closes, 12, 26, 9)
	ind.MACD = mathutil.Finite(last(macd), 0)

	upper, _, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
	band := last(upper) - last(lower)
	ind.BBPosition = mathutil.Clamp01(mathutil.SafeDiv(price-last(lower), band, 0.5))

	atr := mathutil.Finite(last(talib.Atr(highs, lows, closes, 14)), 0)
	ind.Volatility = atr

	ind.ADX = mathutil.Finite(last(talib.Adx(highs, lows, closes, 14)), 20)
	ind.Momentum = momentumScore(closes, atr)
	ind.VolumeTrend = volumeTrendScore(volumes)
	return ind
}

// trendScore EMA 扇形：价格与 EMA20/EMA50 的相对位置映射到 0~1。
func trendScore(closes []float64) float64 {
	ema20 := last(talib.Ema(closes, 20))
	ema50 := last(talib.Ema(closes, 50))
	price := last(closes)
	if ema20 <= 0 || ema50 <= 0 {
		return 0.5
	}
	score := 0.5
	if price > ema20 {
		score += 0.2
	} else {
		score -= 0.2
	}
	if ema20 > ema50 {
		score += 0.2
	} else {
		score -= 0.2
	}
	// 扇形张开幅度再给 ±0.1。
	spread := mathutil.SafeDiv(ema20-ema50, ema50, 0)
	score += mathutil.Clamp(spread*20, -0.1, 0.1)
	return mathutil.Clamp01(score)
}

// momentumScore ROC(10) 用 ATR 归一化到 -1~1。
func momentumScore(closes []float64, atr float64) float64 {
	roc := last(talib.Roc(closes, 10))
	price := last(closes)
	if atr <= 0 || price <= 0 {
		return 0
	}
	move := roc / 100 * price
	return mathutil.Clamp(mathutil.SafeDiv(move, atr*2, 0), -1, 1)
}

// volumeTrendScore 近 10 根与前 10 根量能均值的相对变化，-1~1。
func volumeTrendScore(volumes []float64) float64 {
	n := len(volumes)
	if n < 20 {
		return 0
	}
	recent := mean(volumes[n-10:])
	prior := mean(volumes[n-20 : n-10])
	change := mathutil.SafeDiv(recent-prior, prior, 0)
	return mathutil.Clamp(change, -1, 1)
}

// swingLevels 从序列里找最近的摆动高/低点，作为结构位。
func swingLevels(candles []market.Candle, price float64) (support, resistance float64) {
	const lookback = 50
	const wing = 2
	n := len(candles)
	if n < lookback {
		return 0, 0
	}
	window := candles[n-lookback:]
	for i := wing; i < len(window)-wing; i++ {
		high := window[i].High
		low := window[i].Low
		isHigh, isLow := true, true
		for j := i - wing; j <= i+wing; j++ {
			if j == i {
				continue
			}
			if window[j].High >= high {
				isHigh = false
			}
			if window[j].Low <= low {
				isLow = false
			}
		}
		if isHigh && high > price {
			if resistance == 0 || high < resistance {
				resistance = high
			}
		}
		if isLow && low < price {
			if low > support {
				support = low
			}
		}
	}
	return support, resistance
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

func mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}
