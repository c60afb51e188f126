package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"evcore/internal/market"
	"evcore/internal/types"
)

// trendingCandles 生成一段稳定上行的合成 K 线。
func trendingCandles(n int, start, step float64) []market.Candle {
	out := make([]market.Candle, n)
	price := start
	for i := range out {
		next := price + step
		out[i] = market.Candle{
			Open:   price,
			Close:  next,
			High:   next + math.Abs(step)*0.4,
			Low:    price - math.Abs(step)*0.4,
			Volume: 1000 + float64(i)*10,
		}
		price = next
	}
	return out
}

func TestComputeIndicators_TooFewCandlesMarksDataGap(t *testing.T) {
	ind := ComputeIndicators(trendingCandles(10, 100, 1))

	assert.Zero(t, ind.Trend)
	assert.InDelta(t, 50, ind.RSI, 1e-9)
	assert.InDelta(t, 0.5, ind.BBPosition, 1e-9)
}

func TestComputeIndicators_UptrendReadsBullish(t *testing.T) {
	ind := ComputeIndicators(trendingCandles(200, 100, 0.5))

	assert.Greater(t, ind.Trend, 0.6, "价格在 EMA 扇形之上应读多")
	assert.Greater(t, ind.Momentum, 0.0)
	assert.Greater(t, ind.RSI, 55.0)
	assert.Greater(t, ind.Volatility, 0.0)
	assert.GreaterOrEqual(t, ind.BBPosition, 0.0)
	assert.LessOrEqual(t, ind.BBPosition, 1.0)
	assert.Greater(t, ind.VolumeTrend, 0.0, "量能稳定放大")
}

func TestComputeIndicators_DowntrendReadsBearish(t *testing.T) {
	ind := ComputeIndicators(trendingCandles(200, 300, -0.5))

	assert.Less(t, ind.Trend, 0.4)
	assert.Less(t, ind.Momentum, 0.0)
	assert.Less(t, ind.RSI, 45.0)
}

func TestSwingLevels(t *testing.T) {
	// 人工造一个带明确摆动高/低点的序列。
	candles := trendingCandles(60, 100, 0)
	for i := range candles {
		candles[i].High = 101
		candles[i].Low = 99
		candles[i].Close = 100
	}
	candles[30].High = 110 // 孤立摆动高点
	candles[40].Low = 90   // 孤立摆动低点

	support, resistance := swingLevels(candles, 100)
	assert.InDelta(t, 90, support, 1e-9)
	assert.InDelta(t, 110, resistance, 1e-9)
}

func TestBuildAlignment(t *testing.T) {
	snap := &types.MarketSnapshot{Timeframes: map[types.Timeframe]*types.TimeframeIndicators{
		types.TFH1: {Trend: 0.8},
		types.TFH4: {Trend: 0.7},
		types.TFD1: {Trend: 0.3},
	}}

	align := buildAlignment(snap, types.SideLong)
	assert.Equal(t, 2, align.AlignedTimeframes)
	assert.InDelta(t, (0.8+0.7+0.3)/3, align.Score, 1e-9)

	alignShort := buildAlignment(snap, types.SideShort)
	assert.Equal(t, 1, alignShort.AlignedTimeframes)
}
