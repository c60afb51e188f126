package engine

import (
	"math"

	"evcore/internal/calibration"
	"evcore/internal/types"
)

// 中文说明：
// 节奏分类：优先用止盈距离（ATR 倍数）判断 SCALP/DAY/SWING，
// 无止盈时退化为持仓时长分档。边界全部来自校准参数。

// ClassifySetup 推断持仓节奏类型。
func ClassifySetup(snap *types.MarketSnapshot, p calibration.Params) types.SetupType {
	atr := referenceATR(snap)
	if tp := snap.Position.TakeProfit; tp > 0 && atr > 0 {
		dist := math.Abs(tp-snap.Position.EntryPrice) / atr
		switch {
		case dist <= p.ScalpMaxTPATR:
			return types.SetupScalp
		case dist <= p.DayMaxTPATR:
			return types.SetupDay
		default:
			return types.SetupSwing
		}
	}
	age := snap.Position.AgeMinutes
	switch {
	case age < p.Scalp.ExpectedDurationMin*2:
		return types.SetupScalp
	case age < p.Day.ExpectedDurationMin*2:
		return types.SetupDay
	default:
		return types.SetupSwing
	}
}

// canonicalTimeframes 每种节奏的止损/波动参考周期。
func canonicalTimeframes(setup types.SetupType) (primary, secondary types.Timeframe) {
	switch setup {
	case types.SetupScalp:
		return types.TFM15, types.TFH1
	case types.SetupSwing:
		return types.TFH4, types.TFD1
	default:
		return types.TFH1, types.TFH4
	}
}

// effectiveVolatility 取节奏参考周期的 ATR；主周期缺失时用次周期折算。
func effectiveVolatility(snap *types.MarketSnapshot, setup types.SetupType) float64 {
	primary, secondary := canonicalTimeframes(setup)
	if atr := snap.TF(primary).Volatility; atr > 0 {
		return atr
	}
	if atr := snap.TF(secondary).Volatility; atr > 0 {
		// 次周期 ATR 大约覆盖 4 倍时间窗，折半近似主周期量级。
		return atr * 0.5
	}
	return referenceATR(snap)
}

// referenceATR 兜底波动：任一可用周期的 ATR，全缺时用价格的 0.2%。
func referenceATR(snap *types.MarketSnapshot) float64 {
	for _, tf := range []types.Timeframe{types.TFH1, types.TFH4, types.TFM15, types.TFD1, types.TFM30} {
		if atr := snap.TF(tf).Volatility; atr > 0 {
			return atr
		}
	}
	return snap.CurrentPrice * 0.002
}
