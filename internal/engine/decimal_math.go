package engine

import (
	"math"

	"github.com/shopspring/decimal"

	"evcore/internal/types"
)

// 止损价比较统一走 decimal，避免 float 毛刺导致的边界误判。

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

func decimalCompare(a, b float64) int {
	return decFromFloat(a).Cmp(decFromFloat(b))
}

// moreProtective 返回对持仓更保守（离价格更近的防守側）的止损价。
// 多头取较高者，空头取较低者；0 视为 "无止损"。
func moreProtective(side types.Side, a, b float64) float64 {
	if a <= 0 {
		return b
	}
	if b <= 0 {
		return a
	}
	if side == types.SideShort {
		if decimalCompare(a, b) <= 0 {
			return a
		}
		return b
	}
	if decimalCompare(a, b) >= 0 {
		return a
	}
	return b
}

// stopSideValid 校验止损在价格的正确一侧（多头严格低于价，空头严格高于价）。
func stopSideValid(side types.Side, stop, price float64) bool {
	if stop <= 0 || price <= 0 {
		return false
	}
	if side == types.SideShort {
		return decimalCompare(stop, price) > 0
	}
	return decimalCompare(stop, price) < 0
}

// stopAtDistance 由价格与距离推导止损价（多头在下方，空头在上方）。
func stopAtDistance(side types.Side, price, distance float64) float64 {
	base := decFromFloat(price)
	dist := decFromFloat(distance)
	if side == types.SideShort {
		return decToFloat(base.Add(dist))
	}
	return decToFloat(base.Sub(dist))
}

// stopDistance 止损到价格的绝对距离。
func stopDistance(stop, price float64) float64 {
	return decToFloat(decFromFloat(price).Sub(decFromFloat(stop)).Abs())
}
