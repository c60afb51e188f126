package engine

import (
	"math"

	"evcore/internal/pkg/mathutil"
	"evcore/internal/types"
)

// 中文说明：
// ScoreEngine 扫描 M15→D1（M1/M5 噪音周期排除）输出三个 0~1 分数：
// 退出吸引力、加仓吸引力、行情衰竭度。全部是快照的纯函数。

// Scores 一次评估的三个分数。
type Scores struct {
	Exit       float64 `json:"exit"`
	Entry      float64 `json:"entry"`
	Exhaustion float64 `json:"exhaustion"`
}

// ScoreEngine 无状态评分器。
type ScoreEngine struct{}

// NewScoreEngine 构造器。
func NewScoreEngine() *ScoreEngine { return &ScoreEngine{} }

// tfScanWeights 评分周期权重：周期越大话语权越高。
var tfScanWeights = map[types.Timeframe]float64{
	types.TFM15: 0.10,
	types.TFM30: 0.15,
	types.TFH1:  0.20,
	types.TFH4:  0.25,
	types.TFD1:  0.30,
}

const scoreEpsilon = 1e-6

// Compute 一次性计算三个分数；giveback 为自峰值回吐比例（0~1）。
func (s *ScoreEngine) Compute(snap *types.MarketSnapshot, giveback float64) Scores {
	return Scores{
		Exit:       s.ExitScore(snap, giveback),
		Entry:      s.EntryScore(snap),
		Exhaustion: s.ExhaustionScore(snap),
	}
}

// ExitScore 逆向信号加权和 / (逆向+顺向+ε)。
func (s *ScoreEngine) ExitScore(snap *types.MarketSnapshot, giveback float64) float64 {
	side := snap.Position.Side
	exit := 0.0
	support := 0.0

	for _, tf := range types.DecisionTimeframes {
		w := tfScanWeights[tf]
		ind := snap.TF(tf)

		trendSupport := ind.SupportFor(side)
		exit += (1 - trendSupport) * w
		support += trendSupport * w

		if dirMom := ind.Momentum * side.Direction(); dirMom < 0 {
			exit += -dirMom * w * 0.8
		} else {
			support += dirMom * w * 0.8
		}

		exit += rsiAdverse(ind.RSI, side) * w
		if macdAgainst(ind.MACD, side) {
			exit += 0.4 * w
		} else if ind.MACD != 0 {
			support += 0.4 * w
		}
		exit += bbAdverse(ind.BBPosition, side) * w
	}

	if snap.ML.Opposes(side) {
		exit += snap.ML.Confidence / 100 * 0.5
	} else if snap.ML.Agrees(side) {
		support += snap.ML.Confidence / 100 * 0.5
	}

	exit += (1 - snap.Alignment.Score) * 0.4
	support += snap.Alignment.Score * 0.4

	exit += snap.VolumeFlow.Divergence * 0.6
	if adverse := -snap.VolumeFlow.HTFVolumeTrend * side.Direction(); adverse > 0 {
		exit += adverse * 0.3
	}
	if structAgainst := -snap.Structure.Bias * side.Direction(); structAgainst > 0 {
		exit += structAgainst * 0.3
	} else {
		support += -structAgainst * 0.3
	}

	exit += mathutil.Clamp01(giveback) * 0.5

	return mathutil.Clamp01(exit / (exit + support + scoreEpsilon))
}

// EntryScore 对称构造：衡量此刻是否值得增加敞口。
// 量价背离超过软阈值后重罚加仓。
func (s *ScoreEngine) EntryScore(snap *types.MarketSnapshot) float64 {
	side := snap.Position.Side
	entry := 0.0
	against := 0.0

	for _, tf := range types.DecisionTimeframes {
		w := tfScanWeights[tf]
		ind := snap.TF(tf)

		trendSupport := ind.SupportFor(side)
		entry += trendSupport * w
		against += (1 - trendSupport) * w

		if dirMom := ind.Momentum * side.Direction(); dirMom > 0 {
			entry += dirMom * w * 0.8
		} else {
			against += -dirMom * w * 0.8
		}

		// 加仓希望 RSI 还有空间：极值方向反而是逆向证据。
		against += rsiAdverse(ind.RSI, side) * w
		if macdAgainst(ind.MACD, side) {
			against += 0.4 * w
		} else if ind.MACD != 0 {
			entry += 0.4 * w
		}
	}

	if snap.ML.Agrees(side) {
		entry += snap.ML.Confidence / 100 * 0.5
	} else if snap.ML.Opposes(side) {
		against += snap.ML.Confidence / 100 * 0.5
	}

	entry += snap.Alignment.Score * 0.4
	against += (1 - snap.Alignment.Score) * 0.4

	if div := snap.VolumeFlow.Divergence; div > 0.5 {
		against += (div - 0.5) * 2.0
	}
	if flow := snap.VolumeFlow.OrderFlowImbalance * side.Direction(); flow > 0 {
		entry += flow * 0.3
	} else {
		against += -flow * 0.3
	}

	return mathutil.Clamp01(entry / (entry + against + scoreEpsilon))
}

// ExhaustionScore 行情是否已 "跑完"：0=还有空间，1=衰竭。
func (s *ScoreEngine) ExhaustionScore(snap *types.MarketSnapshot) float64 {
	side := snap.Position.Side
	score := 0.0

	for _, tf := range types.DecisionTimeframes {
		w := tfScanWeights[tf]
		ind := snap.TF(tf)

		// 趋势仍在延伸但动量/MACD 已经掉头：经典衰竭背离。
		extended := ind.SupportFor(side) >= 0.7
		if extended {
			if ind.Momentum*side.Direction() < 0 {
				score += 0.35 * w
			}
			if macdAgainst(ind.MACD, side) {
				score += 0.25 * w
			}
		}

		score += rsiAdverse(ind.RSI, side) * 0.3 * w

		// ADX 掉到 20 以下：趋势动力不足。
		if ind.ADX < 20 {
			score += (20 - mathutil.Clamp(ind.ADX, 0, 20)) / 20 * 0.25 * w
		}
	}

	// 高周期量能萎缩
	if decline := -snap.VolumeFlow.HTFVolumeTrend * side.Direction(); decline > 0 {
		score += decline * 0.2
	}
	score += snap.VolumeFlow.Divergence * 0.2

	// 离下一个结构位太近：剩余空间有限。
	score += structureProximity(snap) * 0.25

	// 跨资产状态逆风
	if misaligned := -snap.Regime.RiskAppetite * side.Direction(); misaligned > 0 {
		score += misaligned * 0.1
	}

	return mathutil.Clamp01(score)
}

// structureProximity 当前价到顺势方向下一个关键位的接近度（0=远，1=贴脸）。
func structureProximity(snap *types.MarketSnapshot) float64 {
	atr := referenceATR(snap)
	if atr <= 0 {
		return 0
	}
	var level float64
	if snap.Position.Side == types.SideLong {
		level = snap.Structure.NearestResistance
		if level <= snap.CurrentPrice {
			return 0
		}
	} else {
		level = snap.Structure.NearestSupport
		if level <= 0 || level >= snap.CurrentPrice {
			return 0
		}
	}
	dist := math.Abs(level-snap.CurrentPrice) / atr
	// 2 个 ATR 以内开始线性升压。
	return mathutil.Clamp01(1 - dist/2)
}

func rsiAdverse(rsi float64, side types.Side) float64 {
	var over float64
	if side == types.SideLong {
		over = rsi - 70
	} else {
		over = 30 - rsi
	}
	return mathutil.Clamp(over/30, 0, 1)
}

func macdAgainst(macd float64, side types.Side) bool {
	if macd == 0 {
		return false
	}
	if side == types.SideLong {
		return macd < 0
	}
	return macd > 0
}

func bbAdverse(bb float64, side types.Side) float64 {
	if side == types.SideLong {
		return mathutil.Clamp((bb-0.85)/0.15, 0, 1) * 0.3
	}
	return mathutil.Clamp((0.15-bb)/0.15, 0, 1) * 0.3
}
