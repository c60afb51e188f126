package engine

import (
	"evcore/internal/pkg/mathutil"
	"evcore/internal/types"
)

// 中文说明：
// ProbabilityModel 把快照压缩成 (延续, 反转, 横盘) 概率与论点质量。
// 高周期趋势是主信号；ML 只在高周期不给力时拿更大话语权，
// 防止单 tick 的 ML 翻转直接掀翻估计。

// ProbabilityModel 无状态概率估计器。
type ProbabilityModel struct{}

// NewProbabilityModel 构造器（显式注入，不做包级单例）。
func NewProbabilityModel() *ProbabilityModel { return &ProbabilityModel{} }

// htfWeights D1/H4/H1 的基础权重。
var htfWeights = map[types.Timeframe]float64{
	types.TFD1: 0.45,
	types.TFH4: 0.35,
	types.TFH1: 0.20,
}

// momentumWeights 按节奏类型分配动量贡献的周期权重。
var momentumWeights = map[types.SetupType]map[types.Timeframe]float64{
	types.SetupScalp: {types.TFM15: 0.45, types.TFM30: 0.30, types.TFH1: 0.25},
	types.SetupDay:   {types.TFM30: 0.20, types.TFH1: 0.40, types.TFH4: 0.40},
	types.SetupSwing: {types.TFH1: 0.20, types.TFH4: 0.40, types.TFD1: 0.40},
}

const strongSupportLevel = 0.65

// Estimate 计算概率估计。调用方保证 snap 已通过解码校验。
func (m *ProbabilityModel) Estimate(snap *types.MarketSnapshot, setup types.SetupType) types.ProbabilityEstimate {
	side := snap.Position.Side

	htfSupport, stronglyAligned := m.htfSupport(snap, side)
	mlFactor := m.mlFactor(snap, side, htfSupport)

	// 三档权重：≥3 个高周期强支撑时信结构，≤1 个时信 ML。
	var mlWeight float64
	switch {
	case stronglyAligned >= 3:
		mlWeight = 0.25
	case stronglyAligned <= 1:
		mlWeight = 0.55
	default:
		mlWeight = 0.40
	}

	continuation := htfSupport*(1-mlWeight) + mlFactor*mlWeight
	continuation += m.momentumTerm(snap, side, setup)
	continuation -= m.rsiExhaustion(snap, side)
	continuation += m.structureTerm(snap, side)
	continuation -= snap.VolumeFlow.Divergence * 0.12
	continuation = mathutil.Clamp(continuation, 0.02, 0.95)

	reversal := m.reversalEstimate(snap, side, continuation)

	est := types.ProbabilityEstimate{
		Continuation:  continuation,
		Reversal:      reversal,
		ThesisQuality: mathutil.Clamp01(0.5*mlFactor + 0.5*htfSupport),
	}
	est.Normalize()
	return est
}

// htfSupport 返回加权高周期支持度与强支撑周期数。
func (m *ProbabilityModel) htfSupport(snap *types.MarketSnapshot, side types.Side) (float64, int) {
	weighted := 0.0
	totalWeight := 0.0
	strong := 0
	for tf, base := range htfWeights {
		support := snap.TF(tf).SupportFor(side)
		// 已强支撑的周期权重上调：结构确立后它说了算。
		w := base * (0.7 + 0.6*support)
		weighted += support * w
		totalWeight += w
		if support >= strongSupportLevel {
			strong++
		}
	}
	return mathutil.SafeDiv(weighted, totalWeight, 0.5), strong
}

// mlFactor ML 一致性因子：一致取置信度，相反取 1-置信度，HOLD 固定 0.6。
// 高周期仍强支撑时向中性软化，避免单次 ML 反转直接翻转估计。
func (m *ProbabilityModel) mlFactor(snap *types.MarketSnapshot, side types.Side, htfSupport float64) float64 {
	conf := mathutil.Clamp(snap.ML.Confidence, 0, 100) / 100
	var factor float64
	switch {
	case snap.ML.Agrees(side):
		factor = conf
	case snap.ML.Opposes(side):
		factor = 1 - conf
		if htfSupport >= strongSupportLevel {
			factor = mathutil.Lerp(factor, 0.5, 0.5)
		}
	default:
		factor = 0.6
	}
	return mathutil.Clamp01(factor)
}

// momentumTerm 多周期动量贡献，±0.10 封顶。
func (m *ProbabilityModel) momentumTerm(snap *types.MarketSnapshot, side types.Side, setup types.SetupType) float64 {
	weights := momentumWeights[setup]
	if weights == nil {
		weights = momentumWeights[types.SetupDay]
	}
	sum := 0.0
	for tf, w := range weights {
		sum += snap.TF(tf).Momentum * side.Direction() * w
	}
	return mathutil.Clamp(sum*0.10, -0.10, 0.10)
}

// rsiExhaustion 高周期 RSI 极值对延续的折扣，0~0.15。
func (m *ProbabilityModel) rsiExhaustion(snap *types.MarketSnapshot, side types.Side) float64 {
	worst := 0.0
	for _, tf := range types.HigherTimeframes {
		rsi := snap.TF(tf).RSI
		var over float64
		if side == types.SideLong {
			over = rsi - 70
		} else {
			over = 30 - rsi
		}
		if over > worst {
			worst = over
		}
	}
	return mathutil.Clamp(worst/30*0.15, 0, 0.15)
}

// structureTerm 结构偏向的加减分，±0.08 封顶。
func (m *ProbabilityModel) structureTerm(snap *types.MarketSnapshot, side types.Side) float64 {
	aligned := snap.Structure.Bias * side.Direction()
	return mathutil.Clamp(aligned*0.08, -0.08, 0.08)
}

// reversalEstimate 反转概率：延续余量中，按逆向证据占比切出反转份额。
func (m *ProbabilityModel) reversalEstimate(snap *types.MarketSnapshot, side types.Side, continuation float64) float64 {
	evidence := 0.0
	// 高周期逆向动量
	for _, tf := range types.HigherTimeframes {
		if adverse := -snap.TF(tf).Momentum * side.Direction(); adverse > 0 {
			evidence += adverse * 0.15
		}
	}
	// 量价背离与逆向订单流
	evidence += snap.VolumeFlow.Divergence * 0.3
	if adverseFlow := -snap.VolumeFlow.OrderFlowImbalance * side.Direction(); adverseFlow > 0 {
		evidence += adverseFlow * 0.15
	}
	// ML 反向
	if snap.ML.Opposes(side) {
		evidence += snap.ML.Confidence / 100 * 0.3
	}
	// RSI 极值
	evidence += m.rsiExhaustion(snap, side) * 2
	share := mathutil.Clamp(0.30+evidence, 0.30, 0.85)
	return mathutil.Clamp01((1 - continuation) * share)
}
