package engine

import (
	"evcore/internal/calibration"
	"evcore/internal/logger"
	"evcore/internal/pkg/mathutil"
	"evcore/internal/types"
)

// 中文说明：
// DynamicStopCalculator 与动作选择完全独立：结构位优先、ATR 兜底，
// 追踪止损按激活分数锁定部分利润，三者取最保守的一个。
// 止损永远在价格的正确一侧；放宽止损只在评分明确支持时标记修改。

// DynamicStopCalculator 无状态止损计算器。
type DynamicStopCalculator struct{}

// NewDynamicStopCalculator 构造器。
func NewDynamicStopCalculator() *DynamicStopCalculator { return &DynamicStopCalculator{} }

// StopInput 止损计算输入。
type StopInput struct {
	Snap      *types.MarketSnapshot
	Prob      types.ProbabilityEstimate
	Scores    Scores
	Peak      types.PeakRecord
	Setup     types.SetupType
	Params    calibration.Params
	ProfitPct float64
}

// Compute 计算推荐止损。
func (c *DynamicStopCalculator) Compute(in StopInput) types.DynamicStop {
	snap := in.Snap
	side := snap.Position.Side
	price := snap.CurrentPrice
	atr := effectiveVolatility(snap, in.Setup)

	aiStop, stopType := c.baseStop(in, atr)

	trailScore := c.trailingScore(in)
	trailStop := c.trailingStop(in, trailScore)

	protScore := c.protectionScore(in)
	var breakevenStop float64
	if protScore > in.Params.BreakevenScore && in.ProfitPct > 0 {
		breakevenStop = snap.Position.EntryPrice
	}

	stop := moreProtective(side, aiStop, trailStop)
	stop = moreProtective(side, stop, breakevenStop)
	switch stop {
	case trailStop:
		if trailStop > 0 {
			stopType = types.StopTypeTrailing
		}
	case breakevenStop:
		if breakevenStop > 0 {
			stopType = types.StopTypeBreakeven
		}
	}

	// 不变量：多头止损严格低于价，空头严格高于价。越界时贴回并告警。
	if !stopSideValid(side, stop, price) {
		logger.Warnf("stop 越界已纠正 symbol=%s side=%s stop=%.5f price=%.5f",
			snap.Symbol, side, stop, price)
		stop = stopAtDistance(side, price, atr*0.25)
		stopType = types.StopTypeATR
	}

	return types.DynamicStop{
		RecommendedStop: stop,
		StopType:        stopType,
		ShouldModify:    c.shouldModify(in, stop, atr),
		TrailingScore:   trailScore,
		ProtectionScore: protScore,
	}
}

// baseStop 结构止损（关键位外加 0.5×ATR 缓冲）优先，否则 2×ATR；
// 距离再按概率/评分缩放（区间 [0.5, 1.5]）。
func (c *DynamicStopCalculator) baseStop(in StopInput, atr float64) (float64, types.StopType) {
	snap := in.Snap
	side := snap.Position.Side
	price := snap.CurrentPrice
	p := in.Params

	var stop float64
	stopType := types.StopTypeATR

	if side == types.SideLong {
		if sup := snap.Structure.NearestSupport; sup > 0 && sup < price {
			stop = sup - p.StructureBufferATR*atr
			stopType = types.StopTypeStructure
		}
	} else {
		if res := snap.Structure.NearestResistance; res > price {
			stop = res + p.StructureBufferATR*atr
			stopType = types.StopTypeStructure
		}
	}
	if stop <= 0 || !stopSideValid(side, stop, price) {
		scale := c.distanceScale(in)
		stop = stopAtDistance(side, price, p.StopATRMult*atr*scale)
		stopType = types.StopTypeATR
	}
	return stop, stopType
}

// distanceScale 延续强则给空间，反转/退出压力大则收紧。
func (c *DynamicStopCalculator) distanceScale(in StopInput) float64 {
	scale := 1 + 0.3*(in.Prob.Continuation-in.Prob.Reversal)
	scale *= 1 - 0.2*in.Scores.Exit
	return mathutil.Clamp(scale, 0.5, 1.5)
}

// trailingScore 追踪激活分数 0~1。
func (c *DynamicStopCalculator) trailingScore(in StopInput) float64 {
	snap := in.Snap
	side := snap.Position.Side
	mlDisagree := 0.0
	if snap.ML.Opposes(side) {
		mlDisagree = snap.ML.Confidence / 100
	}
	profitSize := mathutil.Clamp01(in.ProfitPct / 2) // 2% 账户浮盈即满分
	return mathutil.Clamp01(
		0.30*in.Prob.Reversal +
			0.20*(1-in.Prob.Continuation) +
			0.20*snap.VolumeFlow.Divergence +
			0.15*mlDisagree +
			0.15*profitSize)
}

// trailingStop 分数过节奏阈值后，锁定入场到当前价走势的一部分。
// 阈值随论点质量连续上调：论点强的仓位晚一点再追。
func (c *DynamicStopCalculator) trailingStop(in StopInput, score float64) float64 {
	if in.ProfitPct <= 0 {
		return 0
	}
	sp := in.Params.ForSetup(string(in.Setup))
	threshold := mathutil.Clamp01(sp.TrailingActivation + 0.15*(in.Prob.ThesisQuality-0.5))
	if score <= threshold {
		return 0
	}
	snap := in.Snap
	entry := snap.Position.EntryPrice
	move := snap.CurrentPrice - entry
	if snap.Position.Side == types.SideShort {
		move = entry - snap.CurrentPrice
	}
	if move <= 0 {
		return 0
	}
	locked := move * mathutil.Clamp(sp.TrailingLock, 0.15, 0.65)
	if snap.Position.Side == types.SideShort {
		return entry - locked
	}
	return entry + locked
}

// protectionScore 保本触发分：量价背离 + 逆向结构 + 反转概率。
func (c *DynamicStopCalculator) protectionScore(in StopInput) float64 {
	side := in.Snap.Position.Side
	adverseStructure := mathutil.Clamp01(-in.Snap.Structure.Bias * side.Direction())
	return mathutil.Clamp01(
		0.40*in.Snap.VolumeFlow.Divergence +
			0.30*adverseStructure +
			0.30*in.Prob.Reversal)
}

// shouldModify 只有评分明确偏好收紧/放宽才标记修改，"更宽总是更好" 不成立。
func (c *DynamicStopCalculator) shouldModify(in StopInput, recommended, atr float64) bool {
	existing := in.Snap.Position.StopLoss
	side := in.Snap.Position.Side
	price := in.Snap.CurrentPrice

	if existing <= 0 || !stopSideValid(side, existing, price) {
		return true
	}
	threshold := atr * 0.05
	tighter := moreProtective(side, recommended, existing) == recommended &&
		stopDistance(recommended, existing) > threshold
	if tighter {
		return true
	}
	// 放宽：只在延续明确占优、退出压力低，且现有止损被掐得过近时。
	wider := moreProtective(side, existing, recommended) == existing &&
		stopDistance(recommended, existing) > threshold
	if wider &&
		in.Prob.Continuation > 0.6 &&
		in.Scores.Exit < 0.3 &&
		stopDistance(existing, price) < 0.75*stopDistance(recommended, price) {
		return true
	}
	return false
}
