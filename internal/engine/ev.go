package engine

import (
	"math"

	"evcore/internal/calibration"
	"evcore/internal/pkg/mathutil"
	"evcore/internal/types"
)

// 中文说明：
// EVCalculator 把概率、评分、溢价和当前盈亏合成每个候选动作的 EV，
// 全部以账户净值百分比表示。潜在收益永远来自结构位/ATR 推导，
// 绝不用固定百分比目标。

// EVCalculator 无状态 EV 合成器。
type EVCalculator struct{}

// NewEVCalculator 构造器。
func NewEVCalculator() *EVCalculator { return &EVCalculator{} }

// EVInput EV 合成的输入。
type EVInput struct {
	Snap      *types.MarketSnapshot
	Prob      types.ProbabilityEstimate
	Scores    Scores
	Premiums  PremiumBreakdown
	Peak      types.PeakRecord
	Setup     types.SetupType
	Params    calibration.Params
	ProfitPct float64
}

// EVResult 全部候选动作的 EV 与中间量（供推理文本与测试使用）。
type EVResult struct {
	Values           map[types.Action]float64 `json:"values"`
	PotentialGainPct float64                  `json:"potential_gain_pct"`
	PotentialLossPct float64                  `json:"potential_loss_pct"`
	TargetPct        float64                  `json:"target_pct"`
	CaptureRatio     float64                  `json:"capture_ratio"`
	OpportunityCost  float64                  `json:"opportunity_cost"`
}

// ComputeAll 计算六个候选动作的 EV。
func (c *EVCalculator) ComputeAll(in EVInput) EVResult {
	gain := c.potentialGain(in)
	loss := c.potentialLoss(in, gain)
	target := c.targetPct(in)
	capture := mathutil.SafeDiv(in.ProfitPct, target, 0)

	res := EVResult{
		Values:           make(map[types.Action]float64, len(types.AllActions)),
		PotentialGainPct: gain,
		PotentialLossPct: loss,
		TargetPct:        target,
		CaptureRatio:     capture,
	}

	hold := c.evHold(in, gain, loss, capture)
	res.Values[types.ActionHold] = hold

	closeEV, oppCost := c.evClose(in, gain, capture)
	res.Values[types.ActionClose] = closeEV
	res.OpportunityCost = oppCost

	res.Values[types.ActionScaleOut25] = c.evScaleOut(in, 0.25, hold, capture)
	res.Values[types.ActionScaleOut50] = c.evScaleOut(in, 0.50, hold, capture)

	res.Values[types.ActionScaleIn] = c.evAdd(in, hold, false)
	res.Values[types.ActionDCA] = c.evAdd(in, hold, true)
	return res
}

// moveToAccountPct 把价格距离换算成账户百分比（PnL 线性近似）。
func moveToAccountPct(snap *types.MarketSnapshot, priceDistance float64) float64 {
	notionalPnL := priceDistance * snap.Position.Volume
	return mathutil.SafeDiv(notionalPnL, snap.Account.Balance, 0) * 100
}

// potentialGain 到下一个结构位的距离（无结构位时 ATR 倍数），
// 按论点质量折减，并用 10% 账户封顶。
func (c *EVCalculator) potentialGain(in EVInput) float64 {
	snap := in.Snap
	dist := structureTargetDistance(snap)
	if dist <= 0 {
		atr := effectiveVolatility(snap, in.Setup)
		dist = atr * in.Params.ForSetup(string(in.Setup)).ATRTargetMult
	}
	gain := moveToAccountPct(snap, dist)
	gain *= 0.5 + 0.5*in.Prob.ThesisQuality
	return mathutil.Clamp(gain, 0, in.Params.PotentialGainCapPct)
}

// structureTargetDistance 顺势方向最近关键位的距离；没有可用位时返回 0。
func structureTargetDistance(snap *types.MarketSnapshot) float64 {
	if snap.Position.Side == types.SideLong {
		if r := snap.Structure.NearestResistance; r > snap.CurrentPrice {
			return r - snap.CurrentPrice
		}
		return 0
	}
	if s := snap.Structure.NearestSupport; s > 0 && s < snap.CurrentPrice {
		return snap.CurrentPrice - s
	}
	return 0
}

// potentialLoss = gain × (reversal/continuation)，按节奏上限封顶。
func (c *EVCalculator) potentialLoss(in EVInput, gain float64) float64 {
	ratio := mathutil.SafeDiv(in.Prob.Reversal, in.Prob.Continuation, 1)
	loss := gain * ratio
	cap := in.Params.ForSetup(string(in.Setup)).LossCapPct
	return mathutil.Clamp(loss, 0, cap)
}

// targetPct 目标利润（账户 %）：TP 优先，否则 ATR 推导。
func (c *EVCalculator) targetPct(in EVInput) float64 {
	snap := in.Snap
	if tp := snap.Position.TakeProfit; tp > 0 {
		dist := math.Abs(tp - snap.Position.EntryPrice)
		if v := moveToAccountPct(snap, dist); v > 0 {
			return v
		}
	}
	atr := effectiveVolatility(snap, in.Setup)
	dist := atr * in.Params.ForSetup(string(in.Setup)).ATRTargetMult
	v := moveToAccountPct(snap, dist)
	if v <= 0 {
		return 0.5 // 兜底目标，避免捕获率除零
	}
	return v
}

// evHold 持有 EV：概率加权收益 − 溢价 − 背离先导罚项 − 超目标罚项。
func (c *EVCalculator) evHold(in EVInput, gain, loss, capture float64) float64 {
	p := in.Prob
	profit := in.ProfitPct
	ev := p.Continuation*gain + p.Reversal*(profit-loss) + p.Flat*profit
	ev -= in.Premiums.Total
	// 高周期量价背离是先导指标：趋势还没破但持有价值已经打折。
	ev -= in.Snap.VolumeFlow.Divergence * 0.3
	ev -= c.targetExceededPenalty(in, capture)
	return ev
}

// targetExceededPenalty 利润超出推导目标后，超出越多、反转越高罚得越重。
func (c *EVCalculator) targetExceededPenalty(in EVInput, capture float64) float64 {
	if capture <= 1 || in.ProfitPct <= 0 {
		return 0
	}
	return (capture - 1) * in.Prob.Reversal * in.ProfitPct * 0.5
}

// evClose 平仓 EV：落袋利润 − 机会成本 − 交易成本 + 保护价值 + 溢价。
func (c *EVCalculator) evClose(in EVInput, gain, capture float64) (float64, float64) {
	p := in.Prob
	profit := in.ProfitPct

	oppCost := gain * p.Continuation * p.ThesisQuality
	// 模型自身信号说明 "机会" 是幻觉时削减机会成本。
	illusory := 0.0
	if p.Reversal > p.Continuation {
		illusory += 0.4
	}
	illusory += 0.3 * in.Scores.Exhaustion
	if in.Snap.ML.Opposes(in.Snap.Position.Side) {
		illusory += 0.3 * in.Snap.ML.Confidence / 100
	}
	oppCost *= 1 - mathutil.Clamp(illusory, 0, 0.8)

	// 目标捕获不足且论点仍然成立：过早退出罚项，防止蝇头小利来回倒。
	if profit > 0 && capture < in.Params.PrematureCaptureThreshold && p.ThesisQuality > 0.5 {
		oppCost += (in.Params.PrematureCaptureThreshold - capture) * gain * p.ThesisQuality
	}

	protection := math.Max(profit, 0) * p.Reversal * (1 - p.ThesisQuality)
	ev := profit - oppCost - in.Params.TradingCostPct + protection + in.Premiums.Total
	return ev, oppCost
}

// evScaleOut 部分退出：落袋份额 + 剩余份额的 HOLD EV + 溢价/衰竭的比例份额。
func (c *EVCalculator) evScaleOut(in EVInput, fraction, holdEV, capture float64) float64 {
	profit := in.ProfitPct
	ev := fraction * (profit - in.Params.TradingCostPct)
	ev += (1 - fraction) * holdEV
	ev += fraction * in.Premiums.Total
	ev += fraction * in.Scores.Exhaustion * 0.3
	ev += fraction * c.targetExceededPenalty(in, capture)
	return ev
}

// evAdd 加仓（SCALE_IN 顺势 / DCA 逆势补仓）EV。
// 论点太弱、已到规模上限或周五下午，一律压到严格劣于 HOLD。
func (c *EVCalculator) evAdd(in EVInput, holdEV float64, dca bool) float64 {
	snap := in.Snap
	p := in.Params

	worseThanHold := holdEV - math.Max(0.05, math.Abs(holdEV)*0.2)

	if in.Prob.ThesisQuality < p.ScaleInThesisFloor {
		return worseThanHold
	}
	if snap.Position.MaxVolume > 0 && snap.Position.Volume >= snap.Position.MaxVolume {
		return worseThanHold
	}
	if snap.IsWeekendWindow() {
		return worseThanHold
	}
	if dca && in.ProfitPct >= 0 {
		// DCA 定义为给亏损仓补仓；盈利时该候选无意义。
		return worseThanHold
	}
	if !dca && in.ProfitPct < 0 {
		// SCALE_IN 只给盈利中的仓位加注。
		return worseThanHold
	}

	entryMod := (in.Scores.Entry - 0.5) * 0.6
	priceConfirm := 1 + mathutil.Clamp(
		in.Snap.TF(types.TFM15).Momentum*snap.Position.Side.Direction()*0.1, -0.1, 0.1)
	marginal := 1 - math.Pow(snap.SizeRatio(), 2)

	ev := holdEV * (1 + entryMod) * priceConfirm * marginal
	if dca {
		// 逆势补仓额外保守：反转概率直接折价。
		ev *= 1 - in.Prob.Reversal
	}
	if ev >= holdEV && in.Scores.Entry < 0.65 {
		// 加仓必须由明显的 entry 证据驱动，而不是公式巧合。
		return worseThanHold
	}
	return ev
}
