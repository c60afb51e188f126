package engine

import (
	"math"

	"evcore/internal/calibration"
	"evcore/internal/pkg/mathutil"
	"evcore/internal/types"
)

// 中文说明：
// 风险溢价：每项是独立可测的命名函数 (PremiumInput) -> 账户百分比。
// 溢价从 HOLD 的 EV 中扣除、按比例加到退出动作上；
// 波动率乘数单独作用于溢价合计。

// PremiumInput 溢价计算的只读输入。
type PremiumInput struct {
	Snap      *types.MarketSnapshot
	Prob      types.ProbabilityEstimate
	Scores    Scores
	Peak      types.PeakRecord
	Setup     types.SetupType
	Params    calibration.Params
	ProfitPct float64 // 当前浮盈（账户 %）
	Giveback  float64 // 自峰值回吐比例 0~1
}

// Premium 一项命名溢价。
type Premium struct {
	Name string
	Calc func(in PremiumInput) float64
}

// PremiumBreakdown 溢价明细。
type PremiumBreakdown struct {
	Items      map[string]float64 `json:"items"`
	Sum        float64            `json:"sum"`
	Multiplier float64            `json:"multiplier"`
	Total      float64            `json:"total"` // Sum × Multiplier
}

// DefaultPremiums 固定顺序的溢价清单。
func DefaultPremiums() []Premium {
	return []Premium{
		{Name: "profit_protection", Calc: profitProtectionPremium},
		{Name: "peak_giveback", Calc: peakGivebackPremium},
		{Name: "drawdown_exit", Calc: drawdownExitPremium},
		{Name: "regime_exit", Calc: regimeExitPremium},
		{Name: "news_risk", Calc: newsRiskPremium},
		{Name: "weekend_risk", Calc: weekendRiskPremium},
		{Name: "order_flow", Calc: orderFlowPremium},
		{Name: "position_age", Calc: positionAgePremium},
	}
}

// Evaluate 依序计算全部溢价并应用波动率乘数。
func EvaluatePremiums(premiums []Premium, in PremiumInput) PremiumBreakdown {
	out := PremiumBreakdown{Items: make(map[string]float64, len(premiums))}
	for _, p := range premiums {
		v := mathutil.Finite(p.Calc(in), 0)
		if v < 0 {
			v = 0
		}
		out.Items[p.Name] = v
		out.Sum += v
	}
	out.Multiplier = volatilityRegimeMultiplier(in)
	out.Total = out.Sum * out.Multiplier
	return out
}

// profitProtectionPremium = 风险中的利润 × 保护紧迫度。
func profitProtectionPremium(in PremiumInput) float64 {
	profitAtRisk := math.Max(in.ProfitPct, 0) * in.Prob.Reversal * (1 - in.Prob.ThesisQuality)
	if profitAtRisk <= 0 {
		return 0
	}
	side := in.Snap.Position.Side
	mlDisagree := 0.0
	if in.Snap.ML.Opposes(side) {
		mlDisagree = in.Snap.ML.Confidence / 100
	}
	htfReversal := 1 - in.Snap.TF(types.TFH4).SupportFor(side)
	urgency := mathutil.Clamp01(
		0.35*in.Scores.Exhaustion +
			0.25*mlDisagree +
			0.25*htfReversal +
			0.15*in.Snap.VolumeFlow.Divergence)
	return profitAtRisk * urgency
}

// peakGivebackPremium 回吐超出许可比例时触发；
// 许可随论点质量放宽、随仓位占比收紧。
func peakGivebackPremium(in PremiumInput) float64 {
	if in.Peak.PeakProfitPct <= 0 {
		return 0
	}
	p := in.Params
	allowed := mathutil.Clamp(
		p.GivebackBaseAllowance+
			p.GivebackThesisBonus*in.Prob.ThesisQuality-
			p.GivebackSizeTightening*in.Snap.SizeRatio(),
		0.10, 0.80)
	if in.Giveback <= allowed {
		return 0
	}
	return (in.Giveback - allowed) * in.Peak.PeakProfitPct * 0.8
}

// drawdownExitPremium 组合回撤压力 × (1-论点强度) × 超龄放大器。
func drawdownExitPremium(in PremiumInput) float64 {
	acct := in.Snap.Account
	daily := mathutil.SafeDiv(math.Max(-acct.DailyPnL, 0), acct.MaxDailyLoss, 0)
	total := mathutil.SafeDiv(math.Max(acct.TotalDrawdown, 0), acct.MaxTotalDrawdown, 0)
	severity := mathutil.Clamp01(math.Max(daily, total))
	if severity <= 0 {
		return 0
	}
	return severity * (1 - in.Prob.ThesisQuality) * ageAmplifier(in) * 0.5
}

// ageAmplifier 超出节奏预期时长后指数加压（1~3 封顶）。
func ageAmplifier(in PremiumInput) float64 {
	expected := in.Params.ForSetup(string(in.Setup)).ExpectedDurationMin
	ratio := mathutil.SafeDiv(in.Snap.Position.AgeMinutes, expected, 0)
	if ratio <= 1 {
		return 1
	}
	return mathutil.Clamp(math.Pow(ratio, in.Params.AgeAmplifierExponent), 1, 3)
}

// regimeExitPremium 持仓方向与跨资产 risk-on/off、美元强弱相悖时加压。
func regimeExitPremium(in PremiumInput) float64 {
	dir := in.Snap.Position.Side.Direction()
	misaligned := math.Max(-in.Snap.Regime.RiskAppetite*dir, 0)
	misaligned += math.Max(in.Snap.Regime.DollarStrength*dir, 0) * 0.5
	if misaligned <= 0 {
		return 0
	}
	return mathutil.Clamp01(misaligned) * 0.3 * (1 - 0.5*in.Prob.ThesisQuality)
}

// newsRiskPremium 高影响事件临近时抬升退出吸引力，论点强时折减。
func newsRiskPremium(in PremiumInput) float64 {
	news := in.Snap.News
	boost := 0.0
	if news.Imminent {
		boost = 0.5
	} else if news.MinutesUntilEvent < 60 {
		boost = (1 - news.MinutesUntilEvent/60) * 0.4
	}
	if boost <= 0 {
		return 0
	}
	return boost * (1 - 0.5*in.Prob.ThesisQuality)
}

// weekendRiskPremium 周五下午的缺口风险。
func weekendRiskPremium(in PremiumInput) float64 {
	if !in.Snap.IsWeekendWindow() {
		return 0
	}
	return 0.25 * (1 - 0.5*in.Prob.ThesisQuality)
}

// orderFlowPremium 订单簿不平衡与持仓相反时的次级加压。
func orderFlowPremium(in PremiumInput) float64 {
	adverse := -in.Snap.VolumeFlow.OrderFlowImbalance * in.Snap.Position.Side.Direction()
	if adverse <= 0 {
		return 0
	}
	return mathutil.Clamp01(adverse) * 0.2
}

// positionAgePremium 纯持仓时长衰减：超龄越多退出压力越大。
func positionAgePremium(in PremiumInput) float64 {
	amp := ageAmplifier(in)
	if amp <= 1 {
		return 0
	}
	return (amp - 1) * 0.1
}

// volatilityRegimeMultiplier 用 H1/D1 ATR 比例探测波动状态，
// 高波动状态放大全部溢价，低波动折减；范围 [0.8, 1.5]。
func volatilityRegimeMultiplier(in PremiumInput) float64 {
	h1 := in.Snap.TF(types.TFH1).Volatility
	d1 := in.Snap.TF(types.TFD1).Volatility
	if h1 <= 0 || d1 <= 0 {
		return 1
	}
	// 正常状态下日 ATR ≈ 小时 ATR × √24。
	ratio := mathutil.SafeDiv(h1*math.Sqrt(24), d1, 1)
	return mathutil.Clamp(ratio, 0.8, 1.5)
}
