package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"evcore/internal/calibration"
	"evcore/internal/pkg/mathutil"
	"evcore/internal/types"
)

// 中文说明：
// DecisionSelector 对六个 EV 做一次性分类：取最大值，然后套三道闸。
// 1) 退出动作必须比 HOLD 好出门槛（门槛随不确定性与论点质量抬升，
//    有documented的豁免条件）；2) CLOSE 可被软化成 SCALE_OUT_50；
// 3) 负 EV 的退出需要足够强的反转证据，否则回落 HOLD。

// DecisionSelector 动作选择器。
type DecisionSelector struct{}

// NewDecisionSelector 构造器。
func NewDecisionSelector() *DecisionSelector { return &DecisionSelector{} }

// SelectInput 选择器输入。
type SelectInput struct {
	Snap      *types.MarketSnapshot
	Prob      types.ProbabilityEstimate
	EV        EVResult
	Params    calibration.Params
	Setup     types.SetupType
	ProfitPct float64
	LastState *types.ActionState // 反churn 状态，可为 nil
	Now       time.Time
}

// Selection 选择结果。
type Selection struct {
	Action     types.Action
	EV         float64
	Confidence float64
	Reasons    []string
}

const churnCooldown = 15 * time.Minute

// Select 执行选择流程。
func (s *DecisionSelector) Select(in SelectInput) Selection {
	evs := in.EV.Values
	holdEV := evs[types.ActionHold]

	best, second := rankActions(evs)
	sel := Selection{Action: best, EV: evs[best]}

	if best.IsExit() {
		advantage := evs[best] - holdEV
		required := s.requiredAdvantage(in)
		if override, why := s.gateOverride(in); override {
			sel.Reasons = append(sel.Reasons, why)
		} else if advantage < required {
			sel = Selection{Action: types.ActionHold, EV: holdEV}
			sel.Reasons = append(sel.Reasons,
				fmt.Sprintf("exit advantage %.3f%% below required %.3f%%", advantage, required))
			sel.Confidence = s.confidence(evs, sel.Action, second)
			return sel
		}
	}

	// CLOSE→SCALE_OUT_50 软化：半仓已拿到九成价值就不全平。
	if sel.Action == types.ActionClose {
		if so := evs[types.ActionScaleOut50]; so >= in.Params.CloseSoftenRatio*evs[types.ActionClose] {
			sel.Action = types.ActionScaleOut50
			sel.EV = so
			sel.Reasons = append(sel.Reasons, "softened to scale-out, half position captures most value")
		}
	}

	// 负 EV 退出：只有反转证据足够硬才允许实现亏损。
	if sel.Action.IsExit() && sel.EV < 0 {
		if !s.negativeExitJustified(in) {
			sel = Selection{Action: types.ActionHold, EV: holdEV}
			sel.Reasons = append(sel.Reasons, "negative-EV exit vetoed, reversal evidence insufficient")
		} else {
			sel.Reasons = append(sel.Reasons, "negative-EV exit allowed by reversal dominance")
		}
	}

	sel.Confidence = s.confidence(evs, sel.Action, second)
	return sel
}

// rankActions 返回最大与次大 EV 的动作（固定遍历顺序保证幂等）。
func rankActions(evs map[types.Action]float64) (best, second types.Action) {
	ordered := make([]types.Action, 0, len(types.AllActions))
	ordered = append(ordered, types.AllActions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return evs[ordered[i]] > evs[ordered[j]]
	})
	best = ordered[0]
	if len(ordered) > 1 {
		second = ordered[1]
	}
	return best, second
}

// requiredAdvantage 退出门槛：不确定性高、论点强时都要更大的优势，
// 反churn 冷却期内继续抬高。永不低于配置基准。
func (s *DecisionSelector) requiredAdvantage(in SelectInput) float64 {
	base := in.Params.MinExitAdvantagePct
	required := base * (1 + 0.8*in.Prob.Uncertainty() + 0.6*in.Prob.ThesisQuality)
	if st := in.LastState; st != nil && st.LastAction.IsExit() {
		recent := in.Now.Sub(st.LastActionTime) < churnCooldown
		sameStory := in.Prob.Continuation >= st.LastContinuationProb-0.05
		if recent && sameStory {
			// 上次退出后没有新信息，不允许连环砍仓。
			required *= 1.5
		}
	}
	if required < base {
		required = base
	}
	return required
}

// gateOverride 文档化的门槛豁免条件。
func (s *DecisionSelector) gateOverride(in SelectInput) (bool, string) {
	losing := in.ProfitPct < 0
	switch {
	case in.EV.CaptureRatio >= in.Params.TargetExceededOverride:
		return true, fmt.Sprintf("target exceeded %.0f%%", in.EV.CaptureRatio*100)
	case in.Prob.ThesisQuality < 0.35 && losing:
		return true, "weak thesis while losing"
	case s.overdue(in) && in.Snap.ML.Opposes(in.Snap.Position.Side):
		return true, "overdue position with ML disagreement"
	case in.Snap.IsWeekendWindow() && losing:
		return true, "friday afternoon while losing"
	case in.Snap.SizeRatio() > 0.9 && losing:
		return true, "oversized position while losing"
	}
	return false, ""
}

func (s *DecisionSelector) overdue(in SelectInput) bool {
	expected := in.Params.ForSetup(string(in.Setup)).ExpectedDurationMin
	return expected > 0 && in.Snap.Position.AgeMinutes > expected
}

// negativeExitJustified 负 EV 退出的两条出口：
// 深亏 + 反转过半 + 高周期反向，或反转明确过 60%。
func (s *DecisionSelector) negativeExitJustified(in SelectInput) bool {
	p := in.Params
	if in.Prob.Reversal > p.ReversalOverrideSolo {
		return true
	}
	deepLoss := in.ProfitPct < -p.DeepLossPct
	htfAgainst := in.Snap.TF(types.TFH4).SupportFor(in.Snap.Position.Side) < 0.4
	return deepLoss && in.Prob.Reversal > p.ReversalOverrideDeep && htfAgainst
}

// confidence = 60 + 2×(最优与次优的 EV 差)，压到 [50, 95]。
func (s *DecisionSelector) confidence(evs map[types.Action]float64, chosen, second types.Action) float64 {
	margin := evs[chosen] - evs[second]
	if chosen == second {
		margin = 0
	}
	if margin < 0 {
		margin = 0
	}
	return mathutil.Clamp(60+2*margin, 50, 95)
}

// summarizeReasons 拼接推理片段。
func summarizeReasons(reasons []string) string {
	return strings.Join(reasons, "; ")
}
