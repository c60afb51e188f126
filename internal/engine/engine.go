package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"evcore/internal/calibration"
	"evcore/internal/churn"
	"evcore/internal/logger"
	"evcore/internal/peak"
	"evcore/internal/types"
)

// 中文说明：
// Engine 串起整条评估链：快照 → 概率 → 评分 → 溢价 → EV → 选择 → 止损。
// 每次 Evaluate 是纯同步计算；唯一的副作用是峰值/反churn 状态更新，
// 由各自组件用 per-symbol 锁保护。所有依赖显式注入。

// Deps Engine 的全部依赖。
type Deps struct {
	Calibration *calibration.Registry
	Peaks       *peak.Tracker
	Guard       *churn.Guard
	Probability *ProbabilityModel
	Scores      *ScoreEngine
	Premiums    []Premium
	EV          *EVCalculator
	Selector    *DecisionSelector
	Stops       *DynamicStopCalculator
}

// Engine 决策引擎。
type Engine struct {
	calib    *calibration.Registry
	peaks    *peak.Tracker
	guard    *churn.Guard
	prob     *ProbabilityModel
	scores   *ScoreEngine
	premiums []Premium
	ev       *EVCalculator
	selector *DecisionSelector
	stops    *DynamicStopCalculator
}

// NewEngine 构造引擎；缺省子组件自动补齐，方便测试按需替换。
func NewEngine(deps Deps) (*Engine, error) {
	if deps.Calibration == nil {
		return nil, fmt.Errorf("engine: calibration registry 必须注入")
	}
	if deps.Peaks == nil {
		return nil, fmt.Errorf("engine: peak tracker 必须注入")
	}
	if deps.Guard == nil {
		deps.Guard = churn.NewGuard()
	}
	if deps.Probability == nil {
		deps.Probability = NewProbabilityModel()
	}
	if deps.Scores == nil {
		deps.Scores = NewScoreEngine()
	}
	if len(deps.Premiums) == 0 {
		deps.Premiums = DefaultPremiums()
	}
	if deps.EV == nil {
		deps.EV = NewEVCalculator()
	}
	if deps.Selector == nil {
		deps.Selector = NewDecisionSelector()
	}
	if deps.Stops == nil {
		deps.Stops = NewDynamicStopCalculator()
	}
	return &Engine{
		calib:    deps.Calibration,
		peaks:    deps.Peaks,
		guard:    deps.Guard,
		prob:     deps.Probability,
		scores:   deps.Scores,
		premiums: deps.Premiums,
		ev:       deps.EV,
		selector: deps.Selector,
		stops:    deps.Stops,
	}, nil
}

// Evaluate 对一个持仓快照做一次完整评估。
func (e *Engine) Evaluate(ctx context.Context, snap *types.MarketSnapshot) (types.Decision, error) {
	if snap == nil {
		return types.Decision{}, fmt.Errorf("engine: snapshot 不能为空")
	}
	if err := validateSnapshot(snap); err != nil {
		return types.Decision{}, err
	}
	traceID := uuid.NewString()
	now := snap.Timestamp
	if now.IsZero() {
		now = time.Now()
		snap.Timestamp = now
	}
	params := e.calib.Params()

	// 高周期趋势全部为 0：上游断数据，直接 HOLD，不进 EV。
	if snap.HTFDegenerate() {
		logger.Warnf("HTF 数据缺失，短路 HOLD symbol=%s trace=%s", snap.Symbol, traceID)
		return types.Decision{
			TraceID:     traceID,
			Symbol:      snap.Symbol,
			Action:      types.ActionHold,
			Reasoning:   "insufficient data",
			Confidence:  50,
			GeneratedAt: now,
		}, nil
	}

	peakRec := e.peaks.Observe(ctx, snap, params.VolumeResetEpsilon)
	profitPct := snap.ProfitPct()
	giveback := peakRec.GivebackRatio(profitPct)

	setup := ClassifySetup(snap, params)
	prob := e.prob.Estimate(snap, setup)
	if violated := prob.Normalize(); violated {
		logger.Warnf("概率越界已夹取 symbol=%s trace=%s", snap.Symbol, traceID)
	}
	scores := e.scores.Compute(snap, giveback)

	premiums := EvaluatePremiums(e.premiums, PremiumInput{
		Snap:      snap,
		Prob:      prob,
		Scores:    scores,
		Peak:      peakRec,
		Setup:     setup,
		Params:    params,
		ProfitPct: profitPct,
		Giveback:  giveback,
	})

	evResult := e.ev.ComputeAll(EVInput{
		Snap:      snap,
		Prob:      prob,
		Scores:    scores,
		Premiums:  premiums,
		Peak:      peakRec,
		Setup:     setup,
		Params:    params,
		ProfitPct: profitPct,
	})

	var lastState *types.ActionState
	if st, ok := e.guard.Last(snap.Symbol); ok {
		lastState = &st
	}
	selection := e.selector.Select(SelectInput{
		Snap:      snap,
		Prob:      prob,
		EV:        evResult,
		Params:    params,
		Setup:     setup,
		ProfitPct: profitPct,
		LastState: lastState,
		Now:       now,
	})

	stop := e.stops.Compute(StopInput{
		Snap:      snap,
		Prob:      prob,
		Scores:    scores,
		Peak:      peakRec,
		Setup:     setup,
		Params:    params,
		ProfitPct: profitPct,
	})

	e.guard.Record(snap.Symbol, selection.Action, prob.Continuation, now)

	decision := types.Decision{
		TraceID:     traceID,
		Symbol:      snap.Symbol,
		Action:      selection.Action,
		EV:          selection.EV,
		Confidence:  selection.Confidence,
		Reasoning:   buildReasoning(selection, prob, evResult, setup, profitPct),
		Candidates:  candidateList(evResult),
		Stop:        stop,
		Probability: prob,
		GeneratedAt: now,
	}
	logger.DumpDecision(traceID, snap.Symbol, dumpBody(decision, premiums, scores))
	logger.Debugf("evaluate symbol=%s action=%s ev=%.3f conf=%.0f trace=%s",
		snap.Symbol, decision.Action, decision.EV, decision.Confidence, traceID)
	return decision, nil
}

// PositionClosed 持仓退出后清理峰值与反churn 状态。
func (e *Engine) PositionClosed(ctx context.Context, symbol string) {
	e.peaks.Forget(ctx, symbol)
	e.guard.Clear(symbol)
}

func validateSnapshot(snap *types.MarketSnapshot) error {
	switch {
	case snap.Symbol == "":
		return fmt.Errorf("engine: symbol 必填")
	case snap.CurrentPrice <= 0:
		return fmt.Errorf("engine: current_price 需 > 0 (%s)", snap.Symbol)
	case snap.Position.EntryPrice <= 0:
		return fmt.Errorf("engine: entry_price 需 > 0 (%s)", snap.Symbol)
	case snap.Position.Volume <= 0:
		return fmt.Errorf("engine: volume 需 > 0 (%s)", snap.Symbol)
	}
	return nil
}

func candidateList(res EVResult) []types.ActionCandidate {
	out := make([]types.ActionCandidate, 0, len(types.AllActions))
	for _, action := range types.AllActions {
		out = append(out, types.ActionCandidate{
			Action:       action,
			EV:           res.Values[action],
			SizeFraction: action.SizeFraction(),
		})
	}
	return out
}

func buildReasoning(sel Selection, prob types.ProbabilityEstimate, res EVResult, setup types.SetupType, profitPct float64) string {
	head := fmt.Sprintf("%s setup=%s profit=%.2f%% cont=%.2f rev=%.2f thesis=%.2f capture=%.2f",
		sel.Action, setup, profitPct, prob.Continuation, prob.Reversal, prob.ThesisQuality, res.CaptureRatio)
	if len(sel.Reasons) == 0 {
		return head
	}
	return head + " | " + summarizeReasons(sel.Reasons)
}

func dumpBody(d types.Decision, premiums PremiumBreakdown, scores Scores) string {
	body := fmt.Sprintf("action=%s ev=%.4f conf=%.0f\nscores exit=%.3f entry=%.3f exhaustion=%.3f\npremiums sum=%.4f mult=%.3f total=%.4f\n",
		d.Action, d.EV, d.Confidence, scores.Exit, scores.Entry, scores.Exhaustion,
		premiums.Sum, premiums.Multiplier, premiums.Total)
	for _, c := range d.Candidates {
		body += fmt.Sprintf("  %-13s %+8.4f\n", c.Action, c.EV)
	}
	body += fmt.Sprintf("stop=%.5f type=%s modify=%v\nreason: %s",
		d.Stop.RecommendedStop, d.Stop.StopType, d.Stop.ShouldModify, d.Reasoning)
	return body
}
