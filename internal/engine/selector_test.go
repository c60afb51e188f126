package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"evcore/internal/calibration"
	"evcore/internal/types"
)

func selectorInput(evs map[types.Action]float64) SelectInput {
	snap := baseSnapshot()
	return SelectInput{
		Snap:      snap,
		Prob:      types.ProbabilityEstimate{Continuation: 0.55, Reversal: 0.25, Flat: 0.20, ThesisQuality: 0.5},
		EV:        EVResult{Values: evs, CaptureRatio: 0.4},
		Params:    calibration.Defaults(),
		Setup:     types.SetupDay,
		ProfitPct: 0.3,
		Now:       snap.Timestamp,
	}
}

func evSet(hold, so25, so50, closeEV, scaleIn, dca float64) map[types.Action]float64 {
	return map[types.Action]float64{
		types.ActionHold:       hold,
		types.ActionScaleOut25: so25,
		types.ActionScaleOut50: so50,
		types.ActionClose:      closeEV,
		types.ActionScaleIn:    scaleIn,
		types.ActionDCA:        dca,
	}
}

func TestSelector_ExitNeedsAdvantageOverHold(t *testing.T) {
	s := NewDecisionSelector()

	t.Run("marginal edge falls back to hold", func(t *testing.T) {
		// CLOSE 仅领先 0.05%，低于不确定性抬升后的门槛。
		in := selectorInput(evSet(0.30, 0.10, 0.20, 0.35, -0.1, -0.2))
		sel := s.Select(in)
		assert.Equal(t, types.ActionHold, sel.Action)
		assert.NotEmpty(t, sel.Reasons)
	})

	t.Run("clear edge passes the gate", func(t *testing.T) {
		in := selectorInput(evSet(0.10, 0.20, 0.40, 1.20, -0.1, -0.2))
		sel := s.Select(in)
		assert.True(t, sel.Action.IsExit())
	})
}

func TestSelector_CloseSoftensToScaleOut(t *testing.T) {
	s := NewDecisionSelector()
	// SO50 拿到 CLOSE 95% 的价值（≥ 0.9 软化线）。
	in := selectorInput(evSet(0.10, 0.30, 0.95, 1.00, -0.1, -0.2))
	sel := s.Select(in)

	assert.Equal(t, types.ActionScaleOut50, sel.Action)
	assert.InDelta(t, 0.95, sel.EV, 1e-9)
}

func TestSelector_NegativeEVExitVeto(t *testing.T) {
	s := NewDecisionSelector()

	t.Run("vetoed without reversal evidence", func(t *testing.T) {
		in := selectorInput(evSet(-0.50, -0.40, -0.30, -0.10, -0.9, -0.9))
		in.ProfitPct = -0.5
		sel := s.Select(in)
		assert.Equal(t, types.ActionHold, sel.Action)
	})

	t.Run("allowed when reversal dominates", func(t *testing.T) {
		in := selectorInput(evSet(-0.50, -0.40, -0.30, -0.10, -0.9, -0.9))
		in.ProfitPct = -0.5
		in.Prob = types.ProbabilityEstimate{Continuation: 0.15, Reversal: 0.70, Flat: 0.15, ThesisQuality: 0.2}
		sel := s.Select(in)
		assert.Equal(t, types.ActionClose, sel.Action)
	})
}

func TestSelector_GateOverrides(t *testing.T) {
	s := NewDecisionSelector()
	// 领先幅度刻意压在门槛之下，验证豁免条件单独放行。
	marginal := func() SelectInput {
		return selectorInput(evSet(0.30, 0.10, 0.20, 0.36, -0.1, -0.2))
	}

	t.Run("target exceeded", func(t *testing.T) {
		in := marginal()
		in.EV.CaptureRatio = 1.6
		sel := s.Select(in)
		assert.True(t, sel.Action.IsExit())
	})

	t.Run("weak thesis while losing", func(t *testing.T) {
		in := marginal()
		in.Prob.ThesisQuality = 0.2
		in.ProfitPct = -0.4
		sel := s.Select(in)
		assert.True(t, sel.Action.IsExit())
	})

	t.Run("friday afternoon while losing", func(t *testing.T) {
		in := marginal()
		in.Snap.Timestamp = time.Date(2026, 3, 13, 16, 0, 0, 0, time.UTC) // 周五 16:00 UTC
		in.ProfitPct = -0.1
		sel := s.Select(in)
		assert.True(t, sel.Action.IsExit())
	})

	t.Run("oversized while losing", func(t *testing.T) {
		in := marginal()
		in.Snap.Position.Volume = 0.48
		in.ProfitPct = -0.1
		sel := s.Select(in)
		assert.True(t, sel.Action.IsExit())
	})
}

func TestSelector_ChurnCooldownRaisesBar(t *testing.T) {
	s := NewDecisionSelector()
	// 不确定性/论点抬升后的门槛约 0.32%，领先 0.4% 本可通过；
	// 冷却期内同一故事再抬 1.5 倍后不再通过。
	in := selectorInput(evSet(0.30, 0.10, 0.20, 0.70, -0.1, -0.2))
	sel := s.Select(in)
	assert.True(t, sel.Action.IsExit())

	in = selectorInput(evSet(0.30, 0.10, 0.20, 0.70, -0.1, -0.2))
	in.LastState = &types.ActionState{
		Symbol:               "BTCUSDT",
		LastAction:           types.ActionScaleOut25,
		LastActionTime:       in.Now.Add(-5 * time.Minute),
		LastContinuationProb: 0.55,
	}
	sel = s.Select(in)
	assert.Equal(t, types.ActionHold, sel.Action)
}

func TestSelector_ConfidenceBounds(t *testing.T) {
	s := NewDecisionSelector()
	in := selectorInput(evSet(5.0, 0.1, 0.1, 0.1, 0, 0))
	sel := s.Select(in)
	assert.Equal(t, types.ActionHold, sel.Action)
	assert.LessOrEqual(t, sel.Confidence, 95.0)
	assert.GreaterOrEqual(t, sel.Confidence, 50.0)
}
