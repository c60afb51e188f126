package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcore/internal/calibration"
	"evcore/internal/churn"
	"evcore/internal/peak"
	"evcore/internal/types"
)

// baseSnapshot 一个健康的多头浮盈仓位：高周期顺势、ML 同向。
func baseSnapshot() *types.MarketSnapshot {
	tfs := make(map[types.Timeframe]*types.TimeframeIndicators, len(types.AllTimeframes))
	for _, tf := range types.AllTimeframes {
		tfs[tf] = &types.TimeframeIndicators{
			Trend:       0.75,
			Momentum:    0.3,
			RSI:         58,
			MACD:        12,
			BBPosition:  0.6,
			Volatility:  120,
			ADX:         28,
			VolumeTrend: 0.2,
		}
	}
	return &types.MarketSnapshot{
		Symbol:       "BTCUSDT",
		CurrentPrice: 50500,
		Timestamp:    time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC), // 周三
		Position: types.PositionState{
			Side:          types.SideLong,
			Volume:        0.2,
			MaxVolume:     0.5,
			EntryPrice:    50000,
			AgeMinutes:    120,
			TakeProfit:    50180, // TP 距离 180 = 1.5×ATR 内 → SCALP
			UnrealizedPnL: 30,
		},
		Timeframes: tfs,
		Alignment:  types.AlignmentMetrics{AlignedTimeframes: 3, Score: 0.8},
		VolumeFlow: types.VolumeFlowMetrics{OrderFlowImbalance: 0.2, HTFVolumeTrend: 0.2},
		Structure:  types.StructureMetrics{NearestSupport: 49800, NearestResistance: 51500, Bias: 0.3},
		ML:         types.MLPrediction{Direction: types.MLBuy, Confidence: 70},
		Account:    types.AccountRisk{Balance: 100000, MaxDailyLoss: 5, MaxTotalDrawdown: 10},
		News:       types.NewsTiming{MinutesUntilEvent: 1e9},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	registry, err := calibration.NewRegistry("")
	require.NoError(t, err)
	store, err := peak.NewFileStore(t.TempDir() + "/peaks.json")
	require.NoError(t, err)
	eng, err := NewEngine(Deps{
		Calibration: registry,
		Peaks:       peak.NewTracker(store),
		Guard:       churn.NewGuard(),
	})
	require.NoError(t, err)
	return eng
}

func TestEngine_HealthyTrendHolds(t *testing.T) {
	eng := newTestEngine(t)
	snap := baseSnapshot()

	dec, err := eng.Evaluate(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, types.ActionHold, dec.Action)
	assert.NotEmpty(t, dec.TraceID)
	assert.GreaterOrEqual(t, dec.Confidence, 50.0)
	assert.LessOrEqual(t, dec.Confidence, 95.0)
	assert.Len(t, dec.Candidates, len(types.AllActions))
}

func TestEngine_ReversalWithTargetExceededExits(t *testing.T) {
	eng := newTestEngine(t)
	snap := baseSnapshot()
	// 利润远超推导目标、高周期转向、ML 反向、量价背离：退出明显占优。
	snap.Position.UnrealizedPnL = 800 // 0.8% 账户，TP 目标约 0.036% → capture >> 1.5
	snap.ML = types.MLPrediction{Direction: types.MLSell, Confidence: 75}
	snap.VolumeFlow.Divergence = 0.7
	snap.VolumeFlow.OrderFlowImbalance = -0.5
	for _, tf := range types.HigherTimeframes {
		snap.Timeframes[tf].Trend = 0.25
		snap.Timeframes[tf].Momentum = -0.5
	}

	dec, err := eng.Evaluate(context.Background(), snap)
	require.NoError(t, err)

	assert.True(t, dec.Action.IsExit(), "期望退出动作，得到 %s", dec.Action)
	assert.Greater(t, dec.Probability.Reversal, dec.Probability.Continuation)
}

func TestEngine_DegenerateHTFShortCircuitsToHold(t *testing.T) {
	eng := newTestEngine(t)
	snap := baseSnapshot()
	for _, tf := range types.HigherTimeframes {
		snap.Timeframes[tf].Trend = 0
	}

	dec, err := eng.Evaluate(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, types.ActionHold, dec.Action)
	assert.Equal(t, "insufficient data", dec.Reasoning)
	assert.Equal(t, 50.0, dec.Confidence)
}

func TestEngine_EvaluateIsIdempotent(t *testing.T) {
	eng := newTestEngine(t)

	first, err := eng.Evaluate(context.Background(), baseSnapshot())
	require.NoError(t, err)
	second, err := eng.Evaluate(context.Background(), baseSnapshot())
	require.NoError(t, err)

	assert.Equal(t, first.Action, second.Action)
	assert.InDelta(t, first.EV, second.EV, 1e-9)
	assert.InDelta(t, first.Stop.RecommendedStop, second.Stop.RecommendedStop, 1e-9)
}

func TestEngine_ProbabilityInvariants(t *testing.T) {
	eng := newTestEngine(t)
	snaps := []*types.MarketSnapshot{baseSnapshot()}

	bearish := baseSnapshot()
	for _, tf := range types.AllTimeframes {
		bearish.Timeframes[tf].Trend = 0.1
		bearish.Timeframes[tf].Momentum = -0.8
		bearish.Timeframes[tf].RSI = 85
	}
	bearish.ML = types.MLPrediction{Direction: types.MLSell, Confidence: 95}
	bearish.VolumeFlow.Divergence = 1
	snaps = append(snaps, bearish)

	for _, snap := range snaps {
		dec, err := eng.Evaluate(context.Background(), snap)
		require.NoError(t, err)
		p := dec.Probability
		assert.GreaterOrEqual(t, p.Continuation, 0.0)
		assert.LessOrEqual(t, p.Continuation, 1.0)
		assert.GreaterOrEqual(t, p.Reversal, 0.0)
		assert.LessOrEqual(t, p.Reversal, 1.0)
		assert.LessOrEqual(t, p.Continuation+p.Reversal, 1.0+1e-9)
		assert.InDelta(t, 1-p.Continuation-p.Reversal, p.Flat, 1e-9)
	}
}

func TestEngine_StopAlwaysOnCorrectSide(t *testing.T) {
	eng := newTestEngine(t)

	long := baseSnapshot()
	decLong, err := eng.Evaluate(context.Background(), long)
	require.NoError(t, err)
	assert.Less(t, decLong.Stop.RecommendedStop, long.CurrentPrice)

	short := baseSnapshot()
	short.Position.Side = types.SideShort
	short.Position.UnrealizedPnL = -100
	short.Structure = types.StructureMetrics{NearestSupport: 49000, NearestResistance: 51200, Bias: 0.3}
	decShort, err := eng.Evaluate(context.Background(), short)
	require.NoError(t, err)
	assert.Greater(t, decShort.Stop.RecommendedStop, short.CurrentPrice)
}

func TestEngine_RejectsInvalidSnapshots(t *testing.T) {
	eng := newTestEngine(t)

	cases := map[string]func(*types.MarketSnapshot){
		"missing symbol": func(s *types.MarketSnapshot) { s.Symbol = "" },
		"bad price":      func(s *types.MarketSnapshot) { s.CurrentPrice = 0 },
		"bad entry":      func(s *types.MarketSnapshot) { s.Position.EntryPrice = -1 },
		"bad volume":     func(s *types.MarketSnapshot) { s.Position.Volume = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			snap := baseSnapshot()
			mutate(snap)
			_, err := eng.Evaluate(context.Background(), snap)
			assert.Error(t, err)
		})
	}
}

func TestEngine_PositionClosedResetsState(t *testing.T) {
	eng := newTestEngine(t)
	snap := baseSnapshot()
	_, err := eng.Evaluate(context.Background(), snap)
	require.NoError(t, err)

	eng.PositionClosed(context.Background(), snap.Symbol)

	_, ok := eng.peaks.Peek(context.Background(), snap.Symbol)
	assert.False(t, ok)
	_, ok = eng.guard.Last(snap.Symbol)
	assert.False(t, ok)
}
