package decisionlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcore/internal/types"
)

func newTestStore(t *testing.T) *DecisionLogStore {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "decisions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleDecision(trace, symbol string, at time.Time) *types.Decision {
	return &types.Decision{
		TraceID:    trace,
		Symbol:     symbol,
		Action:     types.ActionScaleOut50,
		EV:         0.42,
		Confidence: 71,
		Reasoning:  "目标超越 + 反转概率抬头",
		Candidates: []types.ActionCandidate{
			{Action: types.ActionHold, EV: 0.10},
			{Action: types.ActionScaleOut50, EV: 0.42, SizeFraction: 0.5},
		},
		Stop: types.DynamicStop{
			RecommendedStop: 50180,
			StopType:        types.StopTypeTrailing,
			ShouldModify:    true,
			TrailingScore:   0.6,
		},
		Probability: types.ProbabilityEstimate{Continuation: 0.35, Reversal: 0.45, Flat: 0.2, ThesisQuality: 0.4},
		GeneratedAt: at,
	}
}

func TestAppendAndRecent_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

	snapshot := []byte(`{"symbol":"BTCUSDT","current_price":50500}`)
	require.NoError(t, store.Append(ctx, sampleDecision("trace-1", "BTCUSDT", at), snapshot))

	records, err := store.Recent(ctx, "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "trace-1", rec.TraceID)
	assert.Equal(t, types.ActionScaleOut50, rec.Action)
	assert.InDelta(t, 0.42, rec.EV, 1e-9)
	assert.InDelta(t, 71, rec.Confidence, 1e-9)
	require.Len(t, rec.Candidates, 2)
	assert.Equal(t, types.ActionHold, rec.Candidates[0].Action)
	require.NotNil(t, rec.Stop)
	assert.Equal(t, types.StopTypeTrailing, rec.Stop.StopType)
	assert.True(t, rec.Stop.ShouldModify)
	assert.InDelta(t, 0.45, rec.Probability.Reversal, 1e-9)
	assert.WithinDuration(t, at, rec.GeneratedAt, time.Second)
}

func TestRecent_OrderAndFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, sampleDecision("t1", "BTCUSDT", base), nil))
	require.NoError(t, store.Append(ctx, sampleDecision("t2", "ETHUSDT", base.Add(time.Minute)), nil))
	require.NoError(t, store.Append(ctx, sampleDecision("t3", "BTCUSDT", base.Add(2*time.Minute)), nil))

	records, err := store.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "t3", records[0].TraceID, "按生成时间倒序")

	btc, err := store.Recent(ctx, "btcusdt", 10)
	require.NoError(t, err)
	require.Len(t, btc, 2)
	for _, r := range btc {
		assert.Equal(t, "BTCUSDT", r.Symbol)
	}

	one, err := store.Recent(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestSnapshot_ByTraceID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

	raw := []byte(`{"symbol":"BTCUSDT","current_price":50500}`)
	require.NoError(t, store.Append(ctx, sampleDecision("with-snap", "BTCUSDT", at), raw))
	require.NoError(t, store.Append(ctx, sampleDecision("no-snap", "BTCUSDT", at), []byte("not-json")))

	got, err := store.Snapshot(ctx, "with-snap")
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(got))

	// 非法 JSON 不落库，查出来为空。
	got, err = store.Snapshot(ctx, "no-snap")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = store.Snapshot(ctx, "missing")
	require.Error(t, err)
}

func TestAppend_NilSafe(t *testing.T) {
	var store *DecisionLogStore
	assert.NoError(t, store.Append(context.Background(), nil, nil))
	recs, err := store.Recent(context.Background(), "", 10)
	assert.NoError(t, err)
	assert.Nil(t, recs)
}

func TestNew_EmptyPathRejected(t *testing.T) {
	_, err := New("  ")
	require.Error(t, err)
}
