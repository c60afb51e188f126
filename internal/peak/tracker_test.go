package peak

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcore/internal/types"
)

func peakSnapshot(profitPnL, volume float64) *types.MarketSnapshot {
	return &types.MarketSnapshot{
		Symbol:       "EURUSD",
		CurrentPrice: 1.1000,
		Timestamp:    time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		Position: types.PositionState{
			Side:          types.SideLong,
			Volume:        volume,
			EntryPrice:    1.0950,
			UnrealizedPnL: profitPnL,
		},
		Account: types.AccountRisk{Balance: 10000},
	}
}

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "peaks.json"))
	require.NoError(t, err)
	return NewTracker(store)
}

func TestTracker_PeakIsMonotonic(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	rec := tr.Observe(ctx, peakSnapshot(100, 1.0), 0.05) // 1% 账户
	assert.InDelta(t, 1.0, rec.PeakProfitPct, 1e-9)

	rec = tr.Observe(ctx, peakSnapshot(150, 1.0), 0.05)
	assert.InDelta(t, 1.5, rec.PeakProfitPct, 1e-9)

	// 回撤不拉低峰值。
	rec = tr.Observe(ctx, peakSnapshot(80, 1.0), 0.05)
	assert.InDelta(t, 1.5, rec.PeakProfitPct, 1e-9)
	assert.InDelta(t, (1.5-0.8)/1.5, rec.GivebackRatio(0.8), 1e-9)
}

func TestTracker_VolumeDropCreditsRealizedProfit(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	tr.Observe(ctx, peakSnapshot(200, 1.0), 0.05) // 峰值 2%

	// 半仓止盈：缩减 50% ≥ 5% 阈值 → 记入 1%，峰值重置到当前。
	rec := tr.Observe(ctx, peakSnapshot(90, 0.5), 0.05)
	assert.InDelta(t, 1.0, rec.RealizedProfitPct, 1e-9)
	assert.InDelta(t, 0.9, rec.PeakProfitPct, 1e-9)
	assert.InDelta(t, 0.5, rec.VolumeAtPeak, 1e-9)

	// 再次小幅缩减继续累计。
	rec = tr.Observe(ctx, peakSnapshot(50, 0.25), 0.05)
	assert.InDelta(t, 1.0+0.9*0.5, rec.RealizedProfitPct, 1e-9)
}

func TestTracker_SmallVolumeWiggleDoesNotReset(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	tr.Observe(ctx, peakSnapshot(200, 1.0), 0.05)
	rec := tr.Observe(ctx, peakSnapshot(150, 0.97), 0.05) // 3% 缩减 < 阈值

	assert.Zero(t, rec.RealizedProfitPct)
	assert.InDelta(t, 2.0, rec.PeakProfitPct, 1e-9)
}

func TestTracker_ForgetRemovesRecord(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	tr.Observe(ctx, peakSnapshot(100, 1.0), 0.05)
	tr.Forget(ctx, "eurusd") // 大小写不敏感

	_, ok := tr.Peek(ctx, "EURUSD")
	assert.False(t, ok)
	assert.Empty(t, tr.All())
}

func TestTracker_SurvivesRestartThroughRepository(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peaks.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)
	tr := NewTracker(store)
	tr.Observe(context.Background(), peakSnapshot(150, 1.0), 0.05)

	// 新实例从同一文件预热。
	store2, err := NewFileStore(path)
	require.NoError(t, err)
	tr2 := NewTracker(store2)

	rec, ok := tr2.Peek(context.Background(), "EURUSD")
	require.True(t, ok)
	assert.InDelta(t, 1.5, rec.PeakProfitPct, 1e-9)
}

func TestFileStore_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peaks.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	records, err := store.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "peaks.json"))
	require.NoError(t, err)
	ctx := context.Background()

	rec := types.PeakRecord{Symbol: "btcusdt", PeakProfitPct: 2.5, PeakPrice: 51000, VolumeAtPeak: 0.3}
	require.NoError(t, store.Put(ctx, rec))

	got, err := store.Get(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.InDelta(t, 2.5, got.PeakProfitPct, 1e-9)

	_, err = store.Get(ctx, "UNKNOWN")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTracker_WorksWithoutRepository(t *testing.T) {
	tr := NewTracker(nil)
	rec := tr.Observe(context.Background(), peakSnapshot(100, 1.0), 0.05)
	assert.InDelta(t, 1.0, rec.PeakProfitPct, 1e-9)
}
