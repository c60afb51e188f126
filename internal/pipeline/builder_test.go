package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcore/internal/market"
	"evcore/internal/types"
)

// fakeSource 按周期返回预置 K 线，可指定某个周期失败。
type fakeSource struct {
	candles map[string][]market.Candle
	failOn  string
}

func (f *fakeSource) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if interval == f.failOn {
		return nil, errors.New("rate limited")
	}
	if c, ok := f.candles[interval]; ok {
		return c, nil
	}
	return trendingCandles(100, 100, 0.2), nil
}

func buildTestInput() BuildInput {
	return BuildInput{
		Symbol: "btcusdt",
		Position: types.PositionState{
			Side:       types.SideLong,
			EntryPrice: 100,
			Volume:     0.1,
			MaxVolume:  0.2,
		},
		Account: types.AccountRisk{Balance: 10000},
		ML:      types.MLPrediction{Direction: types.MLBuy, Confidence: 60},
	}
}

func TestBuild_AssemblesSnapshot(t *testing.T) {
	src := &fakeSource{candles: map[string][]market.Candle{}}
	b := NewSnapshotBuilder(src, 200)

	snap, err := b.Build(context.Background(), buildTestInput())
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Len(t, snap.Timeframes, len(tfIntervals))
	assert.Greater(t, snap.CurrentPrice, 0.0, "现价取自 H1 收盘")
	assert.False(t, snap.Timestamp.IsZero())
	assert.Equal(t, types.SideLong, snap.Position.Side)
	// 无事件时倒计时给极大值，避免误触新闻风险溢价。
	assert.Greater(t, snap.News.MinutesUntilEvent, 1e8)
	// 全周期同涨，对齐数应拉满。
	assert.Equal(t, len(types.HigherTimeframes), snap.Alignment.AlignedTimeframes)
}

func TestBuild_AnyTimeframeFailureFailsBuild(t *testing.T) {
	src := &fakeSource{failOn: "4h"}
	b := NewSnapshotBuilder(src, 200)

	_, err := b.Build(context.Background(), buildTestInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "4h")
}

func TestBuild_EmptySymbolRejected(t *testing.T) {
	b := NewSnapshotBuilder(&fakeSource{}, 200)
	_, err := b.Build(context.Background(), BuildInput{})
	require.Error(t, err)
}

func TestNewSnapshotBuilder_LimitFloor(t *testing.T) {
	b := NewSnapshotBuilder(&fakeSource{}, 10)
	assert.Equal(t, 200, b.limit)
}
