package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalSnapshot = `{
  "symbol": "xauusd",
  "current_price": 2450.5,
  "position": {"side": "LONG", "volume": 0.1, "entry_price": 2440.0, "unrealized_pnl": 105}
}`

func TestDecodeSnapshot_MinimalPayloadGetsDefaults(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(minimalSnapshot))
	require.NoError(t, err)

	assert.Equal(t, "XAUUSD", snap.Symbol)
	assert.Equal(t, SideLong, snap.Position.Side)

	// 缺失周期：中性默认 + trend=0 标记数据缺口。
	m15 := snap.TF(TFM15)
	assert.Zero(t, m15.Trend)
	assert.InDelta(t, 50, m15.RSI, 1e-9)
	assert.InDelta(t, 0.5, m15.BBPosition, 1e-9)
	assert.InDelta(t, 20, m15.ADX, 1e-9)

	// 缺失 ML/新闻的文档化默认。
	assert.Equal(t, MLHold, snap.ML.Direction)
	assert.InDelta(t, 50, snap.ML.Confidence, 1e-9)
	assert.InDelta(t, 1e9, snap.News.MinutesUntilEvent, 1e-9)

	// 三个高周期全缺 → 退化短路标记生效。
	assert.True(t, snap.HTFDegenerate())
}

func TestDecodeSnapshot_FullPayload(t *testing.T) {
	payload := `{
	  "symbol": "BTCUSDT",
	  "current_price": 50500,
	  "timestamp": "2026-03-11T10:00:00Z",
	  "position": {"side": "SHORT", "volume": 0.2, "max_volume": 0.5, "entry_price": 51000,
	               "age_minutes": 240, "stop_loss": 51400, "take_profit": 49000, "unrealized_pnl": 100},
	  "timeframes": {
	    "h1": {"trend": 0.3, "momentum": -0.4, "rsi": 41, "volatility": 120},
	    "h4": {"trend": 0.25, "momentum": -0.2, "volatility": 300},
	    "d1": {"trend": 0.35, "volatility": 900}
	  },
	  "volume_flow": {"divergence": 0.4, "order_flow_imbalance": -0.3},
	  "structure": {"nearest_support": 49800, "nearest_resistance": 51200, "bias": -0.4},
	  "ml_prediction": {"direction": "SELL", "confidence": 72},
	  "account": {"balance": 100000, "daily_pnl": -500, "max_daily_loss": 5000},
	  "news": {"minutes_until_event": 45}
	}`
	snap, err := DecodeSnapshot([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, SideShort, snap.Position.Side)
	assert.InDelta(t, 0.3, snap.TF(TFH1).Trend, 1e-9)
	assert.InDelta(t, 41, snap.TF(TFH1).RSI, 1e-9)
	assert.False(t, snap.HTFDegenerate())
	assert.True(t, snap.ML.Opposes(SideLong))
	assert.True(t, snap.ML.Agrees(SideShort))
	assert.InDelta(t, 45, snap.News.MinutesUntilEvent, 1e-9)
	assert.Equal(t, 2026, snap.Timestamp.Year())
}

func TestDecodeSnapshot_Rejections(t *testing.T) {
	cases := map[string]string{
		"empty":          ``,
		"malformed":      `{"symbol": `,
		"missing symbol": `{"current_price": 1, "position": {"volume": 1, "entry_price": 1}}`,
		"zero price":     `{"symbol": "X", "current_price": 0, "position": {"volume": 1, "entry_price": 1}}`,
		"zero volume":    `{"symbol": "X", "current_price": 1, "position": {"volume": 0, "entry_price": 1}}`,
		"zero entry":     `{"symbol": "X", "current_price": 1, "position": {"volume": 1, "entry_price": 0}}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeSnapshot([]byte(payload))
			assert.Error(t, err)
		})
	}
}

func TestSnapshotHelpers(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(minimalSnapshot))
	require.NoError(t, err)
	snap.Account.Balance = 10000

	assert.InDelta(t, 1.05, snap.ProfitPct(), 1e-9)
	// 规模上限未知时按半仓处理。
	assert.InDelta(t, 0.5, snap.SizeRatio(), 1e-9)

	snap.Position.MaxVolume = 0.4
	assert.InDelta(t, 0.25, snap.SizeRatio(), 1e-9)
}

func TestSideAndDirection(t *testing.T) {
	assert.Equal(t, 1.0, SideLong.Direction())
	assert.Equal(t, -1.0, SideShort.Direction())
	assert.Equal(t, SideShort, parseSide("sell"))
	assert.Equal(t, SideLong, parseSide(""))
}
