package binance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"evcore/internal/market"
)

func TestDropUnclosed(t *testing.T) {
	now := time.Now().UnixMilli()
	closed := market.Candle{CloseTime: now - 60_000, Close: 100}
	forming := market.Candle{CloseTime: now + 60_000, Close: 101}

	out := dropUnclosed([]market.Candle{closed, forming})
	assert.Len(t, out, 1)
	assert.InDelta(t, 100, out[0].Close, 1e-9)

	// 全部已收盘，原样返回。
	out = dropUnclosed([]market.Candle{closed})
	assert.Len(t, out, 1)

	assert.Empty(t, dropUnclosed(nil))
}

func TestParseFloat(t *testing.T) {
	assert.InDelta(t, 50123.45, parseFloat(" 50123.45 "), 1e-9)
	assert.Zero(t, parseFloat("not-a-number"))
	assert.Zero(t, parseFloat(""))
}
