package churn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"evcore/internal/types"
)

func TestGuard_RecordsNonHoldActions(t *testing.T) {
	g := NewGuard()
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	g.Record("btcusdt", types.ActionScaleOut25, 0.42, at)

	st, ok := g.Last("BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, types.ActionScaleOut25, st.LastAction)
	assert.Equal(t, at, st.LastActionTime)
	assert.InDelta(t, 0.42, st.LastContinuationProb, 1e-9)
}

func TestGuard_HoldLeavesNoTrace(t *testing.T) {
	g := NewGuard()
	g.Record("BTCUSDT", types.ActionHold, 0.6, time.Now())

	_, ok := g.Last("BTCUSDT")
	assert.False(t, ok)
}

func TestGuard_ClearRemovesState(t *testing.T) {
	g := NewGuard()
	g.Record("BTCUSDT", types.ActionClose, 0.3, time.Now())
	g.Clear("btcusdt")

	_, ok := g.Last("BTCUSDT")
	assert.False(t, ok)
}
