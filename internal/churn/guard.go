package churn

import (
	"sync"
	"time"

	"evcore/internal/types"
)

// 中文说明：
// Guard 保存每个 symbol 最近一次非 HOLD 动作，供 DecisionSelector 做
// 滞回判断（防止模型抖动来回翻转）。纯内存，持仓关闭时清除。

// Guard 反churn 状态仓。
type Guard struct {
	mu     sync.Mutex
	states map[string]types.ActionState
}

// NewGuard 构造空状态仓。
func NewGuard() *Guard {
	return &Guard{states: make(map[string]types.ActionState)}
}

// Last 返回最近一次非 HOLD 动作状态。
func (g *Guard) Last(symbol string) (types.ActionState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.states[types.NormalizeSymbol(symbol)]
	return st, ok
}

// Record 记录一次动作；HOLD 不落状态。
func (g *Guard) Record(symbol string, action types.Action, continuation float64, at time.Time) {
	if action == types.ActionHold {
		return
	}
	symbol = types.NormalizeSymbol(symbol)
	if at.IsZero() {
		at = time.Now()
	}
	g.mu.Lock()
	g.states[symbol] = types.ActionState{
		Symbol:               symbol,
		LastAction:           action,
		LastActionTime:       at,
		LastContinuationProb: continuation,
	}
	g.mu.Unlock()
}

// Clear 持仓关闭后清除状态。
func (g *Guard) Clear(symbol string) {
	g.mu.Lock()
	delete(g.states, types.NormalizeSymbol(symbol))
	g.mu.Unlock()
}
