package types

import "time"

// PeakRecord 单个 symbol 的浮盈峰值记录。
// 两次评估之间峰值只增不减；检测到仓位缩减 ≥5% 视为发生过部分止盈，
// 已锁定的利润记入 RealizedProfitPct，峰值重置到当前值。
type PeakRecord struct {
	Symbol            string    `json:"symbol"`
	PeakProfitPct     float64   `json:"peak_profit_pct"`
	PeakPrice         float64   `json:"peak_price"`
	VolumeAtPeak      float64   `json:"volume_at_peak"`
	RealizedProfitPct float64   `json:"realized_profit_pct"`
	LastUpdate        time.Time `json:"last_update"`
}

// GivebackRatio 自峰值回吐的比例（峰值非正时为 0）。
func (r PeakRecord) GivebackRatio(currentProfitPct float64) float64 {
	if r.PeakProfitPct <= 0 {
		return 0
	}
	g := (r.PeakProfitPct - currentProfitPct) / r.PeakProfitPct
	if g < 0 {
		return 0
	}
	if g > 1 {
		return 1
	}
	return g
}

// ActionState 反churn 滞回所需的最小状态；只在非 HOLD 动作后创建。
type ActionState struct {
	Symbol               string    `json:"symbol"`
	LastAction           Action    `json:"last_action"`
	LastActionTime       time.Time `json:"last_action_time"`
	LastContinuationProb float64   `json:"last_continuation_prob"`
}
