package types

import "time"

// Action 候选动作。
type Action string

const (
	ActionHold       Action = "HOLD"
	ActionScaleOut25 Action = "SCALE_OUT_25"
	ActionScaleOut50 Action = "SCALE_OUT_50"
	ActionClose      Action = "CLOSE"
	ActionScaleIn    Action = "SCALE_IN"
	ActionDCA        Action = "DCA"
)

// AllActions 评估顺序固定，保证幂等输出。
var AllActions = []Action{
	ActionHold,
	ActionScaleOut25,
	ActionScaleOut50,
	ActionClose,
	ActionScaleIn,
	ActionDCA,
}

// IsExit 返回动作是否减少敞口。
func (a Action) IsExit() bool {
	switch a {
	case ActionClose, ActionScaleOut25, ActionScaleOut50:
		return true
	}
	return false
}

// SizeFraction 返回动作的平仓比例（加仓动作为 0）。
func (a Action) SizeFraction() float64 {
	switch a {
	case ActionScaleOut25:
		return 0.25
	case ActionScaleOut50:
		return 0.50
	case ActionClose:
		return 1.0
	}
	return 0
}

// ActionCandidate 一个动作及其 EV（占账户净值的百分比）。
type ActionCandidate struct {
	Action       Action  `json:"action"`
	EV           float64 `json:"ev"`
	SizeFraction float64 `json:"size_fraction,omitempty"`
}

// StopType 止损价的来源。
type StopType string

const (
	StopTypeStructure StopType = "STRUCTURE"
	StopTypeATR       StopType = "ATR"
	StopTypeTrailing  StopType = "TRAILING"
	StopTypeBreakeven StopType = "BREAKEVEN"
)

// DynamicStop 止损子结果，执行端在 ShouldModify=true 时无条件应用。
type DynamicStop struct {
	RecommendedStop float64  `json:"recommended_stop"`
	StopType        StopType `json:"stop_type"`
	ShouldModify    bool     `json:"should_modify"`
	TrailingScore   float64  `json:"trailing_score,omitempty"`
	ProtectionScore float64  `json:"protection_score,omitempty"`
}

// Decision 最终输出。
type Decision struct {
	TraceID     string            `json:"trace_id"`
	Symbol      string            `json:"symbol"`
	Action      Action            `json:"action"`
	EV          float64           `json:"ev"`
	Confidence  float64           `json:"confidence"`
	Reasoning   string            `json:"reasoning"`
	Candidates  []ActionCandidate `json:"candidates,omitempty"`
	Stop        DynamicStop       `json:"dynamic_stop"`
	Probability ProbabilityEstimate `json:"probability"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// SetupType 持仓节奏分类，决定止损周期/目标倍数/耐心。
type SetupType string

const (
	SetupScalp SetupType = "SCALP"
	SetupDay   SetupType = "DAY"
	SetupSwing SetupType = "SWING"
)
