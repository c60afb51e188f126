package types

import (
	"strings"
	"time"

	"evcore/internal/pkg/mathutil"
)

// 中文说明：
// MarketSnapshot 是评估引擎的唯一输入：一个持仓 + 多周期指标快照。
// 所有字段反序列化后都有明确默认值，引擎内部不再做 "字段是否存在" 判断。

// Side 持仓方向。
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Direction 返回方向系数：多头 +1，空头 -1。
func (s Side) Direction() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Timeframe 周期标识。
type Timeframe string

const (
	TFM1  Timeframe = "M1"
	TFM5  Timeframe = "M5"
	TFM15 Timeframe = "M15"
	TFM30 Timeframe = "M30"
	TFH1  Timeframe = "H1"
	TFH4  Timeframe = "H4"
	TFD1  Timeframe = "D1"
)

// AllTimeframes 快照携带的全部周期（由小到大）。
var AllTimeframes = []Timeframe{TFM1, TFM5, TFM15, TFM30, TFH1, TFH4, TFD1}

// DecisionTimeframes 参与评分的周期：M1/M5 噪音太大，持仓周期内不使用。
var DecisionTimeframes = []Timeframe{TFM15, TFM30, TFH1, TFH4, TFD1}

// HigherTimeframes 用于趋势支撑度计算的高周期。
var HigherTimeframes = []Timeframe{TFH1, TFH4, TFD1}

// MLDirection ML 模型给出的方向预测。
type MLDirection string

const (
	MLBuy  MLDirection = "BUY"
	MLSell MLDirection = "SELL"
	MLHold MLDirection = "HOLD"
)

// TimeframeIndicators 单个周期的指标集。
type TimeframeIndicators struct {
	Trend       float64 `json:"trend"`        // 0~1，1=完全看多
	Momentum    float64 `json:"momentum"`     // -1~1
	RSI         float64 `json:"rsi"`          // 0~100，缺省 50
	MACD        float64 `json:"macd"`         // 原始值（价格单位）
	BBPosition  float64 `json:"bb_position"`  // 布林带位置 0~1，缺省 0.5
	Volatility  float64 `json:"volatility"`   // ATR（价格单位）
	ADX         float64 `json:"adx"`          // 趋势强度，缺省 20
	VolumeTrend float64 `json:"volume_trend"` // -1~1，量能趋势
}

// PositionState 当前持仓。
type PositionState struct {
	Side          Side    `json:"side"`
	Volume        float64 `json:"volume"`
	MaxVolume     float64 `json:"max_volume,omitempty"` // 上游仓位模块给出的规模上限
	EntryPrice    float64 `json:"entry_price"`
	AgeMinutes    float64 `json:"age_minutes"`
	StopLoss      float64 `json:"stop_loss,omitempty"`
	TakeProfit    float64 `json:"take_profit,omitempty"`
	Swap          float64 `json:"swap,omitempty"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// MLPrediction ML 推理服务的方向输出。
type MLPrediction struct {
	Direction  MLDirection `json:"direction"`
	Confidence float64     `json:"confidence"` // 0~100
}

// Agrees 返回预测是否与持仓方向一致。
func (p MLPrediction) Agrees(side Side) bool {
	switch p.Direction {
	case MLBuy:
		return side == SideLong
	case MLSell:
		return side == SideShort
	}
	return false
}

// Opposes 返回预测是否与持仓方向相反。
func (p MLPrediction) Opposes(side Side) bool {
	switch p.Direction {
	case MLBuy:
		return side == SideShort
	case MLSell:
		return side == SideLong
	}
	return false
}

// AlignmentMetrics 跨周期一致性。
type AlignmentMetrics struct {
	AlignedTimeframes int     `json:"aligned_timeframes"` // 与持仓同向的高周期数量
	Score             float64 `json:"score"`              // 0~1
}

// VolumeFlowMetrics 量能与订单流。
type VolumeFlowMetrics struct {
	Divergence         float64 `json:"divergence"`           // 0~1，价涨量缩等背离强度
	OrderFlowImbalance float64 `json:"order_flow_imbalance"` // -1~1，正值=买压
	HTFVolumeTrend     float64 `json:"htf_volume_trend"`     // -1~1
}

// StructureMetrics 市场结构（关键位）。
type StructureMetrics struct {
	NearestSupport    float64 `json:"nearest_support,omitempty"`
	NearestResistance float64 `json:"nearest_resistance,omitempty"`
	Bias              float64 `json:"bias"` // -1~1，正值=结构偏多
}

// AccountRisk 账户与外部风控额度（FTMO 类限制的量化表达）。
type AccountRisk struct {
	Balance          float64 `json:"balance"`
	DailyPnL         float64 `json:"daily_pnl"`
	TotalDrawdown    float64 `json:"total_drawdown"`
	MaxDailyLoss     float64 `json:"max_daily_loss"`
	MaxTotalDrawdown float64 `json:"max_total_drawdown"`
}

// RegimeMetrics 跨资产宏观状态。
type RegimeMetrics struct {
	RiskAppetite   float64 `json:"risk_appetite"`   // -1~1，正值=risk-on
	DollarStrength float64 `json:"dollar_strength"` // -1~1
}

// NewsTiming 事件窗口。
type NewsTiming struct {
	MinutesUntilEvent float64 `json:"minutes_until_event"` // 缺省 1e9（无事件）
	Imminent          bool    `json:"imminent"`
}

// MarketSnapshot 评估输入全集。
type MarketSnapshot struct {
	Symbol       string                              `json:"symbol"`
	CurrentPrice float64                             `json:"current_price"`
	Timestamp    time.Time                           `json:"timestamp"`
	Position     PositionState                       `json:"position"`
	Timeframes   map[Timeframe]*TimeframeIndicators `json:"timeframes"`
	Alignment    AlignmentMetrics                    `json:"alignment"`
	VolumeFlow   VolumeFlowMetrics                   `json:"volume_flow"`
	Structure    StructureMetrics                    `json:"structure"`
	ML           MLPrediction                        `json:"ml_prediction"`
	Account      AccountRisk                         `json:"account"`
	Regime       RegimeMetrics                       `json:"regime"`
	News         NewsTiming                          `json:"news"`
}

// DefaultIndicators 返回缺失周期使用的中性指标。
func DefaultIndicators() *TimeframeIndicators {
	return &TimeframeIndicators{
		Trend:      0.5,
		RSI:        50,
		BBPosition: 0.5,
		ADX:        20,
	}
}

// TF 返回指定周期的指标；缺失时返回中性默认，调用方永远拿到非 nil。
func (s *MarketSnapshot) TF(tf Timeframe) *TimeframeIndicators {
	if s.Timeframes != nil {
		if ind := s.Timeframes[tf]; ind != nil {
			return ind
		}
	}
	return DefaultIndicators()
}

// ProfitPct 当前浮盈占账户净值的百分比。
func (s *MarketSnapshot) ProfitPct() float64 {
	return mathutil.SafeDiv(s.Position.UnrealizedPnL, s.Account.Balance, 0) * 100
}

// SizeRatio 当前仓位相对上限的占比（0~1，上限未知时按 0.5 处理）。
func (s *MarketSnapshot) SizeRatio() float64 {
	if s.Position.MaxVolume <= 0 {
		return 0.5
	}
	return mathutil.Clamp01(s.Position.Volume / s.Position.MaxVolume)
}

// HTFDegenerate 判断高周期趋势是否全部为 0（上游断数据的标记值）。
// 命中时调用方必须直接 HOLD，不进入 EV 计算。
func (s *MarketSnapshot) HTFDegenerate() bool {
	for _, tf := range HigherTimeframes {
		if s.Timeframes != nil {
			if ind := s.Timeframes[tf]; ind != nil && ind.Trend != 0 {
				return false
			}
		}
	}
	return true
}

// SupportFor 返回某周期趋势对持仓方向的支持度（0~1）。
func (ind *TimeframeIndicators) SupportFor(side Side) float64 {
	if side == SideShort {
		return mathutil.Clamp01(1 - ind.Trend)
	}
	return mathutil.Clamp01(ind.Trend)
}

// IsWeekendWindow 判断是否处于周五下午的周末缺口风险窗口。
func (s *MarketSnapshot) IsWeekendWindow() bool {
	ts := s.Timestamp
	if ts.IsZero() {
		return false
	}
	utc := ts.UTC()
	return utc.Weekday() == time.Friday && utc.Hour() >= 14
}

// NormalizeSymbol 统一符号大小写。
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
