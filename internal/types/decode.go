package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// 中文说明：
// 快照解码：上游服务字段可能缺失或乱序，这里用 gjson 做宽容提取，
// 缺失字段落到文档化默认值；只有必填字段缺失或 JSON 本身损坏才报错。

const farAwayEventMinutes = 1e9

// DecodeSnapshot 从原始 JSON 解析 MarketSnapshot。
func DecodeSnapshot(raw []byte) (*MarketSnapshot, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, fmt.Errorf("snapshot: json 内容为空")
	}
	if !gjson.Valid(text) {
		return nil, fmt.Errorf("snapshot: json 格式无效")
	}
	if err := ValidateSnapshotJSON(text); err != nil {
		return nil, err
	}
	doc := gjson.Parse(text)

	snap := &MarketSnapshot{
		Symbol:       NormalizeSymbol(doc.Get("symbol").String()),
		CurrentPrice: doc.Get("current_price").Float(),
		Timestamp:    parseTimestamp(doc.Get("timestamp")),
		Timeframes:   make(map[Timeframe]*TimeframeIndicators, len(AllTimeframes)),
	}

	pos := doc.Get("position")
	snap.Position = PositionState{
		Side:          parseSide(pos.Get("side").String()),
		Volume:        pos.Get("volume").Float(),
		MaxVolume:     pos.Get("max_volume").Float(),
		EntryPrice:    pos.Get("entry_price").Float(),
		AgeMinutes:    pos.Get("age_minutes").Float(),
		StopLoss:      pos.Get("stop_loss").Float(),
		TakeProfit:    pos.Get("take_profit").Float(),
		Swap:          pos.Get("swap").Float(),
		UnrealizedPnL: pos.Get("unrealized_pnl").Float(),
	}

	for _, tf := range AllTimeframes {
		node := doc.Get("timeframes." + strings.ToLower(string(tf)))
		if !node.Exists() {
			node = doc.Get("timeframes." + string(tf))
		}
		snap.Timeframes[tf] = decodeIndicators(node)
	}

	align := doc.Get("alignment")
	snap.Alignment = AlignmentMetrics{
		AlignedTimeframes: int(align.Get("aligned_timeframes").Int()),
		Score:             floatOr(align.Get("score"), 0.5),
	}

	vf := doc.Get("volume_flow")
	snap.VolumeFlow = VolumeFlowMetrics{
		Divergence:         vf.Get("divergence").Float(),
		OrderFlowImbalance: vf.Get("order_flow_imbalance").Float(),
		HTFVolumeTrend:     vf.Get("htf_volume_trend").Float(),
	}

	st := doc.Get("structure")
	snap.Structure = StructureMetrics{
		NearestSupport:    st.Get("nearest_support").Float(),
		NearestResistance: st.Get("nearest_resistance").Float(),
		Bias:              st.Get("bias").Float(),
	}

	ml := doc.Get("ml_prediction")
	snap.ML = MLPrediction{
		Direction:  parseMLDirection(ml.Get("direction").String()),
		Confidence: floatOr(ml.Get("confidence"), 50),
	}

	acct := doc.Get("account")
	snap.Account = AccountRisk{
		Balance:          acct.Get("balance").Float(),
		DailyPnL:         acct.Get("daily_pnl").Float(),
		TotalDrawdown:    acct.Get("total_drawdown").Float(),
		MaxDailyLoss:     acct.Get("max_daily_loss").Float(),
		MaxTotalDrawdown: acct.Get("max_total_drawdown").Float(),
	}

	regime := doc.Get("regime")
	snap.Regime = RegimeMetrics{
		RiskAppetite:   regime.Get("risk_appetite").Float(),
		DollarStrength: regime.Get("dollar_strength").Float(),
	}

	news := doc.Get("news")
	snap.News = NewsTiming{
		MinutesUntilEvent: floatOr(news.Get("minutes_until_event"), farAwayEventMinutes),
		Imminent:          news.Get("imminent").Bool(),
	}

	if err := checkRequired(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func decodeIndicators(node gjson.Result) *TimeframeIndicators {
	ind := DefaultIndicators()
	if !node.Exists() || !node.IsObject() {
		// 缺失周期使用中性指标，但 trend 用 0 标记数据缺口，
		// 供 HTFDegenerate 短路判断使用。
		ind.Trend = 0
		return ind
	}
	ind.Trend = node.Get("trend").Float()
	ind.Momentum = node.Get("momentum").Float()
	ind.RSI = floatOr(node.Get("rsi"), 50)
	ind.MACD = node.Get("macd").Float()
	ind.BBPosition = floatOr(node.Get("bb_position"), 0.5)
	ind.Volatility = node.Get("volatility").Float()
	ind.ADX = floatOr(node.Get("adx"), 20)
	ind.VolumeTrend = node.Get("volume_trend").Float()
	return ind
}

func checkRequired(snap *MarketSnapshot) error {
	if snap.Symbol == "" {
		return fmt.Errorf("snapshot: symbol 必填")
	}
	if snap.CurrentPrice <= 0 {
		return fmt.Errorf("snapshot: current_price 需 > 0 (%s)", snap.Symbol)
	}
	if snap.Position.EntryPrice <= 0 {
		return fmt.Errorf("snapshot: position.entry_price 需 > 0 (%s)", snap.Symbol)
	}
	if snap.Position.Volume <= 0 {
		return fmt.Errorf("snapshot: position.volume 需 > 0 (%s)", snap.Symbol)
	}
	return nil
}

func parseSide(raw string) Side {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SHORT", "SELL":
		return SideShort
	default:
		return SideLong
	}
}

func parseMLDirection(raw string) MLDirection {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY", "LONG":
		return MLBuy
	case "SELL", "SHORT":
		return MLSell
	default:
		return MLHold
	}
}

func parseTimestamp(node gjson.Result) time.Time {
	if !node.Exists() {
		return time.Now()
	}
	if node.Type == gjson.Number {
		sec := node.Int()
		if sec > 0 {
			return time.Unix(sec, 0)
		}
		return time.Now()
	}
	if ts, err := time.Parse(time.RFC3339, node.String()); err == nil {
		return ts
	}
	return time.Now()
}

func floatOr(node gjson.Result, fallback float64) float64 {
	if !node.Exists() {
		return fallback
	}
	return node.Float()
}
