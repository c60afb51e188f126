package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"evcore/internal/market"
	"evcore/internal/pkg/mathutil"
	"evcore/internal/types"
)

// 中文说明：
// SnapshotBuilder 是宿主侧的可选路径：持仓字段由调用方给出，
// 多周期指标、跨周期一致性、量能背离与结构位由交易所 K 线现算。
// ML 预测、宏观与新闻字段这里不产出，留默认值（HOLD / 无事件）。

var tfIntervals = map[types.Timeframe]string{
	types.TFM1:  "1m",
	types.TFM5:  "5m",
	types.TFM15: "15m",
	types.TFM30: "30m",
	types.TFH1:  "1h",
	types.TFH4:  "4h",
	types.TFD1:  "1d",
}

// BuildInput 调用方提供的非行情部分。
type BuildInput struct {
	Symbol   string
	Position types.PositionState
	Account  types.AccountRisk
	ML       types.MLPrediction
	News     types.NewsTiming
	Regime   types.RegimeMetrics
}

// SnapshotBuilder 从行情源拼装 MarketSnapshot。
type SnapshotBuilder struct {
	source market.Source
	limit  int
}

func NewSnapshotBuilder(source market.Source, candleLimit int) *SnapshotBuilder {
	if candleLimit < minCandlesForIndicators {
		candleLimit = 200
	}
	return &SnapshotBuilder{source: source, limit: candleLimit}
}

// Build 并发拉取全部周期的 K 线并计算指标。
// 任一周期拉取失败即整体失败：宁可不评估，也不用半残快照评估。
func (b *SnapshotBuilder) Build(ctx context.Context, in BuildInput) (*types.MarketSnapshot, error) {
	symbol := types.NormalizeSymbol(in.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("pipeline: empty symbol")
	}

	var mu sync.Mutex
	series := make(map[types.Timeframe][]market.Candle, len(tfIntervals))

	g, gctx := errgroup.WithContext(ctx)
	for tf, interval := range tfIntervals {
		tf, interval := tf, interval
		g.Go(func() error {
			candles, err := b.source.FetchHistory(gctx, symbol, interval, b.limit)
			if err != nil {
				return fmt.Errorf("pipeline: fetch %s %s: %w", symbol, interval, err)
			}
			mu.Lock()
			series[tf] = candles
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &types.MarketSnapshot{
		Symbol:     symbol,
		Timestamp:  time.Now().UTC(),
		Position:   in.Position,
		Account:    in.Account,
		ML:         in.ML,
		News:       in.News,
		Regime:     in.Regime,
		Timeframes: make(map[types.Timeframe]*types.TimeframeIndicators, len(tfIntervals)),
	}
	if snap.News.MinutesUntilEvent == 0 && !snap.News.Imminent {
		snap.News.MinutesUntilEvent = 1e9
	}
	for tf, candles := range series {
		snap.Timeframes[tf] = ComputeIndicators(candles)
	}

	h1 := series[types.TFH1]
	if len(h1) > 0 {
		snap.CurrentPrice = h1[len(h1)-1].Close
	}
	if snap.CurrentPrice <= 0 {
		return nil, fmt.Errorf("pipeline: no price for %s", symbol)
	}

	snap.Alignment = buildAlignment(snap, in.Position.Side)
	snap.VolumeFlow = buildVolumeFlow(snap, series)
	snap.Structure = buildStructure(series[types.TFH4], snap.CurrentPrice)
	return snap, nil
}

// buildAlignment 统计与持仓同向的高周期数量。
func buildAlignment(snap *types.MarketSnapshot, side types.Side) types.AlignmentMetrics {
	aligned := 0
	total := 0.0
	for _, tf := range types.HigherTimeframes {
		support := snap.TF(tf).SupportFor(side)
		total += support
		if support >= 0.6 {
			aligned++
		}
	}
	return types.AlignmentMetrics{
		AlignedTimeframes: aligned,
		Score:             mathutil.Clamp01(total / float64(len(types.HigherTimeframes))),
	}
}

// buildVolumeFlow H1 价量背离 + 高周期量能趋势。订单流没有逐笔数据，
// 用近 20 根 H1 的阳线量占比近似买压。
func buildVolumeFlow(snap *types.MarketSnapshot, series map[types.Timeframe][]market.Candle) types.VolumeFlowMetrics {
	flow := types.VolumeFlowMetrics{}
	h1 := snap.TF(types.TFH1)
	// 价格动能与量能趋势反向即背离。
	if h1.Momentum*h1.VolumeTrend < 0 {
		flow.Divergence = mathutil.Clamp01(mathutil.Finite(h1.Momentum*h1.VolumeTrend*-1, 0))
	}
	flow.HTFVolumeTrend = (snap.TF(types.TFH4).VolumeTrend + snap.TF(types.TFD1).VolumeTrend) / 2

	candles := series[types.TFH1]
	if n := len(candles); n >= 20 {
		buy, total := 0.0, 0.0
		for _, c := range candles[n-20:] {
			total += c.Volume
			if c.Close >= c.Open {
				buy += c.Volume
			}
		}
		flow.OrderFlowImbalance = mathutil.Clamp(mathutil.SafeDiv(buy, total, 0.5)*2-1, -1, 1)
	}
	return flow
}

// buildStructure H4 摆动点作为最近支撑/阻力。
func buildStructure(candles []market.Candle, price float64) types.StructureMetrics {
	support, resistance := swingLevels(candles, price)
	st := types.StructureMetrics{NearestSupport: support, NearestResistance: resistance}
	// 离支撑近偏多，离阻力近偏空。
	if support > 0 && resistance > 0 && resistance > support {
		mid := (support + resistance) / 2
		st.Bias = mathutil.Clamp((mid-price)/(resistance-support)*2, -1, 1)
	}
	return st
}
