package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"evcore/internal/market"
)

const maxHistoryLimit = 1500

// Source 基于 go-binance SDK 实现 market.Source，用于快照构建。
type Source struct {
	client *futures.Client
}

// Config 数据源配置。
type Config struct {
	Testnet     bool
	HTTPTimeout time.Duration
}

// New 构造 Source（只读行情，无需 API key）。
func New(cfg Config) *Source {
	futures.UseTestnet = cfg.Testnet
	client := futures.NewClient("", "")
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	return &Source{client: client}
}

// FetchHistory 拉取历史 K 线。Binance 的 symbol 不带斜杠（ETHUSDT）。
func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	clean := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "/", ""))
	if clean == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	kls, err := s.client.NewKlinesService().
		Symbol(clean).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch klines failed (%s %s): %w", clean, interval, err)
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	return dropUnclosed(out), nil
}

// dropUnclosed 丢掉仍在形成中的最后一根 K 线，指标只吃收盘数据。
func dropUnclosed(candles []market.Candle) []market.Candle {
	if len(candles) == 0 {
		return candles
	}
	last := candles[len(candles)-1]
	if last.CloseTime > time.Now().UnixMilli() {
		return candles[:len(candles)-1]
	}
	return candles
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}
