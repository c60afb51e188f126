package config

import (
	"fmt"
	"strings"
)

func validate(cfg *Config) error {
	switch strings.ToLower(cfg.Peaks.Backend) {
	case "file", "sqlite":
	default:
		return fmt.Errorf("peaks.backend 仅支持 file/sqlite，当前=%s", cfg.Peaks.Backend)
	}
	if cfg.Market.Enabled {
		if !strings.EqualFold(cfg.Market.Exchange, "binance") {
			return fmt.Errorf("market.exchange 仅支持 binance，当前=%s", cfg.Market.Exchange)
		}
		if len(cfg.Market.Symbols) == 0 {
			return fmt.Errorf("market.enabled=true 时 market.symbols 不能为空")
		}
	}
	return nil
}
