package config

import "strings"

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":8790"
	}
	if c.Peaks.Backend == "" {
		c.Peaks.Backend = "file"
	}
	if c.Peaks.Path == "" {
		if strings.EqualFold(c.Peaks.Backend, "sqlite") {
			c.Peaks.Path = "data/peaks.db"
		} else {
			c.Peaks.Path = "data/peaks.json"
		}
	}
	if c.DecisionLog.Path == "" {
		c.DecisionLog.Path = "data/decisions.db"
	}
	if c.Market.Exchange == "" {
		c.Market.Exchange = "binance"
	}
	if c.Market.CandleLimit <= 0 {
		c.Market.CandleLimit = 200
	}
	if c.Report.OutputDir == "" {
		c.Report.OutputDir = "data/reports"
	}
}
