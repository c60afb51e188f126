package app

import (
	"context"
	"fmt"
	"time"

	"evcore/internal/calibration"
	"evcore/internal/churn"
	evcfg "evcore/internal/config"
	"evcore/internal/engine"
	"evcore/internal/gateway/binance"
	"evcore/internal/logger"
	"evcore/internal/peak"
	"evcore/internal/pipeline"
	"evcore/internal/report"
	"evcore/internal/store/decisionlog"
	evalhttp "evcore/internal/transport/http/eval"
)

// AppBuilder 把配置逐步装配成可运行的 App。
// 构造函数字段可在测试里替换，避免真连交易所/落盘。
type AppBuilder struct {
	cfg *evcfg.Config

	peakRepoFn func(evcfg.PeaksConfig) (peak.Repository, error)
	logsFn     func(evcfg.DecisionLogConfig) (*decisionlog.DecisionLogStore, error)
	builderFn  func(evcfg.MarketConfig) *pipeline.SnapshotBuilder
}

type AppBuilderOption func(*AppBuilder)

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

func provideAppBuilder(cfg *evcfg.Config) *AppBuilder {
	return NewAppBuilder(cfg)
}

func provideAppFromBuilder(b appBuilderDeps, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}

func NewAppBuilder(cfg *evcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		peakRepoFn: buildPeakRepository,
		logsFn:     buildDecisionLog,
		builderFn:  buildSnapshotBuilder,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// WithPeakRepository 替换峰值仓储（测试用）。
func WithPeakRepository(repo peak.Repository) AppBuilderOption {
	return func(b *AppBuilder) {
		b.peakRepoFn = func(evcfg.PeaksConfig) (peak.Repository, error) { return repo, nil }
	}
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	registry, err := calibration.NewRegistry(cfg.Calibration.Path)
	if err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}
	logger.Infof("✓ 校准参数已加载 version=%d", registry.Snapshot().Version)

	repo, err := b.peakRepoFn(cfg.Peaks)
	if err != nil {
		return nil, fmt.Errorf("peak repository: %w", err)
	}
	tracker := peak.NewTracker(repo)

	eng, err := engine.NewEngine(engine.Deps{
		Calibration: registry,
		Peaks:       tracker,
		Guard:       churn.NewGuard(),
	})
	if err != nil {
		return nil, err
	}

	var logs *decisionlog.DecisionLogStore
	if cfg.DecisionLog.Enabled {
		logs, err = b.logsFn(cfg.DecisionLog)
		if err != nil {
			return nil, fmt.Errorf("decision log: %w", err)
		}
		logger.Infof("✓ 决策日志: %s", cfg.DecisionLog.Path)
	}

	var builder *pipeline.SnapshotBuilder
	if cfg.Market.Enabled {
		builder = b.builderFn(cfg.Market)
		logger.Infof("✓ 快照构建器: %s testnet=%v symbols=%v", cfg.Market.Exchange, cfg.Market.Testnet, cfg.Market.Symbols)
	}

	var reporter *report.Reporter
	if cfg.Report.Enabled {
		reporter = report.NewReporter(cfg.Report.OutputDir, cfg.Report.Capture)
	}

	router := &evalhttp.Router{
		Engine:      eng,
		Peaks:       tracker,
		Calibration: registry,
		Logs:        logs,
		Builder:     builder,
		Reporter:    reporter,
	}
	server, err := evalhttp.NewServer(evalhttp.ServerConfig{Addr: cfg.App.HTTPAddr, Router: router})
	if err != nil {
		return nil, err
	}

	return &App{cfg: cfg, server: server, peakRepo: repo, logs: logs}, nil
}

func buildPeakRepository(cfg evcfg.PeaksConfig) (peak.Repository, error) {
	switch cfg.Backend {
	case "sqlite":
		return peak.NewGormStore(cfg.Path)
	default:
		return peak.NewFileStore(cfg.Path)
	}
}

func buildDecisionLog(cfg evcfg.DecisionLogConfig) (*decisionlog.DecisionLogStore, error) {
	return decisionlog.New(cfg.Path)
}

func buildSnapshotBuilder(cfg evcfg.MarketConfig) *pipeline.SnapshotBuilder {
	source := binance.New(binance.Config{
		Testnet:     cfg.Testnet,
		HTTPTimeout: 15 * time.Second,
	})
	return pipeline.NewSnapshotBuilder(source, cfg.CandleLimit)
}
