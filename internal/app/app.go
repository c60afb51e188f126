package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	evcfg "evcore/internal/config"
	"evcore/internal/logger"
	"evcore/internal/peak"
	"evcore/internal/store/decisionlog"
	evalhttp "evcore/internal/transport/http/eval"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务。
type App struct {
	cfg      *evcfg.Config
	server   *evalhttp.Server
	peakRepo peak.Repository
	logs     *decisionlog.DecisionLogStore
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *evcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 服务，阻塞到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.server == nil {
		return fmt.Errorf("http server not initialized")
	}
	logger.Infof("evcore 启动，监听 %s", a.server.Addr())

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer a.Close()
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("eval http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Close 释放持久化资源。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.peakRepo != nil {
		if err := a.peakRepo.Close(); err != nil {
			logger.Warnf("关闭峰值仓储失败: %v", err)
		}
	}
	if a.logs != nil {
		if err := a.logs.Close(); err != nil {
			logger.Warnf("关闭决策日志失败: %v", err)
		}
	}
}
