package app

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"tradedesk/internal/config"
	"tradedesk/internal/desk"
	"tradedesk/internal/live"
	"tradedesk/internal/logger"
	apihttp "tradedesk/internal/transport/http/api"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP、实时推送与补账循环。
type App struct {
	cfg     *config.Config
	cfgPath string
	desk    *desk.Desk
	hub     *live.Hub
	feed    live.Feed
	http    *apihttp.Server
	closers []func() error
	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。cfgPath 非空时运行期间会监听配置变更。
func NewApp(cfg *config.Config, cfgPath string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	a, err := buildAppWithWire(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	a.cfgPath = strings.TrimSpace(cfgPath)
	return a, nil
}

// Run 启动所有后台组件，直到 ctx 结束或任一组件失败。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil || a.desk == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()
	if a.Summary != nil {
		a.Summary.Print()
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return a.desk.RunReconciler(ctx)
	})

	var in <-chan live.Message
	if a.feed != nil {
		in = live.Bridge(ctx, a.feed, a.cfg.Live.ObserverBuffer)
	}
	group.Go(func() error {
		return a.hub.Run(ctx, in)
	})

	if a.cfgPath != "" {
		group.Go(func() error {
			err := config.Watch(ctx, a.cfgPath, a.applyReload)
			if err != nil && ctx.Err() == nil {
				logger.Warnf("config watch stopped: %v", err)
			}
			return nil
		})
	}

	err := group.Wait()
	a.desk.Sessions().Close(context.Background())
	return err
}

// applyReload 只热更新日志级别；其余配置需要重启生效。
func (a *App) applyReload(next *config.Config) {
	if next.App.LogLevel != logger.Level() {
		logger.SetLevel(next.App.LogLevel)
		logger.Infof("log level changed to %s", logger.Level())
	}
}

// Close releases stores in reverse open order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warnf("close: %v", err)
		}
	}
	a.closers = nil
}

// Desk exposes the desk for tests and tooling.
func (a *App) Desk() *desk.Desk {
	if a == nil {
		return nil
	}
	return a.desk
}
