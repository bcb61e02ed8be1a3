// Package app 提供 qsession 应用编排层
//
// app 包负责：
// - fx 模块组装（配置、加密提供者、指标、交换协调器）
// - 单监听端服务的生命周期
// - 多对多演示场景
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-qsession/config"
	"github.com/dep2p/go-qsession/internal/core/exchange"
	"github.com/dep2p/go-qsession/internal/core/listener"
	"github.com/dep2p/go-qsession/internal/core/metrics"
	"github.com/dep2p/go-qsession/internal/core/provider"
	"github.com/dep2p/go-qsession/pkg/lib/log"
)

var logger = log.Logger("app")

// Module 提供公共依赖
//
//   - *config.Config
//   - provider.Provider（已安装的进程级加密提供者）
//   - *prometheus.Registry
//   - *metrics.Metrics
//   - *exchange.Coordinator
//   - *Runner
//
// 需要身份的构造函数都依赖 provider.Provider，保证安装先于构造。
func Module(cfg *config.Config) fx.Option {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return fx.Module("qsession",
		fx.Supply(cfg),
		fx.Provide(
			installProvider,
			prometheus.NewRegistry,
			newMetrics,
			newCoordinator,
			NewRunner,
		),
		fx.Invoke(func(provider.Provider) {}),
	)
}

// ServeModule 在 Module 之上运行单个监听端
//
// 监听端在 OnStart 绑定并开始服务，在 OnStop 关闭；配置了指标地址时
// 同时导出 /metrics。
func ServeModule() fx.Option {
	return fx.Module("serve",
		fx.Provide(newServedListener),
		fx.Invoke(func(*listener.Listener) {}),
		fx.Invoke(registerMetricsServer),
	)
}

// NewApp 组装 fx 应用
//
// verbose 为 true 时 fx 生命周期事件经 zap 开发 logger 输出。
func NewApp(cfg *config.Config, verbose bool, opts ...fx.Option) *fx.App {
	all := append([]fx.Option{Module(cfg)}, opts...)
	all = append(all, fx.WithLogger(func() fxevent.Logger {
		return &fxevent.ZapLogger{Logger: fxZapLogger(verbose)}
	}))
	return fx.New(all...)
}

func fxZapLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func installProvider() (provider.Provider, error) {
	if err := provider.Install(provider.ECDSAP256()); err != nil {
		return provider.Provider{}, err
	}
	return provider.Current()
}

func newMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

func newCoordinator(m *metrics.Metrics) *exchange.Coordinator {
	return exchange.NewCoordinator(exchange.WithMetrics(m))
}

// newServedListener 创建监听端并挂到 fx 生命周期上
func newServedListener(lc fx.Lifecycle, _ provider.Provider, cfg *config.Config, m *metrics.Metrics) (*listener.Listener, error) {
	l, err := listener.New(listener.ConfigFromUnified(cfg), listener.WithMetrics(m))
	if err != nil {
		return nil, err
	}

	serveCtx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if _, err := l.Listen(cfg.Listener.Addr); err != nil {
				return err
			}
			go func() { served <- l.Serve(serveCtx) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case err := <-served:
				if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, listener.ErrClosed) {
					logger.Warn("监听端服务异常结束", "error", err)
				}
			case <-ctx.Done():
			}
			return l.Close()
		},
	})
	return l, nil
}

// registerMetricsServer 在配置了地址时导出 /metrics
func registerMetricsServer(lc fx.Lifecycle, cfg *config.Config, reg *prometheus.Registry) {
	if cfg.Metrics.Addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry: reg,
	}))
	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Info("指标导出已启动", "addr", ln.Addr().String())
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Warn("指标导出异常结束", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
