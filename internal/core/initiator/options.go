package initiator

import (
	"log/slog"
	"time"

	"github.com/dep2p/go-qsession/config"
	"github.com/dep2p/go-qsession/internal/core/metrics"
)

// Option 发起端选项
type Option func(*options)

type options struct {
	quic        config.QUICConfig
	dialTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func defaultOptions() options {
	return options{
		quic:        config.DefaultQUICConfig(),
		dialTimeout: config.DefaultInitiatorConfig().DialTimeout.Duration(),
	}
}

// WithQUIC 设置 QUIC 传输参数
func WithQUIC(c config.QUICConfig) Option {
	return func(o *options) {
		o.quic = c
	}
}

// WithDialTimeout 设置单次握手超时，0 表示只受调用方 ctx 约束
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = d
	}
}

// WithMetrics 注入指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLogger 替换组件日志
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// FromConfig 从统一配置生成选项
func FromConfig(cfg *config.Config) []Option {
	if cfg == nil {
		return nil
	}
	return []Option{
		WithQUIC(cfg.QUIC),
		WithDialTimeout(cfg.Initiator.DialTimeout.Duration()),
	}
}
