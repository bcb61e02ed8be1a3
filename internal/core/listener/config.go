package listener

import (
	"log/slog"

	"github.com/dep2p/go-qsession/config"
	"github.com/dep2p/go-qsession/internal/core/metrics"
)

// Config 监听端配置
type Config struct {
	// Hostname 证书绑定的主机名
	Hostname string

	// Name 出现在默认问候中的名称，为空时使用监听端 ID
	Name string

	// MaxStreams 单连接最大并发流数，双向与单向相同
	MaxStreams int

	// QUIC 传输参数
	QUIC config.QUICConfig
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Hostname:   config.DefaultHostname,
		MaxStreams: config.DefaultMaxStreams,
		QUIC:       config.DefaultQUICConfig(),
	}
}

// ConfigFromUnified 从统一配置创建监听端配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		Hostname:   cfg.Identity.Hostname,
		Name:       cfg.Listener.Name,
		MaxStreams: cfg.Listener.MaxStreams,
		QUIC:       cfg.QUIC,
	}
}

// Option 监听端选项
type Option func(*Listener)

// WithHandler 替换默认问候处理器
func WithHandler(h Handler) Option {
	return func(l *Listener) {
		if h != nil {
			l.handler = h
		}
	}
}

// WithMetrics 注入指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Listener) {
		l.metrics = m
	}
}

// WithLogger 替换组件日志
func WithLogger(lg *slog.Logger) Option {
	return func(l *Listener) {
		if lg != nil {
			l.log = lg
		}
	}
}
