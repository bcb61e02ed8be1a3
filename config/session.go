package config

import (
	"errors"
	"net"
	"time"
)

// DefaultMaxStreams 单连接最大并发流数（双向与单向各自独立计数）
const DefaultMaxStreams = 1024

// ListenerConfig 监听端会话配置
type ListenerConfig struct {
	// Addr 监听地址，例如 "127.0.0.1:6666"
	Addr string `json:"addr" mapstructure:"addr"`

	// Name 监听端名称，出现在问候响应中；为空时使用随机 UUID
	Name string `json:"name" mapstructure:"name"`

	// MaxStreams 单连接最大并发流数
	MaxStreams int `json:"max_streams" mapstructure:"max_streams"`
}

// DefaultListenerConfig 返回默认监听端配置
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		Addr:       "127.0.0.1:6666",
		MaxStreams: DefaultMaxStreams,
	}
}

// Validate 验证监听端配置
func (c ListenerConfig) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return errors.New("addr must be host:port")
	}
	if c.MaxStreams <= 0 {
		return errors.New("max streams must be positive")
	}
	return nil
}

// InitiatorConfig 发起端会话配置
type InitiatorConfig struct {
	// BindAddr 本地绑定地址，端口 0 表示随机端口
	BindAddr string `json:"bind_addr" mapstructure:"bind_addr"`

	// DialTimeout 单次握手超时
	DialTimeout Duration `json:"dial_timeout" mapstructure:"dial_timeout"`
}

// DefaultInitiatorConfig 返回默认发起端配置
func DefaultInitiatorConfig() InitiatorConfig {
	return InitiatorConfig{
		BindAddr:    "127.0.0.1:0",
		DialTimeout: Duration(10 * time.Second),
	}
}

// Validate 验证发起端配置
func (c InitiatorConfig) Validate() error {
	if _, _, err := net.SplitHostPort(c.BindAddr); err != nil {
		return errors.New("bind addr must be host:port")
	}
	if c.DialTimeout <= 0 {
		return errors.New("dial timeout must be positive")
	}
	return nil
}

// FanoutConfig 多对多场景配置
//
// N 个监听端依次绑定 Host:BasePort+j，M 个发起端各自连接全部监听端。
type FanoutConfig struct {
	Listeners  int    `json:"listeners" mapstructure:"listeners"`
	Initiators int    `json:"initiators" mapstructure:"initiators"`
	Host       string `json:"host" mapstructure:"host"`
	BasePort   int    `json:"base_port" mapstructure:"base_port"`
}

// DefaultFanoutConfig 返回默认多对多配置（10×10，起始端口 6666）
func DefaultFanoutConfig() FanoutConfig {
	return FanoutConfig{
		Listeners:  10,
		Initiators: 10,
		Host:       "127.0.0.1",
		BasePort:   6666,
	}
}

// Validate 验证多对多配置
func (c FanoutConfig) Validate() error {
	if c.Listeners <= 0 {
		return errors.New("listeners must be positive")
	}
	if c.Initiators <= 0 {
		return errors.New("initiators must be positive")
	}
	if c.Host == "" {
		return errors.New("host must not be empty")
	}
	// BasePort 为 0 时每个监听端使用随机端口
	if c.BasePort < 0 || c.BasePort+c.Listeners-1 > 65535 {
		return errors.New("port range out of bounds")
	}
	return nil
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info", Format: "text"}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("level must be debug, info, warn or error")
	}
	switch c.Format {
	case "text", "json":
	default:
		return errors.New("format must be text or json")
	}
	return nil
}

// MetricsConfig 指标导出配置
type MetricsConfig struct {
	// Addr /metrics HTTP 监听地址，为空时不导出
	Addr string `json:"addr" mapstructure:"addr"`
}

// DefaultMetricsConfig 返回默认指标配置（不导出）
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{}
}

// Validate 验证指标配置
func (c MetricsConfig) Validate() error {
	if c.Addr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return errors.New("addr must be host:port")
	}
	return nil
}
