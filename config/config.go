// Package config 提供统一的配置管理
//
// 主 Config 结构体嵌入所有子配置，每个子配置在独立文件中定义，
// 并提供 Default*Config() 与 Validate()。
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Listener.MaxStreams = 256
//
//	// 从 YAML 文件与 QSESSION_* 环境变量加载
//	cfg, err := config.Load("qsession.yaml")
package config

import "fmt"

// Config 是 qsession 的完整配置结构
//
//   - Identity: 监听端自签名身份
//   - QUIC: 传输参数
//   - Listener: 监听端会话
//   - Initiator: 发起端会话
//   - Fanout: 多对多演示场景
//   - Log: 日志输出
//   - Metrics: Prometheus 指标导出
type Config struct {
	Identity  IdentityConfig  `json:"identity" mapstructure:"identity"`
	QUIC      QUICConfig      `json:"quic" mapstructure:"quic"`
	Listener  ListenerConfig  `json:"listener" mapstructure:"listener"`
	Initiator InitiatorConfig `json:"initiator" mapstructure:"initiator"`
	Fanout    FanoutConfig    `json:"fanout" mapstructure:"fanout"`
	Log       LogConfig       `json:"log" mapstructure:"log"`
	Metrics   MetricsConfig   `json:"metrics" mapstructure:"metrics"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Identity:  DefaultIdentityConfig(),
		QUIC:      DefaultQUICConfig(),
		Listener:  DefaultListenerConfig(),
		Initiator: DefaultInitiatorConfig(),
		Fanout:    DefaultFanoutConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if err := c.Identity.Validate(); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if err := c.QUIC.Validate(); err != nil {
		return fmt.Errorf("quic: %w", err)
	}
	if err := c.Listener.Validate(); err != nil {
		return fmt.Errorf("listener: %w", err)
	}
	if err := c.Initiator.Validate(); err != nil {
		return fmt.Errorf("initiator: %w", err)
	}
	if err := c.Fanout.Validate(); err != nil {
		return fmt.Errorf("fanout: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}
