package config

import (
	"errors"
	"time"
)

// DefaultALPN 默认应用层协议协商标识
const DefaultALPN = "qsession/1"

// QUICConfig QUIC 传输配置
type QUICConfig struct {
	// ALPN 握手时协商的应用协议
	ALPN string `json:"alpn" mapstructure:"alpn"`

	// MaxIdleTimeout 最大空闲超时，监听端依赖它回收发起端未关闭的连接
	MaxIdleTimeout Duration `json:"max_idle_timeout" mapstructure:"max_idle_timeout"`

	// HandshakeIdleTimeout 握手阶段空闲超时
	HandshakeIdleTimeout Duration `json:"handshake_idle_timeout" mapstructure:"handshake_idle_timeout"`

	// KeepAlivePeriod KeepAlive 周期，0 表示禁用
	KeepAlivePeriod Duration `json:"keep_alive_period" mapstructure:"keep_alive_period"`
}

// DefaultQUICConfig 返回默认 QUIC 配置
func DefaultQUICConfig() QUICConfig {
	return QUICConfig{
		ALPN:                 DefaultALPN,
		MaxIdleTimeout:       Duration(30 * time.Second),
		HandshakeIdleTimeout: Duration(5 * time.Second),
		KeepAlivePeriod:      0,
	}
}

// Validate 验证 QUIC 配置
func (c QUICConfig) Validate() error {
	if c.ALPN == "" {
		return errors.New("alpn must not be empty")
	}
	if c.MaxIdleTimeout <= 0 {
		return errors.New("max idle timeout must be positive")
	}
	if c.HandshakeIdleTimeout <= 0 {
		return errors.New("handshake idle timeout must be positive")
	}
	if c.KeepAlivePeriod < 0 {
		return errors.New("keep alive period must not be negative")
	}
	if c.KeepAlivePeriod > 0 && c.KeepAlivePeriod >= c.MaxIdleTimeout {
		return errors.New("keep alive period must be shorter than max idle timeout")
	}
	return nil
}
