package config

import (
	"errors"
	"fmt"
	"time"
)

// ValidateAll 验证整个配置的有效性
//
// 先逐个验证子配置，再检查子配置之间的兼容性。
func ValidateAll(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	return ValidateCompatibility(c)
}

// MustValidate 验证配置，如果失败则 panic
//
// 仅用于初始化阶段或测试代码。
func MustValidate(c *Config) {
	if err := ValidateAll(c); err != nil {
		panic(fmt.Sprintf("config validation failed: %v", err))
	}
}

// ValidateCompatibility 验证配置之间的兼容性
//
//   - 握手空闲超时不应超过拨号超时，否则拨号超时先触发，握手错误被掩盖
//   - 空闲超时至少一秒，监听端依赖它回收发起端遗留的连接
func ValidateCompatibility(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.QUIC.HandshakeIdleTimeout > c.Initiator.DialTimeout {
		return fmt.Errorf("handshake idle timeout (%s) exceeds dial timeout (%s)",
			c.QUIC.HandshakeIdleTimeout, c.Initiator.DialTimeout)
	}

	if c.QUIC.MaxIdleTimeout.Duration() < time.Second {
		return fmt.Errorf("max idle timeout (%s) too short", c.QUIC.MaxIdleTimeout)
	}

	return nil
}
