package config

import "errors"

// DefaultHostname 默认证书主机名
const DefaultHostname = "localhost"

// IdentityConfig 身份配置
//
// 监听端在构造时生成自签名证书，证书绑定到单一主机名。
type IdentityConfig struct {
	// Hostname 证书绑定的主机名（DNS 名或 IP 字面量）
	Hostname string `json:"hostname" mapstructure:"hostname"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{Hostname: DefaultHostname}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	if c.Hostname == "" {
		return errors.New("hostname must not be empty")
	}
	return nil
}
