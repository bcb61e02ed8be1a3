package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FromJSON 从 JSON 数据创建配置
//
// 未出现的字段保留默认值。
//
// 示例 JSON:
//
//	{
//	  "listener": {"addr": "127.0.0.1:7000", "name": "alpha"},
//	  "quic": {"max_idle_timeout": "10s"}
//	}
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// 预设名称
const (
	PresetDefault = "default"
	PresetTest    = "test"
	PresetStress  = "stress"
)

// ApplyPreset 应用预设配置
//
// 支持的预设：
//   - "default": 不做修改
//   - "test": 短超时、随机端口，适合单元测试与本地调试
//   - "stress": 放大多对多规模并放宽超时
func ApplyPreset(cfg *Config, presetName string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	switch presetName {
	case "", PresetDefault:
		return nil
	case PresetTest:
		applyTestPreset(cfg)
		return nil
	case PresetStress:
		applyStressPreset(cfg)
		return nil
	default:
		return fmt.Errorf("unknown preset: %s", presetName)
	}
}

func applyTestPreset(cfg *Config) {
	cfg.QUIC.MaxIdleTimeout = Duration(5 * time.Second)
	cfg.QUIC.HandshakeIdleTimeout = Duration(2 * time.Second)
	cfg.Listener.Addr = "127.0.0.1:0"
	cfg.Initiator.DialTimeout = Duration(3 * time.Second)
	cfg.Fanout.Listeners = 2
	cfg.Fanout.Initiators = 2
	cfg.Fanout.BasePort = 0
}

func applyStressPreset(cfg *Config) {
	cfg.QUIC.MaxIdleTimeout = Duration(60 * time.Second)
	cfg.QUIC.HandshakeIdleTimeout = Duration(10 * time.Second)
	cfg.Initiator.DialTimeout = Duration(30 * time.Second)
	cfg.Fanout.Listeners = 50
	cfg.Fanout.Initiators = 50
}

// CloneConfig 克隆配置
//
// 所有子配置均为值类型，浅拷贝即为深拷贝。
func CloneConfig(cfg *Config) *Config {
	if cfg == nil {
		return nil
	}
	cloned := *cfg
	return &cloned
}
