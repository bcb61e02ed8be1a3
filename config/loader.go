package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 QSESSION_LISTENER_MAX_STREAMS
const EnvPrefix = "QSESSION"

// envKeys 支持环境变量覆盖的配置键
var envKeys = []string{
	"identity.hostname",
	"quic.alpn",
	"quic.max_idle_timeout",
	"quic.handshake_idle_timeout",
	"quic.keep_alive_period",
	"listener.addr",
	"listener.name",
	"listener.max_streams",
	"initiator.bind_addr",
	"initiator.dial_timeout",
	"fanout.listeners",
	"fanout.initiators",
	"fanout.host",
	"fanout.base_port",
	"log.level",
	"log.format",
	"metrics.addr",
}

// Load 从 YAML 文件与环境变量加载配置
//
// path 为空时只使用默认值与环境变量。未出现的键保留默认值。
// 加载结果会经过 Validate。
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	cfg := NewConfig()
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	return cfg, nil
}

// ErrInvalidConfig 配置校验失败
var ErrInvalidConfig = errors.New("invalid config")
