package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-qsession/config"
	"github.com/dep2p/go-qsession/internal/core/provider"
	"github.com/dep2p/go-qsession/pkg/lib/log"
)

var logger = log.Logger("cmd")

var (
	cfgFile  string
	logLevel string
	preset   string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "qsession",
	Short: "qsession - multiplexed QUIC secure sessions",
	Long: `qsession runs QUIC listeners with self-signed identities and initiators
that trust them explicitly, exchanging greetings over multiplexed streams.

Configuration:
  Defaults can be overridden by a YAML file (--config) and by environment
  variables with the QSESSION_ prefix.
  Example: QSESSION_LISTENER_ADDR=127.0.0.1:7000

Commands:
  serve       Run a single listener and print its certificate
  fanout      Run the many-to-many scenario
  version     Print version information`,
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		// 启动期致命：任何身份构造之前必须安装
		provider.MustInstallDefault()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "config preset: default, test, stress")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log fx lifecycle events")
}

// loadConfig 加载配置并按配置设置日志
//
// 优先级：命令行参数 > 预设 > 环境变量 > 配置文件 > 默认值。
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyPreset(cfg, preset); err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := config.ValidateAll(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if err := log.Configure(os.Stderr, cfg.Log.Format, level); err != nil {
		return nil, err
	}
	logger.Debug("配置已加载", "file", cfgFile, "preset", preset)
	return cfg, nil
}
