package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"

	"github.com/xraph/subhub/extension"
)

// nodeConfig is the on-disk layout of subhubd.yaml. SUBHUB_* environment
// variables override file values.
type nodeConfig struct {
	LogLevel    string `yaml:"log_level" env:"SUBHUB_LOG_LEVEL"`
	LogFormat   string `yaml:"log_format" env:"SUBHUB_LOG_FORMAT"`
	MetricsAddr string `yaml:"metrics_addr" env:"SUBHUB_METRICS_ADDR"`

	Hub    extension.Config `yaml:"hub"`
	Devnet devnetConfig     `yaml:"devnet"`
}

// devnetConfig seeds the in-process token ledger.
type devnetConfig struct {
	Asset    string   `yaml:"asset" env:"SUBHUB_DEVNET_ASSET"`
	Accounts []string `yaml:"accounts" env:"SUBHUB_DEVNET_ACCOUNTS" envSeparator:","`
	// Mint is the decimal token amount (18 decimals) credited to each account.
	Mint string `yaml:"mint" env:"SUBHUB_DEVNET_MINT"`
}

const defaultDevnetAsset = "0x00000000000000000000000000000000000000e2"

func defaultNodeConfig() nodeConfig {
	return nodeConfig{
		LogLevel:    "info",
		LogFormat:   "text",
		MetricsAddr: ":9464",
		Hub:         extension.DefaultConfig(),
		Devnet: devnetConfig{
			Asset: defaultDevnetAsset,
			Mint:  "1000",
		},
	}
}

// loadConfig reads path (if non-empty) over the defaults, then applies
// environment overrides.
func loadConfig(path string) (nodeConfig, error) {
	cfg := defaultNodeConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nodeConfig{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nodeConfig{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nodeConfig{}, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.Hub.KeeperInterval == 0 {
		cfg.Hub.KeeperInterval = cfg.Hub.TimeStep
	}
	return cfg, nil
}

func newLogger(cfg nodeConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("log_level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("log_format: unknown format %q", cfg.LogFormat)
	}
}
