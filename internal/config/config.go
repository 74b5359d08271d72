// Package config loads server settings from an optional YAML file with
// environment-variable overrides (NATS_URL, NATS_USER, NATS_PASS, ...).
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr string `mapstructure:"addr"`

	NatsURL       string        `mapstructure:"nats_url"`
	NatsUser      string        `mapstructure:"nats_user"`
	NatsPass      string        `mapstructure:"nats_pass"`
	ProbeAttempts int           `mapstructure:"probe_attempts"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`

	HistoryLimit int `mapstructure:"history_limit"`

	SendBuffer int           `mapstructure:"send_buffer"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("addr", ":8080")
	v.SetDefault("nats_url", "nats://localhost:4222")
	v.SetDefault("nats_user", "collabd")
	v.SetDefault("nats_pass", "collabd-secret")
	v.SetDefault("probe_attempts", 3)
	v.SetDefault("probe_timeout", "2s")
	v.SetDefault("history_limit", 100)
	v.SetDefault("send_buffer", 64)
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		slog.Info("No config file found, using defaults and environment")
	} else {
		slog.Info("Loaded config file", "file", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
