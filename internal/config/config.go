// Package config loads the daemon configuration file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nuko-mc/nuko/internal/instance"
	"github.com/nuko-mc/nuko/internal/logger"
)

// EnvPrefix prefixes environment overrides, e.g. NUKO_SERVER_LISTEN.
const EnvPrefix = "NUKO"

// Config represents the top-level TOML structure.
type Config struct {
	DataDir   string           `mapstructure:"data_dir"`
	Server    ServerConfig     `mapstructure:"server"`
	Log       logger.Config    `mapstructure:"log"`
	Restart   RestartConfig    `mapstructure:"restart"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	History   HistoryConfig    `mapstructure:"history"`
	Schedules []ScheduleConfig `mapstructure:"schedules"`
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

// RestartConfig is the poll policy used while waiting for a worker to exit
// during restart.
type RestartConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Attempts int           `mapstructure:"attempts"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// HistoryConfig selects the lifecycle history sink. An empty DSN disables it.
type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ScheduleConfig runs Action against Instance on a cron expression.
type ScheduleConfig struct {
	Instance string `mapstructure:"instance"`
	Cron     string `mapstructure:"cron"`
	Action   string `mapstructure:"action"`
	Command  string `mapstructure:"command"`
}

func setDefaults(v *viper.Viper) {
	dataDir, err := instance.DefaultDataDir()
	if err != nil {
		dataDir = "data"
	}
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("server.listen", ":8787")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.file.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.file.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.file.compress", false)
	v.SetDefault("restart.interval", "500ms")
	v.SetDefault("restart.attempts", 60)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("history.dsn", "")
}

// Load reads path (TOML) over the defaults and applies NUKO_* environment
// overrides. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.normalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) normalize() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if strings.TrimSpace(c.Server.Listen) == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	bp := strings.TrimRight(strings.TrimSpace(c.Server.BasePath), "/")
	if bp != "" && !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	c.Server.BasePath = bp
	if c.Restart.Interval <= 0 {
		return fmt.Errorf("restart.interval must be positive, got %s", c.Restart.Interval)
	}
	if c.Restart.Attempts <= 0 {
		return fmt.Errorf("restart.attempts must be positive, got %d", c.Restart.Attempts)
	}
	for i, s := range c.Schedules {
		if s.Instance == "" || s.Cron == "" || s.Action == "" {
			return fmt.Errorf("schedules[%d] requires instance, cron and action", i)
		}
	}
	return nil
}
