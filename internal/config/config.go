// Package config loads the playstate runtime configuration from TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Logging   LoggingConfig   `toml:"logging"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Trace     TraceConfig     `toml:"trace"`
	Frame     FrameConfig     `toml:"frame"`
	World     WorldConfig     `toml:"world"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type SchedulerConfig struct {
	MaxStackDepth int    `toml:"max_stack_depth"`
	IDs           string `toml:"ids"` // "uuid" or "sequential"
}

type TraceConfig struct {
	Path string `toml:"path"` // empty disables recording
}

type FrameConfig struct {
	Enabled  bool          `toml:"enabled"`
	Interval time.Duration `toml:"interval"`
}

type WorldConfig struct {
	Params map[string]any `toml:"params"` // overrides the world file's params
}

// Load reads path and lays it over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Defaults()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return nil, fmt.Errorf("parse config %s: unknown key %q", path, undec[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns the defaults when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Defaults(), nil
	}
	return Load(path)
}

func Defaults() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Scheduler: SchedulerConfig{
			MaxStackDepth: 64,
			IDs:           "uuid",
		},
		Frame: FrameConfig{
			Interval: time.Second / 60,
		},
	}
}

// Validate rejects values the runtime cannot use.
func (c *Config) Validate() error {
	var errs []error
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}
	switch c.Scheduler.IDs {
	case "uuid", "sequential":
	default:
		errs = append(errs, fmt.Errorf("scheduler.ids must be uuid or sequential, got %q", c.Scheduler.IDs))
	}
	if c.Scheduler.MaxStackDepth <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.max_stack_depth must be positive, got %d", c.Scheduler.MaxStackDepth))
	}
	if c.Frame.Enabled && c.Frame.Interval <= 0 {
		errs = append(errs, fmt.Errorf("frame.interval must be positive, got %s", c.Frame.Interval))
	}
	return errors.Join(errs...)
}
