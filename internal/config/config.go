package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned when a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// ClassifierConfig selects the commit classifier.
type ClassifierConfig struct {
	Path string   `mapstructure:"path"`
	Kind string   `mapstructure:"kind"`
	Args []string `mapstructure:"args"`
}

// HistoryConfig bounds and orders the history walk.
type HistoryConfig struct {
	Head  string `mapstructure:"head"`
	Order string `mapstructure:"order"`
}

// ChangelogConfig names the per-package changelog file and its marker line.
type ChangelogConfig struct {
	File   string `mapstructure:"file"`
	Marker string `mapstructure:"marker"`
}

// LogConfig controls diagnostic output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config holds all runtime configuration for a pulsar run.
// Values are populated from .pulsar.yaml, PULSAR_* env vars, and CLI flags.
type Config struct {
	WorkDir     string           `mapstructure:"work_dir"`
	CargoPath   string           `mapstructure:"cargo_path"`
	MetadataKey string           `mapstructure:"metadata_key"`
	EventsFile  string           `mapstructure:"events_file"`
	Classifier  ClassifierConfig `mapstructure:"classifier"`
	History     HistoryConfig    `mapstructure:"history"`
	Changelog   ChangelogConfig  `mapstructure:"changelog"`
	Log         LogConfig        `mapstructure:"log"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("work_dir", ".")
	viper.SetDefault("cargo_path", "cargo")
	viper.SetDefault("metadata_key", "pulsar")
	viper.SetDefault("events_file", "")
	viper.SetDefault("classifier.path", "")
	viper.SetDefault("classifier.kind", "auto")
	viper.SetDefault("classifier.args", []string{})
	viper.SetDefault("history.head", "HEAD")
	viper.SetDefault("history.order", "newest-first")
	viper.SetDefault("changelog.file", "CHANGELOG.md")
	viper.SetDefault("changelog.marker", "<!-- pulsar goes here -->")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated values.
func (c Config) Validate() error {
	checks := []struct {
		key   string
		value string
		allow []string
	}{
		{"classifier.kind", c.Classifier.Kind, []string{"auto", "script", "exec"}},
		{"history.order", c.History.Order, []string{"newest-first", "oldest-first"}},
		{"log.format", c.Log.Format, []string{"text", "json"}},
		{"log.level", c.Log.Level, []string{"trace", "debug", "info", "warn", "warning", "error"}},
	}
	for _, ch := range checks {
		if !slices.Contains(ch.allow, ch.value) {
			return fmt.Errorf("%w: %s = %q (want one of %v)", ErrInvalidConfig, ch.key, ch.value, ch.allow)
		}
	}
	if c.Changelog.Marker == "" {
		return fmt.Errorf("%w: changelog.marker must not be empty", ErrInvalidConfig)
	}
	if c.MetadataKey == "" {
		return fmt.Errorf("%w: metadata_key must not be empty", ErrInvalidConfig)
	}
	return nil
}
