// Package config loads promptbandit's tuning knobs: defaults, overlaid
// by an optional YAML file, overlaid by PB_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries every runtime knob. Zero values are never used directly;
// Default() supplies the baseline.
type Config struct {
	DBPath string `yaml:"db_path"`
	Port   int    `yaml:"port"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// ObservationWindow is the horizon during which a conversion is
	// credited to a selection.
	ObservationWindow time.Duration `yaml:"observation_window"`

	// SweepInterval is the cadence of the expired-window sweep;
	// SweepBatchSize bounds each pass.
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	SweepBatchSize int           `yaml:"sweep_batch_size"`

	// PlateauInterval is the cadence of the plateau cycle;
	// PlateauCooldown is the minimum spacing between pool growths.
	PlateauInterval time.Duration `yaml:"plateau_interval"`
	PlateauCooldown time.Duration `yaml:"plateau_cooldown"`

	Generator GeneratorConfig `yaml:"generator"`
}

type GeneratorConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

func Default() Config {
	return Config{
		DBPath:            "./promptbandit.db",
		Port:              8080,
		LogLevel:          "info",
		LogFormat:         "text",
		ObservationWindow: 24 * time.Hour,
		SweepInterval:     5 * time.Minute,
		SweepBatchSize:    100,
		PlateauInterval:   time.Hour,
		PlateauCooldown:   6 * time.Hour,
		Generator: GeneratorConfig{
			Model:   "gpt-4o-mini",
			Timeout: 30 * time.Second,
		},
	}
}

// Load builds the config from defaults, the YAML file at path (skipped
// when path is empty or missing), and PB_* environment variables, in
// that precedence order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.DBPath, "PB_DB_PATH")
	setInt(&cfg.Port, "PB_PORT")
	setString(&cfg.LogLevel, "PB_LOG_LEVEL")
	setString(&cfg.LogFormat, "PB_LOG_FORMAT")
	setDuration(&cfg.ObservationWindow, "PB_OBSERVATION_WINDOW")
	setDuration(&cfg.SweepInterval, "PB_SWEEP_INTERVAL")
	setInt(&cfg.SweepBatchSize, "PB_SWEEP_BATCH_SIZE")
	setDuration(&cfg.PlateauInterval, "PB_PLATEAU_INTERVAL")
	setDuration(&cfg.PlateauCooldown, "PB_PLATEAU_COOLDOWN")
	setString(&cfg.Generator.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Generator.Model, "PB_GENERATOR_MODEL")
	setDuration(&cfg.Generator.Timeout, "PB_GENERATOR_TIMEOUT")
}

func (c Config) validate() error {
	if c.ObservationWindow <= 0 {
		return fmt.Errorf("observation_window must be positive, got %s", c.ObservationWindow)
	}
	if c.SweepBatchSize <= 0 {
		return fmt.Errorf("sweep_batch_size must be positive, got %d", c.SweepBatchSize)
	}
	if c.Generator.Timeout <= 0 {
		return fmt.Errorf("generator timeout must be positive, got %s", c.Generator.Timeout)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}
