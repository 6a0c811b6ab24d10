package robot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const DefaultConfigFile = "robert.json"

// Config holds the operator's saved settings.
type Config struct {
	Port     string         `json:"port"`
	Timeouts TimeoutsConfig `json:"timeouts,omitzero"`
}

// TimeoutsConfig overrides per-command response timeouts, in milliseconds.
// Zero means use the built-in default.
type TimeoutsConfig struct {
	DefaultMs   int `json:"default_ms,omitempty"`
	StepsMs     int `json:"steps_ms,omitempty"`
	MoveMs      int `json:"move_ms,omitempty"`
	CalibrateMs int `json:"calibrate_ms,omitempty"`
}

// Duration returns ms as a duration, or fallback when ms is not positive.
func Duration(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// IsConfigured returns true if a port has been chosen
func (c *Config) IsConfigured() bool {
	return c.Port != ""
}

// LoadConfig reads robert.json from the working directory. A missing file
// is reported with an error matching fs.ErrNotExist.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom reads and checks the config at path.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Timeouts.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (t TimeoutsConfig) validate() error {
	for name, ms := range map[string]int{
		"default_ms":   t.DefaultMs,
		"steps_ms":     t.StepsMs,
		"move_ms":      t.MoveMs,
		"calibrate_ms": t.CalibrateMs,
	} {
		if ms < 0 {
			return fmt.Errorf("timeouts.%s must not be negative, got %d", name, ms)
		}
	}
	return nil
}

// Save writes the config to robert.json in the working directory.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo writes the config to path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
