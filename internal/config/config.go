// Package config loads the router's startup configuration: system/component
// identity, the endpoint connection strings to dial/bind, logging, and the
// subscription cache location.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/skobkin/mavrouter/internal/connstr"
)

// LoggingConfig controls the router's structured-log sink.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	LogToFile  bool   `yaml:"log_to_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// RouterConfig is the root startup configuration (§6 "operator contract":
// dialect, system_id, component_id, connection_strings).
type RouterConfig struct {
	DialectPath        string   `yaml:"dialect_path"`
	SystemID           uint8    `yaml:"system_id"`
	ComponentID        uint8    `yaml:"component_id"`
	Endpoints          []string `yaml:"endpoints"`
	Logging            LoggingConfig `yaml:"logging"`
	SubscriptionCache  string   `yaml:"subscription_cache"`
}

// NoDialectSet is returned when config validation finds no dialect
// configured, per §6's operator contract ("Missing dialect -> NoDialectSet").
var NoDialectSet = errors.New("config: no dialect configured")

func Default() RouterConfig {
	return RouterConfig{
		SystemID:    1,
		ComponentID: 1,
		Logging: LoggingConfig{
			Level:      "info",
			LogToFile:  false,
			MaxSizeMB:  25,
			MaxAgeDays: 7,
			MaxBackups: 5,
		},
	}
}

// Load reads and decodes a YAML config file at path, filling unset fields
// with defaults. A missing file is not an error: startup falls back to
// Default() so a router can be brought up without a pre-existing file.
func Load(path string) (RouterConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is resolved by app runtime and named on the command line.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return RouterConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return RouterConfig{}, fmt.Errorf("decode config yaml: %w", err)
	}
	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *RouterConfig) FillMissingDefaults() {
	if c.SystemID == 0 {
		c.SystemID = 1
	}
	if c.ComponentID == 0 {
		c.ComponentID = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 25
	}
	if c.Logging.MaxAgeDays <= 0 {
		c.Logging.MaxAgeDays = 7
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 5
	}
}

// Validate checks the config is startable, per §7's "init | fatal, abort
// start" disposition for NoDialectSet and InvalidConnectionString.
func (c RouterConfig) Validate() error {
	if c.DialectPath == "" {
		return NoDialectSet
	}
	if len(c.Endpoints) == 0 {
		return errors.New("config: no endpoints configured")
	}
	for _, raw := range c.Endpoints {
		if _, err := connstr.Parse(raw); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	return nil
}

func Save(path string, cfg RouterConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
