// Package config loads the server configuration from a YAML or JSON file
// with optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/flocklink/fleetd/core/command"
	"github.com/flocklink/fleetd/core/metrics"
	"github.com/flocklink/fleetd/infra/mqtt"
	"github.com/flocklink/fleetd/sim"
)

// Config is the root configuration of the server.
type Config struct {
	MQTT      mqtt.Config    `json:"mqtt"`
	Commands  command.Config `json:"commands"`
	RateLimit RateLimit      `json:"rate_limit"`
	Metrics   metrics.Config `json:"metrics"`
	Logging   LoggingConfig  `json:"logging"`
	Sim       sim.Config     `json:"sim"`
}

// RateLimit configures the coalescing window for UAV-INF and DEV-INF
// notifications.
type RateLimit struct {
	WindowMS int `json:"window_ms"`
}

// SetDefaults fills in the defaults for unset fields.
func (c *RateLimit) SetDefaults() {
	if c.WindowMS <= 0 {
		c.WindowMS = 100
	}
}

// Load reads the configuration file at path. Environment variables prefixed
// with FLEETD_ override file values; a double underscore separates nesting
// levels, e.g. FLEETD_MQTT__BROKER.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("FLEETD_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "fleetd_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.MQTT.SetDefaults()
	cfg.Commands.SetDefaults()
	cfg.RateLimit.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.Logging.SetDefaults()
	cfg.Sim.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the mandatory fields of every section.
func (c Config) Validate() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	return nil
}
