package config

import "fmt"

// LoggingConfig controls the zerolog output of the server.
type LoggingConfig struct {
	// Level is the minimum level to emit: trace, debug, info, warn or error.
	Level string `json:"level"`
	// Console switches from JSON output to the human-readable console
	// writer. The APP_ENV=dev environment variable forces this as well.
	Console bool `json:"console"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks the level name.
func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "trace", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %s", c.Level)
	}
}
