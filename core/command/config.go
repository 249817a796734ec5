package command

// Config holds the timing parameters of the command execution manager.
type Config struct {
	// TimeoutSeconds is the default deadline for a receipt when the caller
	// does not specify one.
	TimeoutSeconds float64 `json:"timeout_seconds"`
	// SweepIntervalSeconds is the period of the timeout sweep.
	SweepIntervalSeconds float64 `json:"sweep_interval_seconds"`
}

// SetDefaults fills in the defaults for unset fields.
func (c *Config) SetDefaults() {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.SweepIntervalSeconds <= 0 {
		c.SweepIntervalSeconds = 1
	}
}
