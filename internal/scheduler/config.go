package scheduler

import (
	"time"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval   time.Duration
	BatchSize     int
	ChargeTimeout time.Duration
	EnabledJobs   []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:   time.Minute,
		BatchSize:     50,
		ChargeTimeout: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.ChargeTimeout <= 0 {
		c.ChargeTimeout = defaults.ChargeTimeout
	}
	return c
}
