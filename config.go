// Package cfcore wires the concurrency and I/O foundation together:
// a fixed task-scheduler pool, the event notifier that drives it, and
// the process-wide configuration both are built from. Everything
// reusable lives in pkg/cf*; this package is just the one-time
// Initialize/Uninitialize entry point and its Config.
package cfcore

import (
	"fmt"
	"os"
	"strconv"
)

// Config is the flat, JSON-tagged configuration every Initialize call
// is built from, with a Default/Validate/environment override shape.
type Config struct {
	Workers            int   `json:"workers"`
	BlockUnitBytes     int   `json:"block_unit_bytes"`
	BlockPoolMax       int   `json:"block_pool_max"`
	BlockPoolIncrement int   `json:"block_pool_increment"`
	NotifierWaitMillis int64 `json:"notifier_wait_millis"`
	LookupDNS          bool  `json:"lookup_dns"`
}

// Default returns a Config with conservative, production-sane values.
func Default() *Config {
	return &Config{
		Workers:            4,
		BlockUnitBytes:     32 * 1024,
		BlockPoolMax:       256,
		BlockPoolIncrement: 32,
		NotifierWaitMillis: 15000,
		LookupDNS:          true,
	}
}

// Validate reports the first configuration error found, if any.
func (c *Config) Validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("cfcore: Workers must be >= 1, got %d", c.Workers)
	case c.BlockUnitBytes < 1:
		return fmt.Errorf("cfcore: BlockUnitBytes must be >= 1, got %d", c.BlockUnitBytes)
	case c.BlockPoolIncrement < 1:
		return fmt.Errorf("cfcore: BlockPoolIncrement must be >= 1, got %d", c.BlockPoolIncrement)
	case c.BlockPoolMax < c.BlockPoolIncrement:
		return fmt.Errorf("cfcore: BlockPoolMax (%d) must be >= BlockPoolIncrement (%d)", c.BlockPoolMax, c.BlockPoolIncrement)
	case c.NotifierWaitMillis < 1:
		return fmt.Errorf("cfcore: NotifierWaitMillis must be >= 1, got %d", c.NotifierWaitMillis)
	}
	return nil
}

// ApplyEnv overrides c's fields from environment variables, any of
// which may be unset. Integers and durations that fail to parse are
// left at their current value rather than rejected outright.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CFCORE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
	if v := os.Getenv("CFCORE_BLOCK_UNIT_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BlockUnitBytes = n
		}
	}
	if v := os.Getenv("CFCORE_BLOCK_POOL_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BlockPoolMax = n
		}
	}
	if v := os.Getenv("CFCORE_BLOCK_POOL_INCREMENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BlockPoolIncrement = n
		}
	}
	if v := os.Getenv("CFCORE_NOTIFY_WAIT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.NotifierWaitMillis = n
		}
	}
	if v := os.Getenv("CFCORE_LOOKUP_DNS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.LookupDNS = b
		}
	}
}

// LoadConfig returns Default() with environment overrides applied,
// validated.
func LoadConfig() (*Config, error) {
	c := Default()
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
