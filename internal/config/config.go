// Package config loads runtime settings for allocators and logging from a
// YAML file and BORN_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/membuf/internal/platform"
)

// DefaultPoolMaxBlocks is the number of free blocks kept per size class.
const DefaultPoolMaxBlocks = 100

// AllocatorConfig selects the memory class and pooling of the CLI allocator.
type AllocatorConfig struct {
	// Memory selects the allocator: "cpu", "pinned" or "gpu".
	Memory        string `yaml:"memory"`
	PoolMaxBlocks int    `yaml:"pool_max_blocks"`
}

// PinnedConfig controls pinned host allocations.
type PinnedConfig struct {
	// Lock page-locks pinned blocks with mlock/VirtualLock.
	Lock bool `yaml:"lock"`
}

// LoggingConfig sets the zap logger level and mode.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Config is the membuf configuration file.
type Config struct {
	Allocator AllocatorConfig `yaml:"allocator"`
	Pinned    PinnedConfig    `yaml:"pinned"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Allocator: AllocatorConfig{
			Memory:        "cpu",
			PoolMaxBlocks: DefaultPoolMaxBlocks,
		},
		Pinned: PinnedConfig{Lock: true},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default values. Environment overrides are not applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the allocator memory type parses and the pool bound
// is not negative.
func (c *Config) Validate() error {
	if _, err := c.MemoryType(); err != nil {
		return err
	}
	if c.Allocator.PoolMaxBlocks < 0 {
		return fmt.Errorf("invalid pool_max_blocks %d", c.Allocator.PoolMaxBlocks)
	}
	return nil
}

// MemoryType parses Allocator.Memory.
func (c *Config) MemoryType() (platform.MemoryType, error) {
	return platform.ParseMemoryType(c.Allocator.Memory)
}

// ApplyEnv overrides fields from BORN_DEVICE, BORN_POOL_MAX_BLOCKS,
// BORN_PINNED_LOCK and BORN_LOG_LEVEL. Malformed numbers and booleans are
// reported instead of silently ignored.
func (c *Config) ApplyEnv() error {
	if s := Var("BORN_DEVICE"); s != "" {
		c.Allocator.Memory = s
	}
	if s := Var("BORN_POOL_MAX_BLOCKS"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid BORN_POOL_MAX_BLOCKS %q: %w", s, err)
		}
		c.Allocator.PoolMaxBlocks = n
	}
	if s := Var("BORN_PINNED_LOCK"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("invalid BORN_PINNED_LOCK %q: %w", s, err)
		}
		c.Pinned.Lock = b
	}
	if s := Var("BORN_LOG_LEVEL"); s != "" {
		c.Logging.Level = s
	}
	return c.Validate()
}

// Var returns an environment variable stripped of surrounding space and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
