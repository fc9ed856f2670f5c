package store

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultMaxIterations bounds the mutable phase of a single update.
const DefaultMaxIterations = 1000

// Config holds the tunables of a Store.
//
// Example YAML:
//
//	max_iterations: 200
type Config struct {
	// MaxIterations is the number of mutable passes that may produce a delta
	// within one update before it aborts with IterationLimitError.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations: DefaultMaxIterations,
	}
}

// Merge overlays the non-zero fields of source onto c.
func (c *Config) Merge(source *Config) {
	if source.MaxIterations > 0 {
		c.MaxIterations = source.MaxIterations
	}
}

// Validate reports configuration values the store cannot run with.
func (c Config) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	return nil
}

// LoadConfig reads a YAML config file and merges it over DefaultConfig.
// Unknown fields are rejected so typos surface instead of being ignored.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	var file Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Merge(&file)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
