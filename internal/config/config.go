// Package config holds the tunables of the media viewer core.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for a viewer.
type Config struct {
	// MaxRetries is how many decoder failures per item remain recoverable.
	// Zero, including an explicit `max_retries: 0`, means the default of 3;
	// use 1 for the smallest budget.
	MaxRetries int `yaml:"max_retries"`
	// SampleInterval is the playback state sampling cadence.
	SampleInterval time.Duration `yaml:"sample_interval"`
	// FetchTimeout bounds a single manifest fetch.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// ViewportWidth is the initial viewport width in gesture units.
	// Zero means unknown until the host reports it.
	ViewportWidth float64 `yaml:"viewport_width"`

	Swipe SwipeConfig `yaml:"swipe"`
}

// SwipeConfig holds the gesture thresholds.
type SwipeConfig struct {
	// MinDistance is the horizontal travel before a drag is recognized.
	MinDistance float64 `yaml:"min_distance"`
	// DominanceRatio is how much horizontal travel must exceed vertical.
	DominanceRatio float64 `yaml:"dominance_ratio"`
	// CommitVelocity is the release speed, in units/s, that always commits.
	CommitVelocity float64 `yaml:"commit_velocity"`
	// CommitFraction is the fraction of the viewport width that commits.
	CommitFraction float64 `yaml:"commit_fraction"`
}

// Default returns a validated configuration with every default applied.
func Default() Config {
	var c Config
	// Validate cannot fail on the zero value.
	_ = c.Validate()
	return c
}

// Validate checks if the configuration is valid and fills unset fields with defaults.
func (c *Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.SampleInterval < 0 {
		return fmt.Errorf("sample_interval must not be negative, got %s", c.SampleInterval)
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("fetch_timeout must not be negative, got %s", c.FetchTimeout)
	}
	if c.ViewportWidth < 0 {
		return fmt.Errorf("viewport_width must not be negative, got %v", c.ViewportWidth)
	}
	if err := c.Swipe.validate(); err != nil {
		return fmt.Errorf("swipe: %w", err)
	}

	// Set defaults
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.SampleInterval == 0 {
		c.SampleInterval = 500 * time.Millisecond
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 5 * time.Second
	}

	return nil
}

func (s *SwipeConfig) validate() error {
	if s.MinDistance < 0 {
		return fmt.Errorf("min_distance must not be negative, got %v", s.MinDistance)
	}
	if s.DominanceRatio < 0 {
		return fmt.Errorf("dominance_ratio must not be negative, got %v", s.DominanceRatio)
	}
	if s.CommitVelocity < 0 {
		return fmt.Errorf("commit_velocity must not be negative, got %v", s.CommitVelocity)
	}
	if s.CommitFraction < 0 || s.CommitFraction > 1 {
		return fmt.Errorf("commit_fraction must be within [0, 1], got %v", s.CommitFraction)
	}

	if s.MinDistance == 0 {
		s.MinDistance = 50
	}
	if s.DominanceRatio == 0 {
		s.DominanceRatio = 1.5
	}
	if s.CommitVelocity == 0 {
		s.CommitVelocity = 1000
	}
	if s.CommitFraction == 0 {
		s.CommitFraction = 0.3
	}
	return nil
}

// Load reads a YAML configuration file. An empty path returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	var c Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}
