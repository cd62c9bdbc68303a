// Package config provides configuration loading and management for ometiffreader.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Reader parameters
	Reader struct {
		// OutOfRange selects what happens when a timepoint outside [0, SizeT)
		// is requested: "clamp" or "error"
		OutOfRange string `yaml:"outOfRange"`

		// NumCores specifies how many goroutines rebuild the timepoint cache
		NumCores int `yaml:"numCores"`
	} `yaml:"reader"`

	// Logging parameters
	Logging struct {
		// Level is a zerolog level name (trace, debug, info, warn, error)
		Level string `yaml:"level"`

		// Console switches from JSON lines to human readable output
		Console bool `yaml:"console"`
	} `yaml:"logging"`

	// Export parameters
	Export struct {
		// Format of exported slices: "jpeg" or "tiff"
		Format string `yaml:"format"`

		// Axis along which slices are cut: "x", "y" or "z"
		Axis string `yaml:"axis"`

		// Dir is the directory exported slices are written to
		Dir string `yaml:"dir"`
	} `yaml:"export"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Reader.OutOfRange = "clamp"
	cfg.Reader.NumCores = runtime.NumCPU()

	cfg.Logging.Level = "info"
	cfg.Logging.Console = true

	cfg.Export.Format = "jpeg"
	cfg.Export.Axis = "z"
	cfg.Export.Dir = "slices"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var result *multierror.Error

	switch strings.ToLower(c.Reader.OutOfRange) {
	case "clamp", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("reader.outOfRange: %q is not clamp or error", c.Reader.OutOfRange))
	}
	if c.Reader.NumCores < 1 {
		result = multierror.Append(result, fmt.Errorf("reader.numCores: must be at least 1, got %d", c.Reader.NumCores))
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		result = multierror.Append(result, fmt.Errorf("logging.level: %w", err))
	}

	switch strings.ToLower(c.Export.Format) {
	case "jpeg", "jpg", "tiff", "tif":
	default:
		result = multierror.Append(result, fmt.Errorf("export.format: %q is not jpeg or tiff", c.Export.Format))
	}
	switch strings.ToLower(c.Export.Axis) {
	case "x", "y", "z":
	default:
		result = multierror.Append(result, fmt.Errorf("export.axis: %q is not x, y or z", c.Export.Axis))
	}

	return result.ErrorOrNil()
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
