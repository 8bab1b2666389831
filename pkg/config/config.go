// Package config provides configuration loading and management for the
// sinogram assembly pipeline. It handles loading configuration from YAML
// files and provides default values. Scan metadata itself comes from the
// scanner's key/value parameter file and is handled by pkg/scanparams;
// this package only covers the operator-chosen pipeline options.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the pipeline configuration loaded from YAML.
type Config struct {
	// Pipeline parameters
	Pipeline struct {
		// Mode selects the reconstruction mode, "2D" or "3D"
		Mode string `yaml:"mode"`

		// BinningFactor is the power-of-two block-sum factor in [1,32]
		BinningFactor int `yaml:"binningFactor"`

		// CORShift is the center-of-rotation correction in detector pixels
		CORShift int `yaml:"corShift"`

		// NumWorkers specifies how many projections to process concurrently
		NumWorkers int `yaml:"numWorkers"`
	} `yaml:"pipeline"`

	// Window is the free-ray calibration window (1-based inclusive bounds)
	Window struct {
		Row1 int `yaml:"row1"`
		Row2 int `yaml:"row2"`
		Col1 int `yaml:"col1"`
		Col2 int `yaml:"col2"`
	} `yaml:"window"`

	// Output parameters
	Output struct {
		// Dir is the directory the project artifact is written to
		Dir string `yaml:"dir"`

		// Name overrides the derived artifact name when non-empty
		Name string `yaml:"name"`
	} `yaml:"output"`

	// Preview parameters
	Preview struct {
		// Enabled turns on sinogram preview rendering after the build
		Enabled bool `yaml:"enabled"`

		// Heatmap renders a plotted heatmap in addition to the raw
		// grayscale preview
		Heatmap bool `yaml:"heatmap"`

		// Dir is the directory preview images are written to
		Dir string `yaml:"dir"`
	} `yaml:"preview"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default pipeline parameters
	cfg.Pipeline.Mode = "3D"
	cfg.Pipeline.BinningFactor = 1
	cfg.Pipeline.CORShift = 0
	cfg.Pipeline.NumWorkers = runtime.NumCPU() // Use all available cores by default

	// Set default output parameters
	cfg.Output.Dir = "."
	cfg.Output.Name = ""

	// Set default preview parameters
	cfg.Preview.Enabled = false
	cfg.Preview.Heatmap = false
	cfg.Preview.Dir = "preview"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
