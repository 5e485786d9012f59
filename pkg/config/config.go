// Package config provides configuration loading and management for phantomqa.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"phantomqa/internal/logger"
	"phantomqa/internal/models"
	"phantomqa/pkg/pipeline"
	"phantomqa/pkg/render"
	"phantomqa/pkg/seriesio"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Series parameters
	Series struct {
		// Pattern selects the slice files below the input directory (doublestar glob)
		Pattern string `yaml:"pattern"`

		// Description keeps only the series with this description
		Description string `yaml:"description"`

		// PixelSpacing and SliceThickness in mm apply to image files without geometry
		PixelSpacing   float64 `yaml:"pixelSpacing"`
		SliceThickness float64 `yaml:"sliceThickness"`
	} `yaml:"series"`

	// Output parameters
	Output struct {
		// Format is text or json
		Format string `yaml:"format"`

		// MetricsFile receives the run metrics in Prometheus text format when set
		MetricsFile string `yaml:"metricsFile"`

		// LogLevel controls the level of logging output
		LogLevel string `yaml:"logLevel"`
	} `yaml:"output"`

	// QA holds the module selection, measurement parameters and tolerances.
	// Tolerances given in the file are merged over the defaults.
	QA pipeline.Params `yaml:"qa"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	opts := seriesio.DefaultOptions()
	cfg.Series.Pattern = opts.Pattern
	cfg.Series.PixelSpacing = opts.Spacing.X
	cfg.Series.SliceThickness = opts.Thickness

	cfg.Output.Format = string(render.FormatText)
	cfg.Output.LogLevel = "info"

	cfg.QA = pipeline.DefaultParams()
	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks every section of the configuration
func (c *Config) Validate() error {
	var errs []error
	if _, err := render.ParseFormat(c.Output.Format); err != nil {
		errs = append(errs, err)
	}
	if _, err := logger.ParseLevel(c.Output.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if !(c.Series.PixelSpacing > 0) || !(c.Series.SliceThickness > 0) {
		errs = append(errs, fmt.Errorf("series pixel spacing and slice thickness must be positive"))
	}
	if err := c.QA.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SeriesOptions returns the loader options of the series section
func (c *Config) SeriesOptions() seriesio.Options {
	return seriesio.Options{
		Pattern:     c.Series.Pattern,
		Spacing:     models.Spacing{X: c.Series.PixelSpacing, Y: c.Series.PixelSpacing},
		Thickness:   c.Series.SliceThickness,
		Description: c.Series.Description,
	}
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
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
