package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TuningConfig is the on-disk configuration for flattening runs. Every
// field is optional; the Get* accessors supply defaults for omitted ones,
// so partial files are safe.
type TuningConfig struct {
	// Ground estimation
	SectionLen        *float64 `json:"section_len,omitempty" yaml:"section_len,omitempty"`
	MinPointsPerCell  *int     `json:"min_points_per_cell,omitempty" yaml:"min_points_per_cell,omitempty"`
	PercentileDivisor *int     `json:"percentile_divisor,omitempty" yaml:"percentile_divisor,omitempty"`
	Verbose           *bool    `json:"verbose,omitempty" yaml:"verbose,omitempty"`

	// Batch params
	Workers      *int    `json:"workers,omitempty" yaml:"workers,omitempty"`
	Extension    *string `json:"extension,omitempty" yaml:"extension,omitempty"`
	OutputDir    *string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	OutputSuffix *string `json:"output_suffix,omitempty" yaml:"output_suffix,omitempty"`

	// Diagnostics and ledger
	PlotDir  *string `json:"plot_dir,omitempty" yaml:"plot_dir,omitempty"`
	DBPath   *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	LogLevel *string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFile  *string `json:"log_file,omitempty" yaml:"log_file,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a .json, .yaml or .yml file.
// The file must be under 1MB. Fields omitted from the file stay nil.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Merge copies every non-nil field of o over c.
func (c *TuningConfig) Merge(o *TuningConfig) {
	if o == nil {
		return
	}
	if o.SectionLen != nil {
		c.SectionLen = o.SectionLen
	}
	if o.MinPointsPerCell != nil {
		c.MinPointsPerCell = o.MinPointsPerCell
	}
	if o.PercentileDivisor != nil {
		c.PercentileDivisor = o.PercentileDivisor
	}
	if o.Verbose != nil {
		c.Verbose = o.Verbose
	}
	if o.Workers != nil {
		c.Workers = o.Workers
	}
	if o.Extension != nil {
		c.Extension = o.Extension
	}
	if o.OutputDir != nil {
		c.OutputDir = o.OutputDir
	}
	if o.OutputSuffix != nil {
		c.OutputSuffix = o.OutputSuffix
	}
	if o.PlotDir != nil {
		c.PlotDir = o.PlotDir
	}
	if o.DBPath != nil {
		c.DBPath = o.DBPath
	}
	if o.LogLevel != nil {
		c.LogLevel = o.LogLevel
	}
	if o.LogFile != nil {
		c.LogFile = o.LogFile
	}
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.SectionLen != nil && !(*c.SectionLen > 0) {
		return fmt.Errorf("section_len must be positive, got %g", *c.SectionLen)
	}
	if c.MinPointsPerCell != nil && *c.MinPointsPerCell < 0 {
		return fmt.Errorf("min_points_per_cell must be non-negative, got %d", *c.MinPointsPerCell)
	}
	if c.PercentileDivisor != nil && *c.PercentileDivisor < 1 {
		return fmt.Errorf("percentile_divisor must be at least 1, got %d", *c.PercentileDivisor)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.Extension != nil && !strings.HasPrefix(*c.Extension, ".") {
		return fmt.Errorf("extension must start with '.', got %q", *c.Extension)
	}
	if c.LogLevel != nil {
		switch *c.LogLevel {
		case "", "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", *c.LogLevel)
		}
	}
	return nil
}

// GetSectionLen returns the section_len value or the default.
func (c *TuningConfig) GetSectionLen() float64 {
	if c.SectionLen == nil {
		return 20.0
	}
	return *c.SectionLen
}

// GetMinPointsPerCell returns the min_points_per_cell value or the default.
func (c *TuningConfig) GetMinPointsPerCell() int {
	if c.MinPointsPerCell == nil {
		return 100
	}
	return *c.MinPointsPerCell
}

// GetPercentileDivisor returns the percentile_divisor value or the default.
func (c *TuningConfig) GetPercentileDivisor() int {
	if c.PercentileDivisor == nil {
		return 20 // ≈ 5th percentile
	}
	return *c.PercentileDivisor
}

// GetVerbose returns the verbose value or the default.
func (c *TuningConfig) GetVerbose() bool {
	if c.Verbose == nil {
		return false
	}
	return *c.Verbose
}

// GetWorkers returns the workers value or the default.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 1
	}
	return *c.Workers
}

// GetExtension returns the extension value or the default.
func (c *TuningConfig) GetExtension() string {
	if c.Extension == nil {
		return ".pcd"
	}
	return *c.Extension
}

// GetOutputDir returns the output_dir value or the default. An empty
// string means "flat_output" under the input directory.
func (c *TuningConfig) GetOutputDir() string {
	if c.OutputDir == nil {
		return ""
	}
	return *c.OutputDir
}

// GetOutputSuffix returns the output_suffix value or the default.
func (c *TuningConfig) GetOutputSuffix() string {
	if c.OutputSuffix == nil {
		return "_flat"
	}
	return *c.OutputSuffix
}

// GetPlotDir returns the plot_dir value or the default (disabled).
func (c *TuningConfig) GetPlotDir() string {
	if c.PlotDir == nil {
		return ""
	}
	return *c.PlotDir
}

// GetDBPath returns the db_path value or the default (disabled).
func (c *TuningConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetLogLevel returns the log_level value or the default.
func (c *TuningConfig) GetLogLevel() string {
	if c.LogLevel == nil || *c.LogLevel == "" {
		return "info"
	}
	return *c.LogLevel
}

// GetLogFile returns the log_file value or the default (console only).
func (c *TuningConfig) GetLogFile() string {
	if c.LogFile == nil {
		return ""
	}
	return *c.LogFile
}
