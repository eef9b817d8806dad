// Package config loads the settings of a pcapmath run using viper.
// Values are taken from the defaults, an optional YAML file, PCAPMATH_ environment variables and
// command line flags, later sources override earlier ones.
package config

import (
	"fmt"
	"strings"

	"github.com/ajanusdev/pcapmath/canonical"
	"github.com/ajanusdev/pcapmath/capture"
	"github.com/ajanusdev/pcapmath/setAlgebra"
	"github.com/ajanusdev/pcapmath/summary"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the environment variables, e.g. PCAPMATH_LOG_LEVEL.
const EnvPrefix = "PCAPMATH"

// Output formats besides the capture formats.
const (
	OutputText = "txt"
	OutputYAML = "yaml"
	OutputCBOR = "cbor"
)

// Config is the complete configuration of one run.
type Config struct {
	Operations      OperationsConfig `mapstructure:"operations"`
	StripL2         bool             `mapstructure:"strip_l2"`
	StripL3         bool             `mapstructure:"strip_l3"`
	FailUnsupported bool             `mapstructure:"fail_unsupported"` // abort instead of skipping frames StripL3 can't handle
	ExcludeEmpty    bool             `mapstructure:"exclude_empty"`
	Outputs         []string         `mapstructure:"outputs"`
	OutDir          string           `mapstructure:"out_dir"`
	Overwrite       bool             `mapstructure:"overwrite"`
	Top             int              `mapstructure:"top"`
	CountMode       string           `mapstructure:"count_mode"`
	Summary         bool             `mapstructure:"summary"`
	Workers         int              `mapstructure:"workers"`
	Progress        bool             `mapstructure:"progress"`
	Verbose         bool             `mapstructure:"verbose"`
	Log             LogConfig        `mapstructure:"log"`
}

// OperationsConfig selects the set operations to compute.
type OperationsConfig struct {
	Union               bool `mapstructure:"union"`
	Intersect           bool `mapstructure:"intersect"`
	Difference          bool `mapstructure:"difference"`
	SymmetricDifference bool `mapstructure:"symmetric_difference"`
	BoundedIntersect    bool `mapstructure:"bounded_intersect"`
	InverseBounded      bool `mapstructure:"inverse_bounded"`
}

// LogConfig contains the logging settings.
type LogConfig struct {
	Level  string     `mapstructure:"level"`  // debug | info | warn | error
	Format string     `mapstructure:"format"` // text | json
	File   FileConfig `mapstructure:"file"`
}

// FileConfig contains the settings of the rotating log file.
type FileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// FlagKeys maps command line flag names to configuration keys.
// Flags missing from the FlagSet given to Load are left out.
var FlagKeys = map[string]string{
	"union":                "operations.union",
	"intersect":            "operations.intersect",
	"difference":           "operations.difference",
	"symmetric-difference": "operations.symmetric_difference",
	"bounded-intersect":    "operations.bounded_intersect",
	"inverse-bounded":      "operations.inverse_bounded",
	"strip-l2":             "strip_l2",
	"strip-l3":             "strip_l3",
	"fail-unsupported":     "fail_unsupported",
	"exclude-empty":        "exclude_empty",
	"output":               "outputs",
	"out-dir":              "out_dir",
	"overwrite":            "overwrite",
	"top":                  "top",
	"count-mode":           "count_mode",
	"summary":              "summary",
	"workers":              "workers",
	"progress":             "progress",
	"verbose":              "verbose",
	"log-level":            "log.level",
	"log-format":           "log.format",
	"log-file":             "log.file.path",
}

// Load reads the configuration.
//
// Takes:
//	path	string			- the path of a YAML config file, no file is read if empty
//	flags	*pflag.FlagSet	- the parsed command line flags, may be nil
//
// Returns:
//	*Config	- the validated configuration
//	error	- the error if the file couldn't be read or a value is invalid
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// PCAPMATH_LOG_LEVEL overrides log.level
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range FlagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// a log file given on the command line is enabled without further settings
	if cfg.Log.File.Path != "" && flags != nil && flags.Changed("log-file") {
		cfg.Log.File.Enabled = true
	}
	if cfg.Verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("operations.union", false)
	v.SetDefault("operations.intersect", false)
	v.SetDefault("operations.difference", false)
	v.SetDefault("operations.symmetric_difference", false)
	v.SetDefault("operations.bounded_intersect", false)
	v.SetDefault("operations.inverse_bounded", false)

	v.SetDefault("strip_l2", false)
	v.SetDefault("strip_l3", false)
	v.SetDefault("fail_unsupported", false)
	v.SetDefault("exclude_empty", false)
	v.SetDefault("outputs", []string{capture.FormatPcapng.String()})
	v.SetDefault("out_dir", ".")
	v.SetDefault("overwrite", false)
	v.SetDefault("top", 0)
	v.SetDefault("count_mode", summary.CountPresence.String())
	v.SetDefault("summary", false)
	v.SetDefault("workers", 0)
	v.SetDefault("progress", true)
	v.SetDefault("verbose", false)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "pcapmath.log")
	v.SetDefault("log.file.max_size_mb", 10)
	v.SetDefault("log.file.max_age_days", 7)
	v.SetDefault("log.file.max_backups", 3)
	v.SetDefault("log.file.compress", false)
}

// Validate checks every value that can't be checked by its type.
func (cfg *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Path == "" {
		return fmt.Errorf("log.file.path is required when log.file.enabled=true")
	}

	if len(cfg.Outputs) == 0 {
		return fmt.Errorf("at least one output format is required")
	}
	for _, output := range cfg.Outputs {
		if !validOutput(output) {
			return fmt.Errorf("invalid output format: %s (must be pcap/pcapng/txt/yaml/cbor)", output)
		}
	}

	if _, err := summary.ParseCountMode(cfg.CountMode); err != nil {
		return err
	}
	if cfg.Top < 0 {
		return fmt.Errorf("invalid top: %d (must not be negative)", cfg.Top)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("invalid workers: %d (must not be negative)", cfg.Workers)
	}
	if cfg.OutDir == "" {
		return fmt.Errorf("out_dir must not be empty")
	}

	return nil
}

// validOutput reports whether the output is a capture format or a report format.
func validOutput(output string) bool {
	if _, err := capture.ParseFormat(output); err == nil {
		return true
	}
	return output == OutputText || output == OutputYAML || output == OutputCBOR
}

// SelectedOperations returns the selected operations in their canonical order.
func (cfg *Config) SelectedOperations() []setAlgebra.Operation {
	selected := map[setAlgebra.Operation]bool{
		setAlgebra.Union:                    cfg.Operations.Union,
		setAlgebra.Intersection:             cfg.Operations.Intersect,
		setAlgebra.Difference:               cfg.Operations.Difference,
		setAlgebra.SymmetricDifference:      cfg.Operations.SymmetricDifference,
		setAlgebra.BoundedIntersection:      cfg.Operations.BoundedIntersect,
		setAlgebra.InverseBoundedDifference: cfg.Operations.InverseBounded,
	}

	operations := make([]setAlgebra.Operation, 0, len(selected))
	for _, operation := range setAlgebra.AllOperations {
		if selected[operation] {
			operations = append(operations, operation)
		}
	}
	return operations
}

// CanonicalOptions returns the headers to strip before frames are compared.
func (cfg *Config) CanonicalOptions() canonical.Options {
	return canonical.Options{StripL2: cfg.StripL2, StripL3: cfg.StripL3}
}

// CaptureFormats returns the capture formats among the outputs, duplicates removed.
func (cfg *Config) CaptureFormats() []capture.Format {
	formats := make([]capture.Format, 0, len(cfg.Outputs))
	seen := make(map[capture.Format]bool)
	for _, output := range cfg.Outputs {
		format, err := capture.ParseFormat(output)
		if err != nil || seen[format] {
			continue
		}
		seen[format] = true
		formats = append(formats, format)
	}
	return formats
}

// HasOutput reports whether the report format is among the outputs.
func (cfg *Config) HasOutput(output string) bool {
	for _, selected := range cfg.Outputs {
		if selected == output {
			return true
		}
	}
	return false
}

// SummaryCountMode returns the parsed count mode, the config must be valid.
func (cfg *Config) SummaryCountMode() summary.CountMode {
	mode, _ := summary.ParseCountMode(cfg.CountMode)
	return mode
}
